package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const checkScope = "check"

func newCheckCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Test the CalDAV connection",
		Long: `Connect to the configured CalDAV server, select the task calendar and
count today's open tasks. Exits non-zero if any step fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return runCheck(ctx, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall time limit for the check")
	return cmd
}

func runCheck(ctx context.Context, out io.Writer) error {
	logger := newLogger(os.Stderr)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.cache.Stop()

	if err := a.store.Connect(ctx); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	fmt.Fprintf(out, "Connected. Using calendar %s\n", a.store.Calendar())

	listed, err := a.engine.ListTasks(ctx, checkScope)
	if err != nil {
		return fmt.Errorf("failed to list today's tasks: %w", err)
	}
	fmt.Fprintf(out, "Open tasks due today: %d\n", len(listed))
	return nil
}
