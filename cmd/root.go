package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the tasksync application
var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Add, list and complete CalDAV tasks from chat",
	Long: `tasksync keeps a chat conversation in sync with the VTODO tasks of a
CalDAV calendar (Nextcloud Tasks, Radicale, ...).

It runs as an MCP (Model Context Protocol) server that offers three tools:
task_add, task_list and task_complete. Tasks are referred to by the number
shown in the most recent listing.

Connection settings are read from the environment or a .env file:
CALDAV_URL, CALDAV_USERNAME, CALDAV_PASSWORD (or CALDAV_TOKEN),
CALDAV_CALENDAR, CALDAV_TIMEOUT, TASK_REF_TTL and TASK_TIMEZONE.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// Flags shared by all commands
var (
	envFile   string
	calendar  string
	logLevel  string
	logFormat string
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "tasksync version %s\n" .Version}}`)

	// If no subcommand is provided, run the MCP server on stdio
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file with CalDAV settings (skipped when missing)")
	rootCmd.PersistentFlags().StringVar(&calendar, "calendar", "", "Calendar name or path to use. Overrides CALDAV_CALENDAR.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newVersionCmd())
}
