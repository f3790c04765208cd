package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/teemow/tasksync/internal/config"
	"github.com/teemow/tasksync/internal/engine"
	"github.com/teemow/tasksync/internal/instrumentation"
	"github.com/teemow/tasksync/internal/logging"
	"github.com/teemow/tasksync/internal/refcache"
	"github.com/teemow/tasksync/internal/store"
)

// app holds the components shared by serve and check.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	cache  *refcache.Cache
	engine *engine.Engine
}

// newLogger builds the process logger from the global flags. All logs go to
// w, which is stderr for every command: stdout carries the MCP protocol on
// the stdio transport.
func newLogger(w io.Writer) *slog.Logger {
	logger := logging.New(w, logLevel, logFormat)
	slog.SetDefault(logger)
	return logger
}

// loadConfig reads the .env file and environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if calendar != "" {
		cfg.CalDAV.Calendar = calendar
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp wires the store, reference cache and engine. metrics may be nil.
func newApp(cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics) (*app, error) {
	st, err := store.New(store.Config{
		URL:      cfg.CalDAV.URL,
		Username: cfg.CalDAV.Username,
		Password: cfg.CalDAV.Password,
		Token:    cfg.CalDAV.Token,
		Calendar: cfg.CalDAV.Calendar,
		Timeout:  cfg.CalDAV.Timeout,
		Location: cfg.Location,
		Logger:   logging.NewSlogAdapter(logger),
		Metrics:  metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV store: %w", err)
	}

	cache := refcache.New(refcache.Config{
		TTL:    cfg.RefTTL,
		Logger: logger,
	})

	eng, err := engine.New(engine.Config{
		Store:    st,
		Cache:    cache,
		Logger:   logger,
		Metrics:  metrics,
		Location: cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task engine: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		cache:  cache,
		engine: eng,
	}, nil
}
