package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teemow/tasksync/internal/engine"
	"github.com/teemow/tasksync/internal/instrumentation"
)

// Pinger checks that the task store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a ServerContext.
type Options struct {
	Engine *engine.Engine
	// Store is used for readiness checks. Optional.
	Store   Pinger
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// ServerContext holds the dependencies shared by all MCP tool handlers.
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	engine      *engine.Engine
	store       Pinger
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	logger      *slog.Logger
	mu          sync.RWMutex
	shutdown    bool
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, opts Options) (*ServerContext, error) {
	if opts.Engine == nil {
		return nil, errors.New("task engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		engine:      opts.Engine,
		store:       opts.Store,
		metrics:     opts.Metrics,
		auditLogger: instrumentation.NewAuditLogger(opts.Logger),
		logger:      opts.Logger,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Engine returns the task engine.
func (sc *ServerContext) Engine() *engine.Engine {
	return sc.engine
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder. It may be nil; all recording
// methods are nil-safe.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetMetrics replaces the metrics recorder.
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// AuditLogger returns the audit logger for tool invocations.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// SetAuditLogger replaces the audit logger.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// Ping checks the task store. It succeeds when no store was configured.
func (sc *ServerContext) Ping(ctx context.Context) error {
	if sc.store == nil {
		return nil
	}
	return sc.store.Ping(ctx)
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context and stops the reference cache
// sweeper.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.engine.Cache().Stop()
	sc.cancel()
	return nil
}
