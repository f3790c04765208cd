package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/tasksync/internal/instrumentation"
	"github.com/teemow/tasksync/internal/logging"
	"github.com/teemow/tasksync/internal/refcache"
)

// SessionTracker follows MCP client sessions. Task references are scoped
// by session ID, so a session's references are forgotten as soon as the
// client goes away instead of waiting for their TTL.
type SessionTracker struct {
	sessions map[string]time.Time // session ID -> connected at
	mu       sync.RWMutex
	cache    *refcache.Cache
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// NewSessionTracker creates a tracker. cache and metrics may be nil.
func NewSessionTracker(cache *refcache.Cache, metrics *instrumentation.Metrics, logger *slog.Logger) *SessionTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionTracker{
		sessions: make(map[string]time.Time),
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// Hooks returns MCP server hooks that keep the tracker up to date.
func (t *SessionTracker) Hooks() *mcpserver.Hooks {
	hooks := &mcpserver.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session mcpserver.ClientSession) {
		t.Register(ctx, session.SessionID())
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session mcpserver.ClientSession) {
		t.Unregister(ctx, session.SessionID())
	})
	return hooks
}

// Register records a newly connected session.
func (t *SessionTracker) Register(ctx context.Context, sessionID string) {
	t.mu.Lock()
	_, exists := t.sessions[sessionID]
	if !exists {
		t.sessions[sessionID] = time.Now()
	}
	t.mu.Unlock()

	if exists {
		return
	}
	t.metrics.IncrementActiveSessions(ctx)
	t.logger.Debug("MCP session registered", logging.Scope(sessionID))
}

// Unregister removes a session and drops its task references.
func (t *SessionTracker) Unregister(ctx context.Context, sessionID string) {
	t.mu.Lock()
	connectedAt, exists := t.sessions[sessionID]
	delete(t.sessions, sessionID)
	t.mu.Unlock()

	if !exists {
		return
	}
	t.metrics.DecrementActiveSessions(ctx)

	dropped := 0
	if t.cache != nil {
		dropped = t.cache.Forget(sessionID)
	}
	t.logger.Debug("MCP session unregistered",
		logging.Scope(sessionID),
		slog.Duration(logging.KeyDuration, time.Since(connectedAt)),
		slog.Int("dropped_scopes", dropped))
}

// ListSessions returns all active session IDs
func (t *SessionTracker) ListSessions() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	sessions := make([]string, 0, len(t.sessions))
	for sessionID := range t.sessions {
		sessions = append(sessions, sessionID)
	}
	return sessions
}

// Count returns the number of active sessions.
func (t *SessionTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
