package server

import (
	"context"
	"errors"
	"testing"

	"github.com/teemow/tasksync/internal/engine"
	"github.com/teemow/tasksync/internal/instrumentation"
	"github.com/teemow/tasksync/internal/testutil"
)

func newTestServerContext(t *testing.T, store *testutil.FakeStore) *ServerContext {
	t.Helper()
	eng, err := engine.New(engine.Config{Store: store})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	sc, err := NewServerContext(context.Background(), Options{Engine: eng, Store: store})
	if err != nil {
		t.Fatalf("NewServerContext() error = %v", err)
	}
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestNewServerContext_RequiresEngine(t *testing.T) {
	if _, err := NewServerContext(context.Background(), Options{}); err == nil {
		t.Error("NewServerContext() without engine should fail")
	}
}

func TestServerContext_Shutdown(t *testing.T) {
	sc := newTestServerContext(t, testutil.NewFakeStore())

	if sc.IsShutdown() {
		t.Error("new context should not be shut down")
	}
	if err := sc.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if !sc.IsShutdown() {
		t.Error("IsShutdown() = false after Shutdown()")
	}
	if sc.Context().Err() == nil {
		t.Error("context should be cancelled after Shutdown()")
	}
	// Second shutdown is a no-op
	if err := sc.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestServerContext_Ping(t *testing.T) {
	store := testutil.NewFakeStore()
	sc := newTestServerContext(t, store)

	if err := sc.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	store.PingErr = errors.New("401 Unauthorized")
	if err := sc.Ping(context.Background()); err == nil {
		t.Error("Ping() should report store failures")
	}
}

func TestServerContext_AuditLoggerAndMetrics(t *testing.T) {
	sc := newTestServerContext(t, testutil.NewFakeStore())

	if sc.AuditLogger() == nil {
		t.Error("AuditLogger() should default to a non-nil logger")
	}
	al := instrumentation.NewAuditLoggerWithConfig(nil, instrumentation.AuditLoggingConfig{Enabled: true})
	sc.SetAuditLogger(al)
	if sc.AuditLogger() != al {
		t.Error("SetAuditLogger() did not replace the logger")
	}

	if sc.Metrics() != nil {
		t.Error("Metrics() should be nil when not configured")
	}
}
