package testutil

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// FakeSession is a minimal MCP client session for handler tests.
type FakeSession struct {
	ID            string
	notifications chan mcp.JSONRPCNotification
}

// NewFakeSession returns an initialized session with the given ID.
func NewFakeSession(id string) *FakeSession {
	return &FakeSession{ID: id, notifications: make(chan mcp.JSONRPCNotification, 1)}
}

func (s *FakeSession) Initialize()       {}
func (s *FakeSession) Initialized() bool { return true }
func (s *FakeSession) SessionID() string { return s.ID }

func (s *FakeSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

// SessionContext returns ctx carrying session the way the MCP server passes
// it to tool handlers.
func SessionContext(ctx context.Context, srv *mcpserver.MCPServer, id string) context.Context {
	return srv.WithContext(ctx, NewFakeSession(id))
}
