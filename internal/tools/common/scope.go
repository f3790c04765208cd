package common

import (
	"context"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// DefaultScope is used when a request carries no MCP session.
const DefaultScope = "default"

// ScopeArg is the optional tool argument that narrows a session scope, for
// example to one chat channel bridged over a single MCP session.
const ScopeArg = "scope"

// ScopeFromRequest derives the reference scope for a tool call.
//
// Priority order:
//  1. MCP client session ID from context (falls back to DefaultScope)
//  2. Optional "scope" argument, appended as "<session>/<scope>"
func ScopeFromRequest(ctx context.Context, args map[string]interface{}) string {
	base := DefaultScope
	if session := mcpserver.ClientSessionFromContext(ctx); session != nil && session.SessionID() != "" {
		base = session.SessionID()
	}

	if sub, ok := args[ScopeArg].(string); ok {
		if sub = strings.TrimSpace(sub); sub != "" {
			return base + "/" + sub
		}
	}
	return base
}
