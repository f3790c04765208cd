// Package server provides the MCP server context and the HTTP plumbing for
// the tasksync application.
//
// # Key Components
//
// ServerContext carries the task engine, metrics recorder and audit logger
// to the MCP tool handlers.
//
// HTTPServer serves the MCP streamable HTTP transport at /mcp next to the
// Kubernetes health endpoints. Readiness includes a CalDAV reachability
// check, so a pod with wrong credentials never receives traffic.
//
// MetricsServer exposes Prometheus metrics on a dedicated port.
//
// SessionTracker hooks into MCP session lifecycle events to maintain the
// active_sessions gauge and to drop a session's task references when the
// client disconnects.
package server
