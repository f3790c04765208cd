// Package logging provides structured logging helpers for tasksync.
//
// All packages log through the standard library's slog with the attribute
// keys defined here, so log lines from the MCP tools, the task engine and
// the CalDAV store can be joined on operation, tool and scope_hash.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "list")
//	logger.Info("listed tasks",
//	    logging.Scope(scope),
//	    logging.Status(logging.StatusSuccess))
//
// # Security Considerations
//
//   - Scope keys are hashed with ScopeHash; raw values only reach the audit log
//     when AUDIT_LOGGING_INCLUDE_SCOPE is set.
//   - Passwords and bearer tokens are only ever logged through SanitizeToken.
//   - Server URLs pass through RedactURL so embedded userinfo is dropped.
package logging
