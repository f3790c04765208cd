package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyScopeHash = "scope_hash"
	KeyOrdinal   = "ordinal"
	KeyUID       = "uid"
	KeyCalendar  = "calendar"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyTool      = "tool"
)

// Status values for consistent logging.
// Note: These are intentionally duplicated from instrumentation package
// to avoid circular dependencies (instrumentation imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// New builds the process logger. format is "text" or "json"; level is one
// of debug, info, warn, error (default info). MCP servers on stdio must pass
// os.Stderr, since stdout carries the protocol.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel converts a level name to a slog.Level, defaulting to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// WithScope returns a logger carrying the hashed scope.
func WithScope(logger *slog.Logger, scope string) *slog.Logger {
	return logger.With(Scope(scope))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Ordinal returns a slog attribute for a user-facing task number.
func Ordinal(n int) slog.Attr {
	return slog.Int(KeyOrdinal, n)
}

// UID returns a slog attribute for a VTODO UID.
func UID(uid string) slog.Attr {
	return slog.String(KeyUID, uid)
}

// Calendar returns a slog attribute for a calendar collection path.
func Calendar(path string) slog.Attr {
	return slog.String(KeyCalendar, path)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
// This allows safely passing Err(maybeNilErr) without adding empty attributes.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		// Return an empty Group that slog will omit from output
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// ScopeHash returns a hashed representation of a scope key for logging.
// Scope keys embed chat session and channel identifiers; the hash still
// allows correlating log lines for one conversation.
func ScopeHash(scope string) string {
	if scope == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(scope))
	return "scope:" + hex.EncodeToString(hash[:8])
}

// Scope returns a slog attribute with the hashed scope.
//
// Usage:
//
//	logger.Info("listed tasks", logging.Scope(scope))
func Scope(scope string) slog.Attr {
	return slog.String(KeyScopeHash, ScopeHash(scope))
}

// SanitizeToken returns a masked version of a token or password for logging.
// It returns a length indicator without exposing any content.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// RedactURL strips userinfo and query parameters from a URL so it can be
// logged. Unparseable input is replaced entirely.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
