package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/tasksync/internal/logging"
)

// ToolInvocation captures all information about a tool invocation for audit logging.
// This provides an audit trail for every task added, listed or completed
// through the MCP tools.
//
// # Privacy Considerations
//
// The Scope field identifies a chat session or channel. General logs only
// carry its hash (see ScopeHash); the raw value is written only when the
// audit logger is configured with IncludeScope.
type ToolInvocation struct {
	// Tool name
	Tool string

	// Scope key the ordinals belong to (MCP session, optionally with channel)
	Scope string

	// Target information
	Operation string // Engine operation (add, list, complete)
	Ordinal   int    // Ordinal the user referred to, 0 when not applicable
	UID       string // Task UID touched by the operation

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Outcome   string
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// ScopeHash returns the anonymized scope for lower-risk logging.
func (ti *ToolInvocation) ScopeHash() string {
	return logging.ScopeHash(ti.Scope)
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes for structured logging.
// The scope is hashed; use LogAuditAttrs for the raw value.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}

	// Add optional fields only if present
	if ti.Scope != "" {
		attrs = append(attrs, slog.String("scope_hash", ti.ScopeHash()))
	}
	attrs = append(attrs, ti.targetAttrs()...)
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}

	return attrs
}

// LogAuditAttrs returns slog attributes for full audit logging, including
// the raw scope key.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.String("scope", ti.Scope),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}

	attrs = append(attrs, ti.targetAttrs()...)
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}

	return attrs
}

func (ti *ToolInvocation) targetAttrs() []slog.Attr {
	var attrs []slog.Attr
	if ti.Operation != "" {
		attrs = append(attrs, slog.String("operation", ti.Operation))
	}
	if ti.Ordinal > 0 {
		attrs = append(attrs, slog.Int("ordinal", ti.Ordinal))
	}
	if ti.UID != "" {
		attrs = append(attrs, slog.String("uid", ti.UID))
	}
	if ti.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", ti.Outcome))
	}
	return attrs
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete() when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithScope sets the scope key.
func (ti *ToolInvocation) WithScope(scope string) *ToolInvocation {
	ti.Scope = scope
	return ti
}

// WithOperation sets the engine operation.
func (ti *ToolInvocation) WithOperation(operation string) *ToolInvocation {
	ti.Operation = operation
	return ti
}

// WithTask sets the ordinal and UID the invocation acted on.
func (ti *ToolInvocation) WithTask(ordinal int, uid string) *ToolInvocation {
	ti.Ordinal = ordinal
	ti.UID = uid
	return ti
}

// WithOutcome sets the outcome label (see the Outcome* constants).
func (ti *ToolInvocation) WithOutcome(outcome string) *ToolInvocation {
	ti.Outcome = outcome
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete marks the invocation as completed and calculates duration.
// Returns the same ToolInvocation for method chaining.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// AuditLogger provides structured audit logging for tool invocations.
// It wraps slog.Logger with convenience methods for logging tool operations.
type AuditLogger struct {
	logger       *slog.Logger
	includeScope bool
	enabled      bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, scopes are hashed.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:       logger,
		includeScope: false,
		enabled:      true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:       logger,
		includeScope: config.IncludeScope,
		enabled:      config.Enabled,
	}
}

// SetIncludeScope sets whether to include raw scope keys in audit logs.
func (al *AuditLogger) SetIncludeScope(include bool) {
	al.includeScope = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogToolInvocation logs a tool invocation.
// Raw scope keys are only written when IncludeScope is configured.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includeScope {
		attrs = ti.LogAuditAttrs()
	} else {
		attrs = ti.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if ti.Success {
		al.logger.Info("tool_executed", args...)
	} else {
		al.logger.Warn("tool_failed", args...)
	}
}
