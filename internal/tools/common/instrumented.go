package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/codes"

	"github.com/teemow/tasksync/internal/instrumentation"
	"github.com/teemow/tasksync/internal/logging"
	"github.com/teemow/tasksync/internal/server"
)

type invocationKey struct{}

// InvocationFromContext returns the audit record of the running tool call,
// or nil outside an instrumented handler. Handlers use it to attach the
// operation, task and outcome.
func InvocationFromContext(ctx context.Context) *instrumentation.ToolInvocation {
	ti, _ := ctx.Value(invocationKey{}).(*instrumentation.ToolInvocation)
	return ti
}

// InstrumentedToolHandler wraps a tool handler with tracing, metrics and
// audit logging. The scope of the call is resolved once and recorded hashed.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		scope := ScopeFromRequest(ctx, request.GetArguments())

		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			instrumentation.NewSpanAttributeBuilder().WithScope(logging.ScopeHash(scope)).Build()...)
		defer span.End()

		invocation := instrumentation.NewToolInvocation(toolName).
			WithScope(scope).
			WithSpanContext(ctx)
		ctx = context.WithValue(ctx, invocationKey{}, invocation)

		result, err := handler(ctx, request)
		duration := time.Since(start)

		switch {
		case err != nil:
			invocation.CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			// Keeps any error recorded by the handler via RecordFailure.
			invocation.Complete(false, nil)
			span.SetStatus(codes.Error, invocation.Outcome)
		default:
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolInvocationWithScope(ctx, toolName, invocation.Status(), invocation.ScopeHash(), duration)
		sc.AuditLogger().LogToolInvocation(invocation)

		return result, err
	}
}

// RecordFailure attaches a handled error to the running invocation. The
// handler still returns a user-facing error result; the audit log gets the
// underlying cause.
func RecordFailure(ctx context.Context, outcome string, err error) {
	ti := InvocationFromContext(ctx)
	if ti == nil {
		return
	}
	ti.WithOutcome(outcome)
	if err != nil {
		ti.Error = err.Error()
	}
}
