// Package instrumentation provides OpenTelemetry instrumentation for the
// tasksync MCP server.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, CalDAV calls and engine operations
//   - Distributed tracing for tool calls, engine operations and CalDAV requests
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - active_sessions: Gauge of connected MCP client sessions
//
// CalDAV Store Metrics:
//   - caldav_operations_total: Counter of store operations by operation and status
//   - caldav_operation_duration_seconds: Histogram of store operation durations
//
// Engine Metrics:
//   - task_engine_operations_total: Counter of add/list/complete by outcome
//   - task_engine_operation_duration_seconds: Histogram of engine operation durations
//   - tasks_listed: Histogram of listing sizes
//   - task_reference_resolutions_total: Counter of ordinal lookups (hit, stale)
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>), engine operations
// (engine.<operation>) and CalDAV operations (caldav.<operation>). The CalDAV
// HTTP client is wrapped with otelhttp, so individual PROPFIND, REPORT, GET
// and PUT requests appear as children of the caldav spans.
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: tasksync)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordStoreOperation(ctx, instrumentation.OperationQuery, instrumentation.StatusSuccess, time.Since(start))
//	recorder.RecordToolInvocation(ctx, "task_list", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
