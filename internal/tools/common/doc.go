// Package common provides shared utilities for the MCP task tools: scope
// derivation from the client session and the instrumentation wrapper that
// traces, meters and audits every tool call.
package common
