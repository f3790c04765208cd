package instrumentation

// Cardinality management helpers for metrics.
// These functions reduce label values to a fixed set to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Scope keys and UIDs must never be used as metric labels directly.

// Store and engine operation names.
// Status and Outcome constants are defined in config.go.
const (
	OperationConnect   = "connect"
	OperationPing      = "ping"
	OperationQuery     = "query"
	OperationCreate    = "create"
	OperationSetStatus = "set_status"

	OperationAdd      = "add"
	OperationList     = "list"
	OperationComplete = "complete"

	OperationOther = "other"
)

var knownOperations = map[string]bool{
	OperationConnect:   true,
	OperationPing:      true,
	OperationQuery:     true,
	OperationCreate:    true,
	OperationSetStatus: true,
	OperationAdd:       true,
	OperationList:      true,
	OperationComplete:  true,
}

// NormalizeOperation maps unknown operation names to "other".
//
// Example:
//
//	NormalizeOperation("query")         // "query"
//	NormalizeOperation("PROPFIND /x/")  // "other"
func NormalizeOperation(op string) string {
	if knownOperations[op] {
		return op
	}
	return OperationOther
}
