// Package tasks defines the domain types shared by the task synchronization
// engine, the CalDAV store adapter and the ordinal reference cache.
//
// A Task mirrors one VTODO record on the remote calendar. The remote store is
// the single source of truth; values of these types are snapshots and are
// never written back without going through the store adapter.
//
// # Errors
//
// Every failure surfaced by the engine is one of four concrete types, matched
// with errors.As:
//
//   - *ValidationError: the caller supplied bad input (for example a blank title)
//   - *NotFoundError: an ordinal did not resolve, or the task vanished remotely
//   - *ParseError: a remote record could not be decoded
//   - *TransportError: the remote store could not be reached or rejected the request
//
// # Example Usage
//
//	task, err := eng.CompleteTask(ctx, scope, 2)
//	var nf *tasks.NotFoundError
//	if errors.As(err, &nf) && nf.Reason == tasks.ReasonStaleOrdinal {
//	    // ask the user to list again
//	}
package tasks
