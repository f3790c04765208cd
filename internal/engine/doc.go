// Package engine implements the task operations exposed to chat clients:
// adding a task for today, listing today's open tasks under short ordinals,
// and completing a task by the ordinal shown in the last listing.
//
// The engine is the only place that combines the CalDAV store with the
// ordinal reference cache. Ordinals are resolved against the listing of the
// same scope only, and the remote store is always the source of truth for
// task state.
package engine
