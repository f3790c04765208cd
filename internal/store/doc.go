// Package store talks to a single CalDAV calendar collection.
//
// A Store discovers the user's calendars on first use, selects the one that
// holds tasks and then offers three operations on VTODO objects: Query by due
// window and status, Create, and SetStatus. Every call is bounded by the
// configured timeout and reports failures with the error types from
// internal/tasks, so callers never need to inspect HTTP details.
//
// Authentication is either HTTP basic (username plus app password) or a
// bearer token. Credentials are kept out of all errors and log lines.
package store
