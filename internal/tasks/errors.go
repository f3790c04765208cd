package tasks

import (
	"fmt"
)

// ValidationError reports caller input that was rejected before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundReason distinguishes why a task could not be located.
type NotFoundReason string

const (
	// ReasonStaleOrdinal means the ordinal is unknown for the scope, out of
	// range, or belongs to an expired listing. The user should list again.
	ReasonStaleOrdinal NotFoundReason = "stale_ordinal"
	// ReasonVanished means the ordinal resolved but the record no longer
	// exists on the remote store.
	ReasonVanished NotFoundReason = "vanished"
)

// NotFoundError reports an ordinal or UID that could not be located.
type NotFoundError struct {
	Reason  NotFoundReason
	Scope   string
	Ordinal int
	UID     string
}

func (e *NotFoundError) Error() string {
	switch e.Reason {
	case ReasonVanished:
		if e.UID != "" {
			return fmt.Sprintf("task %s no longer exists on the server", e.UID)
		}
		return "task no longer exists on the server"
	default:
		return fmt.Sprintf("no task numbered %d in the current listing", e.Ordinal)
	}
}

// ParseError reports a remote record that could not be decoded.
// Raw holds the offending payload for logging and is never part of Error().
type ParseError struct {
	Reason string
	Raw    []byte
}

func (e *ParseError) Error() string {
	return "malformed task record: " + e.Reason
}

// TransportError reports a failure talking to the remote store: network
// problems, authentication failures, timeouts and unexpected server replies.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("caldav %s failed", e.Op)
	}
	return fmt.Sprintf("caldav %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
