package store

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/teemow/tasksync/internal/tasks"
)

var (
	errUnauthorized = errors.New("authentication rejected by server")
	errTimeout      = errors.New("request timed out")
	errNotFound     = errors.New("resource not found")
)

// wrapError classifies an error returned by the CalDAV client. Network
// failures are transport errors regardless of their text, since it carries
// the request URL.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		te *tasks.TransportError
		pe *tasks.ParseError
		nf *tasks.NotFoundError
	)
	if errors.As(err, &te) || errors.As(err, &pe) || errors.As(err, &nf) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &tasks.TransportError{Op: op, Err: errTimeout}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &tasks.TransportError{Op: op, Err: errTimeout}
		}
		return &tasks.TransportError{Op: op, Err: err}
	}

	switch statusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &tasks.TransportError{Op: op, Err: errUnauthorized}
	case http.StatusNotFound:
		return &tasks.TransportError{Op: op, Err: errNotFound}
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "context deadline exceeded"):
		return &tasks.TransportError{Op: op, Err: errTimeout}
	case strings.HasPrefix(errStr, "ical:"):
		return &tasks.ParseError{Reason: errStr}
	}
	return &tasks.TransportError{Op: op, Err: err}
}

// statusCode extracts the HTTP status from a webdav client error. Those
// render as "<code> <status text>[: <body>]", possibly behind wrapping, so
// each error in the chain is checked for that exact prefix. It returns 0
// when no error in the chain has that form.
func statusCode(err error) int {
	for ; err != nil; err = errors.Unwrap(err) {
		msg := err.Error()
		if len(msg) < 4 || msg[3] != ' ' {
			continue
		}
		code, convErr := strconv.Atoi(msg[:3])
		if convErr != nil {
			continue
		}
		text := http.StatusText(code)
		if text != "" && strings.HasPrefix(msg[4:], text) {
			return code
		}
	}
	return 0
}

// isNotFound reports whether a classified error is a 404 from the server.
func isNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}
