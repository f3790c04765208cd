package tasks

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a VTODO record.
type Status string

const (
	StatusNeedsAction Status = "NEEDS-ACTION"
	StatusInProcess   Status = "IN-PROCESS"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
)

// ParseStatus converts a wire value into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusNeedsAction, StatusInProcess, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Open reports whether the task still needs attention.
func (s Status) Open() bool {
	return s == StatusNeedsAction || s == StatusInProcess
}

// Task represents a single VTODO record on the remote calendar
type Task struct {
	UID         string
	Title       string
	Description string
	Priority    int // 0 = undefined, 1 = highest, 9 = lowest
	Status      Status
	Due         time.Time // zero when the record carries no DUE
	Completed   time.Time // non-zero only when Status is COMPLETED
}

// HasDue reports whether the task carries a due time.
func (t Task) HasDue() bool {
	return !t.Due.IsZero()
}

// OrdinalTask pairs a task with the 1-based number shown to the user
type OrdinalTask struct {
	Ordinal int
	Task    Task
}

// Filter selects tasks by due window and status.
// DueStart is inclusive and DueEnd is exclusive; a zero bound is open.
type Filter struct {
	DueStart time.Time
	DueEnd   time.Time
	Statuses []Status
}

// Matches reports whether the task satisfies the filter.
// Tasks without a due time never match a filter with a due bound.
func (f Filter) Matches(t Task) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if t.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if f.DueStart.IsZero() && f.DueEnd.IsZero() {
		return true
	}
	if !t.HasDue() {
		return false
	}
	if !f.DueStart.IsZero() && t.Due.Before(f.DueStart) {
		return false
	}
	if !f.DueEnd.IsZero() && !t.Due.Before(f.DueEnd) {
		return false
	}
	return true
}

// DayWindow returns the filter bounds covering the local calendar day of now.
func DayWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// EndOfDay returns 23:59:59 on the local calendar day of t.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 0, loc)
}
