package record

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/teemow/tasksync/internal/tasks"
)

// ProductID is written as PRODID on every calendar object we create.
const ProductID = "-//teemow//tasksync//EN"

// UntitledSummary is used for records that carry no SUMMARY.
const UntitledSummary = "Untitled"

const (
	utcFormat  = "20060102T150405Z"
	dateFormat = "20060102"
)

// Record is a decoded VTODO together with the calendar object it came from.
// It supports read-modify-write: properties the codec does not understand
// (alarms, categories, X- properties, time zones) are kept as they were.
type Record struct {
	cal  *ical.Calendar
	todo *ical.Component
	task tasks.Task
}

// Task returns the decoded task.
func (r *Record) Task() tasks.Task {
	return r.task
}

// Calendar returns the underlying calendar object, including any changes
// made through SetStatus.
func (r *Record) Calendar() *ical.Calendar {
	return r.cal
}

// LastModified returns the LAST-MODIFIED timestamp, or false when the
// record has none or it cannot be parsed.
func (r *Record) LastModified() (time.Time, bool) {
	p := r.todo.Props.Get(ical.PropLastModified)
	if p == nil {
		return time.Time{}, false
	}
	t, err := p.DateTime(time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetStatus rewrites STATUS, COMPLETED, PERCENT-COMPLETE and LAST-MODIFIED.
// Every other property is left untouched.
func (r *Record) SetStatus(status tasks.Status, completed, now time.Time) {
	props := r.todo.Props
	props.SetText(ical.PropStatus, string(status))

	if status == tasks.StatusCompleted {
		if completed.IsZero() {
			completed = now
		}
		completed = completed.Truncate(time.Second)
		setUTC(props, ical.PropCompleted, completed)
		pct := ical.NewProp(ical.PropPercentComplete)
		pct.Value = "100"
		props.Set(pct)
		r.task.Completed = completed
	} else {
		props.Del(ical.PropCompleted)
		props.Del(ical.PropPercentComplete)
		r.task.Completed = time.Time{}
	}
	setUTC(props, ical.PropLastModified, now)

	r.task.Status = status
}

// Parse decodes a raw iCalendar payload into a Record. Floating and
// DATE-only timestamps are interpreted in loc (time.Local when nil).
func Parse(raw []byte, loc *time.Location) (*Record, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(raw)).Decode()
	if err != nil {
		return nil, &tasks.ParseError{Reason: fmt.Sprintf("not an iCalendar object: %v", err), Raw: raw}
	}
	return fromCalendar(cal, loc, raw)
}

// FromCalendar wraps an already parsed calendar object.
func FromCalendar(cal *ical.Calendar, loc *time.Location) (*Record, error) {
	return fromCalendar(cal, loc, nil)
}

// Decode converts a raw iCalendar payload into a Task using local time for
// floating timestamps.
func Decode(raw []byte) (tasks.Task, error) {
	rec, err := Parse(raw, time.Local)
	if err != nil {
		return tasks.Task{}, err
	}
	return rec.Task(), nil
}

// Encode serializes a task as a complete VCALENDAR with a single VTODO.
func Encode(t tasks.Task) ([]byte, error) {
	cal, err := ToCalendar(t, time.Now())
	if err != nil {
		return nil, err
	}
	return marshal(cal)
}

// ToCalendar builds a new calendar object for t. stamp is written as DTSTAMP.
func ToCalendar(t tasks.Task, stamp time.Time) (*ical.Calendar, error) {
	if strings.TrimSpace(t.UID) == "" {
		return nil, &tasks.ValidationError{Field: "uid", Message: "must not be empty"}
	}
	if strings.TrimSpace(t.Title) == "" {
		return nil, &tasks.ValidationError{Field: "title", Message: "must not be empty"}
	}
	status := t.Status
	if status == "" {
		status = tasks.StatusNeedsAction
	}
	if _, err := tasks.ParseStatus(string(status)); err != nil {
		return nil, &tasks.ValidationError{Field: "status", Message: err.Error()}
	}
	if status == tasks.StatusCompleted && t.Completed.IsZero() {
		return nil, &tasks.ValidationError{Field: "completed", Message: "required when status is COMPLETED"}
	}

	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, t.UID)
	setUTC(todo.Props, ical.PropDateTimeStamp, stamp)
	todo.Props.SetText(ical.PropSummary, t.Title)
	todo.Props.SetText(ical.PropStatus, string(status))
	if t.Description != "" {
		todo.Props.SetText(ical.PropDescription, t.Description)
	}
	if t.Priority > 0 {
		p := ical.NewProp(ical.PropPriority)
		p.Value = strconv.Itoa(t.Priority)
		todo.Props.Set(p)
	}
	if t.HasDue() {
		setUTC(todo.Props, ical.PropDue, t.Due)
	}
	if status == tasks.StatusCompleted {
		setUTC(todo.Props, ical.PropCompleted, t.Completed)
		pct := ical.NewProp(ical.PropPercentComplete)
		pct.Value = "100"
		todo.Props.Set(pct)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Children = append(cal.Children, todo)
	return cal, nil
}

func marshal(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func fromCalendar(cal *ical.Calendar, loc *time.Location, raw []byte) (*Record, error) {
	if loc == nil {
		loc = time.Local
	}
	fail := func(format string, args ...interface{}) error {
		if raw == nil && cal != nil {
			raw, _ = marshal(cal)
		}
		return &tasks.ParseError{Reason: fmt.Sprintf(format, args...), Raw: raw}
	}

	if cal == nil || cal.Component == nil {
		return nil, fail("empty calendar object")
	}

	var todo *ical.Component
	for _, child := range cal.Children {
		if child.Name == ical.CompToDo {
			todo = child
			break
		}
	}
	if todo == nil {
		return nil, fail("no VTODO component")
	}

	uid, err := todo.Props.Text(ical.PropUID)
	if err != nil {
		return nil, fail("invalid UID: %v", err)
	}
	if strings.TrimSpace(uid) == "" {
		return nil, fail("missing UID")
	}

	t := tasks.Task{UID: uid, Status: tasks.StatusNeedsAction}

	if t.Title, err = todo.Props.Text(ical.PropSummary); err != nil {
		return nil, fail("invalid SUMMARY: %v", err)
	}
	if strings.TrimSpace(t.Title) == "" {
		t.Title = UntitledSummary
	}
	if t.Description, err = todo.Props.Text(ical.PropDescription); err != nil {
		return nil, fail("invalid DESCRIPTION: %v", err)
	}

	if p := todo.Props.Get(ical.PropStatus); p != nil {
		st, err := tasks.ParseStatus(strings.ToUpper(strings.TrimSpace(p.Value)))
		if err != nil {
			return nil, fail("%v", err)
		}
		t.Status = st
	}

	// Out-of-range or unparsable priorities are treated as undefined.
	if p := todo.Props.Get(ical.PropPriority); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil && n >= 0 && n <= 9 {
			t.Priority = n
		}
	}

	if p := todo.Props.Get(ical.PropDue); p != nil {
		due, err := parseTime(p, loc)
		if err != nil {
			return nil, fail("invalid DUE %q: %v", p.Value, err)
		}
		t.Due = due
	}

	if p := todo.Props.Get(ical.PropCompleted); p != nil {
		completed, err := parseTime(p, loc)
		if err != nil {
			return nil, fail("invalid COMPLETED %q: %v", p.Value, err)
		}
		if t.Status == tasks.StatusCompleted {
			t.Completed = completed
		}
	}

	return &Record{cal: cal, todo: todo, task: t}, nil
}

// parseTime handles DATE-TIME (UTC, floating or TZID) and DATE values.
// A DATE value means "some time that day" and maps to 23:59:59 local time.
func parseTime(p *ical.Prop, loc *time.Location) (time.Time, error) {
	value := strings.TrimSpace(p.Value)
	if strings.EqualFold(p.Params.Get(ical.ParamValue), "DATE") || len(value) == len(dateFormat) {
		d, err := time.ParseInLocation(dateFormat, value, loc)
		if err != nil {
			return time.Time{}, err
		}
		return tasks.EndOfDay(d, loc), nil
	}
	return p.DateTime(loc)
}

func setUTC(props ical.Props, name string, t time.Time) {
	p := ical.NewProp(name)
	p.Value = t.UTC().Format(utcFormat)
	props.Set(p)
}
