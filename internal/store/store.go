package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/tasksync/internal/instrumentation"
	"github.com/teemow/tasksync/internal/logging"
	"github.com/teemow/tasksync/internal/record"
	"github.com/teemow/tasksync/internal/tasks"
)

// DefaultTimeout bounds every remote call when Config.Timeout is unset.
const DefaultTimeout = 15 * time.Second

// Config configures a Store.
type Config struct {
	// URL is the CalDAV endpoint, e.g. https://cloud.example.com/remote.php/dav.
	// Userinfo embedded in the URL is used for basic auth and then stripped.
	URL      string
	Username string
	Password string
	// Token selects bearer authentication instead of basic auth.
	Token string
	// Calendar selects a collection by display name or path. When empty the
	// first calendar that supports VTODO is used.
	Calendar string
	Timeout  time.Duration
	// Location interprets floating and DATE-only timestamps.
	Location *time.Location

	HTTPClient *http.Client
	Logger     logging.Logger
	Metrics    *instrumentation.Metrics
}

// calendarClient is the subset of *caldav.Client used by Store.
type calendarClient interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, calendarHomeSet string) ([]caldav.Calendar, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
	GetCalendarObject(ctx context.Context, path string) (*caldav.CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
}

// Store reads and writes VTODO objects in one CalDAV calendar collection.
// It is safe for concurrent use.
type Store struct {
	client  calendarClient
	want    string
	timeout time.Duration
	loc     *time.Location
	logger  logging.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
	newUID  func() string

	// discovery collapses concurrent connects into one round trip. mu only
	// guards calendar and is never held across network calls.
	discovery singleflight.Group
	mu        sync.Mutex
	calendar  string
}

// New creates a Store. No network traffic happens until the first call.
func New(cfg Config) (*Store, error) {
	endpoint, user, pass, err := splitCredentials(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Username != "" {
		user, pass = cfg.Username, cfg.Password
	}

	client, err := caldav.NewClient(newHTTPClient(cfg.HTTPClient, user, pass, cfg.Token), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
	}

	s := newWithClient(cfg, client)
	s.logger.Debug("CalDAV store configured",
		"endpoint", logging.RedactURL(endpoint),
		"auth", authMode(user, cfg.Token))
	return s, nil
}

func newWithClient(cfg Config, client calendarClient) *Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}
	return &Store{
		client:  client,
		want:    strings.TrimSpace(cfg.Calendar),
		timeout: cfg.Timeout,
		loc:     cfg.Location,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     time.Now,
		newUID:  uuid.NewString,
	}
}

func authMode(user, token string) string {
	switch {
	case token != "":
		return "bearer"
	case user != "":
		return "basic"
	default:
		return "none"
	}
}

// Connect discovers the calendar collection. It is idempotent; the other
// methods connect lazily.
func (s *Store) Connect(ctx context.Context) error {
	_, err := s.calendarPath(ctx)
	return err
}

// Calendar returns the selected collection path, or "" before Connect.
func (s *Store) Calendar() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calendar
}

// Ping checks that the server is reachable and accepts our credentials.
func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, instrumentation.OperationPing, nil, func(ctx context.Context) error {
		_, err := s.client.FindCurrentUserPrincipal(ctx)
		return err
	})
}

func (s *Store) calendarPath(ctx context.Context) (string, error) {
	s.mu.Lock()
	cal := s.calendar
	s.mu.Unlock()
	if cal != "" {
		return cal, nil
	}

	// The shared discovery is bounded by the store timeout only, so a caller
	// with a short deadline cannot cut it short for the others.
	shared := context.WithoutCancel(ctx)
	ch := s.discovery.DoChan("calendar", func() (any, error) {
		return s.discover(shared)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", wrapError(instrumentation.OperationConnect, ctx.Err())
	}
}

func (s *Store) discover(ctx context.Context) (string, error) {
	s.mu.Lock()
	cal := s.calendar
	s.mu.Unlock()
	if cal != "" {
		return cal, nil
	}

	var selected caldav.Calendar
	err := s.do(ctx, instrumentation.OperationConnect, nil, func(ctx context.Context) error {
		principal, err := s.client.FindCurrentUserPrincipal(ctx)
		if err != nil {
			return err
		}
		home, err := s.client.FindCalendarHomeSet(ctx, principal)
		if err != nil {
			return err
		}
		cals, err := s.client.FindCalendars(ctx, home)
		if err != nil {
			return err
		}
		selected, err = selectCalendar(cals, s.want)
		return err
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.calendar = selected.Path
	s.mu.Unlock()
	s.logger.Info("Connected to CalDAV calendar",
		logging.Calendar(selected.Path), "name", selected.Name)
	return selected.Path, nil
}

// selectCalendar picks the collection named by want (display name or path),
// or the first one advertising VTODO support. Collections that advertise no
// component set at all are a fallback.
func selectCalendar(cals []caldav.Calendar, want string) (caldav.Calendar, error) {
	if want != "" {
		for _, c := range cals {
			if strings.EqualFold(c.Name, want) || strings.TrimSuffix(c.Path, "/") == strings.TrimSuffix(want, "/") {
				return c, nil
			}
		}
		return caldav.Calendar{}, &tasks.TransportError{
			Op:  instrumentation.OperationConnect,
			Err: fmt.Errorf("calendar %q not found", want),
		}
	}

	var fallback *caldav.Calendar
	for i, c := range cals {
		if len(c.SupportedComponentSet) == 0 {
			if fallback == nil {
				fallback = &cals[i]
			}
			continue
		}
		for _, comp := range c.SupportedComponentSet {
			if strings.EqualFold(comp, ical.CompToDo) {
				return c, nil
			}
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return caldav.Calendar{}, &tasks.TransportError{
		Op:  instrumentation.OperationConnect,
		Err: errors.New("no calendar supports tasks"),
	}
}

// Query returns the tasks matching filter. The server-side time range only
// narrows the transfer; every record is re-checked against filter locally.
func (s *Store) Query(ctx context.Context, filter tasks.Filter) ([]tasks.Task, error) {
	cal, err := s.calendarPath(ctx)
	if err != nil {
		return nil, err
	}

	var result []tasks.Task
	attrs := instrumentation.NewSpanAttributeBuilder().WithCalendar(cal).Build()
	err = s.do(ctx, instrumentation.OperationQuery, attrs, func(ctx context.Context) error {
		objs, err := s.client.QueryCalendar(ctx, cal, todoQuery(filter))
		if err != nil {
			return err
		}
		for _, obj := range objs {
			rec, err := record.FromCalendar(obj.Data, s.loc)
			if err != nil {
				s.logger.Warn("Query aborted: malformed record",
					"path", obj.Path, logging.Err(err))
				return err
			}
			if t := rec.Task(); filter.Matches(t) {
				result = append(result, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func todoQuery(filter tasks.Filter) *caldav.CalendarQuery {
	return &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompToDo,
				Start: filter.DueStart,
				End:   filter.DueEnd,
			}},
		},
	}
}

func uidQuery(uid string) *caldav.CalendarQuery {
	return &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name: ical.CompToDo,
				Props: []caldav.PropFilter{{
					Name:      ical.PropUID,
					TextMatch: &caldav.TextMatch{Text: uid},
				}},
			}},
		},
	}
}

// Create stores a new NEEDS-ACTION task and returns it as echoed back by
// the server.
func (s *Store) Create(ctx context.Context, title string, due time.Time) (tasks.Task, error) {
	cal, err := s.calendarPath(ctx)
	if err != nil {
		return tasks.Task{}, err
	}

	uid := s.newUID()
	obj, err := record.ToCalendar(tasks.Task{
		UID:    uid,
		Title:  title,
		Status: tasks.StatusNeedsAction,
		Due:    due,
	}, s.now())
	if err != nil {
		return tasks.Task{}, err
	}
	objPath := path.Join(cal, uid+".ics")

	var created tasks.Task
	attrs := instrumentation.NewSpanAttributeBuilder().WithCalendar(cal).WithUID(uid).Build()
	err = s.do(ctx, instrumentation.OperationCreate, attrs, func(ctx context.Context) error {
		if _, err := s.client.PutCalendarObject(ctx, objPath, obj); err != nil {
			return err
		}
		echo, err := s.client.GetCalendarObject(ctx, objPath)
		if err != nil {
			return err
		}
		rec, err := record.FromCalendar(echo.Data, s.loc)
		if err != nil {
			var pe *tasks.ParseError
			if errors.As(err, &pe) {
				return &tasks.TransportError{
					Op:  instrumentation.OperationCreate,
					Err: fmt.Errorf("server returned an unreadable object: %s", pe.Reason),
				}
			}
			return err
		}
		if rec.Task().UID != uid {
			return &tasks.TransportError{
				Op:  instrumentation.OperationCreate,
				Err: errors.New("server returned an object with a different UID"),
			}
		}
		created = rec.Task()
		return nil
	})
	if err != nil {
		return tasks.Task{}, err
	}

	s.logger.Debug("Created task", logging.UID(uid), logging.Calendar(cal))
	return created, nil
}

// SetStatus moves the task with the given UID to status. When the task is
// already in that status nothing is written and changed is false.
func (s *Store) SetStatus(ctx context.Context, uid string, status tasks.Status, completed time.Time) (task tasks.Task, changed bool, err error) {
	cal, err := s.calendarPath(ctx)
	if err != nil {
		return tasks.Task{}, false, err
	}

	attrs := instrumentation.NewSpanAttributeBuilder().WithCalendar(cal).WithUID(uid).Build()
	err = s.do(ctx, instrumentation.OperationSetStatus, attrs, func(ctx context.Context) error {
		obj, err := s.findByUID(ctx, cal, uid)
		if err != nil {
			return err
		}
		rec, err := record.FromCalendar(obj.Data, s.loc)
		if err != nil {
			return err
		}
		if rec.Task().Status == status {
			task = rec.Task()
			if task.Status == tasks.StatusCompleted && task.Completed.IsZero() {
				// Written by a client that left out COMPLETED.
				task.Completed = s.now().UTC().Truncate(time.Second)
				if lm, ok := rec.LastModified(); ok {
					task.Completed = lm
				}
			}
			return nil
		}

		rec.SetStatus(status, completed, s.now())
		if _, err := s.client.PutCalendarObject(ctx, obj.Path, rec.Calendar()); err != nil {
			if isNotFound(wrapError(instrumentation.OperationSetStatus, err)) {
				return &tasks.NotFoundError{Reason: tasks.ReasonVanished, UID: uid}
			}
			return err
		}
		task, changed = rec.Task(), true
		return nil
	})
	if err != nil {
		return tasks.Task{}, false, err
	}
	return task, changed, nil
}

// findByUID locates the calendar object holding uid. text-match is a
// substring match on most servers, so UIDs are compared exactly here.
func (s *Store) findByUID(ctx context.Context, cal, uid string) (*caldav.CalendarObject, error) {
	objs, err := s.client.QueryCalendar(ctx, cal, uidQuery(uid))
	if err != nil {
		return nil, err
	}
	for i := range objs {
		if objs[i].Data == nil {
			continue
		}
		for _, child := range objs[i].Data.Children {
			if child.Name != ical.CompToDo {
				continue
			}
			if got, _ := child.Props.Text(ical.PropUID); got == uid {
				return &objs[i], nil
			}
		}
	}
	return nil, &tasks.NotFoundError{Reason: tasks.ReasonVanished, UID: uid}
}

// do runs fn under the store timeout inside a CalDAV span and records the
// operation metrics. Errors come back classified.
func (s *Store) do(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartStoreSpan(ctx, op, attrs...)
	defer span.End()

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := wrapError(op, fn(callCtx))

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		s.logger.Debug("CalDAV operation failed", logging.Operation(op), logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	s.metrics.RecordStoreOperation(ctx, op, status, time.Since(start))
	return err
}
