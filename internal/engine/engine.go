package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/tasksync/internal/instrumentation"
	"github.com/teemow/tasksync/internal/logging"
	"github.com/teemow/tasksync/internal/refcache"
	"github.com/teemow/tasksync/internal/tasks"
)

// Store is the remote task storage used by the engine.
type Store interface {
	Query(ctx context.Context, filter tasks.Filter) ([]tasks.Task, error)
	Create(ctx context.Context, title string, due time.Time) (tasks.Task, error)
	SetStatus(ctx context.Context, uid string, status tasks.Status, completed time.Time) (tasks.Task, bool, error)
}

// Config configures an Engine.
type Config struct {
	Store Store
	// Cache holds the per-scope ordinal mappings. A private cache with
	// default settings is created when nil.
	Cache   *refcache.Cache
	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Location defines "today". Defaults to time.Local.
	Location *time.Location
}

// Engine is safe for concurrent use by multiple goroutines.
type Engine struct {
	store   Store
	cache   *refcache.Cache
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	clock   func() time.Time
	loc     *time.Location
}

var openStatuses = []tasks.Status{tasks.StatusNeedsAction, tasks.StatusInProcess}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Cache == nil {
		cfg.Cache = refcache.New(refcache.Config{Logger: cfg.Logger})
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Engine{
		store:   cfg.Store,
		cache:   cfg.Cache,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		loc:     cfg.Location,
	}, nil
}

// Location returns the zone "today" is evaluated in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Cache returns the reference cache used by the engine.
func (e *Engine) Cache() *refcache.Cache {
	return e.cache
}

// AddTask creates a task due at the end of the current local day. The
// scope's listing is left untouched, so ordinals shown earlier stay valid.
func (e *Engine) AddTask(ctx context.Context, scope, title string) (task tasks.Task, err error) {
	ctx, span := e.startSpan(ctx, instrumentation.OperationAdd, scope)
	start := time.Now()
	defer func() { e.finish(ctx, span, instrumentation.OperationAdd, start, "", err) }()

	title = strings.TrimSpace(title)
	if title == "" {
		return tasks.Task{}, &tasks.ValidationError{Field: "title", Message: "must not be empty"}
	}

	due := tasks.EndOfDay(e.clock(), e.loc)
	task, err = e.store.Create(ctx, title, due)
	if err != nil {
		return tasks.Task{}, err
	}

	span.SetAttributes(attribute.String(instrumentation.SpanAttrUID, task.UID))
	e.logger.Info("Added task", logging.Scope(scope), logging.UID(task.UID))
	return task, nil
}

// ListTasks returns the open tasks due today, numbered from 1 in due order,
// and makes those numbers the scope's current references. When the remote
// query fails the previous references stay in place.
func (e *Engine) ListTasks(ctx context.Context, scope string) (listed []tasks.OrdinalTask, err error) {
	ctx, span := e.startSpan(ctx, instrumentation.OperationList, scope)
	start := time.Now()
	defer func() { e.finish(ctx, span, instrumentation.OperationList, start, "", err) }()

	dayStart, dayEnd := tasks.DayWindow(e.clock(), e.loc)
	filter := tasks.Filter{DueStart: dayStart, DueEnd: dayEnd, Statuses: openStatuses}

	found, err := e.store.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Tasks without a due time never show up, even if a store returns them.
	due := make([]tasks.Task, 0, len(found))
	for _, t := range found {
		if filter.Matches(t) {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Due.Before(due[j].Due)
	})

	listed, gen := e.cache.Rebuild(scope, due)

	span.SetAttributes(
		attribute.Int(instrumentation.SpanAttrTaskCount, len(listed)),
		attribute.Int64(instrumentation.SpanAttrGeneration, int64(gen)),
	)
	e.metrics.RecordTasksListed(ctx, len(listed))
	e.logger.Debug("Listed tasks", logging.Scope(scope), slog.Int("count", len(listed)), slog.Uint64("generation", gen))
	return listed, nil
}

// CompleteTask marks the task behind ordinal as completed. Completing a task
// that is already completed succeeds without writing anything.
func (e *Engine) CompleteTask(ctx context.Context, scope string, ordinal int) (task tasks.Task, err error) {
	ctx, span := e.startSpan(ctx, instrumentation.OperationComplete, scope)
	span.SetAttributes(attribute.Int(instrumentation.SpanAttrOrdinal, ordinal))
	start := time.Now()
	outcome := ""
	defer func() { e.finish(ctx, span, instrumentation.OperationComplete, start, outcome, err) }()

	uid, gen, err := e.cache.Resolve(scope, ordinal)
	if err != nil {
		e.metrics.RecordReferenceResolution(ctx, instrumentation.ResolutionStale)
		return tasks.Task{}, err
	}
	e.metrics.RecordReferenceResolution(ctx, instrumentation.ResolutionHit)
	span.SetAttributes(
		attribute.String(instrumentation.SpanAttrUID, uid),
		attribute.Int64(instrumentation.SpanAttrGeneration, int64(gen)),
	)

	task, changed, err := e.store.SetStatus(ctx, uid, tasks.StatusCompleted, e.clock())
	if err != nil {
		var nf *tasks.NotFoundError
		if errors.As(err, &nf) {
			return tasks.Task{}, &tasks.NotFoundError{
				Reason:  nf.Reason,
				Scope:   scope,
				Ordinal: ordinal,
				UID:     uid,
			}
		}
		return tasks.Task{}, err
	}

	if !changed {
		outcome = instrumentation.OutcomeNoop
		e.logger.Info("Task already completed", logging.Scope(scope), logging.Ordinal(ordinal), logging.UID(uid))
		return task, nil
	}

	e.logger.Info("Completed task", logging.Scope(scope), logging.Ordinal(ordinal), logging.UID(uid))
	return task, nil
}

func (e *Engine) startSpan(ctx context.Context, op, scope string) (context.Context, trace.Span) {
	attrs := instrumentation.NewSpanAttributeBuilder().
		WithScope(logging.ScopeHash(scope)).
		Build()
	return instrumentation.StartEngineSpan(ctx, op, attrs...)
}

// finish ends the span and records the operation. An empty outcome is derived
// from err.
func (e *Engine) finish(ctx context.Context, span trace.Span, op string, start time.Time, outcome string, err error) {
	defer span.End()

	if outcome == "" {
		outcome = Outcome(err)
	}
	span.SetAttributes(attribute.String(instrumentation.SpanAttrOutcome, outcome))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		e.logger.Debug("Task operation failed", logging.Operation(op), logging.Err(err), slog.String("outcome", outcome))
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	e.metrics.RecordEngineOperation(ctx, op, outcome, time.Since(start))
}

// Outcome maps an engine error onto its metric label.
func Outcome(err error) string {
	var (
		ve *tasks.ValidationError
		nf *tasks.NotFoundError
		pe *tasks.ParseError
		te *tasks.TransportError
	)
	switch {
	case err == nil:
		return instrumentation.OutcomeSuccess
	case errors.As(err, &ve):
		return instrumentation.OutcomeValidation
	case errors.As(err, &nf):
		return instrumentation.OutcomeNotFound
	case errors.As(err, &pe):
		return instrumentation.OutcomeParse
	case errors.As(err, &te):
		return instrumentation.OutcomeTransport
	default:
		return instrumentation.StatusError
	}
}
