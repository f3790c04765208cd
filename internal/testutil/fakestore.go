// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/teemow/tasksync/internal/tasks"
)

// FakeStore is an in-memory task store for testing. It behaves like the
// CalDAV store: Query applies the filter, SetStatus reports unchanged tasks
// and missing UIDs come back as vanished.
type FakeStore struct {
	mu     sync.RWMutex
	tasks  []tasks.Task
	nextID int

	// Unfiltered makes Query return every stored task, like a server that
	// ignores the time range and no client-side check is applied.
	Unfiltered bool

	// Error injection for testing
	QueryErr     error
	CreateErr    error
	SetStatusErr error
	PingErr      error

	// Call counters
	QueryCalls     int
	CreateCalls    int
	SetStatusCalls int
	Writes         int
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

// Put adds a task, replacing any task with the same UID.
func (f *FakeStore) Put(t tasks.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.Status == "" {
		t.Status = tasks.StatusNeedsAction
	}
	for i := range f.tasks {
		if f.tasks[i].UID == t.UID {
			f.tasks[i] = t
			return
		}
	}
	f.tasks = append(f.tasks, t)
}

// Delete removes a task, as another client would.
func (f *FakeStore) Delete(uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].UID == uid {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return
		}
	}
}

// Get returns the stored task with uid.
func (f *FakeStore) Get(uid string) (tasks.Task, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, t := range f.tasks {
		if t.UID == uid {
			return t, true
		}
	}
	return tasks.Task{}, false
}

// Query implements engine.Store.
func (f *FakeStore) Query(ctx context.Context, filter tasks.Filter) ([]tasks.Task, error) {
	f.mu.Lock()
	f.QueryCalls++
	f.mu.Unlock()

	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	if err := ctx.Err(); err != nil {
		return nil, &tasks.TransportError{Op: "query", Err: err}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	var result []tasks.Task
	for _, t := range f.tasks {
		if f.Unfiltered || filter.Matches(t) {
			result = append(result, t)
		}
	}
	return result, nil
}

// Create implements engine.Store.
func (f *FakeStore) Create(ctx context.Context, title string, due time.Time) (tasks.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++

	if f.CreateErr != nil {
		return tasks.Task{}, f.CreateErr
	}
	if strings.TrimSpace(title) == "" {
		return tasks.Task{}, &tasks.ValidationError{Field: "title", Message: "must not be empty"}
	}

	f.nextID++
	t := tasks.Task{
		UID:    fmt.Sprintf("task-%d", f.nextID),
		Title:  title,
		Status: tasks.StatusNeedsAction,
		Due:    due,
	}
	f.tasks = append(f.tasks, t)
	f.Writes++
	return t, nil
}

// SetStatus implements engine.Store.
func (f *FakeStore) SetStatus(ctx context.Context, uid string, status tasks.Status, completed time.Time) (tasks.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetStatusCalls++

	if f.SetStatusErr != nil {
		return tasks.Task{}, false, f.SetStatusErr
	}

	for i := range f.tasks {
		t := &f.tasks[i]
		if t.UID != uid {
			continue
		}
		if t.Status == status {
			return *t, false, nil
		}
		t.Status = status
		t.Completed = time.Time{}
		if status == tasks.StatusCompleted {
			t.Completed = completed.Truncate(time.Second)
		}
		f.Writes++
		return *t, true, nil
	}
	return tasks.Task{}, false, &tasks.NotFoundError{Reason: tasks.ReasonVanished, UID: uid}
}

// Ping reports PingErr.
func (f *FakeStore) Ping(ctx context.Context) error {
	return f.PingErr
}
