package refcache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/tasksync/internal/tasks"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(ttl time.Duration) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	return New(Config{TTL: ttl, Clock: clock.Now}), clock
}

func taskList(uids ...string) []tasks.Task {
	out := make([]tasks.Task, len(uids))
	for i, uid := range uids {
		out[i] = tasks.Task{UID: uid, Title: "task " + uid, Status: tasks.StatusNeedsAction}
	}
	return out
}

func assertStale(t *testing.T, err error) {
	t.Helper()
	var nf *tasks.NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
	assert.Equal(t, tasks.ReasonStaleOrdinal, nf.Reason)
}

func TestRebuildAssignsOrdinalsInOrder(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	out, gen := c.Rebuild("chan-1", taskList("a", "b", "c"))
	require.Len(t, out, 3)
	assert.NotZero(t, gen)

	for i, ot := range out {
		assert.Equal(t, i+1, ot.Ordinal)
		uid, g, err := c.Resolve("chan-1", ot.Ordinal)
		require.NoError(t, err)
		assert.Equal(t, ot.Task.UID, uid)
		assert.Equal(t, gen, g)
	}
}

func TestResolveOutOfRange(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	c.Rebuild("s", taskList("a", "b"))

	for _, ordinal := range []int{-1, 0, 3, 100} {
		t.Run(fmt.Sprintf("ordinal %d", ordinal), func(t *testing.T) {
			_, _, err := c.Resolve("s", ordinal)
			assertStale(t, err)
		})
	}
}

func TestResolveUnknownScope(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	_, _, err := c.Resolve("never-listed", 1)
	assertStale(t, err)
}

func TestRebuildReplacesMapping(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	_, g1 := c.Rebuild("s", taskList("a", "b", "c"))
	_, g2 := c.Rebuild("s", taskList("x"))
	assert.Greater(t, g2, g1)

	uid, _, err := c.Resolve("s", 1)
	require.NoError(t, err)
	assert.Equal(t, "x", uid)

	_, _, err = c.Resolve("s", 2)
	assertStale(t, err)
}

func TestRebuildEmptyList(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	c.Rebuild("s", taskList("a"))

	out, _ := c.Rebuild("s", nil)
	assert.Empty(t, out)

	_, _, err := c.Resolve("s", 1)
	assertStale(t, err)
}

func TestScopesAreIndependent(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	c.Rebuild("alice", taskList("a1", "a2"))
	c.Rebuild("bob", taskList("b1"))

	uid, _, err := c.Resolve("alice", 2)
	require.NoError(t, err)
	assert.Equal(t, "a2", uid)

	uid, _, err = c.Resolve("bob", 1)
	require.NoError(t, err)
	assert.Equal(t, "b1", uid)

	_, _, err = c.Resolve("bob", 2)
	assertStale(t, err)
}

func TestMappingExpires(t *testing.T) {
	c, clock := newTestCache(30 * time.Minute)
	c.Rebuild("s", taskList("a"))

	clock.Advance(29 * time.Minute)
	_, _, err := c.Resolve("s", 1)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, _, err = c.Resolve("s", 1)
	assertStale(t, err)
	assert.Zero(t, c.Generation("s"))
}

func TestSweep(t *testing.T) {
	c, clock := newTestCache(10 * time.Minute)
	c.Rebuild("old", taskList("a"))
	clock.Advance(8 * time.Minute)
	c.Rebuild("new", taskList("b"))
	clock.Advance(5 * time.Minute)

	removed := c.Sweep(clock.Now())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())

	_, _, err := c.Resolve("new", 1)
	assert.NoError(t, err)
}

func TestGenerationSurvivesSweep(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	_, g1 := c.Rebuild("s", taskList("a"))

	clock.Advance(2 * time.Minute)
	c.Sweep(clock.Now())

	_, g2 := c.Rebuild("s", taskList("b"))
	assert.Greater(t, g2, g1)
}

func TestConcurrentRebuildAndResolve(t *testing.T) {
	c, _ := newTestCache(time.Hour)
	listA := taskList("a1", "a2", "a3")
	listB := taskList("b1", "b2", "b3")
	c.Rebuild("s", listA)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if (i+j)%2 == 0 {
					c.Rebuild("s", listA)
				} else {
					c.Rebuild("s", listB)
				}
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				uid1, g1, err1 := c.Resolve("s", 1)
				uid3, g3, err3 := c.Resolve("s", 3)
				if !assert.NoError(t, err1) || !assert.NoError(t, err3) {
					return
				}
				// Within one generation both ordinals come from the same list.
				if g1 == g3 {
					assert.Equal(t, uid1[:1], uid3[:1])
				}
			}
		}()
	}
	wg.Wait()
}

func TestConcurrentRebuildWithSweep(t *testing.T) {
	c, clock := newTestCache(time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			c.Sweep(clock.Now().Add(time.Hour))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			c.Rebuild("s", taskList("a"))
		}
	}()
	wg.Wait()

	// The final rebuild is always visible once sweeping stops.
	c.Rebuild("s", taskList("z"))
	uid, _, err := c.Resolve("s", 1)
	require.NoError(t, err)
	assert.Equal(t, "z", uid)
}

func TestStartStop(t *testing.T) {
	c := New(Config{TTL: time.Millisecond, SweepInterval: time.Millisecond})
	c.Rebuild("s", taskList("a"))
	c.Start()
	c.Start()

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
}

func TestStopWithoutStart(t *testing.T) {
	c := New(Config{})
	c.Stop()
	c.Start()
	assert.Equal(t, DefaultTTL, c.TTL())
}

func TestForgetDropsScopeAndSubScopes(t *testing.T) {
	c, _ := newTestCache(time.Hour)

	c.Rebuild("sess-1", taskList("a"))
	c.Rebuild("sess-1/#kitchen", taskList("b"))
	c.Rebuild("sess-10", taskList("c"))

	assert.Equal(t, 2, c.Forget("sess-1"))

	_, _, err := c.Resolve("sess-1", 1)
	assertStale(t, err)
	_, _, err = c.Resolve("sess-1/#kitchen", 1)
	assertStale(t, err)

	uid, _, err := c.Resolve("sess-10", 1)
	require.NoError(t, err)
	assert.Equal(t, "c", uid)

	// A forgotten scope can be listed again.
	c.Rebuild("sess-1", taskList("d"))
	uid, _, err = c.Resolve("sess-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "d", uid)
}
