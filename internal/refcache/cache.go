package refcache

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teemow/tasksync/internal/tasks"
)

const (
	// DefaultTTL is how long a listing's ordinals stay valid.
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval is how often the janitor drops expired scopes.
	DefaultSweepInterval = 5 * time.Minute
)

// Config configures a Cache.
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Clock         func() time.Time
	Logger        *slog.Logger
}

// mapping is immutable once published.
type mapping struct {
	uids       []string // uids[i] belongs to ordinal i+1
	generation uint64
	builtAt    time.Time
}

type scopeState struct {
	mu      sync.Mutex // serializes rebuilds and removal of this scope
	dead    bool       // set under mu once the state is removed from the map
	current atomic.Pointer[mapping]
}

// Cache maps per-scope ordinals to task UIDs.
//
// Rebuild publishes a complete mapping with a single pointer swap, so Resolve
// never observes a partially built mapping. Different scopes share nothing
// but the sync.Map that indexes them.
type Cache struct {
	scopes     sync.Map // scope -> *scopeState
	generation atomic.Uint64
	ttl        time.Duration
	interval   time.Duration
	now        func() time.Time
	logger     *slog.Logger

	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
	startOnce     sync.Once
	stopOnce      sync.Once
}

// New creates a cache. Zero values in cfg fall back to the defaults.
func New(cfg Config) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Cache{
		ttl:         cfg.TTL,
		interval:    cfg.SweepInterval,
		now:         cfg.Clock,
		logger:      cfg.Logger,
		cleanupDone: make(chan struct{}),
	}
}

// TTL returns how long a mapping stays valid after it is built.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Rebuild replaces the scope's mapping with ordinals 1..N assigned in the
// order of list. It returns the numbered tasks and the new generation.
func (c *Cache) Rebuild(scope string, list []tasks.Task) ([]tasks.OrdinalTask, uint64) {
	m := &mapping{
		uids:    make([]string, len(list)),
		builtAt: c.now(),
	}
	out := make([]tasks.OrdinalTask, len(list))
	for i, t := range list {
		m.uids[i] = t.UID
		out[i] = tasks.OrdinalTask{Ordinal: i + 1, Task: t}
	}

	for {
		v, _ := c.scopes.LoadOrStore(scope, &scopeState{})
		st := v.(*scopeState)

		st.mu.Lock()
		if st.dead {
			// Swept between load and lock; retry with a fresh state.
			st.mu.Unlock()
			continue
		}
		m.generation = c.generation.Add(1)
		st.current.Store(m)
		st.mu.Unlock()

		return out, m.generation
	}
}

// Resolve returns the UID behind ordinal in the scope's current mapping and
// that mapping's generation. It fails with a stale-ordinal NotFoundError when
// the scope has no live mapping or the ordinal is out of range.
func (c *Cache) Resolve(scope string, ordinal int) (string, uint64, error) {
	stale := &tasks.NotFoundError{Reason: tasks.ReasonStaleOrdinal, Scope: scope, Ordinal: ordinal}

	v, ok := c.scopes.Load(scope)
	if !ok {
		return "", 0, stale
	}
	m := v.(*scopeState).current.Load()
	if m == nil || c.expired(m, c.now()) {
		return "", 0, stale
	}
	if ordinal < 1 || ordinal > len(m.uids) {
		return "", 0, stale
	}
	return m.uids[ordinal-1], m.generation, nil
}

// Generation returns the scope's current generation, or 0 when it has no
// live mapping.
func (c *Cache) Generation(scope string) uint64 {
	v, ok := c.scopes.Load(scope)
	if !ok {
		return 0
	}
	m := v.(*scopeState).current.Load()
	if m == nil || c.expired(m, c.now()) {
		return 0
	}
	return m.generation
}

// Len returns the number of scopes currently tracked, expired or not.
func (c *Cache) Len() int {
	n := 0
	c.scopes.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Sweep removes every scope whose mapping expired at now and returns how
// many were removed.
func (c *Cache) Sweep(now time.Time) int {
	removed := 0
	c.scopes.Range(func(key, value any) bool {
		st := value.(*scopeState)
		st.mu.Lock()
		if m := st.current.Load(); m == nil || c.expired(m, now) {
			st.dead = true
			c.scopes.Delete(key)
			removed++
		}
		st.mu.Unlock()
		return true
	})
	return removed
}

// Forget drops scope and every sub-scope ("scope/...") regardless of age.
// It returns how many scopes were removed.
func (c *Cache) Forget(scope string) int {
	removed := 0
	prefix := scope + "/"
	c.scopes.Range(func(key, value any) bool {
		k := key.(string)
		if k != scope && !strings.HasPrefix(k, prefix) {
			return true
		}
		st := value.(*scopeState)
		st.mu.Lock()
		st.dead = true
		c.scopes.Delete(key)
		removed++
		st.mu.Unlock()
		return true
	})
	return removed
}

func (c *Cache) expired(m *mapping, now time.Time) bool {
	return !now.Before(m.builtAt.Add(c.ttl))
}

// Start launches the background sweeper. Calling it more than once has no
// further effect.
func (c *Cache) Start() {
	c.startOnce.Do(func() {
		c.cleanupTicker = time.NewTicker(c.interval)
		go c.cleanupExpired(c.cleanupTicker)
	})
}

// cleanupExpired periodically drops expired scopes
func (c *Cache) cleanupExpired(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
			if n := c.Sweep(c.now()); n > 0 {
				c.logger.Debug("Cleaned up expired task references", "count", n)
			}
		case <-c.cleanupDone:
			return
		}
	}
}

// Stop stops the background sweeper.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		// Prevent a later Start from launching a sweeper.
		c.startOnce.Do(func() {})
		if c.cleanupTicker != nil {
			c.cleanupTicker.Stop()
		}
		close(c.cleanupDone)
	})
}
