// Package cache implements the per-(user, day) result cache with coalesced computation.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	obsctx "github.com/fairyhunter13/organic-advisor/internal/observability"
	"github.com/fairyhunter13/organic-advisor/internal/adapter/observability"
	"github.com/fairyhunter13/organic-advisor/internal/domain"
)

// Lookup results reported to metrics.
const (
	ResultHit       = "hit"
	ResultMiss      = "miss"
	ResultCoalesced = "coalesced"
	ResultError     = "error"
)

// Entry is a stored action with its absolute expiry.
type Entry struct {
	Action    domain.ActionInstance `json:"action"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// Expired reports whether the entry is no longer valid at now.
func (e Entry) Expired(now time.Time) bool { return !now.Before(e.ExpiresAt) }

// Store is the backing key/value store. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, userID, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	DeleteUser(ctx context.Context, userID string) error
}

// Cache memoizes one action per key. Concurrent misses on a key share one computation,
// which runs detached from the callers' cancellation and still fills the cache.
// Expiry is checked lazily on read.
type Cache struct {
	store Store
	ttl   time.Duration
	loc   *time.Location
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*userFlights
}

// userFlights tracks the computations running for one user. gen moves on every
// Invalidate; the record is dropped once no flight is left.
type userFlights struct {
	active int
	gen    uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithLocation sets the zone whose midnight ends a cached day.
func WithLocation(loc *time.Location) Option {
	return func(c *Cache) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// New constructs a Cache over store with the given TTL.
func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{store: store, ttl: ttl, loc: time.UTC, now: time.Now, flights: make(map[string]*userFlights)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ExpiryFor returns min(now+ttl, end of key's calendar day).
func (c *Cache) ExpiryFor(key domain.CacheKey, now time.Time) time.Time {
	exp := now.Add(c.ttl)
	day, err := time.ParseInLocation(domain.DayLayout, key.Day, c.loc)
	if err != nil {
		n := now.In(c.loc)
		day = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, c.loc)
	}
	if eod := day.AddDate(0, 0, 1); eod.Before(exp) {
		return eod
	}
	return exp
}

// Get returns the live entry for key. Store errors degrade to a miss.
func (c *Cache) Get(ctx context.Context, key domain.CacheKey) (domain.ActionInstance, bool) {
	e, ok := c.lookup(ctx, key)
	if !ok {
		return domain.ActionInstance{}, false
	}
	return e.Action.Clone(), true
}

func (c *Cache) lookup(ctx context.Context, key domain.CacheKey) (Entry, bool) {
	k := key.String()
	e, ok, err := c.store.Get(ctx, k)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("result cache read failed", slog.String("key", k), slog.Any("error", err))
		observability.RecordCacheLookup(ResultError)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	if e.Expired(c.now()) {
		if err := c.store.Delete(ctx, k); err != nil {
			obsctx.LoggerFromContext(ctx).Warn("result cache expiry delete failed", slog.String("key", k), slog.Any("error", err))
		}
		return Entry{}, false
	}
	return e, true
}

// GetOrCompute returns the cached action for key or runs compute once for all concurrent
// callers. If ctx ends first the caller gets ctx.Err() while the computation carries on.
// Errors are returned to every waiting caller and never cached.
func (c *Cache) GetOrCompute(ctx context.Context, key domain.CacheKey, compute func(ctx context.Context) (domain.ActionInstance, error)) (domain.ActionInstance, error) {
	if e, ok := c.lookup(ctx, key); ok {
		observability.RecordCacheLookup(ResultHit)
		return e.Action.Clone(), nil
	}

	k := key.String()
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k, func() (any, error) {
		// another flight may have filled the entry between our miss and this call
		if e, ok := c.lookup(detached, key); ok {
			return e.Action, nil
		}
		gen := c.beginFlight(key.UserID)
		defer c.endFlight(key.UserID)
		a, err := compute(detached)
		if err != nil {
			return domain.ActionInstance{}, err
		}
		if !c.current(key.UserID, gen) {
			// invalidated mid-flight: hand the result to waiters but keep it out of the store
			return a, nil
		}
		entry := Entry{Action: a.Clone(), ExpiresAt: c.ExpiryFor(key, c.now())}
		if err := c.store.Set(detached, key.UserID, k, entry); err != nil {
			obsctx.LoggerFromContext(detached).Warn("result cache write failed", slog.String("key", k), slog.Any("error", err))
		}
		if !c.current(key.UserID, gen) {
			// Invalidate ran between the check and the write
			if err := c.store.Delete(detached, k); err != nil {
				obsctx.LoggerFromContext(detached).Warn("result cache stale delete failed", slog.String("key", k), slog.Any("error", err))
			}
		}
		return a, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			observability.RecordCacheLookup(ResultCoalesced)
		} else {
			observability.RecordCacheLookup(ResultMiss)
		}
		if res.Err != nil {
			return domain.ActionInstance{}, res.Err
		}
		a, ok := res.Val.(domain.ActionInstance)
		if !ok {
			return domain.ActionInstance{}, fmt.Errorf("op=cache.GetOrCompute: %w: unexpected value %T", domain.ErrInternal, res.Val)
		}
		// waiters of one flight share a value; each gets its own slices
		return a.Clone(), nil
	case <-ctx.Done():
		return domain.ActionInstance{}, ctx.Err()
	}
}

// Invalidate drops every cached action of userID. A computation already in flight for the
// user still answers its waiters but does not populate the cache.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	if f, ok := c.flights[userID]; ok {
		f.gen++
	}
	c.mu.Unlock()

	today := c.now().In(c.loc).Format(domain.DayLayout)
	c.group.Forget(domain.CacheKey{UserID: userID, Day: today}.String())

	if err := c.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("op=cache.Invalidate: %w", err)
	}
	return nil
}

func (c *Cache) beginFlight(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[userID]
	if !ok {
		f = &userFlights{}
		c.flights[userID] = f
	}
	f.active++
	return f.gen
}

func (c *Cache) endFlight(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[userID]
	if !ok {
		return
	}
	if f.active--; f.active <= 0 {
		delete(c.flights, userID)
	}
}

// current reports whether no Invalidate for userID happened since gen was taken.
func (c *Cache) current(userID string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[userID]
	return ok && f.gen == gen
}
