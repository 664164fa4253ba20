// Package query is the cached query layer that every feature service reads
// through.
//
// A Client maps Keys to cache entries. Reads are de-duplicated per key (one
// fetch in flight, every concurrent caller shares its outcome), failed
// refreshes keep the last good value visible, writes mark keys stale with
// Invalidate, and subscribed consumers get a fresh Snapshot whenever their
// key changes. Poll re-fetches a key on a fixed interval for as long as it
// has at least one subscriber.
//
// A Client is an explicit object: construct one per process (or per test)
// and inject it into the services that need it.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status is the lifecycle state of a cache entry.
type Status int

const (
	StatusPending Status = iota // no value yet, first fetch running
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Fetcher loads the value for a key. The context it receives is detached
// from any single caller and is cancelled only by the Client's timeout.
type Fetcher func(ctx context.Context) (any, error)

// Snapshot is a point-in-time copy of a cache entry.
type Snapshot struct {
	Key         Key
	Status      Status
	Value       any       // last successful value, kept across failed refreshes
	HasValue    bool      // distinguishes "no data yet" from a nil value
	Err         error     // error of the most recent fetch, nil after a success
	UpdatedAt   time.Time // time of the last successful fetch
	Stale       bool
	Fetching    bool
	Subscribers int
}

// Config configures a Client. The zero value is usable.
type Config struct {
	Clock Clock
	// Timeout bounds every fetch; a fetch that exceeds it resolves to an
	// error entry. Zero means no timeout.
	Timeout time.Duration
	// GCTime is how long an unobserved entry is kept after its last use.
	// Entries with subscribers or a fetch in flight are never dropped. Zero
	// keeps every entry.
	GCTime time.Duration
	// Registerer receives the cache metrics. Nil keeps them unregistered.
	Registerer prometheus.Registerer
}

// Client is the cache. It is safe for concurrent use.
type Client struct {
	mu      sync.Mutex
	entries map[string]*entry

	clock     Clock
	timeout   time.Duration
	gcTime    time.Duration
	lastSweep time.Time
	logger    *slog.Logger
	metrics   *metrics

	nextSubID uint64
}

type entry struct {
	key Key

	value     any
	hasValue  bool
	err       error
	status    Status
	updatedAt time.Time
	stale     bool
	lastUsed  time.Time

	// gen is bumped by every event that makes an in-flight fetch obsolete
	// (Invalidate, SetData). A fetch only writes its result if the
	// generation it started under is still current.
	gen      uint64
	inflight *call
	// refetch is set when a subscribed key is invalidated mid-fetch; a new
	// fetch starts as soon as the obsolete one lands.
	refetch bool

	fetcher Fetcher // most recently registered fetcher for this key
	subs    map[uint64]*Subscription
	poller  *poller
}

type call struct {
	done  chan struct{}
	gen   uint64
	value any
	err   error
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return &Client{
		entries: make(map[string]*entry),
		clock:   clock,
		timeout: cfg.Timeout,
		gcTime:  cfg.GCTime,
		logger:  logger,
		metrics: newMetrics(cfg.Registerer),
	}
}

// Option adjusts a single read.
type Option func(*options)

type options struct {
	force     bool
	staleTime time.Duration
}

// WithForce refetches even when a fresh value is cached. A fetch already in
// flight is joined rather than duplicated.
func WithForce() Option {
	return func(o *options) { o.force = true }
}

// WithStaleTime serves a cached value older than d immediately and starts a
// background refresh (stale-while-revalidate).
func WithStaleTime(d time.Duration) Option {
	return func(o *options) { o.staleTime = d }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Query returns the value for key, fetching it with fetch when it is absent,
// stale or forced. On a fetch error the last good value (if any) is returned
// together with the error so the caller can show both.
func Query[T any](ctx context.Context, c *Client, key Key, fetch func(context.Context) (T, error), opts ...Option) (T, error) {
	v, err := c.Get(ctx, key, Erase(fetch), opts...)
	out, castErr := cast[T](key, v)
	if err != nil {
		return out, err
	}
	return out, castErr
}

// Erase adapts a typed fetch function to a Fetcher.
func Erase[T any](fetch func(context.Context) (T, error)) Fetcher {
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}

func cast[T any](key Key, v any) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("query: cached value for %s is %T, want %T", key, v, zero)
	}
	return out, nil
}

// Get is the untyped form of Query.
func (c *Client) Get(ctx context.Context, key Key, fetch Fetcher, opts ...Option) (any, error) {
	o := buildOptions(opts)

	for {
		c.mu.Lock()
		c.sweepLocked()
		e := c.entryLocked(key)
		e.fetcher = fetch

		if !o.force && e.fresh() {
			c.metrics.hits.Inc()
			if o.staleTime > 0 && c.clock.Now().Sub(e.updatedAt) > o.staleTime && e.inflight == nil {
				c.startLocked(e, fetch)
			}
			v := e.value
			c.mu.Unlock()
			return v, nil
		}

		// A failed entry that nobody invalidated keeps failing for new callers
		// until something (a write, a forced read, a new subscriber) asks again.
		if !o.force && e.status == StatusError && !e.stale && e.inflight == nil {
			v, err := e.value, e.err
			c.mu.Unlock()
			return v, err
		}

		// A fetch started before the last invalidation cannot answer this
		// read. Let it land, then look again.
		if old := e.inflight; old != nil && old.gen != e.gen {
			c.mu.Unlock()
			select {
			case <-old.done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		cl := c.startLocked(e, fetch)
		c.mu.Unlock()

		select {
		case <-cl.done:
			return cl.value, cl.err
		case <-ctx.Done():
			// The fetch keeps running to warm the cache for everyone else.
			return nil, ctx.Err()
		}
	}
}

// Invalidate marks every entry whose key starts with prefix as stale. Entries
// with subscribers are refetched in the background; the rest refetch on their
// next read. It returns the number of entries marked.
func (c *Client) Invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		n++
		e.stale = true
		e.gen++

		if len(e.subs) == 0 || e.fetcher == nil {
			continue
		}
		if e.inflight == nil {
			c.startLocked(e, e.fetcher)
		} else {
			e.refetch = true
		}
	}

	if n > 0 {
		c.metrics.invalidations.Add(float64(n))
		c.logger.Debug("query keys invalidated",
			slog.String("prefix", prefix.String()),
			slog.Int("entries", n),
		)
	}
	return n
}

// SetData writes value into the cache for key as a successful result. Any
// fetch for key that is already in flight will not overwrite it.
func (c *Client) SetData(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()
	e := c.entryLocked(key)
	e.gen++
	e.value = value
	e.hasValue = true
	e.err = nil
	e.status = StatusSuccess
	e.stale = false
	e.updatedAt = c.clock.Now()
	c.notifyLocked(e)
}

// Snapshot returns the current state of key, or false if it was never read.
func (c *Client) Snapshot(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

func (c *Client) entryLocked(key Key) *entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{
			key:    append(Key(nil), key...),
			status: StatusPending,
			subs:   make(map[uint64]*Subscription),
		}
		c.entries[id] = e
	}
	e.lastUsed = c.clock.Now()
	return e
}

// sweepLocked drops entries nobody has used for gcTime. It runs at most once
// per gcTime.
func (c *Client) sweepLocked() {
	if c.gcTime <= 0 {
		return
	}
	now := c.clock.Now()
	if now.Sub(c.lastSweep) < c.gcTime {
		return
	}
	c.lastSweep = now

	n := 0
	for id, e := range c.entries {
		if len(e.subs) > 0 || e.inflight != nil || e.poller != nil {
			continue
		}
		if now.Sub(e.lastUsed) > c.gcTime {
			delete(c.entries, id)
			n++
		}
	}
	if n > 0 {
		c.metrics.evictions.Add(float64(n))
		c.logger.Debug("query entries evicted", slog.Int("entries", n))
	}
}

// startLocked returns the in-flight call for e, starting one if needed.
func (c *Client) startLocked(e *entry, fetch Fetcher) *call {
	if e.inflight != nil {
		c.metrics.joins.Inc()
		return e.inflight
	}

	cl := &call{done: make(chan struct{}), gen: e.gen}
	e.inflight = cl
	if !e.hasValue {
		e.status = StatusPending
	}
	c.notifyLocked(e)

	go c.run(e, cl, fetch)
	return cl
}

func (c *Client) run(e *entry, cl *call, fetch Fetcher) {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	value, err := safeFetch(ctx, fetch)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e.inflight = nil
	e.lastUsed = c.clock.Now()
	cl.value, cl.err = value, err

	switch {
	case cl.gen != e.gen:
		// Superseded by an invalidation or a manual write.
		c.metrics.fetches.WithLabelValues("discarded").Inc()
		c.logger.Debug("query result discarded",
			slog.String("key", e.key.String()),
		)
		if err != nil {
			cl.value = e.value
		}
	case err != nil:
		c.metrics.fetches.WithLabelValues("error").Inc()
		c.logger.Warn("query fetch failed",
			slog.String("key", e.key.String()),
			slog.String("error", err.Error()),
		)
		e.err = err
		e.status = StatusError
		e.stale = false
		cl.value = e.value
	default:
		c.metrics.fetches.WithLabelValues("success").Inc()
		e.value = value
		e.hasValue = true
		e.err = nil
		e.status = StatusSuccess
		e.stale = false
		e.updatedAt = c.clock.Now()
	}
	close(cl.done)

	if e.refetch {
		e.refetch = false
		if len(e.subs) > 0 && e.fetcher != nil {
			c.startLocked(e, e.fetcher)
			return
		}
	}
	c.notifyLocked(e)
}

func safeFetch(ctx context.Context, fetch Fetcher) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query: fetcher panicked: %v", r)
		}
	}()
	if fetch == nil {
		return nil, errors.New("query: no fetcher registered")
	}
	return fetch(ctx)
}

func (e *entry) fresh() bool {
	return e.hasValue && e.status == StatusSuccess && !e.stale
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:         e.key,
		Status:      e.status,
		Value:       e.value,
		HasValue:    e.hasValue,
		Err:         e.err,
		UpdatedAt:   e.updatedAt,
		Stale:       e.stale,
		Fetching:    e.inflight != nil,
		Subscribers: len(e.subs),
	}
}
