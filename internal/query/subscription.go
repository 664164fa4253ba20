package query

import (
	"log/slog"
	"sync"
	"time"
)

// Subscription is a live interest in one key. Updates delivers the latest
// Snapshot each time the entry changes; a slow reader only ever sees the most
// recent state, never a backlog.
type Subscription struct {
	id      uint64
	client  *Client
	entry   *entry
	updates chan Snapshot

	closeOnce sync.Once
}

// Updates returns the channel of entry snapshots. It is closed by Close.
func (s *Subscription) Updates() <-chan Snapshot { return s.updates }

// Close ends the subscription. When the last subscriber of a polled key
// closes, its poller stops before Close returns. Close is idempotent.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		c := s.client
		c.mu.Lock()
		defer c.mu.Unlock()

		e := s.entry
		delete(e.subs, s.id)
		close(s.updates)
		e.lastUsed = c.clock.Now()

		if len(e.subs) == 0 && e.poller != nil {
			e.poller.stopLocked()
			e.poller = nil
			c.metrics.pollers.Dec()
			c.logger.Debug("query poll stopped", slog.String("key", e.key.String()))
		}
	})
}

// subscribe registers interest in key without a timer. If the entry is absent
// or stale a fetch starts right away (refetch on mount). The current state is
// delivered on Updates immediately.
func (c *Client) subscribe(key Key, fetch Fetcher) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(key, fetch)
}

// Poll is a subscription plus a timer: while the key has at least one subscriber
// it is re-fetched every interval. Only one poller runs per key no matter how
// many subscriptions share it.
func (c *Client) Poll(key Key, fetch Fetcher, interval time.Duration) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.subscribeLocked(key, fetch)
	e := s.entry
	if e.poller == nil && interval > 0 {
		e.poller = c.startPoller(e, interval)
		c.metrics.pollers.Inc()
		c.logger.Debug("query poll started",
			slog.String("key", e.key.String()),
			slog.Duration("interval", interval),
		)
	}
	return s
}

func (c *Client) subscribeLocked(key Key, fetch Fetcher) *Subscription {
	c.sweepLocked()
	e := c.entryLocked(key)
	if fetch != nil {
		e.fetcher = fetch
	}

	c.nextSubID++
	s := &Subscription{
		id:      c.nextSubID,
		client:  c,
		entry:   e,
		updates: make(chan Snapshot, 1),
	}
	e.subs[s.id] = s

	if !e.fresh() && e.fetcher != nil {
		// startLocked notifies every subscriber, this one included.
		c.startLocked(e, e.fetcher)
	} else {
		s.push(e.snapshot())
	}
	return s
}

// push replaces any undelivered snapshot with snap. Callers hold c.mu.
func (s *Subscription) push(snap Snapshot) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}

func (c *Client) notifyLocked(e *entry) {
	if len(e.subs) == 0 {
		return
	}
	snap := e.snapshot()
	for _, s := range e.subs {
		s.push(snap)
	}
}

type poller struct {
	ticker  Ticker
	stop    chan struct{}
	stopped bool
}

func (c *Client) startPoller(e *entry, interval time.Duration) *poller {
	p := &poller{
		ticker: c.clock.NewTicker(interval),
		stop:   make(chan struct{}),
	}
	go c.pollLoop(e, p)
	return p
}

func (p *poller) stopLocked() {
	if p.stopped {
		return
	}
	p.stopped = true
	p.ticker.Stop()
	close(p.stop)
}

func (c *Client) pollLoop(e *entry, p *poller) {
	for {
		select {
		case <-p.stop:
			return
		case <-p.ticker.C():
		}

		c.mu.Lock()
		if p.stopped {
			c.mu.Unlock()
			return
		}
		if e.inflight == nil && e.fetcher != nil {
			c.startLocked(e, e.fetcher)
		}
		c.mu.Unlock()
	}
}
