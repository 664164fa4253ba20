package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
)

// Registry maps session ids (the browser's session cookie) to Providers.
type Registry struct {
	auth   Authenticator
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	provider      *Provider
	lastSeen      time.Time
	authenticated bool
	unsubscribe   func()
}

func NewRegistry(auth Authenticator, logger *slog.Logger) *Registry {
	return &Registry{
		auth:     auth,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Get returns the Provider for id. An empty or unrecognised id gets a fresh
// session (with a new id) in the unknown state; the returned id is the one to
// hand back to the browser.
func (r *Registry) Get(id string) (string, *Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if e, ok := r.sessions[id]; ok {
			e.lastSeen = r.now()
			return id, e.provider
		}
	}

	id = xid.New().String()
	p := NewProvider(r.auth, r.logger.With(slog.String("session", id)))
	e := &entry{provider: p, lastSeen: r.now()}
	sid := id
	e.unsubscribe = p.Subscribe(func(s Snapshot) { r.observe(sid, s) })
	r.sessions[id] = e
	return id, p
}

// observe tracks which sessions are signed in.
func (r *Registry) observe(id string, s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return
	}
	e.authenticated = s.Authenticated()
	r.logger.Debug("session state changed",
		slog.String("session", id),
		slog.String("state", s.State.String()),
	)
}

// Remove forgets a session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	// Unsubscribe outside r.mu: a Provider notifying observe holds its own
	// locks while it waits for r.mu.
	if ok {
		e.unsubscribe()
	}
}

// Len is the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Authenticated is the number of live sessions with a signed-in user.
func (r *Registry) Authenticated() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.sessions {
		if e.authenticated {
			n++
		}
	}
	return n
}

// Sweep drops sessions not seen for longer than idle and returns how many
// were dropped. A dropped session is restored from its token cookie on the
// browser's next request.
func (r *Registry) Sweep(idle time.Duration) int {
	r.mu.Lock()
	cutoff := r.now().Add(-idle)
	var dropped []*entry
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			dropped = append(dropped, e)
		}
	}
	r.mu.Unlock()

	for _, e := range dropped {
		e.unsubscribe()
	}
	if len(dropped) > 0 {
		r.logger.Debug("idle sessions swept", slog.Int("count", len(dropped)))
	}
	return len(dropped)
}
