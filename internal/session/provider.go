// Package session holds the identity of one browser session.
//
// A Provider is a small state machine:
//
//	unknown ──Restore──▶ authenticated | anonymous
//	anonymous ──SignIn/SignUp──▶ authenticating ──▶ authenticated | anonymous
//	authenticated ──SignOut──▶ anonymous
//
// Until Restore resolves, the identity is unknown, which is different from
// anonymous: code that gates on "is someone signed in" must Await a settled
// state (or Subscribe to changes) instead of reading the state once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the identity state of a session.
type State int

const (
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Settled reports whether s is a resting state (anonymous or authenticated).
func (s State) Settled() bool {
	return s == StateAnonymous || s == StateAuthenticated
}

// Identity is who a session belongs to.
type Identity struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Credentials are what a user types into the sign-in and sign-up forms.
type Credentials struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Authenticator is the identity backend. Token is the durable credential the
// session is restored from later.
type Authenticator interface {
	SignIn(ctx context.Context, creds Credentials) (Identity, string, error)
	SignUp(ctx context.Context, creds Credentials) (Identity, string, error)
	Restore(ctx context.Context, token string) (Identity, error)
}

// ErrBusy is returned when a sign-in or sign-up is already running for the
// session.
var ErrBusy = errors.New("session: authentication already in progress")

// Snapshot is the observable state of a Provider.
type Snapshot struct {
	State    State
	Identity Identity
}

// Authenticated reports whether the snapshot carries an identity.
func (s Snapshot) Authenticated() bool { return s.State == StateAuthenticated }

// Provider is the identity of one session. It is safe for concurrent use.
type Provider struct {
	auth   Authenticator
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	identity Identity
	token    string
	settled  chan struct{} // closed while the state is settled
	nextSub  int
	subs     map[int]func(Snapshot)

	// notifyMu keeps listener calls in transition order.
	notifyMu sync.Mutex
}

// NewProvider returns a Provider in the unknown state.
func NewProvider(auth Authenticator, logger *slog.Logger) *Provider {
	return &Provider{
		auth:    auth,
		logger:  logger,
		state:   StateUnknown,
		settled: make(chan struct{}),
		subs:    make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current state without waiting.
func (p *Provider) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{State: p.state, Identity: p.identity}
}

// Token returns the credential of an authenticated session, or "".
func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// Restore silently resolves an unknown session. An empty token, or one the
// backend rejects, leaves the session anonymous; restore failures are logged,
// never returned. Restore on a session that is no longer unknown is a no-op.
func (p *Provider) Restore(ctx context.Context, token string) Snapshot {
	p.mu.Lock()
	if p.state != StateUnknown {
		snap := Snapshot{State: p.state, Identity: p.identity}
		p.mu.Unlock()
		return snap
	}
	p.mu.Unlock()

	if token == "" {
		return p.transition(StateAnonymous, Identity{}, "")
	}

	id, err := p.auth.Restore(ctx, token)
	if err != nil {
		p.logger.Debug("session restore rejected", slog.String("error", err.Error()))
		return p.transition(StateAnonymous, Identity{}, "")
	}
	return p.transition(StateAuthenticated, id, token)
}

// SignIn authenticates with creds. On failure the session is anonymous and the
// backend's error is returned unchanged.
func (p *Provider) SignIn(ctx context.Context, creds Credentials) (Snapshot, error) {
	return p.authenticate(ctx, "sign-in", creds, p.auth.SignIn)
}

// SignUp creates an account and signs into it.
func (p *Provider) SignUp(ctx context.Context, creds Credentials) (Snapshot, error) {
	return p.authenticate(ctx, "sign-up", creds, p.auth.SignUp)
}

func (p *Provider) authenticate(
	ctx context.Context,
	op string,
	creds Credentials,
	fn func(context.Context, Credentials) (Identity, string, error),
) (Snapshot, error) {
	p.mu.Lock()
	if p.state == StateAuthenticating {
		p.mu.Unlock()
		return Snapshot{State: StateAuthenticating}, ErrBusy
	}
	p.commitLocked(StateAuthenticating, Identity{}, "")

	id, token, err := fn(ctx, creds)
	if err != nil {
		p.logger.Info("session "+op+" failed", slog.String("error", err.Error()))
		return p.transition(StateAnonymous, Identity{}, ""), err
	}

	p.logger.Info("session "+op+" succeeded", slog.String("user_id", id.UserID))
	return p.transition(StateAuthenticated, id, token), nil
}

// SignOut drops the identity immediately.
func (p *Provider) SignOut() Snapshot {
	return p.transition(StateAnonymous, Identity{}, "")
}

// Subscribe registers fn to be called after every state change. fn runs on
// the goroutine that caused the change and must not call back into p's
// transitions. The returned function unsubscribes.
func (p *Provider) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Await blocks until the state is settled and returns it.
func (p *Provider) Await(ctx context.Context) (Snapshot, error) {
	for {
		p.mu.Lock()
		if p.state.Settled() {
			snap := Snapshot{State: p.state, Identity: p.identity}
			p.mu.Unlock()
			return snap, nil
		}
		wait := p.settled
		p.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}

func (p *Provider) transition(to State, id Identity, token string) Snapshot {
	p.mu.Lock()
	return p.commitLocked(to, id, token)
}

// commitLocked applies a state change and notifies listeners. It is called
// with p.mu held and releases it.
func (p *Provider) commitLocked(to State, id Identity, token string) Snapshot {
	from := p.state
	p.state = to
	p.identity = id
	p.token = token

	switch {
	case to.Settled() && !from.Settled():
		close(p.settled)
	case !to.Settled() && from.Settled():
		p.settled = make(chan struct{})
	}

	snap := Snapshot{State: to, Identity: id}
	listeners := make([]func(Snapshot), 0, len(p.subs))
	for _, fn := range p.subs {
		listeners = append(listeners, fn)
	}
	p.notifyMu.Lock()
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	p.notifyMu.Unlock()
	return snap
}
