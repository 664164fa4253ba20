package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sakif/readrealm/internal/session"
)

// Cookie names. TokenCookie holds the signed JWT; SessionCookie holds the id
// of the in-memory session.
const (
	TokenCookie   = "token"
	SessionCookie = "sid"
)

// contextKey is a package-private type so no other package can read or
// shadow these context values.
type contextKey string

const (
	providerKey contextKey = "sessionProvider"
	sessionIDKey contextKey = "sessionID"
	snapshotKey contextKey = "sessionSnapshot"
)

// Sessions resolves the browser's session before any handler runs.
//
// An unknown session is restored from the token cookie, and the request waits
// until the identity is settled. Handlers therefore never see the "unknown"
// state and never mistake a restoring user for an anonymous one.
func Sessions(registry *session.Registry, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sid string
			if c, err := r.Cookie(SessionCookie); err == nil {
				sid = c.Value
			}

			id, provider := registry.Get(sid)
			if id != sid {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			if provider.Snapshot().State == session.StateUnknown {
				var token string
				if c, err := r.Cookie(TokenCookie); err == nil {
					token = c.Value
				}
				provider.Restore(r.Context(), token)
			}

			snap, err := provider.Await(r.Context())
			if err != nil {
				// client went away while another request was signing in
				return
			}

			ctx := context.WithValue(r.Context(), providerKey, provider)
			ctx = context.WithValue(ctx, sessionIDKey, id)
			ctx = context.WithValue(ctx, snapshotKey, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests whose session is not authenticated with 401.
// It must run after Sessions.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext returns the signed-in user's ID, or ("", false) for an
// anonymous request.
func UserIDFromContext(ctx context.Context) (string, bool) {
	snap, ok := ctx.Value(snapshotKey).(session.Snapshot)
	if !ok || !snap.Authenticated() || snap.Identity.UserID == "" {
		return "", false
	}
	return snap.Identity.UserID, true
}

// SnapshotFromContext returns the settled session state of the request.
func SnapshotFromContext(ctx context.Context) session.Snapshot {
	snap, ok := ctx.Value(snapshotKey).(session.Snapshot)
	if !ok {
		return session.Snapshot{State: session.StateAnonymous}
	}
	return snap
}

// ProviderFromContext returns the session Provider attached by Sessions.
func ProviderFromContext(ctx context.Context) (*session.Provider, bool) {
	p, ok := ctx.Value(providerKey).(*session.Provider)
	return p, ok
}

// SessionIDFromContext returns the session id attached by Sessions.
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// WithSnapshot returns a copy of ctx carrying snap. Handler tests use it to
// fake a resolved session.
func WithSnapshot(ctx context.Context, snap session.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey, snap)
}

// SetTokenCookie stores a freshly issued token.
func SetTokenCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearTokenCookie expires the token cookie.
func ClearTokenCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
