package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/readrealm/internal/session"
)

// tokenAuth restores exactly one token.
type tokenAuth struct{}

func (tokenAuth) SignIn(context.Context, session.Credentials) (session.Identity, string, error) {
	return session.Identity{}, "", errors.New("not used")
}

func (tokenAuth) SignUp(context.Context, session.Credentials) (session.Identity, string, error) {
	return session.Identity{}, "", errors.New("not used")
}

func (tokenAuth) Restore(_ context.Context, token string) (session.Identity, error) {
	if token != "good-token" {
		return session.Identity{}, errors.New("invalid token")
	}
	return session.Identity{UserID: "u-1", Email: "reader@example.com", Username: "reader"}, nil
}

func newTestRegistry() *session.Registry {
	return session.NewRegistry(tokenAuth{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// echoUser writes the resolved user id, or "anonymous".
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if id, ok := UserIDFromContext(r.Context()); ok {
		w.Write([]byte(id))
		return
	}
	w.Write([]byte("anonymous"))
})

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// =========================================================================
// Sessions
// =========================================================================

func TestSessions_RestoresFromTokenCookie(t *testing.T) {
	h := Sessions(newTestRegistry(), false)(echoUser)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: "good-token"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "u-1", rec.Body.String())
	sid := findCookie(rec.Result().Cookies(), SessionCookie)
	require.NotNil(t, sid, "a new session id is issued")
	assert.True(t, sid.HttpOnly)
}

func TestSessions_AnonymousWithoutToken(t *testing.T) {
	h := Sessions(newTestRegistry(), false)(echoUser)

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"no cookie", nil},
		{"rejected token", &http.Cookie{Name: TokenCookie, Value: "forged"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, "anonymous", rec.Body.String())
		})
	}
}

func TestSessions_ReusesSession(t *testing.T) {
	reg := newTestRegistry()
	h := Sessions(reg, false)(echoUser)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	sid := findCookie(first.Result().Cookies(), SessionCookie)
	require.NotNil(t, sid)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sid.Value})
	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)

	assert.Nil(t, findCookie(second.Result().Cookies(), SessionCookie), "known session keeps its cookie")
	assert.Equal(t, 1, reg.Len())
}

func TestSessions_SignedInSessionOutlivesCookie(t *testing.T) {
	reg := newTestRegistry()
	id, p := reg.Get("")
	p.Restore(context.Background(), "good-token")

	// a settled session is not re-restored from a missing token cookie
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	rec := httptest.NewRecorder()
	Sessions(reg, false)(echoUser).ServeHTTP(rec, req)

	assert.Equal(t, "u-1", rec.Body.String())
}

func TestSessions_AttachesProvider(t *testing.T) {
	var got *session.Provider
	var gotID string
	h := Sessions(newTestRegistry(), false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ProviderFromContext(r.Context())
		gotID = SessionIDFromContext(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, got)
	assert.NotEmpty(t, gotID)
	assert.Equal(t, session.StateAnonymous, got.Snapshot().State)
}

// =========================================================================
// RequireAuth
// =========================================================================

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(echoUser)

	t.Run("anonymous is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"unauthorized","message":"valid authentication required"}`, rec.Body.String())
	})

	t.Run("authenticated passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithSnapshot(req.Context(), session.Snapshot{
			State:    session.StateAuthenticated,
			Identity: session.Identity{UserID: "u-9"},
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-9", rec.Body.String())
	})
}

func TestSnapshotFromContext_DefaultsToAnonymous(t *testing.T) {
	snap := SnapshotFromContext(context.Background())
	assert.Equal(t, session.StateAnonymous, snap.State)
}

// =========================================================================
// Cookies
// =========================================================================

func TestTokenCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetTokenCookie(rec, "abc", 2*time.Hour, true)
	c := findCookie(rec.Result().Cookies(), TokenCookie)
	require.NotNil(t, c)
	assert.Equal(t, "abc", c.Value)
	assert.Equal(t, 7200, c.MaxAge)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)

	rec = httptest.NewRecorder()
	ClearTokenCookie(rec, false)
	c = findCookie(rec.Result().Cookies(), TokenCookie)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}
