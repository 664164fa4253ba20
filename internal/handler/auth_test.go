package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/readrealm/internal/auth"
)

const (
	testEmail    = "reader@example.com"
	testPassword = "correct-horse-battery"
)

// signUp creates an account and returns the session and token cookies.
func signUp(t *testing.T, env *testEnv, email string) (sid, token *http.Cookie) {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"`+email+`","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	sid = cookieNamed(rr, auth.SessionCookie)
	token = cookieNamed(rr, auth.TokenCookie)
	require.NotNil(t, sid, "session cookie")
	require.NotNil(t, token, "token cookie")
	return sid, token
}

// =========================================================================
// SIGN UP / SIGN IN
// =========================================================================

func TestAuthHandler_SignUp(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"Reader@Example.com","password":"`+testPassword+`"}`)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := jsonBody(rr)
	assert.Equal(t, "authenticated", body.Get("data.state").String())
	assert.Equal(t, testEmail, body.Get("data.identity.email").String())
	assert.Equal(t, "Account created", body.Get("notice.message").String())
	assert.Equal(t, "success", body.Get("notice.kind").String())

	token := cookieNamed(rr, auth.TokenCookie)
	require.NotNil(t, token)
	assert.True(t, token.HttpOnly)
	assert.NotEmpty(t, token.Value)
}

func TestAuthHandler_SignUpErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"invalid json", `{"email":`, http.StatusBadRequest, ""},
		{"missing email", `{"password":"` + testPassword + `"}`, http.StatusBadRequest, "email is required"},
		{"malformed email", `{"email":"nope","password":"` + testPassword + `"}`, http.StatusBadRequest, "email must be a valid email address"},
		{"short password", `{"email":"a@b.co","password":"abc"}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rr := env.do(t, http.MethodPost, "/api/auth/signup", "", tt.body)

			assert.Equal(t, tt.status, rr.Code)
			body := jsonBody(rr)
			assert.Equal(t, "validation_error", body.Get("error").String())
			assert.Equal(t, "error", body.Get("notice.kind").String())
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Get("message").String())
			}
			assert.Nil(t, cookieNamed(rr, auth.TokenCookie))
		})
	}
}

func TestAuthHandler_SignUpDuplicateShowsBackendMessage(t *testing.T) {
	env := newTestEnv(t)
	signUp(t, env, testEmail)

	rr := env.do(t, http.MethodPost, "/api/auth/signup", "", `{"email":"`+testEmail+`","password":"`+testPassword+`"}`)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "User already registered", jsonBody(rr).Get("message").String())
}

func TestAuthHandler_SignIn(t *testing.T) {
	env := newTestEnv(t)
	signUp(t, env, testEmail)

	t.Run("valid credentials", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"`+testEmail+`","password":"`+testPassword+`"}`)

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "Signed in", jsonBody(rr).Get("notice.message").String())
		assert.NotNil(t, cookieNamed(rr, auth.TokenCookie))
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/auth/signin", "", `{"email":"`+testEmail+`","password":"wrong-password"}`)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Invalid login credentials", jsonBody(rr).Get("message").String())
		assert.Nil(t, cookieNamed(rr, auth.TokenCookie))
	})
}

// =========================================================================
// SESSION STATE
// =========================================================================

func TestAuthHandler_MeFollowsTheSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/auth/me", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "anonymous", jsonBody(rr).Get("data.state").String())
	assert.Equal(t, "null", jsonBody(rr).Get("data.identity").Raw)

	sid, _ := signUp(t, env, testEmail)

	rr = env.do(t, http.MethodGet, "/api/auth/me", "", "", sid)
	assert.Equal(t, "authenticated", jsonBody(rr).Get("data.state").String())
	assert.Equal(t, "reader", jsonBody(rr).Get("data.identity.username").String())

	rr = env.do(t, http.MethodPost, "/api/auth/signout", "", "", sid)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Signed out", jsonBody(rr).Get("notice.message").String())
	cleared := cookieNamed(rr, auth.TokenCookie)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	rr = env.do(t, http.MethodGet, "/api/auth/me", "", "", sid)
	assert.Equal(t, "anonymous", jsonBody(rr).Get("data.state").String())
}

func TestAuthHandler_RestoresFromTokenCookie(t *testing.T) {
	env := newTestEnv(t)
	_, token := signUp(t, env, testEmail)

	// a new browser session carrying only the token
	rr := env.do(t, http.MethodGet, "/api/auth/me", "", "", token)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "authenticated", jsonBody(rr).Get("data.state").String())
	assert.Equal(t, testEmail, jsonBody(rr).Get("data.identity.email").String())
	assert.NotNil(t, cookieNamed(rr, auth.SessionCookie), "a fresh session id is issued")
}

func TestAuthHandler_BadTokenIsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/auth/me", "", "", &http.Cookie{Name: auth.TokenCookie, Value: "not-a-jwt"})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "anonymous", jsonBody(rr).Get("data.state").String())
}
