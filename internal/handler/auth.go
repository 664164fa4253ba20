package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/auth"
	"github.com/sakif/readrealm/internal/service"
	"github.com/sakif/readrealm/internal/session"
	"github.com/sakif/readrealm/internal/validation"
)

const oauthStateCookie = "oauth_state"

// AuthHandler drives the request's session Provider and the GitHub login flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignUp / HandleSignIn → email + password through the session Provider
//   - HandleSignOut               → drop the identity and the token cookie
//   - HandleMe                    → report the settled session state
//   - HandleGitHubLogin/Callback  → optional OAuth sign-in
type AuthHandler struct {
	users     *service.AuthService
	github    *auth.GitHubProvider // nil when GitHub sign-in is not configured
	registry  *session.Registry
	validator *validation.Validator
	tokenTTL  time.Duration
	secure    bool
	logger    *slog.Logger
}

func NewAuthHandler(
	users *service.AuthService,
	github *auth.GitHubProvider,
	registry *session.Registry,
	validator *validation.Validator,
	tokenTTL time.Duration,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:     users,
		github:    github,
		registry:  registry,
		validator: validator,
		tokenTTL:  tokenTTL,
		secure:    secure,
		logger:    logger,
	}
}

// meResponse is the session as the front-end sees it.
type meResponse struct {
	State    string            `json:"state"`
	Identity *session.Identity `json:"identity"`
}

func newMeResponse(snap session.Snapshot) meResponse {
	resp := meResponse{State: snap.State.String()}
	if snap.Authenticated() {
		id := snap.Identity
		resp.Identity = &id
	}
	return resp
}

// HandleSignUp creates an account and signs the session into it.
//
// HTTP: POST /api/auth/signup
// REQUEST BODY: {"email": "a@b.co", "password": "secret"}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, http.StatusCreated, "Account created", (*session.Provider).SignUp)
}

// HandleSignIn signs the session in.
//
// HTTP: POST /api/auth/signin
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	h.authenticate(w, r, http.StatusOK, "Signed in", (*session.Provider).SignIn)
}

func (h *AuthHandler) authenticate(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	notice string,
	fn func(*session.Provider, context.Context, session.Credentials) (session.Snapshot, error),
) {
	provider, ok := auth.ProviderFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("no session"))
		return
	}

	var creds session.Credentials
	if err := decodeJSON(r, h.validator, &creds); err != nil {
		writeError(w, err)
		return
	}

	snap, err := fn(provider, r.Context(), creds)
	if err != nil {
		if errors.Is(err, session.ErrBusy) {
			err = &apperror.AppError{Err: apperror.ErrConflict, Message: "a sign-in is already in progress"}
		}
		// the backend's message is shown unchanged
		writeError(w, err)
		return
	}

	auth.SetTokenCookie(w, provider.Token(), h.tokenTTL, h.secure)
	writeDone(w, status, newMeResponse(snap), notice)
}

// HandleSignOut drops the session's identity.
//
// HTTP: POST /api/auth/signout
//
// The JWT itself stays valid until it expires; without the cookie the browser
// can no longer present it.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	snap := session.Snapshot{State: session.StateAnonymous}
	if provider, ok := auth.ProviderFromContext(r.Context()); ok {
		snap = provider.SignOut()
	}
	auth.ClearTokenCookie(w, h.secure)
	writeDone(w, http.StatusOK, newMeResponse(snap), "Signed out")
}

// HandleMe returns the settled session state. It never answers "unknown": the
// Sessions middleware waits for restoration before any handler runs.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	writeData(w, newMeResponse(auth.SnapshotFromContext(r.Context())))
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /api/auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds if the two match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub user profile
//  3. Upsert the user and issue a token
//  4. Drop the in-memory session so the next request restores from the new cookie
//  5. Redirect to the app home page
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: invalid state")
		writeError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for GitHub user profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.Required("code"))
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthorized("GitHub authentication failed"))
		return
	}

	// --- Step 3: Upsert user and issue token ---
	result, err := h.users.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, err)
		return
	}
	auth.SetTokenCookie(w, result.Token, h.tokenTTL, h.secure)

	// --- Step 4: Restore on next request ---
	if sid := auth.SessionIDFromContext(r.Context()); sid != "" {
		h.registry.Remove(sid)
	}

	// --- Step 5: Redirect to the app ---
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
