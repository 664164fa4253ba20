package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/auth"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/prefs"
	"github.com/sakif/readrealm/internal/service"
	"github.com/sakif/readrealm/internal/validation"
)

// SocialHandler serves profiles, follows and themes.
type SocialHandler struct {
	follows   *service.FollowService
	profiles  *service.ProfileService
	validator *validation.Validator
	secure    bool
	logger    *slog.Logger
}

func NewSocialHandler(
	follows *service.FollowService,
	profiles *service.ProfileService,
	validator *validation.Validator,
	secure bool,
	logger *slog.Logger,
) *SocialHandler {
	return &SocialHandler{
		follows:   follows,
		profiles:  profiles,
		validator: validator,
		secure:    secure,
		logger:    logger,
	}
}

// =========================================================================
// FOLLOWS
// =========================================================================

type followState struct {
	Following bool `json:"following"`
}

// HandleFollowState reports whether the caller follows the user. Anonymous
// callers, and callers looking at themselves, never follow.
//
// HTTP: GET /api/users/{id}/follow
func (h *SocialHandler) HandleFollowState(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	ok, err := h.follows.IsFollowing(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, followState{Following: ok})
}

// HandleToggleFollow follows or unfollows.
//
// HTTP: POST /api/users/{id}/follow (auth)
func (h *SocialHandler) HandleToggleFollow(w http.ResponseWriter, r *http.Request) {
	viewerID, _ := auth.UserIDFromContext(r.Context())
	now, err := h.follows.Toggle(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	notice := "Unfollowed"
	if now {
		notice = "Followed"
	}
	writeDone(w, http.StatusOK, followState{Following: now}, notice)
}

// HTTP: GET /api/users/{id}/follow-stats
func (h *SocialHandler) HandleFollowStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.follows.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, stats)
}

// =========================================================================
// PROFILES
// =========================================================================

// HTTP: GET /api/users/{id}/profile
func (h *SocialHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, p)
}

// HandleMyProfile returns the caller's profile, or a blank one if none has
// been saved yet.
//
// HTTP: GET /api/profile (auth)
func (h *SocialHandler) HandleMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	p, err := h.profiles.Get(r.Context(), userID)
	if errors.Is(err, apperror.ErrNotFound) {
		p, err = &model.Profile{ID: userID, Theme: prefs.ResolveTheme(nil, r)}, nil
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, p)
}

// HTTP: PUT /api/profile (auth)
// REQUEST BODY: {"username": "reader", "fullName": "A Reader", "bio": "..."}
func (h *SocialHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.ProfileInput
	if err := decodeJSON(r, h.validator, &in); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.profiles.Update(r.Context(), userID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeDone(w, http.StatusOK, p, "Profile updated")
}

type avatarRequest struct {
	AvatarURL string `json:"avatarUrl" validate:"required,url"`
}

// HTTP: PUT /api/profile/avatar (auth)
func (h *SocialHandler) HandleSetAvatar(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req avatarRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.profiles.SetAvatar(r.Context(), userID, req.AvatarURL); err != nil {
		writeError(w, err)
		return
	}
	writeDone(w, http.StatusOK, nil, "Avatar updated")
}

// =========================================================================
// THEMES
// =========================================================================

type themeRequest struct {
	Theme string `json:"theme" validate:"required"`
}

type themeOption struct {
	Name  model.Theme `json:"name"`
	Style model.Style `json:"style"`
}

type themesResponse struct {
	Current model.Theme   `json:"current"`
	Themes  []themeOption `json:"themes"`
}

// HandleThemes lists every theme and the one this browser should render.
// A signed-in user's saved theme wins over the cookie.
//
// HTTP: GET /api/themes
func (h *SocialHandler) HandleThemes(w http.ResponseWriter, r *http.Request) {
	var profile *model.Profile
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		p, err := h.profiles.Get(r.Context(), userID)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			h.logger.Warn("theme lookup failed", slog.String("user", userID), slog.String("error", err.Error()))
		}
		profile = p
	}

	resp := themesResponse{Current: prefs.ResolveTheme(profile, r)}
	for _, t := range model.Themes() {
		resp.Themes = append(resp.Themes, themeOption{Name: t, Style: t.Style()})
	}
	if profile != nil && profile.Theme.Valid() {
		// keep the local mirror in step with the account
		prefs.WriteTheme(w, profile.Theme, h.secure)
	}
	writeData(w, resp)
}

// HandleSetTheme applies a theme locally and, for a signed-in user, remotely.
//
// HTTP: PUT /api/profile/theme
// REQUEST BODY: {"theme": "midnight"}
func (h *SocialHandler) HandleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req themeRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, err)
		return
	}

	theme, ok := model.ParseTheme(req.Theme)
	if !ok {
		writeError(w, apperror.ValidationFailed("theme", "unknown theme "+req.Theme))
		return
	}

	if userID, signedIn := auth.UserIDFromContext(r.Context()); signedIn {
		var err error
		if theme, err = h.profiles.SetTheme(r.Context(), userID, req.Theme); err != nil {
			writeError(w, err)
			return
		}
	}

	prefs.WriteTheme(w, theme, h.secure)
	writeDone(w, http.StatusOK, themeOption{Name: theme, Style: theme.Style()}, "Theme updated")
}
