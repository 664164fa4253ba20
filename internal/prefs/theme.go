package prefs

import (
	"net/http"

	"github.com/sakif/readrealm/internal/model"
)

const ThemeCookie = "userPreferredTheme"

// ReadTheme returns the theme cookie if it names a known theme.
func ReadTheme(r *http.Request) (model.Theme, bool) {
	c, err := r.Cookie(ThemeCookie)
	if err != nil {
		return "", false
	}
	return model.ParseTheme(c.Value)
}

// WriteTheme mirrors the theme locally so the next page can render in it
// before the profile has loaded. The cookie is readable by scripts.
func WriteTheme(w http.ResponseWriter, theme model.Theme, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ThemeCookie,
		Value:    string(theme),
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ResolveTheme picks the theme to render. A stored profile theme wins over
// the cookie; with neither, the default applies.
func ResolveTheme(profile *model.Profile, r *http.Request) model.Theme {
	if profile != nil && profile.Theme.Valid() {
		return profile.Theme
	}
	if t, ok := ReadTheme(r); ok {
		return t
	}
	return model.DefaultTheme
}
