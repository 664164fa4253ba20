// Package prefs holds the small bits of per-browser state that live in cookies
// rather than in the database: the recent-search list and the preferred theme.
package prefs

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"
)

const (
	RecentSearchesCookie = "recentSearches"
	// MaxRecentSearches caps the list; the oldest entry falls off.
	MaxRecentSearches = 5

	cookieMaxAge = 365 * 24 * time.Hour
)

// RecentSearches is the newest-first list of search terms. Methods return a
// new list and leave the receiver untouched.
type RecentSearches []string

// Add puts q at the front unless it is already in the list.
func (rs RecentSearches) Add(q string) RecentSearches {
	q = strings.TrimSpace(q)
	if q == "" || slices.Contains(rs, q) {
		return rs
	}
	out := make(RecentSearches, 0, MaxRecentSearches)
	out = append(out, q)
	for _, s := range rs {
		if len(out) == MaxRecentSearches {
			break
		}
		out = append(out, s)
	}
	return out
}

func (rs RecentSearches) Remove(q string) RecentSearches {
	out := make(RecentSearches, 0, len(rs))
	for _, s := range rs {
		if s != q {
			out = append(out, s)
		}
	}
	return out
}

// Encode renders the list as URL-safe base64 of its JSON form.
func (rs RecentSearches) Encode() string {
	if rs == nil {
		rs = RecentSearches{}
	}
	b, _ := json.Marshal([]string(rs))
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeRecentSearches parses a cookie value. Anything unreadable is treated as
// an empty list; the cookie is browser state and not worth failing a request over.
func DecodeRecentSearches(v string) RecentSearches {
	raw, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return RecentSearches{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return RecentSearches{}
	}

	out := RecentSearches{}
	for _, s := range list {
		out = out.appendUnique(s)
	}
	return out
}

func (rs RecentSearches) appendUnique(s string) RecentSearches {
	s = strings.TrimSpace(s)
	if s == "" || len(rs) == MaxRecentSearches || slices.Contains(rs, s) {
		return rs
	}
	return append(rs, s)
}

// ReadRecentSearches returns the list stored on the request, or an empty one.
func ReadRecentSearches(r *http.Request) RecentSearches {
	c, err := r.Cookie(RecentSearchesCookie)
	if err != nil {
		return RecentSearches{}
	}
	return DecodeRecentSearches(c.Value)
}

func WriteRecentSearches(w http.ResponseWriter, rs RecentSearches, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     RecentSearchesCookie,
		Value:    rs.Encode(),
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
