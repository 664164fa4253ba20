package model

import "strings"

// Profile is the public face of a user. ID equals the identity (user) ID.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatarUrl"`
	Theme     Theme  `json:"theme"`
}

// Theme is one of a fixed set of colour schemes.
type Theme string

const (
	ThemeClassic  Theme = "classic"
	ThemeMidnight Theme = "midnight"
	ThemeSepia    Theme = "sepia"
	ThemeForest   Theme = "forest"
	ThemeOcean    Theme = "ocean"
	ThemeRose     Theme = "rose"

	DefaultTheme = ThemeClassic
)

// Style is the set of colours a theme resolves to.
type Style struct {
	Background string `json:"background"`
	Surface    string `json:"surface"`
	Text       string `json:"text"`
	Accent     string `json:"accent"`
}

// themes is the single registry every page reads its colours from.
var themes = map[Theme]Style{
	ThemeClassic:  {Background: "#f5f0e8", Surface: "#ffffff", Text: "#2f2f2f", Accent: "#8b5e3c"},
	ThemeMidnight: {Background: "#0f172a", Surface: "#1e293b", Text: "#e2e8f0", Accent: "#6366f1"},
	ThemeSepia:    {Background: "#f4ecd8", Surface: "#fbf6ea", Text: "#5b4636", Accent: "#a0522d"},
	ThemeForest:   {Background: "#14281d", Surface: "#1f3a2b", Text: "#e6f0e9", Accent: "#4caf50"},
	ThemeOcean:    {Background: "#083344", Surface: "#164e63", Text: "#ecfeff", Accent: "#22d3ee"},
	ThemeRose:     {Background: "#fff1f2", Surface: "#ffffff", Text: "#4c0519", Accent: "#e11d48"},
}

// Themes returns every theme in display order.
func Themes() []Theme {
	return []Theme{ThemeClassic, ThemeMidnight, ThemeSepia, ThemeForest, ThemeOcean, ThemeRose}
}

// ParseTheme reports whether s names a known theme.
func ParseTheme(s string) (Theme, bool) {
	t := Theme(strings.ToLower(strings.TrimSpace(s)))
	_, ok := themes[t]
	return t, ok
}

// Style returns the colours for t, falling back to the default theme.
func (t Theme) Style() Style {
	if s, ok := themes[t]; ok {
		return s
	}
	return themes[DefaultTheme]
}

// Valid reports whether t is in the registry.
func (t Theme) Valid() bool {
	_, ok := themes[t]
	return ok
}
