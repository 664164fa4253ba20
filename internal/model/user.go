// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account: the identity behind a session.
//
// Two identity paths exist: email + password, and GitHub OAuth. A user created
// through one path has the other path's fields at their zero value (empty
// PasswordHash, GitHubID 0). The UNIQUE constraints on email and github_id
// ensure one credential maps to exactly one account.
//
// PasswordHash is never serialized: the `json:"-"` tag drops it from every
// response.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	GitHubID     int64     `json:"githubId"  db:"github_id"` // 0 unless signed in with GitHub
	Login        string    `json:"login"     db:"login"`
	AvatarURL    string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
