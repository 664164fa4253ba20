package model

import "time"

// FollowEdge means FollowerID follows FollowingID. It has no attributes.
type FollowEdge struct {
	FollowerID  string `json:"followerId"`
	FollowingID string `json:"followingId"`
}

// FollowUser is the one shape a follower/following list item takes, whatever
// the query that produced it.
type FollowUser struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// FollowStats is both directions of the follow relation for one user.
type FollowStats struct {
	UserID         string       `json:"userId"`
	Followers      []FollowUser `json:"followers"`
	FollowersCount int          `json:"followersCount"`
	Following      []FollowUser `json:"following"`
	FollowingCount int          `json:"followingCount"`
}

// Group is a chat room. Groups are listed newest first.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is an append-only chat line. Username is joined in from profiles
// at read time and falls back to "U".
type Message struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"groupId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
