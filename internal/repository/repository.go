// Package repository declares the persistence gateway: one narrow interface per
// feature, each method a single read or a single atomic write.
//
// Services depend on these interfaces, never on a concrete database, so the
// service tests can swap in in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/readrealm/internal/model"
)

// UserRepository stores sign-in identities.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertGitHub inserts or refreshes the user with user.GitHubID and fills
	// in user.ID.
	UpsertGitHub(ctx context.Context, user *model.User) error
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	ProfileExists(ctx context.Context, id string) (bool, error)
	InsertProfile(ctx context.Context, p *model.Profile) error
	UpdateProfile(ctx context.Context, p *model.Profile) error
	UpdateTheme(ctx context.Context, id string, theme model.Theme) error
	UpdateAvatar(ctx context.Context, id, avatarURL string) error
}

type BooklistRepository interface {
	// ListBooklistsByUser returns the user's booklists newest first, each with
	// its books attached.
	ListBooklistsByUser(ctx context.Context, userID string) ([]model.Booklist, error)
	GetBooklist(ctx context.Context, id string) (*model.Booklist, error)
	InsertBooklist(ctx context.Context, b *model.Booklist) error
	AppendBookToBooklist(ctx context.Context, booklistID string, book model.Book) error
}

type ChallengeRepository interface {
	ListChallengesByUser(ctx context.Context, userID string) ([]model.Challenge, error)
	GetChallenge(ctx context.Context, id string) (*model.Challenge, error)
	InsertChallenge(ctx context.Context, c *model.Challenge) error
	AppendBookToChallenge(ctx context.Context, challengeID string, book model.Book) error
}

type ReviewRepository interface {
	ListReviewsByBook(ctx context.Context, bookID string) ([]model.Review, error)
	// FindReview returns (nil, nil) when the user has not reviewed the book.
	FindReview(ctx context.Context, userID, bookID string) (*model.Review, error)
	InsertReview(ctx context.Context, r *model.Review) error
	UpdateReview(ctx context.Context, r *model.Review) error
	RatingForBook(ctx context.Context, bookID string) (model.BookRating, error)
}

// FollowRepository stores follow edges. List results are already normalized
// to model.FollowUser.
type FollowRepository interface {
	FollowExists(ctx context.Context, followerID, followingID string) (bool, error)
	InsertFollow(ctx context.Context, followerID, followingID string) error
	DeleteFollow(ctx context.Context, followerID, followingID string) error
	ListFollowers(ctx context.Context, userID string) ([]model.FollowUser, error)
	ListFollowing(ctx context.Context, userID string) ([]model.FollowUser, error)
	CountFollowers(ctx context.Context, userID string) (int, error)
	CountFollowing(ctx context.Context, userID string) (int, error)
}

type GroupRepository interface {
	ListGroups(ctx context.Context) ([]model.Group, error)
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	InsertGroup(ctx context.Context, g *model.Group) error
}

type MessageRepository interface {
	// ListMessagesByGroup returns the whole history of a group newest first,
	// with the author's username joined in.
	ListMessagesByGroup(ctx context.Context, groupID string) ([]model.Message, error)
	InsertMessage(ctx context.Context, m *model.Message) error
}
