package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/repository"
)

var _ repository.FollowRepository = (*DB)(nil)

func (db *DB) FollowExists(ctx context.Context, followerID, followingID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follows WHERE follower_id = ? AND following_id = ?`,
		followerID, followingID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: probing follow %s -> %s: %w", followerID, followingID, err)
	}
	return n > 0, nil
}

// InsertFollow is idempotent: an existing edge is left as is.
func (db *DB) InsertFollow(ctx context.Context, followerID, followingID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO follows (follower_id, following_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (follower_id, following_id) DO NOTHING`,
		followerID, followingID, db.now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting follow %s -> %s: %w", followerID, followingID, err)
	}
	return nil
}

func (db *DB) DeleteFollow(ctx context.Context, followerID, followingID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND following_id = ?`,
		followerID, followingID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting follow %s -> %s: %w", followerID, followingID, err)
	}
	return nil
}

// ListFollowers returns the users following userID.
func (db *DB) ListFollowers(ctx context.Context, userID string) ([]model.FollowUser, error) {
	return db.listFollowUsers(ctx,
		`SELECT f.follower_id, COALESCE(p.username, ''), COALESCE(p.avatar_url, '')
		 FROM follows f
		 LEFT JOIN profiles p ON p.id = f.follower_id
		 WHERE f.following_id = ?
		 ORDER BY f.created_at DESC`,
		userID,
	)
}

// ListFollowing returns the users userID follows.
func (db *DB) ListFollowing(ctx context.Context, userID string) ([]model.FollowUser, error) {
	return db.listFollowUsers(ctx,
		`SELECT f.following_id, COALESCE(p.username, ''), COALESCE(p.avatar_url, '')
		 FROM follows f
		 LEFT JOIN profiles p ON p.id = f.following_id
		 WHERE f.follower_id = ?
		 ORDER BY f.created_at DESC`,
		userID,
	)
}

// listFollowUsers scans (id, username, avatar) rows into the one canonical
// follow-list shape. Users without a profile row keep empty strings.
func (db *DB) listFollowUsers(ctx context.Context, query, userID string) ([]model.FollowUser, error) {
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing follows for %s: %w", userID, err)
	}
	defer rows.Close()

	users := []model.FollowUser{}
	for rows.Next() {
		var u model.FollowUser
		if err := rows.Scan(&u.UserID, &u.Username, &u.AvatarURL); err != nil {
			return nil, fmt.Errorf("sqlite: scanning follow user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating follows: %w", err)
	}
	return users, nil
}

func (db *DB) CountFollowers(ctx context.Context, userID string) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM follows WHERE following_id = ?`, userID)
}

func (db *DB) CountFollowing(ctx context.Context, userID string) (int, error) {
	return db.count(ctx, `SELECT COUNT(*) FROM follows WHERE follower_id = ?`, userID)
}

func (db *DB) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting: %w", err)
	}
	return n, nil
}
