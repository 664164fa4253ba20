package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/repository"
)

var (
	_ repository.GroupRepository   = (*DB)(nil)
	_ repository.MessageRepository = (*DB)(nil)
)

// UnknownAuthor is shown for messages whose author has no username.
const UnknownAuthor = "U"

func (db *DB) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, created_by, created_at FROM "groups"
		 ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing groups: %w", err)
	}
	defer rows.Close()

	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating groups: %w", err)
	}
	return groups, nil
}

func (db *DB) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	var g model.Group
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM "groups" WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("group", id)
		}
		return nil, fmt.Errorf("sqlite: getting group %s: %w", id, err)
	}
	return &g, nil
}

func (db *DB) InsertGroup(ctx context.Context, g *model.Group) error {
	g.ID = xid.New().String()
	g.CreatedAt = db.now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO "groups" (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`,
		g.ID, g.Name, g.CreatedBy, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting group: %w", err)
	}
	return nil
}

// ListMessagesByGroup returns every message of the group, newest first.
func (db *DB) ListMessagesByGroup(ctx context.Context, groupID string) ([]model.Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT m.id, m.group_id, m.user_id, COALESCE(NULLIF(p.username, ''), ?), m.text, m.created_at
		 FROM messages m
		 LEFT JOIN profiles p ON p.id = m.user_id
		 WHERE m.group_id = ?
		 ORDER BY m.created_at DESC, m.rowid DESC`,
		UnknownAuthor, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages for group %s: %w", groupID, err)
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Username, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating messages: %w", err)
	}
	return messages, nil
}

// InsertMessage appends m to its group. An unknown group is NotFound.
func (db *DB) InsertMessage(ctx context.Context, m *model.Message) error {
	m.ID = xid.New().String()
	m.Timestamp = db.now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO messages (id, group_id, user_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, m.UserID, m.Text, m.Timestamp,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("group", m.GroupID)
		}
		return fmt.Errorf("sqlite: inserting message: %w", err)
	}
	return nil
}
