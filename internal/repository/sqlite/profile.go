package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

func (db *DB) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	var (
		p     model.Profile
		theme string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, full_name, bio, avatar_url, theme FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Username, &p.FullName, &p.Bio, &p.AvatarURL, &theme)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", id)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", id, err)
	}

	p.Theme = model.Theme(theme)
	if !p.Theme.Valid() {
		p.Theme = model.DefaultTheme
	}
	return &p, nil
}

// ProfileExists is the probe half of the profile upsert.
func (db *DB) ProfileExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles WHERE id = ?`, id,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: probing profile %s: %w", id, err)
	}
	return n > 0, nil
}

func (db *DB) InsertProfile(ctx context.Context, p *model.Profile) error {
	if p.Theme == "" {
		p.Theme = model.DefaultTheme
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (id, username, full_name, bio, avatar_url, theme)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Username, p.FullName, p.Bio, p.AvatarURL, string(p.Theme),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("profile", p.ID)
		}
		return fmt.Errorf("sqlite: inserting profile %s: %w", p.ID, err)
	}
	return nil
}

// UpdateProfile writes the editable text fields. Avatar and theme have their
// own single-column updates.
func (db *DB) UpdateProfile(ctx context.Context, p *model.Profile) error {
	return db.execOne(ctx, "profile", p.ID,
		`UPDATE profiles SET username = ?, full_name = ?, bio = ? WHERE id = ?`,
		p.Username, p.FullName, p.Bio, p.ID,
	)
}

func (db *DB) UpdateTheme(ctx context.Context, id string, theme model.Theme) error {
	return db.execOne(ctx, "profile", id,
		`UPDATE profiles SET theme = ? WHERE id = ?`, string(theme), id,
	)
}

func (db *DB) UpdateAvatar(ctx context.Context, id, avatarURL string) error {
	return db.execOne(ctx, "profile", id,
		`UPDATE profiles SET avatar_url = ? WHERE id = ?`, avatarURL, id,
	)
}

// execOne runs an UPDATE that must touch exactly one row; zero rows is a
// NotFound for resource id.
func (db *DB) execOne(ctx context.Context, resource, id, query string, args ...any) error {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating %s %s: %w", resource, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected for %s %s: %w", resource, id, err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
