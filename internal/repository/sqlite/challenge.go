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

var _ repository.ChallengeRepository = (*DB)(nil)

const challengeColumns = `id, name, owner_user_id, start_date, end_date, target_books, created_at`

func scanChallenge(scan func(dest ...any) error) (model.Challenge, error) {
	var c model.Challenge
	err := scan(&c.ID, &c.Name, &c.OwnerUserID, &c.StartDate, &c.EndDate, &c.TargetBooks, &c.CreatedAt)
	c.Books = []model.Book{}
	return c, err
}

// ListChallengesByUser mirrors ListBooklistsByUser: challenge rows newest
// first, then every attached book in one more query.
func (db *DB) ListChallengesByUser(ctx context.Context, userID string) ([]model.Challenge, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+challengeColumns+` FROM reading_challenges
		 WHERE owner_user_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing challenges for %s: %w", userID, err)
	}

	challenges := []model.Challenge{}
	index := make(map[string]int)
	for rows.Next() {
		c, err := scanChallenge(rows.Scan)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning challenge: %w", err)
		}
		index[c.ID] = len(challenges)
		challenges = append(challenges, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating challenges: %w", err)
	}
	rows.Close()

	if len(challenges) == 0 {
		return challenges, nil
	}

	err = db.eachBook(ctx,
		`SELECT cb.challenge_id, `+prefixed("cb", bookColumns)+`
		 FROM challenge_books cb
		 JOIN reading_challenges c ON c.id = cb.challenge_id
		 WHERE c.owner_user_id = ?
		 ORDER BY cb.entry_id`,
		[]any{userID},
		func(parentID string, book model.Book) {
			if i, ok := index[parentID]; ok {
				challenges[i].Books = append(challenges[i].Books, book)
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing challenge books for %s: %w", userID, err)
	}
	return challenges, nil
}

func (db *DB) GetChallenge(ctx context.Context, id string) (*model.Challenge, error) {
	c, err := scanChallenge(db.conn.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM reading_challenges WHERE id = ?`, id,
	).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("challenge", id)
		}
		return nil, fmt.Errorf("sqlite: getting challenge %s: %w", id, err)
	}

	err = db.eachBook(ctx,
		`SELECT challenge_id, `+bookColumns+` FROM challenge_books
		 WHERE challenge_id = ? ORDER BY entry_id`,
		[]any{id},
		func(_ string, book model.Book) { c.Books = append(c.Books, book) },
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing books of challenge %s: %w", id, err)
	}
	return &c, nil
}

func (db *DB) InsertChallenge(ctx context.Context, c *model.Challenge) error {
	c.ID = xid.New().String()
	c.CreatedAt = db.now()
	if c.Books == nil {
		c.Books = []model.Book{}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reading_challenges (`+challengeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.OwnerUserID, c.StartDate, c.EndDate, c.TargetBooks, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting challenge: %w", err)
	}
	return nil
}

func (db *DB) AppendBookToChallenge(ctx context.Context, challengeID string, book model.Book) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO challenge_books (challenge_id, `+bookColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{challengeID}, bookArgs(book)...)...,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("challenge", challengeID)
		}
		return fmt.Errorf("sqlite: appending book to challenge %s: %w", challengeID, err)
	}
	return nil
}
