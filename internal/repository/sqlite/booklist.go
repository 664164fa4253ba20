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

var _ repository.BooklistRepository = (*DB)(nil)

// ListBooklistsByUser fetches the list rows and then all of their books in a
// second query, so the result is the nested shape the views render.
//
// The first result set is fully read and closed before the second query runs:
// an in-memory database has a single connection.
func (db *DB) ListBooklistsByUser(ctx context.Context, userID string) ([]model.Booklist, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, owner_user_id, created_at FROM booklists
		 WHERE owner_user_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing booklists for %s: %w", userID, err)
	}

	lists := []model.Booklist{}
	index := make(map[string]int)
	for rows.Next() {
		var b model.Booklist
		if err := rows.Scan(&b.ID, &b.Name, &b.OwnerUserID, &b.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning booklist: %w", err)
		}
		b.Books = []model.Book{}
		index[b.ID] = len(lists)
		lists = append(lists, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating booklists: %w", err)
	}
	rows.Close()

	if len(lists) == 0 {
		return lists, nil
	}

	err = db.eachBook(ctx,
		`SELECT bb.booklist_id, `+prefixed("bb", bookColumns)+`
		 FROM booklist_books bb
		 JOIN booklists b ON b.id = bb.booklist_id
		 WHERE b.owner_user_id = ?
		 ORDER BY bb.entry_id`,
		[]any{userID},
		func(parentID string, book model.Book) {
			if i, ok := index[parentID]; ok {
				lists[i].Books = append(lists[i].Books, book)
			}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing booklist books for %s: %w", userID, err)
	}
	return lists, nil
}

func (db *DB) GetBooklist(ctx context.Context, id string) (*model.Booklist, error) {
	var b model.Booklist
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, owner_user_id, created_at FROM booklists WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.OwnerUserID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("booklist", id)
		}
		return nil, fmt.Errorf("sqlite: getting booklist %s: %w", id, err)
	}

	b.Books = []model.Book{}
	err = db.eachBook(ctx,
		`SELECT booklist_id, `+bookColumns+` FROM booklist_books
		 WHERE booklist_id = ? ORDER BY entry_id`,
		[]any{id},
		func(_ string, book model.Book) { b.Books = append(b.Books, book) },
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing books of booklist %s: %w", id, err)
	}
	return &b, nil
}

func (db *DB) InsertBooklist(ctx context.Context, b *model.Booklist) error {
	b.ID = xid.New().String()
	b.CreatedAt = db.now()
	if b.Books == nil {
		b.Books = []model.Book{}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO booklists (id, name, owner_user_id, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, b.OwnerUserID, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting booklist: %w", err)
	}
	return nil
}

// AppendBookToBooklist stores a copy of book under the list. Appending the
// same book twice stores two entries.
func (db *DB) AppendBookToBooklist(ctx context.Context, booklistID string, book model.Book) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO booklist_books (booklist_id, `+bookColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		append([]any{booklistID}, bookArgs(book)...)...,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("booklist", booklistID)
		}
		return fmt.Errorf("sqlite: appending book to booklist %s: %w", booklistID, err)
	}
	return nil
}
