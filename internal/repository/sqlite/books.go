package sqlite

import (
	"context"
	"strings"

	"github.com/sakif/readrealm/internal/model"
)

// eachBook runs query, which must select a parent id followed by bookColumns,
// and hands every row to fn.
func (db *DB) eachBook(ctx context.Context, query string, args []any, fn func(parentID string, book model.Book)) error {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			parentID string
			b        model.Book
		)
		err := rows.Scan(
			&parentID,
			&b.ID,
			&b.Title,
			&b.Author,
			&b.CoverURL,
			&b.Description,
			&b.AverageRating,
			&b.PublishedDate,
			&b.ISBN,
		)
		if err != nil {
			return err
		}
		fn(parentID, b)
	}
	return rows.Err()
}

func bookArgs(b model.Book) []any {
	return []any{
		b.ID,
		b.Title,
		b.Author,
		b.CoverURL,
		b.Description,
		b.AverageRating,
		b.PublishedDate,
		b.ISBN,
	}
}

// prefixed qualifies every column in a comma-separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
