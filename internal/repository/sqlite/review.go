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

var _ repository.ReviewRepository = (*DB)(nil)

const reviewColumns = `id, user_id, book_id, rating, content, created_at`

func (db *DB) ListReviewsByBook(ctx context.Context, bookID string) ([]model.Review, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews
		 WHERE book_id = ?
		 ORDER BY created_at DESC, rowid DESC`,
		bookID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing reviews for book %s: %w", bookID, err)
	}
	defer rows.Close()

	reviews := []model.Review{}
	for rows.Next() {
		var r model.Review
		if err := rows.Scan(&r.ID, &r.UserID, &r.BookID, &r.Rating, &r.Content, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning review: %w", err)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating reviews: %w", err)
	}
	return reviews, nil
}

// FindReview is the probe of the review upsert. A missing review is not an
// error: it returns (nil, nil).
func (db *DB) FindReview(ctx context.Context, userID, bookID string) (*model.Review, error) {
	var r model.Review
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE user_id = ? AND book_id = ?`,
		userID, bookID,
	).Scan(&r.ID, &r.UserID, &r.BookID, &r.Rating, &r.Content, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: finding review (%s, %s): %w", userID, bookID, err)
	}
	return &r, nil
}

// InsertReview fails with a Conflict if (UserID, BookID) already has a review.
func (db *DB) InsertReview(ctx context.Context, r *model.Review) error {
	r.ID = xid.New().String()
	r.CreatedAt = db.now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reviews (`+reviewColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.BookID, r.Rating, r.Content, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "you have already reviewed this book",
			}
		}
		return fmt.Errorf("sqlite: inserting review: %w", err)
	}
	return nil
}

// UpdateReview overwrites rating and content of the (UserID, BookID) review.
func (db *DB) UpdateReview(ctx context.Context, r *model.Review) error {
	return db.execOne(ctx, "review", r.UserID+"/"+r.BookID,
		`UPDATE reviews SET rating = ?, content = ? WHERE user_id = ? AND book_id = ?`,
		r.Rating, r.Content, r.UserID, r.BookID,
	)
}

// RatingForBook averages the local reviews of a book to one decimal.
func (db *DB) RatingForBook(ctx context.Context, bookID string) (model.BookRating, error) {
	rating := model.BookRating{BookID: bookID}
	var avg float64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(rating), 0) FROM reviews WHERE book_id = ?`, bookID,
	).Scan(&rating.Count, &avg)
	if err != nil {
		return rating, fmt.Errorf("sqlite: rating for book %s: %w", bookID, err)
	}
	rating.Average = roundOne(avg)
	return rating, nil
}
