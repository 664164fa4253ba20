package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/query"
	"github.com/sakif/readrealm/internal/repository"
)

// Acknowledgments shown after a review is saved.
const (
	NoticeReviewSubmitted = "Review submitted"
	NoticeReviewUpdated   = "Review updated"
)

// ReviewService keeps one review per (user, book).
//
// Submit probes for an existing review and then updates or inserts. Probes for
// the same pair are serialized in-process, and the UNIQUE(user_id, book_id)
// constraint catches a concurrent insert from anywhere else: a conflicting
// insert is retried as an update.
type ReviewService struct {
	repo   repository.ReviewRepository
	cache  *query.Client
	logger *slog.Logger
	locks  *keyedMutex
}

func NewReviewService(repo repository.ReviewRepository, cache *query.Client, logger *slog.Logger) *ReviewService {
	return &ReviewService{repo: repo, cache: cache, logger: logger, locks: newKeyedMutex()}
}

// ReviewInput is the review form.
type ReviewInput struct {
	Rating  int    `json:"rating"  validate:"min=1,max=5"`
	Content string `json:"content" validate:"required"`
}

// SubmitResult says which branch of the upsert ran.
type SubmitResult struct {
	Review  *model.Review
	Created bool
}

// Notice is the acknowledgment for the user.
func (r SubmitResult) Notice() string {
	if r.Created {
		return NoticeReviewSubmitted
	}
	return NoticeReviewUpdated
}

// ListForBook returns a book's reviews, newest first.
func (s *ReviewService) ListForBook(ctx context.Context, bookID string) ([]model.Review, error) {
	if bookID == "" {
		return nil, apperror.Required("book id")
	}
	reviews, err := query.Query(ctx, s.cache, reviewsKey(bookID), func(ctx context.Context) ([]model.Review, error) {
		return s.repo.ListReviewsByBook(ctx, bookID)
	})
	if err != nil {
		return nil, fmt.Errorf("service/review: listing for %s: %w", bookID, err)
	}
	if reviews == nil {
		reviews = []model.Review{}
	}
	return reviews, nil
}

// Mine returns userID's review of bookID, or nil if there is none.
func (s *ReviewService) Mine(ctx context.Context, userID, bookID string) (*model.Review, error) {
	if bookID == "" {
		return nil, apperror.Required("book id")
	}
	r, err := query.Query(ctx, s.cache, userReviewKey(userID, bookID), func(ctx context.Context) (*model.Review, error) {
		return s.repo.FindReview(ctx, userID, bookID)
	})
	if err != nil {
		return nil, fmt.Errorf("service/review: finding (%s, %s): %w", userID, bookID, err)
	}
	return r, nil
}

// Submit saves userID's review of bookID, replacing an earlier one.
func (s *ReviewService) Submit(ctx context.Context, userID, bookID string, in ReviewInput) (SubmitResult, error) {
	if bookID == "" {
		return SubmitResult{}, apperror.Required("book id")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return SubmitResult{}, apperror.ValidationFailed("rating", "rating must be between 1 and 5")
	}
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return SubmitResult{}, apperror.Required("content")
	}

	unlock := s.locks.Lock(userID + "\x00" + bookID)
	defer unlock()

	res, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (SubmitResult, error) {
		return s.upsert(ctx, &model.Review{UserID: userID, BookID: bookID, Rating: in.Rating, Content: in.Content})
	}, reviewsKey(bookID), userReviewKey(userID, bookID), bookRatingKey(bookID))
	if err != nil {
		s.logger.Error("failed to submit review",
			slog.String("user", userID),
			slog.String("book", bookID),
			slog.String("error", err.Error()),
		)
		return SubmitResult{}, fmt.Errorf("service/review: submitting (%s, %s): %w", userID, bookID, err)
	}
	s.cache.SetData(userReviewKey(userID, bookID), res.Review)

	s.logger.Info("review saved",
		slog.String("user", userID),
		slog.String("book", bookID),
		slog.Bool("created", res.Created),
	)
	return res, nil
}

func (s *ReviewService) upsert(ctx context.Context, r *model.Review) (SubmitResult, error) {
	existing, err := s.repo.FindReview(ctx, r.UserID, r.BookID)
	if err != nil {
		return SubmitResult{}, err
	}

	if existing != nil {
		if err := s.repo.UpdateReview(ctx, r); err != nil {
			return SubmitResult{}, err
		}
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
		return SubmitResult{Review: r}, nil
	}

	err = s.repo.InsertReview(ctx, r)
	if err == nil {
		return SubmitResult{Review: r, Created: true}, nil
	}
	if !errors.Is(err, apperror.ErrConflict) {
		return SubmitResult{}, err
	}

	// Another writer inserted first. Update its row and return that row.
	if err := s.repo.UpdateReview(ctx, r); err != nil {
		return SubmitResult{}, err
	}
	stored, err := s.repo.FindReview(ctx, r.UserID, r.BookID)
	if err != nil {
		return SubmitResult{}, err
	}
	if stored == nil {
		return SubmitResult{}, apperror.NotFound("review", r.UserID+"/"+r.BookID)
	}
	return SubmitResult{Review: stored}, nil
}
