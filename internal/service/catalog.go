package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/query"
	"github.com/sakif/readrealm/internal/repository"
)

// catalogStaleTime is how old a cached search may get before a hit also
// revalidates it in the background.
const catalogStaleTime = 5 * time.Minute

// BookCatalog is the external book-search provider (*catalog.Client).
type BookCatalog interface {
	SearchByQuery(ctx context.Context, text string) ([]model.Book, error)
	SearchByGenre(ctx context.Context, genre string) ([]model.Book, error)
	FetchByID(ctx context.Context, id string) (model.Book, error)
}

// CatalogService reads books from the provider and ratings from local reviews.
type CatalogService struct {
	books   BookCatalog
	reviews repository.ReviewRepository
	cache   *query.Client
	logger  *slog.Logger
}

func NewCatalogService(books BookCatalog, reviews repository.ReviewRepository, cache *query.Client, logger *slog.Logger) *CatalogService {
	return &CatalogService{books: books, reviews: reviews, cache: cache, logger: logger}
}

// Search runs a free-text search. A provider failure is logged and reads as
// an empty result; the failed entry is retried on the next search.
func (s *CatalogService) Search(ctx context.Context, text string) []model.Book {
	text = strings.TrimSpace(text)
	if text == "" {
		return []model.Book{}
	}
	return s.search(ctx, booksKey(text), func(ctx context.Context) ([]model.Book, error) {
		return s.books.SearchByQuery(ctx, text)
	})
}

// Genre lists books for a subject, with the same soft-failure policy as Search.
func (s *CatalogService) Genre(ctx context.Context, genre string) []model.Book {
	genre = strings.ToLower(strings.TrimSpace(genre))
	if genre == "" {
		return []model.Book{}
	}
	return s.search(ctx, genreKey(genre), func(ctx context.Context) ([]model.Book, error) {
		return s.books.SearchByGenre(ctx, genre)
	})
}

func (s *CatalogService) search(ctx context.Context, key query.Key, fetch func(context.Context) ([]model.Book, error)) []model.Book {
	opts := []query.Option{query.WithStaleTime(catalogStaleTime)}
	if snap, ok := s.cache.Snapshot(key); ok && snap.Status == query.StatusError && !snap.Fetching {
		opts = append(opts, query.WithForce())
	}

	books, err := query.Query(ctx, s.cache, key, fetch, opts...)
	if err != nil {
		s.logger.Warn("book search failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		return []model.Book{}
	}
	if books == nil {
		return []model.Book{}
	}
	return books
}

// Book fetches one volume. Unlike searches, failures propagate.
func (s *CatalogService) Book(ctx context.Context, id string) (model.Book, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Book{}, apperror.Required("book id")
	}

	book, err := query.Query(ctx, s.cache, bookKey(id), func(ctx context.Context) (model.Book, error) {
		return s.books.FetchByID(ctx, id)
	}, query.WithStaleTime(catalogStaleTime))
	if err != nil {
		return model.Book{}, fmt.Errorf("service/catalog: book %s: %w", id, err)
	}
	return book, nil
}

// Rating is the average of the local reviews of a book, to one decimal.
func (s *CatalogService) Rating(ctx context.Context, bookID string) (model.BookRating, error) {
	if bookID == "" {
		return model.BookRating{}, apperror.Required("book id")
	}

	rating, err := query.Query(ctx, s.cache, bookRatingKey(bookID), func(ctx context.Context) (model.BookRating, error) {
		return s.reviews.RatingForBook(ctx, bookID)
	})
	if err != nil {
		return model.BookRating{}, fmt.Errorf("service/catalog: rating for %s: %w", bookID, err)
	}
	return rating, nil
}
