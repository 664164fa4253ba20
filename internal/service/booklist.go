package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/query"
	"github.com/sakif/readrealm/internal/repository"
)

// BooklistService manages a reader's booklists. Anyone can read a booklist;
// only its owner can add to it.
type BooklistService struct {
	repo   repository.BooklistRepository
	cache  *query.Client
	logger *slog.Logger
}

func NewBooklistService(repo repository.BooklistRepository, cache *query.Client, logger *slog.Logger) *BooklistService {
	return &BooklistService{repo: repo, cache: cache, logger: logger}
}

// List returns userID's booklists, newest first.
func (s *BooklistService) List(ctx context.Context, userID string) ([]model.Booklist, error) {
	return s.list(ctx, booklistsKey(userID), userID)
}

// ReadingLists is the public view of another user's booklists.
func (s *BooklistService) ReadingLists(ctx context.Context, userID string) ([]model.Booklist, error) {
	return s.list(ctx, readingListsKey(userID), userID)
}

func (s *BooklistService) list(ctx context.Context, key query.Key, userID string) ([]model.Booklist, error) {
	if userID == "" {
		return nil, apperror.Required("user id")
	}
	lists, err := query.Query(ctx, s.cache, key, func(ctx context.Context) ([]model.Booklist, error) {
		return s.repo.ListBooklistsByUser(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("service/booklist: listing for %s: %w", userID, err)
	}
	if lists == nil {
		lists = []model.Booklist{}
	}
	return lists, nil
}

// Create makes an empty booklist owned by ownerID.
func (s *BooklistService) Create(ctx context.Context, ownerID, name string) (*model.Booklist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.Required("name")
	}

	b, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (*model.Booklist, error) {
		b := &model.Booklist{Name: name, OwnerUserID: ownerID, Books: []model.Book{}}
		return b, s.repo.InsertBooklist(ctx, b)
	}, s.invalidates(ownerID)...)
	if err != nil {
		s.logger.Error("failed to create booklist", slog.String("owner", ownerID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/booklist: creating %q: %w", name, err)
	}

	s.logger.Info("booklist created", slog.String("id", b.ID), slog.String("owner", ownerID))
	return b, nil
}

// AddBook appends a snapshot of book to the booklist. Only the owner may.
func (s *BooklistService) AddBook(ctx context.Context, userID, booklistID string, book model.Book) error {
	if booklistID == "" {
		return apperror.Required("booklist id")
	}
	if book.ID == "" {
		return apperror.Required("book id")
	}

	b, err := s.repo.GetBooklist(ctx, booklistID)
	if err != nil {
		return fmt.Errorf("service/booklist: %w", err)
	}
	if b.OwnerUserID != userID {
		return apperror.Forbidden("you can only add books to your own booklists")
	}

	_, err = query.Mutate(ctx, s.cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.AppendBookToBooklist(ctx, booklistID, book)
	}, s.invalidates(b.OwnerUserID)...)
	if err != nil {
		s.logger.Error("failed to add book to booklist",
			slog.String("booklist", booklistID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/booklist: adding %s to %s: %w", book.ID, booklistID, err)
	}

	s.logger.Info("book added to booklist", slog.String("booklist", booklistID), slog.String("book", book.ID))
	return nil
}

func (s *BooklistService) invalidates(ownerID string) []query.Key {
	return []query.Key{allBooklists, readingListsKey(ownerID)}
}
