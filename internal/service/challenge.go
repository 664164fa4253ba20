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

type ChallengeService struct {
	repo   repository.ChallengeRepository
	cache  *query.Client
	logger *slog.Logger
}

func NewChallengeService(repo repository.ChallengeRepository, cache *query.Client, logger *slog.Logger) *ChallengeService {
	return &ChallengeService{repo: repo, cache: cache, logger: logger}
}

// ChallengeInput is the create-challenge form.
type ChallengeInput struct {
	Name        string `json:"name"        validate:"required"`
	StartDate   string `json:"startDate"   validate:"required"`
	EndDate     string `json:"endDate"     validate:"required"`
	TargetBooks int    `json:"targetBooks" validate:"gt=0"`
}

func (s *ChallengeService) List(ctx context.Context, userID string) ([]model.Challenge, error) {
	if userID == "" {
		return nil, apperror.Required("user id")
	}
	challenges, err := query.Query(ctx, s.cache, challengesKey(userID), func(ctx context.Context) ([]model.Challenge, error) {
		return s.repo.ListChallengesByUser(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("service/challenge: listing for %s: %w", userID, err)
	}
	if challenges == nil {
		challenges = []model.Challenge{}
	}
	return challenges, nil
}

func (s *ChallengeService) Create(ctx context.Context, ownerID string, in ChallengeInput) (*model.Challenge, error) {
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return nil, apperror.Required("name")
	case in.StartDate == "":
		return nil, apperror.Required("startDate")
	case in.EndDate == "":
		return nil, apperror.Required("endDate")
	case in.TargetBooks <= 0:
		return nil, apperror.ValidationFailed("targetBooks", "targetBooks must be a positive number")
	}

	c, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (*model.Challenge, error) {
		c := &model.Challenge{
			Name:        in.Name,
			OwnerUserID: ownerID,
			StartDate:   in.StartDate,
			EndDate:     in.EndDate,
			TargetBooks: in.TargetBooks,
			Books:       []model.Book{},
		}
		return c, s.repo.InsertChallenge(ctx, c)
	}, allChallenges)
	if err != nil {
		s.logger.Error("failed to create challenge", slog.String("owner", ownerID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/challenge: creating %q: %w", in.Name, err)
	}

	s.logger.Info("challenge created", slog.String("id", c.ID), slog.String("owner", ownerID))
	return c, nil
}

// AddBook records a finished book against the challenge. Only the owner may.
func (s *ChallengeService) AddBook(ctx context.Context, userID, challengeID string, book model.Book) error {
	if challengeID == "" {
		return apperror.Required("challenge id")
	}
	if book.ID == "" {
		return apperror.Required("book id")
	}

	c, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		return fmt.Errorf("service/challenge: %w", err)
	}
	if c.OwnerUserID != userID {
		return apperror.Forbidden("you can only add books to your own challenges")
	}

	_, err = query.Mutate(ctx, s.cache, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.repo.AppendBookToChallenge(ctx, challengeID, book)
	}, allChallenges)
	if err != nil {
		s.logger.Error("failed to add book to challenge",
			slog.String("challenge", challengeID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/challenge: adding %s to %s: %w", book.ID, challengeID, err)
	}
	return nil
}
