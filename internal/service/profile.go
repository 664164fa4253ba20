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

// ProfileService reads and writes profiles. A profile row is created lazily by
// the first write that needs one.
type ProfileService struct {
	repo   repository.ProfileRepository
	cache  *query.Client
	logger *slog.Logger
}

func NewProfileService(repo repository.ProfileRepository, cache *query.Client, logger *slog.Logger) *ProfileService {
	return &ProfileService{repo: repo, cache: cache, logger: logger}
}

// ProfileInput is the edit-profile form.
type ProfileInput struct {
	Username string `json:"username" validate:"required"`
	FullName string `json:"fullName"`
	Bio      string `json:"bio"`
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	if userID == "" {
		return nil, apperror.Required("user id")
	}
	p, err := query.Query(ctx, s.cache, profileKey(userID), func(ctx context.Context) (*model.Profile, error) {
		return s.repo.GetProfile(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("service/profile: %w", err)
	}
	return p, nil
}

// Update writes the text fields, inserting the row if it does not exist yet.
func (s *ProfileService) Update(ctx context.Context, userID string, in ProfileInput) (*model.Profile, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" {
		return nil, apperror.Required("username")
	}

	p, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (*model.Profile, error) {
		p := &model.Profile{ID: userID, Username: in.Username, FullName: in.FullName, Bio: in.Bio}
		exists, err := s.repo.ProfileExists(ctx, userID)
		if err != nil {
			return nil, err
		}
		if exists {
			return p, s.repo.UpdateProfile(ctx, p)
		}
		p.Theme = model.DefaultTheme
		return p, s.repo.InsertProfile(ctx, p)
	}, s.invalidates(userID)...)
	if err != nil {
		s.logger.Error("failed to update profile", slog.String("user", userID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/profile: updating %s: %w", userID, err)
	}

	s.logger.Info("profile updated", slog.String("user", userID))
	return p, nil
}

// SetTheme stores the theme remotely. The handler also mirrors it into the
// theme cookie so the next page renders in it before the profile loads.
func (s *ProfileService) SetTheme(ctx context.Context, userID, theme string) (model.Theme, error) {
	t, ok := model.ParseTheme(theme)
	if !ok {
		return "", apperror.ValidationFailed("theme", fmt.Sprintf("unknown theme %q", theme))
	}

	_, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (struct{}, error) {
		if err := s.ensure(ctx, userID); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.repo.UpdateTheme(ctx, userID, t)
	}, profileKey(userID))
	if err != nil {
		s.logger.Error("failed to set theme", slog.String("user", userID), slog.String("error", err.Error()))
		return "", fmt.Errorf("service/profile: setting theme for %s: %w", userID, err)
	}
	return t, nil
}

// SetAvatar is a two-step write: make sure the profile row exists, then set
// the avatar. If the first step fails the second is not attempted.
func (s *ProfileService) SetAvatar(ctx context.Context, userID, avatarURL string) error {
	avatarURL = strings.TrimSpace(avatarURL)
	if avatarURL == "" {
		return apperror.Required("avatarUrl")
	}

	_, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (struct{}, error) {
		if err := s.ensure(ctx, userID); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.repo.UpdateAvatar(ctx, userID, avatarURL)
	}, s.invalidates(userID)...)
	if err != nil {
		s.logger.Error("failed to set avatar", slog.String("user", userID), slog.String("error", err.Error()))
		return fmt.Errorf("service/profile: setting avatar for %s: %w", userID, err)
	}
	return nil
}

// ensure inserts an empty profile row for userID if there is none.
func (s *ProfileService) ensure(ctx context.Context, userID string) error {
	exists, err := s.repo.ProfileExists(ctx, userID)
	if err != nil || exists {
		return err
	}
	return s.repo.InsertProfile(ctx, &model.Profile{ID: userID, Theme: model.DefaultTheme})
}

// invalidates covers every read that shows a username or avatar.
func (s *ProfileService) invalidates(userID string) []query.Key {
	return []query.Key{profileKey(userID), allFollowStats, allMessages}
}
