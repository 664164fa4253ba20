package service

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/readrealm/internal/apperror"
	"github.com/sakif/readrealm/internal/model"
	"github.com/sakif/readrealm/internal/query"
	"github.com/sakif/readrealm/internal/repository"
)

type FollowService struct {
	repo   repository.FollowRepository
	cache  *query.Client
	logger *slog.Logger
	locks  *keyedMutex
}

func NewFollowService(repo repository.FollowRepository, cache *query.Client, logger *slog.Logger) *FollowService {
	return &FollowService{repo: repo, cache: cache, logger: logger, locks: newKeyedMutex()}
}

// IsFollowing reports whether viewerID follows targetID.
func (s *FollowService) IsFollowing(ctx context.Context, viewerID, targetID string) (bool, error) {
	if targetID == "" {
		return false, apperror.Required("user id")
	}
	if viewerID == "" || viewerID == targetID {
		return false, nil
	}

	ok, err := query.Query(ctx, s.cache, followingKey(targetID, viewerID), func(ctx context.Context) (bool, error) {
		return s.repo.FollowExists(ctx, viewerID, targetID)
	})
	if err != nil {
		return false, fmt.Errorf("service/follow: probing %s -> %s: %w", viewerID, targetID, err)
	}
	return ok, nil
}

// Stats returns both sides of userID's follow graph. The four scans are
// independent and run concurrently.
func (s *FollowService) Stats(ctx context.Context, userID string) (model.FollowStats, error) {
	if userID == "" {
		return model.FollowStats{}, apperror.Required("user id")
	}

	stats, err := query.Query(ctx, s.cache, followStatsKey(userID), func(ctx context.Context) (model.FollowStats, error) {
		return s.loadStats(ctx, userID)
	})
	if err != nil {
		return model.FollowStats{}, fmt.Errorf("service/follow: stats for %s: %w", userID, err)
	}
	return stats, nil
}

func (s *FollowService) loadStats(ctx context.Context, userID string) (model.FollowStats, error) {
	stats := model.FollowStats{UserID: userID}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.Followers, err = s.repo.ListFollowers(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		stats.Following, err = s.repo.ListFollowing(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		stats.FollowersCount, err = s.repo.CountFollowers(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		stats.FollowingCount, err = s.repo.CountFollowing(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.FollowStats{}, err
	}

	if stats.Followers == nil {
		stats.Followers = []model.FollowUser{}
	}
	if stats.Following == nil {
		stats.Following = []model.FollowUser{}
	}
	return stats, nil
}

// Toggle follows targetID if viewerID does not follow them yet and unfollows
// otherwise. It returns the new state. Toggles for the same pair are applied
// one at a time, so repeated calls strictly alternate.
func (s *FollowService) Toggle(ctx context.Context, viewerID, targetID string) (bool, error) {
	if targetID == "" {
		return false, apperror.Required("user id")
	}
	if viewerID == targetID {
		return false, apperror.ValidationFailed("user id", "you cannot follow yourself")
	}

	unlock := s.locks.Lock(viewerID + "\x00" + targetID)
	defer unlock()

	following, err := query.Mutate(ctx, s.cache, func(ctx context.Context) (bool, error) {
		exists, err := s.repo.FollowExists(ctx, viewerID, targetID)
		if err != nil {
			return false, err
		}
		if exists {
			return false, s.repo.DeleteFollow(ctx, viewerID, targetID)
		}
		return true, s.repo.InsertFollow(ctx, viewerID, targetID)
	}, query.Key{"following", targetID}, followStatsKey(targetID), followStatsKey(viewerID))
	if err != nil {
		s.logger.Error("failed to toggle follow",
			slog.String("follower", viewerID),
			slog.String("following", targetID),
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("service/follow: toggling %s -> %s: %w", viewerID, targetID, err)
	}
	s.cache.SetData(followingKey(targetID, viewerID), following)

	s.logger.Info("follow toggled",
		slog.String("follower", viewerID),
		slog.String("following", targetID),
		slog.Bool("now_following", following),
	)
	return following, nil
}
