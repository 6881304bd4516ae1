package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gotogrow/portal/internal/ids"
	"gotogrow/portal/internal/models"
	"gotogrow/portal/internal/repository"
)

const progressCacheTTL = 5 * time.Minute

// ProgressService reads level completion through a redis cache; writes go to
// the store and invalidate the cached list.
type ProgressService struct {
	progress repository.ProgressStore
	cache    *redis.Client
	log      zerolog.Logger
}

func NewProgressService(progress repository.ProgressStore, cache *redis.Client, log zerolog.Logger) *ProgressService {
	return &ProgressService{progress: progress, cache: cache, log: log}
}

func (s *ProgressService) Complete(ctx context.Context, userID string, levelID string, score int) error {
	record := models.LevelProgress{
		ID:          ids.New(),
		UserID:      userID,
		LevelID:     levelID,
		Score:       score,
		CompletedAt: time.Now(),
	}
	if err := s.progress.Upsert(ctx, record); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, s.cacheKey(userID)).Err(); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("progress cache invalidation failed")
		}
	}
	return nil
}

func (s *ProgressService) ListByUser(ctx context.Context, userID string) ([]models.LevelProgress, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, s.cacheKey(userID)).Bytes(); err == nil {
			var records []models.LevelProgress
			if err := json.Unmarshal(raw, &records); err == nil {
				return records, nil
			}
		}
	}

	records, err := s.progress.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(records); err == nil {
			if err := s.cache.Set(ctx, s.cacheKey(userID), raw, progressCacheTTL).Err(); err != nil {
				s.log.Warn().Err(err).Str("user_id", userID).Msg("progress cache write failed")
			}
		}
	}
	return records, nil
}

func (s *ProgressService) cacheKey(userID string) string {
	return "portal:progress:" + userID
}
