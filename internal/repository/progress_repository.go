package repository

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gotogrow/portal/internal/models"
)

// ProgressStore persists level-completion records.
type ProgressStore interface {
	Upsert(ctx context.Context, progress models.LevelProgress) error
	ListByUser(ctx context.Context, userID string) ([]models.LevelProgress, error)
}

type ProgressRepository struct {
	collection *mongo.Collection
}

func NewProgressRepository(collection *mongo.Collection) *ProgressRepository {
	return &ProgressRepository{collection: collection}
}

// Upsert keeps the best score per (user, level).
func (r *ProgressRepository) Upsert(ctx context.Context, progress models.LevelProgress) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": progress.UserID, "level_id": progress.LevelID},
		bson.M{
			"$max":         bson.M{"score": progress.Score},
			"$set":         bson.M{"completed_at": progress.CompletedAt},
			"$setOnInsert": bson.M{"_id": progress.ID},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *ProgressRepository) ListByUser(ctx context.Context, userID string) ([]models.LevelProgress, error) {
	cursor, err := r.collection.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "completed_at", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []models.LevelProgress
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// MemoryProgressRepository backs tests.
type MemoryProgressRepository struct {
	mu      sync.RWMutex
	records map[string]models.LevelProgress // keyed user_id + "/" + level_id
}

func NewMemoryProgressRepository() *MemoryProgressRepository {
	return &MemoryProgressRepository{records: make(map[string]models.LevelProgress)}
}

func (m *MemoryProgressRepository) Upsert(_ context.Context, progress models.LevelProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := progress.UserID + "/" + progress.LevelID
	if existing, ok := m.records[key]; ok {
		if existing.Score > progress.Score {
			progress.Score = existing.Score
		}
		progress.ID = existing.ID
	}
	if progress.CompletedAt.IsZero() {
		progress.CompletedAt = time.Now()
	}
	m.records[key] = progress
	return nil
}

func (m *MemoryProgressRepository) ListByUser(_ context.Context, userID string) ([]models.LevelProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []models.LevelProgress
	for _, record := range m.records {
		if record.UserID == userID {
			records = append(records, record)
		}
	}
	return records, nil
}
