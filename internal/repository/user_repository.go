package repository

import (
	"bytes"
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gotogrow/portal/internal/models"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrVersionConflict = errors.New("user document version conflict")
)

// UserStore is the credential store consumed by the auth service and the
// session layer. Backed by MongoDB in production and by MemoryUserRepository
// in tests.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	SetResetToken(ctx context.Context, id string, tokenHash []byte, expire time.Time) error
	FindByResetTokenHash(ctx context.Context, tokenHash []byte) (models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error
	SetCharacter(ctx context.Context, id string, character string, observedVersion int64) error
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(collection *mongo.Collection) *UserRepository {
	return &UserRepository{collection: collection}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrUserExists
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *UserRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"last_login_at": at, "updated_at": time.Now()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetResetToken(ctx context.Context, id string, tokenHash []byte, expire time.Time) error {
	res, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"reset_token_hash":   tokenHash,
			"reset_token_expire": expire,
			"updated_at":         time.Now(),
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) FindByResetTokenHash(ctx context.Context, tokenHash []byte) (models.User, error) {
	return r.findOne(ctx, bson.M{
		"reset_token_hash":   tokenHash,
		"reset_token_expire": bson.M{"$gt": time.Now()},
	})
}

// UpdatePassword stores the new hash and clears any active reset flow so a
// consumed token cannot be replayed.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	res, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$set":   bson.M{"password_hash": passwordHash, "updated_at": time.Now()},
		"$unset": bson.M{"reset_token_hash": "", "reset_token_expire": ""},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetCharacter marks the persona chosen. The filter carries the version the
// caller observed; a concurrent update bumps it and the write reports
// ErrVersionConflict instead of clobbering.
func (r *UserRepository) SetCharacter(ctx context.Context, id string, character string, observedVersion int64) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "version": observedVersion},
		bson.M{
			"$set": bson.M{
				"has_character": true,
				"character":     character,
				"updated_at":    time.Now(),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *UserRepository) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.UpdateMany(ctx,
		bson.M{"reset_token_expire": bson.M{"$lte": now}},
		bson.M{"$unset": bson.M{"reset_token_hash": "", "reset_token_expire": ""}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// resetTokenMatches is shared with the memory repository so both backends
// compare hashes the same way.
func resetTokenMatches(stored, candidate []byte, expire *time.Time, now time.Time) bool {
	if len(stored) == 0 || expire == nil {
		return false
	}
	return expire.After(now) && bytes.Equal(stored, candidate)
}
