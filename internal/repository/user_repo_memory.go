package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"gotogrow/portal/internal/models"
)

// MemoryUserRepository is an in-process UserStore used by tests and local
// development without a MongoDB instance.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User)}
}

func (m *MemoryUserRepository) Create(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return ErrUserExists
		}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = user
	return nil
}

func (m *MemoryUserRepository) GetByID(_ context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return models.User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *MemoryUserRepository) FindByEmail(_ context.Context, email string) (models.User, error) {
	return m.find(func(u models.User) bool { return u.Email == email })
}

func (m *MemoryUserRepository) FindByUsername(_ context.Context, username string) (models.User, error) {
	return m.find(func(u models.User) bool { return u.Username == username })
}

func (m *MemoryUserRepository) find(match func(models.User) bool) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if match(user) {
			return user, nil
		}
	}
	return models.User{}, ErrUserNotFound
}

func (m *MemoryUserRepository) TouchLogin(_ context.Context, id string, at time.Time) error {
	return m.update(id, func(u *models.User) { u.LastLoginAt = at })
}

func (m *MemoryUserRepository) SetResetToken(_ context.Context, id string, tokenHash []byte, expire time.Time) error {
	return m.update(id, func(u *models.User) {
		u.ResetTokenHash = tokenHash
		u.ResetTokenExpire = &expire
	})
}

func (m *MemoryUserRepository) FindByResetTokenHash(_ context.Context, tokenHash []byte) (models.User, error) {
	now := time.Now()
	return m.find(func(u models.User) bool {
		return resetTokenMatches(u.ResetTokenHash, tokenHash, u.ResetTokenExpire, now)
	})
}

func (m *MemoryUserRepository) UpdatePassword(_ context.Context, id string, passwordHash []byte) error {
	return m.update(id, func(u *models.User) {
		u.PasswordHash = passwordHash
		u.ResetTokenHash = nil
		u.ResetTokenExpire = nil
	})
}

func (m *MemoryUserRepository) SetCharacter(_ context.Context, id string, character string, observedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if user.Version != observedVersion {
		return ErrVersionConflict
	}
	user.HasCharacter = true
	user.Character = character
	user.Version++
	user.UpdatedAt = time.Now()
	m.users[id] = user
	return nil
}

func (m *MemoryUserRepository) PurgeExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged int64
	for id, user := range m.users {
		if user.ResetTokenExpire != nil && !user.ResetTokenExpire.After(now) {
			user.ResetTokenHash = nil
			user.ResetTokenExpire = nil
			m.users[id] = user
			purged++
		}
	}
	return purged, nil
}

func (m *MemoryUserRepository) List(_ context.Context, limit, offset int) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]models.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })

	if offset >= len(users) {
		return nil, nil
	}
	users = users[offset:]
	if limit > 0 && limit < len(users) {
		users = users[:limit]
	}
	return users, nil
}

func (m *MemoryUserRepository) update(id string, apply func(*models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	apply(&user)
	user.UpdatedAt = time.Now()
	m.users[id] = user
	return nil
}
