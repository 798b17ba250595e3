package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryUserStore keeps users in process memory. It backs local runs without
// a database.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryUserStore returns an empty store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (m *MemoryUserStore) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	id, ok := m.byEmail[normalizeEmail(email)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.FindByID(ctx, id)
}

func (m *MemoryUserStore) Create(_ context.Context, u *User) error {
	if u == nil || u.ID == "" {
		return errors.New("user id is required")
	}
	email := normalizeEmail(u.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.byEmail[email]; ok {
		return ErrConflict
	}
	now := m.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	m.byID[u.ID] = *u
	m.byEmail[email] = u.ID
	return nil
}

func (m *MemoryUserStore) Update(_ context.Context, id string, upd UserUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.EmailVerified != nil {
		u.EmailVerified = *upd.EmailVerified
	}
	u.UpdatedAt = m.now().UTC()
	m.byID[id] = u
	return &u, nil
}

func (m *MemoryUserStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.deleteLocked(id) {
		return ErrNotFound
	}
	return nil
}

func (m *MemoryUserStore) DeleteMany(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if m.deleteLocked(id) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryUserStore) deleteLocked(id string) bool {
	u, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byID, id)
	delete(m.byEmail, normalizeEmail(u.Email))
	return true
}
