package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemorySessionStore keeps refresh sessions in process memory.
// It suits development and single-instance deployments.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]RefreshSession
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemorySessionStore builds the store. A positive gcInterval starts a
// background loop pruning expired sessions until Close is called.
func NewMemorySessionStore(gcInterval time.Duration, now func() time.Time) *MemorySessionStore {
	if now == nil {
		now = time.Now
	}
	s := &MemorySessionStore{
		sessions: make(map[string]RefreshSession),
		now:      now,
		stop:     make(chan struct{}),
	}
	if gcInterval > 0 {
		go s.gcLoop(gcInterval)
	}
	return s
}

func (s *MemorySessionStore) gcLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.CleanupExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *MemorySessionStore) Create(_ context.Context, sess *RefreshSession) error {
	if sess == nil || sess.ID == "" || sess.UserID == "" {
		return errors.New("session id and user id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrConflict
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *MemorySessionStore) Consume(_ context.Context, id string) (*RefreshSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.RevokedAt != nil {
		return nil, ErrNotFound
	}
	if sess.ConsumedAt != nil {
		return nil, ErrReplayDetected
	}
	now := s.now().UTC()
	if !now.Before(sess.ExpiresAt) {
		return nil, ErrNotFound
	}
	sess.ConsumedAt = &now
	s.sessions[id] = sess
	out := sess
	return &out, nil
}

func (s *MemorySessionStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if sess.RevokedAt == nil {
		now := s.now().UTC()
		sess.RevokedAt = &now
		s.sessions[id] = sess
	}
	return nil
}

func (s *MemorySessionStore) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for id, sess := range s.sessions {
		if sess.UserID != userID || sess.RevokedAt != nil {
			continue
		}
		sess.RevokedAt = &now
		s.sessions[id] = sess
	}
	return nil
}

// CleanupExpired drops sessions past their expiry.
func (s *MemorySessionStore) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}

// Close stops the gc loop.
func (s *MemorySessionStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}
