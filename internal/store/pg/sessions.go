package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
)

var _ auth.SessionStore = (*SessionStore)(nil)

// SessionStore implements auth.SessionStore over refresh_sessions.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *SessionStore) Create(ctx context.Context, sess *auth.RefreshSession) error {
	if sess == nil || sess.ID == "" || sess.UserID == "" {
		return errors.New("session id and user id are required")
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_sessions (id, user_id, expires_at, created_at, ip, user_agent)
		values ($1, $2, $3, $4, $5, $6)
	`, sess.ID, sess.UserID, sess.ExpiresAt, sess.CreatedAt, nullIfEmpty(sess.IP), nullIfEmpty(sess.UserAgent))
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

// Consume claims the session with a single conditional update so concurrent
// redemptions of one token cannot both succeed.
func (s *SessionStore) Consume(ctx context.Context, id string) (*auth.RefreshSession, error) {
	now := s.now().UTC()
	var (
		sess     auth.RefreshSession
		consumed sql.NullTime
		ip, ua   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		update refresh_sessions
		set consumed_at = $2
		where id = $1 and consumed_at is null and revoked_at is null and expires_at > $2
		returning id, user_id, expires_at, created_at, consumed_at, ip, user_agent
	`, id, now).Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt, &consumed, &ip, &ua)
	if err == nil {
		if consumed.Valid {
			sess.ConsumedAt = &consumed.Time
		}
		sess.IP, sess.UserAgent = ip.String, ua.String
		return &sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var revoked sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		select consumed_at, revoked_at from refresh_sessions where id = $1
	`, id).Scan(&consumed, &revoked)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, auth.ErrNotFound
	case err != nil:
		return nil, err
	case revoked.Valid:
		return nil, auth.ErrNotFound
	case consumed.Valid:
		return nil, auth.ErrReplayDetected
	default:
		return nil, auth.ErrNotFound
	}
}

func (s *SessionStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update refresh_sessions set revoked_at = coalesce(revoked_at, $2) where id = $1
	`, id, s.now().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_sessions set revoked_at = $2 where user_id = $1 and revoked_at is null
	`, userID, s.now().UTC())
	return err
}

// DeleteExpired removes sessions that expired before cutoff.
func (s *SessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from refresh_sessions where expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
