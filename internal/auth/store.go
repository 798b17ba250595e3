package auth

import "context"

// UserStore is the identity collaborator consumed by the auth core.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (int64, error)
}

// SessionStore tracks refresh sessions so each refresh token is redeemable once.
type SessionStore interface {
	Create(ctx context.Context, sess *RefreshSession) error
	// Consume marks the session used and returns it. It fails with ErrNotFound for
	// unknown, expired or revoked sessions and ErrReplayDetected for consumed ones.
	Consume(ctx context.Context, id string) (*RefreshSession, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}
