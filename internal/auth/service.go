package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/c-f-an/tov-nextjs-sub002/internal/ids"
	"github.com/c-f-an/tov-nextjs-sub002/internal/obs"
)

// Service drives the credential lifecycle: login, registration, refresh
// rotation and logout, plus the user administration used by privileged routes.
type Service struct {
	users         UserStore
	sessions      SessionStore
	tokens        *Tokens
	verify        func(hash, password string) error
	now           func() time.Time
	logger        *zap.Logger
	refreshMetric *prometheus.CounterVec
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithLogger sets the logger used for security-relevant events.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(users UserStore, sessions SessionStore, tokens *Tokens, opts ...ServiceOption) (*Service, error) {
	if users == nil || sessions == nil || tokens == nil {
		return nil, errors.New("auth: users, sessions and tokens are required")
	}
	svc := &Service{
		users:         users,
		sessions:      sessions,
		tokens:        tokens,
		verify:        VerifyPassword,
		now:           time.Now,
		logger:        zap.NewNop(),
		refreshMetric: obs.RefreshTotal,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Tokens exposes the token service used for request verification.
func (s *Service) Tokens() *Tokens { return s.tokens }

// Login verifies credentials and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string, meta ClientMeta) (Grant, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Grant{}, invalid("email", "email is required")
	}
	if password == "" {
		return Grant{}, invalid("password", "password is required")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = s.verify(decoyPasswordHash(), password)
			return Grant{}, ErrInvalidCredentials
		}
		return Grant{}, fmt.Errorf("find user: %w", err)
	}
	if err := s.verify(user.PasswordHash, password); err != nil {
		return Grant{}, ErrInvalidCredentials
	}
	return s.grant(ctx, user.Identity, meta)
}

// Register validates input, creates a USER account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta ClientMeta) (Grant, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return Grant{}, invalid("email", "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Grant{}, invalid("email", "email is not valid")
	}
	if len(in.Password) < minPasswordLength {
		return Grant{}, invalid("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Grant{}, invalid("name", "name is required")
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return Grant{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &User{
		Identity: Identity{
			ID:    ids.New(),
			Email: email,
			Name:  name,
			Role:  RoleUser,
		},
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return Grant{}, fmt.Errorf("%w: email is already registered", ErrConflict)
		}
		return Grant{}, fmt.Errorf("create user: %w", err)
	}
	return s.grant(ctx, user.Identity, meta)
}

// Refresh redeems a refresh token exactly once and issues a new pair. Presenting
// an already-redeemed token revokes every refresh session of its subject.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (Grant, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.countRefresh("invalid")
		return Grant{}, err
	}
	sess, err := s.sessions.Consume(ctx, claims.TokenID)
	switch {
	case err == nil:
	case errors.Is(err, ErrReplayDetected):
		s.countRefresh("replay")
		s.logger.Warn("refresh token replay detected; revoking sessions",
			zap.String("user_id", claims.SubjectID),
			zap.String("session_id", claims.TokenID),
			zap.String("ip", meta.IP),
		)
		if rerr := s.sessions.RevokeAllForUser(ctx, claims.SubjectID); rerr != nil {
			s.logger.Error("revoke sessions after replay", zap.String("user_id", claims.SubjectID), zap.Error(rerr))
		}
		return Grant{}, ErrReplayDetected
	case errors.Is(err, ErrNotFound):
		s.countRefresh("unknown_session")
		return Grant{}, ErrInvalidToken
	default:
		s.countRefresh("error")
		return Grant{}, fmt.Errorf("consume refresh session: %w", err)
	}
	if sess.UserID != claims.SubjectID {
		s.countRefresh("invalid")
		return Grant{}, ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.countRefresh("unknown_user")
			return Grant{}, ErrInvalidToken
		}
		s.countRefresh("error")
		return Grant{}, fmt.Errorf("find user: %w", err)
	}
	grant, err := s.grant(ctx, user.Identity, meta)
	if err != nil {
		s.countRefresh("error")
		return Grant{}, err
	}
	s.countRefresh("ok")
	return grant, nil
}

// Logout revokes the refresh session behind refreshToken. Unknown or invalid
// tokens are ignored so logout is always safe to repeat.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, claims.TokenID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// Authenticate verifies an access token and returns its principal.
func (s *Service) Authenticate(token string) (Principal, error) {
	claims, err := s.tokens.VerifyAccess(token)
	if err != nil {
		return Principal{}, err
	}
	return PrincipalFromClaims(claims), nil
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalid("id", "user id is required")
	}
	return s.users.FindByID(ctx, id)
}

// UpdateUser applies upd and returns the record before and after the change.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (before, after *User, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, invalid("id", "user id is required")
	}
	if upd.Empty() {
		return nil, nil, invalid("body", "no fields to update")
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, nil, invalid("name", "name must not be empty")
		}
		upd.Name = &name
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, nil, invalid("role", "role must be USER or ADMIN")
	}
	before, err = s.users.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	after, err = s.users.Update(ctx, id, upd)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// DeleteUser removes a user and revokes their refresh sessions.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalid("id", "user id is required")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.revokeQuietly(ctx, id)
	return nil
}

// DeleteUsers removes every listed user and returns how many existed.
func (s *Service) DeleteUsers(ctx context.Context, userIDs []string) (int64, error) {
	cleaned := dedupe(userIDs)
	if len(cleaned) == 0 {
		return 0, invalid("ids", "at least one user id is required")
	}
	n, err := s.users.DeleteMany(ctx, cleaned)
	if err != nil {
		return 0, err
	}
	for _, id := range cleaned {
		s.revokeQuietly(ctx, id)
	}
	return n, nil
}

func (s *Service) revokeQuietly(ctx context.Context, userID string) {
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.Error("revoke sessions for deleted user", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) grant(ctx context.Context, id Identity, meta ClientMeta) (Grant, error) {
	access, ac, err := s.tokens.IssueAccess(id)
	if err != nil {
		return Grant{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, rc, err := s.tokens.IssueRefresh(id)
	if err != nil {
		return Grant{}, fmt.Errorf("issue refresh token: %w", err)
	}
	sess := &RefreshSession{
		ID:        rc.TokenID,
		UserID:    id.ID,
		ExpiresAt: rc.ExpiresAt,
		CreatedAt: s.now().UTC(),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return Grant{}, fmt.Errorf("store refresh session: %w", err)
	}
	return Grant{
		User:             id,
		AccessToken:      access,
		AccessExpiresAt:  ac.ExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: rc.ExpiresAt,
	}, nil
}

func (s *Service) countRefresh(result string) {
	if s.refreshMetric != nil {
		s.refreshMetric.WithLabelValues(result).Inc()
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
