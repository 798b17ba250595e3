package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c-f-an/tov-nextjs-sub002/internal/obs"
)

const (
	defaultIssuer     = "tov"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenClass separates access credentials from refresh credentials.
type TokenClass string

const (
	ClassAccess  TokenClass = "access"
	ClassRefresh TokenClass = "refresh"
)

// Claims is the verified payload of either token class. The set of
// implementations is closed: AccessClaims and RefreshClaims.
type Claims interface {
	Class() TokenClass
	Subject() string
	Expiry() time.Time
	isClaims()
}

// AccessClaims is the payload of a verified access token.
type AccessClaims struct {
	SubjectID string
	Role      Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (AccessClaims) Class() TokenClass   { return ClassAccess }
func (c AccessClaims) Subject() string   { return c.SubjectID }
func (c AccessClaims) Expiry() time.Time { return c.ExpiresAt }
func (AccessClaims) isClaims()           {}

// RefreshClaims is the payload of a verified refresh token.
type RefreshClaims struct {
	SubjectID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (RefreshClaims) Class() TokenClass   { return ClassRefresh }
func (c RefreshClaims) Subject() string   { return c.SubjectID }
func (c RefreshClaims) Expiry() time.Time { return c.ExpiresAt }
func (RefreshClaims) isClaims()           {}

// wireClaims is the JWT body shared by both classes.
type wireClaims struct {
	TokenType TokenClass `json:"token_type"`
	Role      Role       `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type classKey struct {
	secret []byte
	ttl    time.Duration
}

// Tokens signs and verifies access and refresh tokens with disjoint HS256 secrets.
// It performs no I/O and holds no mutable state after construction.
type Tokens struct {
	access  classKey
	refresh classKey
	issuer  string
	now     func() time.Time
	metrics *prometheus.CounterVec
}

// TokenOption configures Tokens.
type TokenOption func(*Tokens) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(t *Tokens) error {
		if ttl > 0 {
			t.access.ttl = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(t *Tokens) error {
		if ttl > 0 {
			t.refresh.ttl = ttl
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(t *Tokens) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			t.issuer = issuer
		}
		return nil
	}
}

// WithTokenClock overrides time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(t *Tokens) error {
		if fn != nil {
			t.now = fn
		}
		return nil
	}
}

// NewTokens constructs the token service. The secrets must be non-empty and
// distinct, and the access lifetime must be shorter than the refresh lifetime.
func NewTokens(accessSecret, refreshSecret string, opts ...TokenOption) (*Tokens, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	t := &Tokens{
		access:  classKey{secret: []byte(accessSecret), ttl: defaultAccessTTL},
		refresh: classKey{secret: []byte(refreshSecret), ttl: defaultRefreshTTL},
		issuer:  defaultIssuer,
		now:     time.Now,
		metrics: obs.TokenVerifications,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if t.access.ttl >= t.refresh.ttl {
		return nil, errors.New("auth: access token lifetime must be shorter than refresh token lifetime")
	}
	return t, nil
}

// AccessTTL returns the configured access token lifetime.
func (t *Tokens) AccessTTL() time.Duration { return t.access.ttl }

// RefreshTTL returns the configured refresh token lifetime.
func (t *Tokens) RefreshTTL() time.Duration { return t.refresh.ttl }

// IssueAccess signs a short-lived access token for id.
func (t *Tokens) IssueAccess(id Identity) (string, AccessClaims, error) {
	if strings.TrimSpace(id.ID) == "" {
		return "", AccessClaims{}, errors.New("auth: identity id is required")
	}
	if !id.Role.Valid() {
		return "", AccessClaims{}, errors.New("auth: identity role is invalid")
	}
	signed, rc, err := t.sign(ClassAccess, id.ID, id.Role)
	if err != nil {
		return "", AccessClaims{}, err
	}
	return signed, AccessClaims{
		SubjectID: rc.Subject,
		Role:      id.Role,
		TokenID:   rc.ID,
		IssuedAt:  rc.IssuedAt.Time,
		ExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

// IssueRefresh signs a long-lived refresh token for id.
func (t *Tokens) IssueRefresh(id Identity) (string, RefreshClaims, error) {
	if strings.TrimSpace(id.ID) == "" {
		return "", RefreshClaims{}, errors.New("auth: identity id is required")
	}
	signed, rc, err := t.sign(ClassRefresh, id.ID, "")
	if err != nil {
		return "", RefreshClaims{}, err
	}
	return signed, RefreshClaims{
		SubjectID: rc.Subject,
		TokenID:   rc.ID,
		IssuedAt:  rc.IssuedAt.Time,
		ExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

func (t *Tokens) sign(class TokenClass, subject string, role Role) (string, jwt.RegisteredClaims, error) {
	key, ok := t.key(class)
	if !ok {
		return "", jwt.RegisteredClaims{}, errors.New("auth: unknown token class")
	}
	now := t.now()
	claims := wireClaims{
		TokenType: class,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(key.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.secret)
	if err != nil {
		return "", jwt.RegisteredClaims{}, err
	}
	return signed, claims.RegisteredClaims, nil
}

// Verify checks token against the secret of the expected class. It fails with
// ErrMalformed, ErrBadSignature or ErrExpired and never returns partial claims.
func (t *Tokens) Verify(token string, expected TokenClass) (Claims, error) {
	wc, err := t.parse(token, expected)
	t.observe(expected, err)
	if err != nil {
		return nil, err
	}
	switch expected {
	case ClassAccess:
		return AccessClaims{
			SubjectID: wc.Subject,
			Role:      wc.Role,
			TokenID:   wc.ID,
			IssuedAt:  wc.IssuedAt.Time,
			ExpiresAt: wc.ExpiresAt.Time,
		}, nil
	default:
		return RefreshClaims{
			SubjectID: wc.Subject,
			TokenID:   wc.ID,
			IssuedAt:  wc.IssuedAt.Time,
			ExpiresAt: wc.ExpiresAt.Time,
		}, nil
	}
}

// VerifyAccess verifies an access token.
func (t *Tokens) VerifyAccess(token string) (AccessClaims, error) {
	c, err := t.Verify(token, ClassAccess)
	if err != nil {
		return AccessClaims{}, err
	}
	return c.(AccessClaims), nil
}

// VerifyRefresh verifies a refresh token.
func (t *Tokens) VerifyRefresh(token string) (RefreshClaims, error) {
	c, err := t.Verify(token, ClassRefresh)
	if err != nil {
		return RefreshClaims{}, err
	}
	return c.(RefreshClaims), nil
}

func (t *Tokens) key(class TokenClass) (classKey, bool) {
	switch class {
	case ClassAccess:
		return t.access, true
	case ClassRefresh:
		return t.refresh, true
	default:
		return classKey{}, false
	}
}

func (t *Tokens) parse(raw string, class TokenClass) (*wireClaims, error) {
	key, ok := t.key(class)
	if !ok {
		return nil, ErrMalformed
	}
	raw = strings.TrimSpace(raw)
	segments := strings.Split(raw, ".")
	if len(segments) != 3 || segments[0] == "" || segments[1] == "" {
		return nil, ErrMalformed
	}
	sig, err := base64.RawURLEncoding.DecodeString(segments[2])
	if err != nil {
		return nil, ErrMalformed
	}
	// Signature first: a tampered or foreign-class token must never reach claim decoding.
	if err := jwt.SigningMethodHS256.Verify(segments[0]+"."+segments[1], sig, key.secret); err != nil {
		return nil, ErrBadSignature
	}

	var claims wireClaims
	_, err = jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return key.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(t.issuer),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrBadSignature
	default:
		return nil, ErrMalformed
	}
	if claims.TokenType != class {
		return nil, ErrBadSignature
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil || claims.ID == "" {
		return nil, ErrMalformed
	}
	if class == ClassAccess && !claims.Role.Valid() {
		return nil, ErrMalformed
	}
	return &claims, nil
}

func (t *Tokens) observe(class TokenClass, err error) {
	if t.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrExpired):
		result = "expired"
	case errors.Is(err, ErrBadSignature):
		result = "bad_signature"
	default:
		result = "malformed"
	}
	t.metrics.WithLabelValues(string(class), result).Inc()
}
