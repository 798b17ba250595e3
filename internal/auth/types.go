package auth

import (
	"strings"
	"time"
)

// Role is the coarse authorization level carried in access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole normalizes r and reports whether it names a known role.
func ParseRole(r string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(r))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity is the public projection of a user.
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          Role   `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

// User is the stored account record.
type User struct {
	Identity
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserUpdate carries the mutable user fields; nil means unchanged.
type UserUpdate struct {
	Name          *string
	Role          *Role
	EmailVerified *bool
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Role == nil && u.EmailVerified == nil
}

// RefreshSession is the server-side record of an issued refresh token.
// ID equals the token's jti.
type RefreshSession struct {
	ID         string
	UserID     string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ConsumedAt *time.Time
	RevokedAt  *time.Time
	IP         string
	UserAgent  string
}

// ClientMeta describes the caller of an auth operation.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Grant is the result of a successful login, registration or refresh.
type Grant struct {
	User             Identity
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}
