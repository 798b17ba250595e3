package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordBytes  = 72 // bcrypt ignores anything longer
	passwordCost      = bcrypt.DefaultCost
)

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	switch {
	case password == "":
		return "", invalid("password", "password is required")
	case len(password) > maxPasswordBytes:
		return "", invalid("password", "password is too long")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports ErrInvalidCredentials unless password matches hash.
// A missing hash (account without a password) never matches.
func VerifyPassword(hash, password string) error {
	if hash == "" || password == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}

var (
	decoyOnce sync.Once
	decoyHash string
)

// decoyPasswordHash is what Login compares the password against when no
// account matches the email.
func decoyPasswordHash() string {
	decoyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("tov-decoy-password"), passwordCost)
		if err == nil {
			decoyHash = string(h)
		}
	})
	return decoyHash
}
