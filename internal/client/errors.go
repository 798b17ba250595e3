package client

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired reports that the session could not be renewed and has been cleared.
	ErrSessionExpired = errors.New("client: session expired")
	// ErrNotAuthenticated reports an authenticated call attempted without a session.
	ErrNotAuthenticated = errors.New("client: not authenticated")
)

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status    int
	Message   string
	Field     string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api error %d: %s (%s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}
