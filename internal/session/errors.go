package session

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoRefreshToken   = errors.New("no refresh token")
	ErrPasswordMismatch = errors.New("new password and confirmation do not match")
	ErrNoUser           = errors.New("no user in session")
)

// AuthError is returned when the backend rejects credentials.
type AuthError struct {
	Op      string // login, refresh, change-password
	Message string // safe to show the user
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// LogoutResult reports both halves of a logout. The local teardown always
// happens; telling the backend is best effort.
type LogoutResult struct {
	LocalCleared    bool
	RemoteAttempted bool

	// RemoteErr is the failure from the backend logout call, if any. It is
	// never a reason to consider the logout failed.
	RemoteErr error

	// StorageErr is set when durable storage could not be wiped.
	StorageErr error
}

// RemoteNotified reports whether the backend acknowledged the logout.
func (r LogoutResult) RemoteNotified() bool {
	return r.RemoteAttempted && r.RemoteErr == nil
}
