package session

import (
	"context"

	"github.com/wolfeidau/eddits-console/internal/gateway"
	"github.com/wolfeidau/eddits-console/internal/models"
)

// Backend endpoints used by the session manager.
const (
	pathLogin          = "/auth/login/"
	pathLogout         = "/auth/logout/"
	pathRefresh        = "/auth/token/refresh/"
	pathUser           = "/auth/user/"
	pathChangePassword = "/auth/change-password/"
)

// API sends calls to the backend. *gateway.Gateway satisfies it.
type API interface {
	Do(ctx context.Context, call gateway.Call) error
}

// Credentials are what the user supplies to log in.
type Credentials struct {
	Username   string
	Password   string
	RememberMe bool
}

// PasswordChange is the change password form.
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type loginResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    models.User `json:"user"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"` // present when the backend rotates refresh tokens
}
