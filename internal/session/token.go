package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = (*Manager)(nil)

// Token returns the current access token as an oauth2 token, so the session
// can back any oauth2 aware HTTP client.
func (m *Manager) Token() (*oauth2.Token, error) {
	s := m.State()
	if s.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}

	expiry, _ := TokenExpiry(s.AccessToken)

	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       expiry,
	}, nil
}

// TokenExpiry returns the exp claim of a JWT without verifying its signature.
// Tokens are opaque to the client, so a token that is not a JWT, or has no
// exp, reports false.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}
