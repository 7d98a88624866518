// Package session owns the authenticated session: tokens, the user profile
// and the transitions between logged in and logged out.
//
// A Manager is created once per process and handed to whatever needs it. It
// persists the session through a credentials.Store, restores it on start,
// and refreshes the access token on behalf of the gateway with concurrent
// refreshes coalesced into a single exchange.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/wolfeidau/eddits-console/internal/credentials"
	"github.com/wolfeidau/eddits-console/internal/gateway"
	"github.com/wolfeidau/eddits-console/internal/models"
	"github.com/wolfeidau/eddits-console/internal/notify"
	"github.com/wolfeidau/eddits-console/internal/telemetry"
)

// Token lifetimes in durable storage.
const (
	AccessTokenTTL           = 24 * time.Hour
	RememberedAccessTokenTTL = 30 * 24 * time.Hour
	RefreshTokenTTL          = 30 * 24 * time.Hour
)

// User facing messages.
const (
	msgLoginSuccess    = "Login successful"
	msgLoginFailed     = "Login failed. Please check your credentials."
	msgLogoutSuccess   = "Logged out successfully"
	msgSessionExpired  = "Your session has expired. Please log in again."
	msgPasswordChanged = "Password changed successfully"
	msgProfileUpdated  = "Profile updated successfully"
	msgStorageFailed   = "Could not save your session. Please try again."
)

const refreshKey = "refresh"

var _ gateway.Session = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier sets where user facing messages go.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithRefreshTimeout bounds a single refresh exchange.
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshTimeout = d
	}
}

type subscription struct {
	id int
	fn func(State)
}

// Manager is the session for one running client.
type Manager struct {
	api            API
	store          credentials.Store
	notifier       notify.Notifier
	refreshTimeout time.Duration
	refreshGroup   singleflight.Group

	// sessionMu orders token writes: login, logout and a landing refresh.
	sessionMu sync.Mutex

	mu      sync.RWMutex
	state   State
	subs    []subscription
	nextSub int
}

// New creates a manager and restores any persisted session from store. The
// restored session is not validated; call CheckAuth for that.
func New(api API, store credentials.Store, opts ...Option) *Manager {
	m := &Manager{
		api:            api,
		store:          store,
		notifier:       notify.Discard,
		refreshTimeout: gateway.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.restore()

	return m
}

func (m *Manager) restore() {
	var s State

	raw, err := m.store.Get(credentials.SessionStateKey)
	switch {
	case err == nil:
		snap, err := decodeSnapshot(raw)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring persisted session")
			break
		}
		s = snap.state()
	case !errors.Is(err, credentials.ErrNotFound):
		log.Warn().Err(err).Msg("failed to read persisted session")
	}

	// cookie expiry is authoritative for the tokens themselves
	s.AccessToken = m.storedToken(credentials.AccessTokenKey)
	s.RefreshToken = m.storedToken(credentials.RefreshTokenKey)
	s.IsAuthenticated = s.IsAuthenticated && s.AccessToken != ""

	m.mu.Lock()
	m.state = s
	m.mu.Unlock()

	log.Debug().
		Bool("authenticated", s.IsAuthenticated).
		Str("access", credentials.Fingerprint(s.AccessToken)).
		Str("refresh", credentials.Fingerprint(s.RefreshToken)).
		Msg("restored session")
}

func (m *Manager) storedToken(name string) string {
	value, err := m.store.Get(name)
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			log.Warn().Err(err).Str("name", name).Msg("failed to read token")
		}
		return ""
	}
	return value
}

// State returns a copy of the current session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.clone()
}

// AccessToken returns the current access token, or "".
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.AccessToken
}

// IsAuthenticated reports whether a session has been established.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.IsAuthenticated
}

// Subscribe registers fn to receive a copy of the state after every change.
// The returned function removes the subscription. fn runs synchronously and
// must not call Login, Logout or RefreshAccessToken.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscription{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs = slices.DeleteFunc(m.subs, func(s subscription) bool { return s.id == id })
	}
}

// update mutates the state, persists it and notifies subscribers.
func (m *Manager) update(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	m.persistLocked()
	s := m.state.clone()
	subs := slices.Clone(m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.fn(s.clone())
	}
}

func (m *Manager) persistLocked() {
	snap := m.state.snapshot()

	if snap.User == nil && snap.Token == "" && snap.RefreshToken == "" && !snap.IsAuthenticated {
		if err := m.store.Delete(credentials.SessionStateKey); err != nil {
			log.Warn().Err(err).Msg("failed to delete persisted session")
		}
		return
	}

	raw, err := encodeSnapshot(snap)
	if err == nil {
		err = m.store.Set(credentials.SessionStateKey, raw, 0)
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to persist session")
	}
}

// Login exchanges credentials for tokens and establishes the session.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*models.User, error) {
	metrics := telemetry.GetMetrics()

	m.update(func(s *State) {
		s.IsLoading = true
		s.Error = ""
	})

	var resp loginResponse
	err := m.api.Do(ctx, gateway.Call{
		Method: http.MethodPost,
		Path:   pathLogin,
		Body: loginRequest{
			Username:   creds.Username,
			Password:   creds.Password,
			RememberMe: creds.RememberMe,
		},
		Out:       &resp,
		NoRefresh: true,
		Quiet:     true,
	})
	if err == nil && (resp.Access == "" || resp.Refresh == "") {
		err = errors.New("login response is missing tokens")
	}

	message := loginFailureMessage(err)

	if err == nil {
		accessTTL := AccessTokenTTL
		if creds.RememberMe {
			accessTTL = RememberedAccessTokenTTL
		}

		if err = m.establish(resp, accessTTL); err != nil {
			err = fmt.Errorf("failed to store tokens: %w", err)
			message = msgStorageFailed
		}
	}

	if err != nil {
		metrics.LoginFailuresTotal.Add(ctx, 1)
		log.Info().Err(err).Str("username", creds.Username).Msg("login failed")

		m.clearSession("", message)
		m.notifier.Error(message)

		return nil, &AuthError{Op: "login", Message: message, Err: err}
	}

	user := resp.User

	metrics.LoginsTotal.Add(ctx, 1)
	log.Info().
		Str("username", user.Username).
		Bool("remember_me", creds.RememberMe).
		Str("access", credentials.Fingerprint(resp.Access)).
		Msg("logged in")

	m.notifier.Success(msgLoginSuccess)

	return m.State().User, nil
}

// establish stores a fresh token pair and replaces the session with it.
func (m *Manager) establish(resp loginResponse, accessTTL time.Duration) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if err := m.store.Set(credentials.AccessTokenKey, resp.Access, accessTTL); err != nil {
		return err
	}
	if err := m.store.Set(credentials.RefreshTokenKey, resp.Refresh, RefreshTokenTTL); err != nil {
		return err
	}

	user := resp.User
	m.update(func(s *State) {
		*s = State{
			User:            &user,
			AccessToken:     resp.Access,
			RefreshToken:    resp.Refresh,
			IsAuthenticated: true,
		}
	})

	return nil
}

func loginFailureMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) {
		return msgLoginFailed
	}

	switch {
	case apiErr.Detail != "":
		return apiErr.Detail
	case apiErr.Category == gateway.CategoryNetwork, apiErr.Category == gateway.CategoryServer,
		apiErr.Category == gateway.CategoryRateLimited:
		return apiErr.Message
	default:
		return msgLoginFailed
	}
}

// Logout tells the backend the session is over and tears it down locally.
// The local teardown is unconditional; see LogoutResult for the remote half.
// Calling Logout without a session is safe.
func (m *Manager) Logout(ctx context.Context) LogoutResult {
	result := m.logout(ctx)
	m.notifier.Success(msgLogoutSuccess)
	return result
}

func (m *Manager) logout(ctx context.Context) LogoutResult {
	var result LogoutResult

	if refresh := m.refreshToken(); refresh != "" {
		result.RemoteAttempted = true
		result.RemoteErr = m.revoke(ctx, refresh)
	}

	_, result.StorageErr = m.clearSession("", "")
	result.LocalCleared = true

	telemetry.GetMetrics().LogoutsTotal.Add(ctx, 1)
	log.Info().Bool("remote_notified", result.RemoteNotified()).Msg("logged out")

	return result
}

// revoke tells the backend refresh is no longer in use.
func (m *Manager) revoke(ctx context.Context, refresh string) error {
	err := m.api.Do(ctx, gateway.Call{
		Method:    http.MethodPost,
		Path:      pathLogout,
		Body:      refreshRequest{Refresh: refresh},
		NoRefresh: true,
		Quiet:     true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("backend logout failed, clearing local session anyway")
	}
	return err
}

// clearSession wipes the stored tokens and resets the state, keeping reason
// as the error. With expect set it does nothing unless the session still
// holds that refresh token, and reports whether it cleared anything.
func (m *Manager) clearSession(expect, reason string) (bool, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if expect != "" && m.refreshToken() != expect {
		return false, nil
	}

	err := m.deleteTokens()
	m.update(func(s *State) {
		*s = State{Error: reason}
	})

	return true, err
}

func (m *Manager) deleteTokens() error {
	err := m.store.Delete(credentials.AccessTokenKey, credentials.RefreshTokenKey, credentials.SessionStateKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to clear stored tokens")
	}
	return err
}

// CheckAuth validates the stored session, refreshing the access token when
// it has been rejected. It reports whether the session is authenticated.
func (m *Manager) CheckAuth(ctx context.Context) bool {
	access := m.storedToken(credentials.AccessTokenKey)
	refresh := m.storedToken(credentials.RefreshTokenKey)

	if access == "" && refresh == "" {
		m.update(func(s *State) {
			*s = State{Error: s.Error}
		})
		return false
	}

	m.update(func(s *State) {
		s.AccessToken = access
		s.RefreshToken = refresh
		s.IsLoading = true
	})

	if access != "" {
		user, err := m.fetchUser(ctx)
		if err == nil {
			m.update(func(s *State) {
				s.User = user
				s.IsAuthenticated = true
				s.IsLoading = false
			})
			return true
		}
		log.Debug().Err(err).Msg("stored access token rejected")
	}

	if refresh == "" {
		m.update(func(s *State) {
			s.AccessToken = ""
			s.IsAuthenticated = false
			s.IsLoading = false
		})
		return false
	}

	if !m.RefreshAccessToken(ctx) {
		m.update(func(s *State) {
			s.IsLoading = false
		})
		m.notifier.Error(msgSessionExpired)
		return false
	}

	m.update(func(s *State) {
		s.IsAuthenticated = true
		s.IsLoading = false
	})

	// profile is best effort once the tokens are good
	if user, err := m.fetchUser(ctx); err == nil {
		m.update(func(s *State) {
			s.User = user
		})
	} else {
		log.Warn().Err(err).Msg("failed to fetch profile after refresh")
	}

	return true
}

func (m *Manager) fetchUser(ctx context.Context) (*models.User, error) {
	var user models.User
	err := m.api.Do(ctx, gateway.Call{
		Method:    http.MethodGet,
		Path:      pathUser,
		Out:       &user,
		NoRefresh: true,
		Quiet:     true,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RefreshAccessToken exchanges the refresh token for a new access token.
// Concurrent callers holding the same refresh token share one exchange. A
// failed exchange ends the session; reporting that to the user is left to
// the caller. It also returns false when ctx ends first, in which case the
// exchange carries on and the session is untouched.
func (m *Manager) RefreshAccessToken(ctx context.Context) bool {
	refresh := m.refreshToken()
	if refresh == "" {
		return false
	}

	// the exchange must outlive any single waiter that gives up
	exchangeCtx := context.WithoutCancel(ctx)

	ch := m.refreshGroup.DoChan(refreshKey+":"+credentials.Fingerprint(refresh), func() (any, error) {
		return nil, m.exchange(exchangeCtx, refresh)
	})

	select {
	case res := <-ch:
		if res.Shared {
			telemetry.GetMetrics().RefreshCoalescedTotal.Add(ctx, 1)
		}
		return res.Err == nil
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) refreshToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.RefreshToken
}

func (m *Manager) exchange(ctx context.Context, refresh string) error {
	metrics := telemetry.GetMetrics()
	metrics.RefreshTotal.Add(ctx, 1)

	ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	var resp refreshResponse
	err := m.api.Do(ctx, gateway.Call{
		Method:    http.MethodPost,
		Path:      pathRefresh,
		Body:      refreshRequest{Refresh: refresh},
		Out:       &resp,
		NoRefresh: true,
		Quiet:     true,
	})
	if err == nil && resp.Access == "" {
		err = errors.New("refresh response is missing an access token")
	}
	if err != nil {
		metrics.RefreshFailuresTotal.Add(ctx, 1)

		if cleared, _ := m.clearSession(refresh, msgSessionExpired); !cleared {
			// logged out or logged in again while the exchange was in flight
			return ErrNotAuthenticated
		}

		log.Info().Err(err).Str("refresh", credentials.Fingerprint(refresh)).Msg("token refresh failed, session ended")

		_ = m.revoke(ctx, refresh)
		metrics.LogoutsTotal.Add(ctx, 1)

		return &AuthError{Op: "refresh", Message: msgSessionExpired, Err: err}
	}

	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if m.refreshToken() != refresh {
		return ErrNotAuthenticated
	}

	if err := m.store.Set(credentials.AccessTokenKey, resp.Access, AccessTokenTTL); err != nil {
		log.Warn().Err(err).Msg("failed to store refreshed access token")
	}
	if resp.Refresh != "" {
		if err := m.store.Set(credentials.RefreshTokenKey, resp.Refresh, RefreshTokenTTL); err != nil {
			log.Warn().Err(err).Msg("failed to store rotated refresh token")
		}
	}

	m.update(func(s *State) {
		s.AccessToken = resp.Access
		if resp.Refresh != "" {
			s.RefreshToken = resp.Refresh
		}
	})

	log.Debug().
		Str("access", credentials.Fingerprint(resp.Access)).
		Bool("rotated", resp.Refresh != "").
		Msg("access token refreshed")

	return nil
}

// UpdateUser shallow-merges patch into the current user. It does nothing
// when there is no user and never touches tokens.
func (m *Manager) UpdateUser(patch models.UserPatch) {
	m.mu.RLock()
	hasUser := m.state.User != nil
	m.mu.RUnlock()

	if !hasUser {
		return
	}

	m.update(func(s *State) {
		if s.User == nil {
			return
		}
		u := s.User.Apply(patch)
		s.User = &u
	})
}

// UpdateProfile saves patch to the backend and then merges it locally.
func (m *Manager) UpdateProfile(ctx context.Context, patch models.UserPatch) (*models.User, error) {
	s := m.State()
	if !s.IsAuthenticated {
		return nil, ErrNotAuthenticated
	}
	if s.User == nil {
		return nil, ErrNoUser
	}
	if patch.IsEmpty() {
		return s.User, nil
	}

	if err := m.api.Do(ctx, gateway.Call{
		Method: http.MethodPatch,
		Path:   pathUser,
		Body:   patch,
	}); err != nil {
		m.setError(err)
		return nil, err
	}

	m.UpdateUser(patch)
	m.notifier.Success(msgProfileUpdated)

	return m.State().User, nil
}

// ChangePassword passes the form to the backend. Tokens are left alone.
func (m *Manager) ChangePassword(ctx context.Context, change PasswordChange) error {
	if change.NewPassword != change.ConfirmPassword {
		m.update(func(s *State) {
			s.Error = ErrPasswordMismatch.Error()
		})
		m.notifier.Error("New passwords do not match.")
		return ErrPasswordMismatch
	}

	if err := m.api.Do(ctx, gateway.Call{
		Method: http.MethodPost,
		Path:   pathChangePassword,
		Body:   change,
	}); err != nil {
		message := m.setError(err)
		return &AuthError{Op: "change-password", Message: message, Err: err}
	}

	m.notifier.Success(msgPasswordChanged)
	return nil
}

// ClearError resets the last error.
func (m *Manager) ClearError() {
	m.update(func(s *State) {
		s.Error = ""
	})
}

func (m *Manager) setError(err error) string {
	message := err.Error()
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		message = apiErr.Message
	}

	m.update(func(s *State) {
		s.Error = message
	})
	return message
}
