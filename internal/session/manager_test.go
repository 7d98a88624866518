package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/eddits-console/internal/credentials"
	"github.com/wolfeidau/eddits-console/internal/gateway"
	"github.com/wolfeidau/eddits-console/internal/models"
	"github.com/wolfeidau/eddits-console/internal/notify"
	"github.com/wolfeidau/eddits-console/internal/testbackend"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	backend *testbackend.Backend
	clock   *clock
	store   credentials.Store
	gw      *gateway.Gateway
	mgr     *Manager
	notes   *notify.Recorder
	expired atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		backend: testbackend.New(t),
		clock:   &clock{now: time.Now()},
		notes:   &notify.Recorder{},
	}
	h.store = credentials.NewMemoryStore(credentials.WithClock(h.clock.Now))
	h.start()

	return h
}

// start builds a fresh gateway and manager over the same store, the way a
// new process would.
func (h *harness) start() {
	h.gw = gateway.New(h.backend.URL, h.store,
		gateway.WithNotifier(h.notes),
		gateway.WithSessionExpiredHandler(func() { h.expired.Add(1) }),
		gateway.WithHTTPClient(gateway.NewHTTPClient(5*time.Second, gateway.CacheOptions{})),
	)
	h.mgr = New(h.gw, h.store, WithNotifier(h.notes))
	h.gw.UseSession(h.mgr)
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	_, err := h.mgr.Login(context.Background(), Credentials{Username: testbackend.Username, Password: testbackend.Password})
	require.NoError(t, err)
	h.notes.Reset()
}

func (h *harness) assertNoTokens(t *testing.T) {
	t.Helper()
	for _, name := range []string{credentials.AccessTokenKey, credentials.RefreshTokenKey, credentials.SessionStateKey} {
		_, err := h.store.Get(name)
		assert.ErrorIs(t, err, credentials.ErrNotFound, name)
	}
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	user, err := h.mgr.Login(context.Background(), Credentials{
		Username: testbackend.Username,
		Password: testbackend.Password,
	})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, testbackend.Username, user.Username)

	s := h.mgr.State()
	assert.True(t, s.IsAuthenticated)
	assert.False(t, s.IsLoading)
	assert.Empty(t, s.Error)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)
	assert.Equal(t, s.AccessToken, h.mgr.AccessToken())

	access, err := h.store.Lookup(credentials.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, s.AccessToken, access.Value)
	assert.True(t, access.ExpiresAt.Equal(h.clock.Now().Add(24*time.Hour)), "access expiry %s", access.ExpiresAt)

	refresh, err := h.store.Lookup(credentials.RefreshTokenKey)
	require.NoError(t, err)
	assert.Equal(t, s.RefreshToken, refresh.Value)
	assert.True(t, refresh.ExpiresAt.Equal(h.clock.Now().Add(30*24*time.Hour)), "refresh expiry %s", refresh.ExpiresAt)

	csrf, err := h.store.Get(credentials.CSRFTokenKey)
	require.NoError(t, err)
	assert.Equal(t, testbackend.CSRF, csrf)

	assert.Equal(t, []notify.Notification{{Level: notify.LevelSuccess, Message: "Login successful"}}, h.notes.All())
}

func TestLogin_RememberMe(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.Login(context.Background(), Credentials{
		Username:   testbackend.Username,
		Password:   testbackend.Password,
		RememberMe: true,
	})
	require.NoError(t, err)

	access, err := h.store.Lookup(credentials.AccessTokenKey)
	require.NoError(t, err)
	assert.True(t, access.ExpiresAt.Equal(h.clock.Now().Add(30*24*time.Hour)))

	refresh, err := h.store.Lookup(credentials.RefreshTokenKey)
	require.NoError(t, err)
	assert.True(t, refresh.ExpiresAt.Equal(h.clock.Now().Add(30*24*time.Hour)))
}

func TestLogin_Rejected(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	user, err := h.mgr.Login(context.Background(), Credentials{Username: testbackend.Username, Password: "wrong"})
	require.Error(t, err)
	assert.Nil(t, user)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "login", authErr.Op)
	assert.Equal(t, "Invalid username or password.", authErr.Message)
	assert.True(t, gateway.IsUnauthorized(err))

	s := h.mgr.State()
	assert.False(t, s.IsAuthenticated)
	assert.False(t, s.IsLoading)
	assert.Nil(t, s.User)
	assert.Empty(t, s.AccessToken)
	assert.Equal(t, "Invalid username or password.", s.Error)

	h.assertNoTokens(t)
	assert.Equal(t, []notify.Notification{{Level: notify.LevelError, Message: "Invalid username or password."}}, h.notes.All())
}

func TestLogin_BackendDown(t *testing.T) {
	h := newHarness(t)
	gw := gateway.New("http://127.0.0.1:1/api", h.store, gateway.WithNotifier(h.notes))
	mgr := New(gw, h.store, WithNotifier(h.notes))

	_, err := mgr.Login(context.Background(), Credentials{Username: "alice", Password: "x"})
	require.Error(t, err)

	assert.Equal(t, gateway.CategoryNetwork, gateway.CategoryOf(err))
	assert.Equal(t, "Network error. Please check your connection.", mgr.State().Error)
	assert.Equal(t, 1, h.notes.Count(notify.LevelError))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	result := h.mgr.Logout(context.Background())

	assert.True(t, result.LocalCleared)
	assert.True(t, result.RemoteAttempted)
	assert.NoError(t, result.RemoteErr)
	assert.True(t, result.RemoteNotified())
	assert.Equal(t, 1, h.backend.Calls("/api/auth/logout/"))

	assert.Equal(t, State{}, h.mgr.State())
	assert.Empty(t, h.mgr.AccessToken())
	h.assertNoTokens(t)
	assert.Equal(t, []notify.Notification{{Level: notify.LevelSuccess, Message: "Logged out successfully"}}, h.notes.All())
}

func TestLogout_Idempotent(t *testing.T) {
	h := newHarness(t)

	for range 2 {
		result := h.mgr.Logout(context.Background())
		assert.True(t, result.LocalCleared)
		assert.False(t, result.RemoteAttempted)
		assert.NoError(t, result.StorageErr)
		assert.False(t, h.mgr.IsAuthenticated())
	}

	h.assertNoTokens(t)
	assert.Zero(t, h.backend.TotalCalls())
}

func TestLogout_RemoteFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.FailLogout(true)

	result := h.mgr.Logout(context.Background())

	assert.True(t, result.LocalCleared)
	assert.True(t, result.RemoteAttempted)
	assert.Error(t, result.RemoteErr)
	assert.False(t, result.RemoteNotified())
	assert.False(t, h.mgr.IsAuthenticated())
	h.assertNoTokens(t)

	// remote failure is not reported, the logout itself is
	assert.Equal(t, []notify.Notification{{Level: notify.LevelSuccess, Message: "Logged out successfully"}}, h.notes.All())
}

func TestCheckAuth_NoTokens(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.mgr.CheckAuth(context.Background()))
	assert.Zero(t, h.backend.TotalCalls())
	assert.False(t, h.mgr.State().IsLoading)
}

func TestCheckAuth_ValidAccessToken(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.start()

	assert.True(t, h.mgr.CheckAuth(context.Background()))

	s := h.mgr.State()
	assert.True(t, s.IsAuthenticated)
	assert.False(t, s.IsLoading)
	require.NotNil(t, s.User)
	assert.Equal(t, "alice@eddits.example", s.User.Email)
	assert.Zero(t, h.backend.RefreshCalls())
}

func TestCheckAuth_RefreshesRejectedAccessToken(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	before := h.mgr.AccessToken()

	h.backend.ExpireAccessTokens()
	h.start()

	assert.True(t, h.mgr.CheckAuth(context.Background()))
	assert.Equal(t, 1, h.backend.RefreshCalls())

	s := h.mgr.State()
	assert.True(t, s.IsAuthenticated)
	assert.NotEqual(t, before, s.AccessToken)
	require.NotNil(t, s.User)

	stored, err := h.store.Get(credentials.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, s.AccessToken, stored)
	assert.Empty(t, h.notes.All())
}

func TestCheckAuth_OnlyRefreshToken(t *testing.T) {
	h := newHarness(t)
	_, refresh := h.backend.IssueTokens()
	require.NoError(t, h.store.Set(credentials.RefreshTokenKey, refresh, RefreshTokenTTL))
	h.start()

	assert.True(t, h.mgr.CheckAuth(context.Background()))
	assert.Equal(t, 1, h.backend.RefreshCalls())
	assert.Equal(t, 1, h.backend.Calls("/api/auth/user/"))

	s := h.mgr.State()
	assert.True(t, s.IsAuthenticated)
	assert.NotEmpty(t, s.AccessToken)
	require.NotNil(t, s.User)
	assert.Equal(t, testbackend.Username, s.User.Username)
}

func TestCheckAuth_RefreshFailureEndsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.RejectAccess(true)
	h.backend.RejectRefresh(true)
	h.start()

	assert.False(t, h.mgr.CheckAuth(context.Background()))

	s := h.mgr.State()
	assert.False(t, s.IsAuthenticated)
	assert.False(t, s.IsLoading)
	assert.Empty(t, s.AccessToken)
	assert.Empty(t, s.RefreshToken)
	assert.Equal(t, "Your session has expired. Please log in again.", s.Error)

	h.assertNoTokens(t)
	assert.Equal(t, 1, h.backend.RefreshCalls())
	assert.Equal(t, []notify.Notification{{Level: notify.LevelError, Message: "Your session has expired. Please log in again."}}, h.notes.All())
}

func TestCheckAuth_RejectedAccessWithoutRefresh(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Set(credentials.AccessTokenKey, "not-a-valid-token", AccessTokenTTL))
	h.start()

	assert.False(t, h.mgr.CheckAuth(context.Background()))
	assert.Zero(t, h.backend.RefreshCalls())
	assert.Equal(t, 1, h.backend.Calls("/api/auth/user/"))
	assert.False(t, h.mgr.IsAuthenticated())
	assert.Empty(t, h.mgr.AccessToken())
}

func TestRefreshAccessToken_NoRefreshToken(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.mgr.RefreshAccessToken(context.Background()))
	assert.Zero(t, h.backend.TotalCalls())
	assert.Empty(t, h.notes.All())
}

func TestRefreshAccessToken(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	before := h.mgr.State()

	h.clock.Advance(time.Hour)
	require.True(t, h.mgr.RefreshAccessToken(context.Background()))

	after := h.mgr.State()
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.Equal(t, before.RefreshToken, after.RefreshToken)
	assert.True(t, after.IsAuthenticated)

	access, err := h.store.Lookup(credentials.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, after.AccessToken, access.Value)
	assert.True(t, access.ExpiresAt.Equal(h.clock.Now().Add(24*time.Hour)))
}

func TestRefreshAccessToken_RotatesRefreshToken(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.RotateRefresh(true)
	before := h.mgr.State().RefreshToken

	require.True(t, h.mgr.RefreshAccessToken(context.Background()))

	after := h.mgr.State().RefreshToken
	assert.NotEqual(t, before, after)

	stored, err := h.store.Get(credentials.RefreshTokenKey)
	require.NoError(t, err)
	assert.Equal(t, after, stored)

	// the old refresh token has been retired by the backend
	require.True(t, h.mgr.RefreshAccessToken(context.Background()))
	assert.Equal(t, 2, h.backend.RefreshCalls())
}

func TestRefreshAccessToken_SingleFlight(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.SetRefreshDelay(200 * time.Millisecond)

	const callers = 10
	results := make([]bool, callers)
	start := make(chan struct{})

	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			<-start
			results[i] = h.mgr.RefreshAccessToken(context.Background())
		})
	}
	close(start)
	wg.Wait()

	for i, ok := range results {
		assert.True(t, ok, "caller %d", i)
	}
	assert.Equal(t, 1, h.backend.RefreshCalls())
}

func TestRefreshAccessToken_WaiterCanGiveUp(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.SetRefreshDelay(300 * time.Millisecond)
	before := h.mgr.AccessToken()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.False(t, h.mgr.RefreshAccessToken(ctx))

	// the shared exchange carries on and still lands
	assert.Eventually(t, func() bool {
		current := h.mgr.AccessToken()
		stored, err := h.store.Get(credentials.AccessTokenKey)
		return err == nil && current != before && stored == current
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, h.backend.RefreshCalls())
	assert.True(t, h.mgr.IsAuthenticated())
}

func TestRefreshAccessToken_NewSessionDoesNotJoinOldExchange(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.SetRefreshDelay(300 * time.Millisecond)

	old := make(chan bool, 1)
	go func() {
		old <- h.mgr.RefreshAccessToken(context.Background())
	}()
	require.Eventually(t, func() bool { return h.backend.RefreshCalls() == 1 }, time.Second, 5*time.Millisecond)

	h.mgr.Logout(context.Background())
	h.login(t)
	h.backend.SetRefreshDelay(0)
	current := h.mgr.State().RefreshToken

	assert.True(t, h.mgr.RefreshAccessToken(context.Background()))
	assert.Equal(t, 2, h.backend.RefreshCalls())

	assert.False(t, <-old)

	s := h.mgr.State()
	assert.True(t, s.IsAuthenticated)
	assert.Equal(t, current, s.RefreshToken)
	stored, err := h.store.Get(credentials.AccessTokenKey)
	require.NoError(t, err)
	assert.Equal(t, s.AccessToken, stored)
}

// blockingStore parks the first write of an access token until released.
type blockingStore struct {
	credentials.Store
	once    sync.Once
	parked  chan struct{}
	release chan struct{}
}

func (b *blockingStore) Set(name, value string, ttl time.Duration) error {
	if name == credentials.AccessTokenKey {
		b.once.Do(func() {
			close(b.parked)
			<-b.release
		})
	}
	return b.Store.Set(name, value, ttl)
}

func TestRefreshAccessToken_LogoutDuringPersistWins(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	store := &blockingStore{Store: h.store, parked: make(chan struct{}), release: make(chan struct{})}
	h.store = store
	h.start()

	refreshed := make(chan bool, 1)
	go func() {
		refreshed <- h.mgr.RefreshAccessToken(context.Background())
	}()
	<-store.parked

	loggedOut := make(chan LogoutResult, 1)
	go func() {
		loggedOut <- h.mgr.Logout(context.Background())
	}()
	require.Eventually(t, func() bool { return h.backend.Calls("/api/auth/logout/") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	assert.True(t, <-refreshed)
	assert.True(t, (<-loggedOut).LocalCleared)

	s := h.mgr.State()
	assert.False(t, s.IsAuthenticated)
	assert.Empty(t, s.AccessToken)
	assert.Empty(t, s.RefreshToken)
	h.assertNoTokens(t)
}

func TestGateway_CallerGivesUpDuringRefresh(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.ExpireAccessTokens()
	h.backend.SetRefreshDelay(300 * time.Millisecond)
	before := h.mgr.AccessToken()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := h.gw.Get(ctx, "/dashboard/stats/", nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, gateway.ErrSessionExpired)
	assert.Equal(t, gateway.CategoryNetwork, gateway.CategoryOf(err))
	assert.Zero(t, h.expired.Load())
	assert.Equal(t, []notify.Notification{{Level: notify.LevelError, Message: "Network error. Please check your connection."}}, h.notes.All())

	assert.Eventually(t, func() bool {
		return h.mgr.AccessToken() != before
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, h.mgr.IsAuthenticated())
}

func TestGateway_TransparentRetry(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.ExpireAccessTokens()

	var stats models.DashboardStats
	require.NoError(t, h.gw.Get(context.Background(), "/dashboard/stats/", &stats))

	assert.Equal(t, h.backend.Stats().Overview.TotalEvents, stats.Overview.TotalEvents)
	assert.Equal(t, 1, h.backend.RefreshCalls())
	assert.Equal(t, 2, h.backend.Calls("/api/dashboard/stats/"))
	assert.Empty(t, h.notes.All())
}

func TestGateway_SingleRetryCeiling(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.RejectAccess(true)

	err := h.gw.Get(context.Background(), "/dashboard/stats/", nil)
	require.Error(t, err)

	assert.True(t, gateway.IsUnauthorized(err))
	assert.Equal(t, 1, h.backend.RefreshCalls())
	assert.Equal(t, 2, h.backend.Calls("/api/dashboard/stats/"))
	assert.Equal(t, 1, h.notes.Count(notify.LevelError))

	// the refresh itself worked, so the session survives
	assert.True(t, h.mgr.IsAuthenticated())
}

func TestGateway_RefreshFailureTearsDownSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.ExpireAccessTokens()
	h.backend.RevokeRefreshTokens()

	err := h.gw.Get(context.Background(), "/dashboard/stats/", nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, gateway.ErrSessionExpired)
	assert.Equal(t, int32(1), h.expired.Load())
	assert.False(t, h.mgr.IsAuthenticated())
	h.assertNoTokens(t)
	assert.Equal(t, []notify.Notification{{Level: notify.LevelError, Message: "Your session has expired. Please log in again."}}, h.notes.All())
}

func TestGateway_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.ExpireAccessTokens()
	h.backend.SetRefreshDelay(50 * time.Millisecond)

	const callers = 8
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			errs[i] = h.gw.Get(context.Background(), "/dashboard/stats/", nil)
		})
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, h.backend.RefreshCalls())
	assert.Empty(t, h.notes.All())
}

func TestRestore(t *testing.T) {
	dir := t.TempDir()
	backend := testbackend.New(t)

	open := func() (*Manager, credentials.Store) {
		store, err := credentials.NewFileStore(dir)
		require.NoError(t, err)
		gw := gateway.New(backend.URL, store)
		mgr := New(gw, store)
		gw.UseSession(mgr)
		return mgr, store
	}

	first, store := open()
	_, err := first.Login(context.Background(), Credentials{Username: testbackend.Username, Password: testbackend.Password})
	require.NoError(t, err)
	want := first.State()
	require.NoError(t, store.Close())

	second, _ := open()
	got := second.State()

	assert.Equal(t, want.IsAuthenticated, got.IsAuthenticated)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.Equal(t, want.User, got.User)
	assert.Empty(t, got.Error)
	assert.False(t, got.IsLoading)
}

func TestRestore_ExpiredAccessToken(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.clock.Advance(25 * time.Hour)
	h.start()

	s := h.mgr.State()
	assert.False(t, s.IsAuthenticated)
	assert.Empty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)
	require.NotNil(t, s.User)

	// checkAuth goes straight to the refresh token
	assert.True(t, h.mgr.CheckAuth(context.Background()))
	assert.Equal(t, 1, h.backend.RefreshCalls())
}

func TestRestore_TamperedSnapshot(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	require.NoError(t, h.store.Set(credentials.SessionStateKey, `{"version":1,"state":{"isAuthenticated":true},"checksum":1}`, 0))

	h.start()

	s := h.mgr.State()
	assert.False(t, s.IsAuthenticated)
	assert.Nil(t, s.User)
	assert.NotEmpty(t, s.AccessToken)
}

func TestUpdateUser(t *testing.T) {
	h := newHarness(t)
	name := "Alicia"

	h.mgr.UpdateUser(models.UserPatch{FirstName: &name})
	assert.Nil(t, h.mgr.State().User)

	h.login(t)
	before := h.mgr.State()

	h.mgr.UpdateUser(models.UserPatch{FirstName: &name})

	after := h.mgr.State()
	require.NotNil(t, after.User)
	assert.Equal(t, "Alicia", after.User.FirstName)
	assert.Equal(t, before.User.Email, after.User.Email)
	assert.Equal(t, before.AccessToken, after.AccessToken)
	assert.Equal(t, before.RefreshToken, after.RefreshToken)
	assert.Zero(t, h.backend.Calls("/api/auth/user/"))
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.UpdateProfile(context.Background(), models.UserPatch{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	h.login(t)
	phone := "+61 400 000 000"

	user, err := h.mgr.UpdateProfile(context.Background(), models.UserPatch{PhoneNumber: &phone})
	require.NoError(t, err)
	assert.Equal(t, phone, user.PhoneNumber)
	assert.Equal(t, phone, h.backend.User().PhoneNumber)
	assert.Equal(t, []notify.Notification{{Level: notify.LevelSuccess, Message: "Profile updated successfully"}}, h.notes.All())
}

func TestUpdateProfile_ValidationError(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	blank := ""

	_, err := h.mgr.UpdateProfile(context.Background(), models.UserPatch{Email: &blank})
	require.Error(t, err)

	assert.Equal(t, gateway.CategoryValidation, gateway.CategoryOf(err))
	assert.Equal(t, "email: This field may not be blank.", h.mgr.State().Error)
	assert.Equal(t, "alice@eddits.example", h.mgr.State().User.Email)
	assert.Equal(t, 1, h.notes.Count(notify.LevelError))
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.RequireCSRF(true)
	before := h.mgr.State()

	err := h.mgr.ChangePassword(context.Background(), PasswordChange{
		CurrentPassword: testbackend.Password,
		NewPassword:     "n3w-secret",
		ConfirmPassword: "n3w-secret",
	})
	require.NoError(t, err)

	after := h.mgr.State()
	assert.Equal(t, before.AccessToken, after.AccessToken)
	assert.Equal(t, before.RefreshToken, after.RefreshToken)
	assert.Equal(t, []notify.Notification{{Level: notify.LevelSuccess, Message: "Password changed successfully"}}, h.notes.All())

	h.mgr.Logout(context.Background())
	_, err = h.mgr.Login(context.Background(), Credentials{Username: testbackend.Username, Password: "n3w-secret"})
	assert.NoError(t, err)
}

func TestChangePassword_Mismatch(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	err := h.mgr.ChangePassword(context.Background(), PasswordChange{
		CurrentPassword: testbackend.Password,
		NewPassword:     "one",
		ConfirmPassword: "two",
	})
	assert.ErrorIs(t, err, ErrPasswordMismatch)
	assert.Zero(t, h.backend.Calls("/api/auth/change-password/"))
	assert.Equal(t, 1, h.notes.Count(notify.LevelError))
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	err := h.mgr.ChangePassword(context.Background(), PasswordChange{
		CurrentPassword: "nope",
		NewPassword:     "one",
		ConfirmPassword: "one",
	})
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "current_password: Current password is incorrect.", authErr.Message)
	assert.Equal(t, authErr.Message, h.mgr.State().Error)
	assert.Equal(t, []notify.Notification{{Level: notify.LevelError, Message: authErr.Message}}, h.notes.All())
	assert.True(t, h.mgr.IsAuthenticated())
}

func TestClearError(t *testing.T) {
	h := newHarness(t)
	_, err := h.mgr.Login(context.Background(), Credentials{Username: "alice", Password: "wrong"})
	require.Error(t, err)
	require.NotEmpty(t, h.mgr.State().Error)

	h.mgr.ClearError()

	assert.Empty(t, h.mgr.State().Error)
	assert.False(t, h.mgr.IsAuthenticated())
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var seen []State
	cancel := h.mgr.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	h.login(t)

	mu.Lock()
	require.NotEmpty(t, seen)
	assert.True(t, seen[0].IsLoading)
	last := seen[len(seen)-1]
	count := len(seen)
	mu.Unlock()

	assert.True(t, last.IsAuthenticated)
	assert.False(t, last.IsLoading)

	// subscribers get copies
	last.User.FirstName = "Mallory"
	assert.Equal(t, "Alice", h.mgr.State().User.FirstName)

	cancel()
	h.mgr.ClearError()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, count)
}

func TestToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.mgr.Token()
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	h.login(t)

	tok, err := h.mgr.Token()
	require.NoError(t, err)
	assert.Equal(t, h.mgr.AccessToken(), tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())
	assert.True(t, tok.Valid())
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), tok.Expiry, time.Minute)

	req, err := http.NewRequest(http.MethodGet, h.backend.URL+"/auth/user/", nil)
	require.NoError(t, err)
	tok.SetAuthHeader(req)
	assert.Equal(t, "Bearer "+h.mgr.AccessToken(), req.Header.Get("Authorization"))
}
