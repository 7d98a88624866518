// Package testbackend is an in-process fake of the events platform REST API.
//
// It issues signed JWT access and refresh tokens, counts calls per path and
// can be told to reject tokens or slow down refreshes, so session and
// gateway behaviour can be exercised end to end.
package testbackend

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfeidau/eddits-console/internal/models"
)

// Fixture credentials accepted by a new backend.
const (
	Username = "alice"
	Password = "correct"
	CSRF     = "csrf-fixture-token"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	accessTTL  = 5 * time.Minute
	refreshTTL = 30 * 24 * time.Hour
)

// Backend is a running fake API. The API base URL is URL.
type Backend struct {
	URL string

	srv    *httptest.Server
	secret []byte

	mu            sync.Mutex
	user          models.User
	password      string
	counts        map[string]int
	rejectAccess  bool
	rejectRefresh bool
	failLogout    bool
	rotateRefresh bool
	requireCSRF   bool
	refreshDelay  time.Duration
	accessGen     int
	refreshGen    int
	health        models.HealthStatus
	stats         models.DashboardStats
	events        map[int]models.EventAnalytics
	media         models.MediaAnalytics
	userAnalytics models.UserAnalytics
}

// New starts a backend. It is closed when the test finishes.
func New(t interface{ Cleanup(func()) }) *Backend {
	b := &Backend{
		secret:   []byte(uuid.NewString()),
		user:     defaultUser(),
		password: Password,
		counts:   map[string]int{},
		health: models.HealthStatus{
			Status:   models.HealthStatusHealthy,
			Database: "connected",
			Version:  "1.0.0",
		},
		stats:         defaultStats(),
		events:        defaultEvents(),
		media:         defaultMedia(),
		userAnalytics: defaultUserAnalytics(),
	}

	b.srv = httptest.NewServer(b.routes())
	b.URL = b.srv.URL + "/api"
	t.Cleanup(b.srv.Close)

	return b
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.countCalls)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health/", b.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login/", b.handleLogin)
			r.Post("/logout/", b.handleLogout)
			r.Post("/token/refresh/", b.handleRefresh)

			r.Group(func(r chi.Router) {
				r.Use(b.requireAccess)
				r.Get("/user/", b.handleGetUser)
				r.Patch("/user/", b.handleUpdateUser)
				r.Post("/change-password/", b.handleChangePassword)
			})
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(b.requireAccess, b.requireStaff)
			r.Get("/stats/", b.handleStats)
			r.Get("/analytics/events/", b.handleEventList)
			r.Get("/analytics/events/{eventID}/", b.handleEvent)
			r.Get("/analytics/media/", b.handleMedia)
			r.Get("/analytics/users/", b.handleUserAnalytics)
		})
	})

	return r
}

// Calls returns how many requests were made to path, e.g. /api/auth/user/.
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[path]
}

// RefreshCalls returns how many refresh exchanges were requested.
func (b *Backend) RefreshCalls() int {
	return b.Calls("/api/auth/token/refresh/")
}

// TotalCalls returns the number of requests of any kind.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.counts {
		n += c
	}
	return n
}

// ExpireAccessTokens invalidates every access token issued so far.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessGen++
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshGen++
}

// RejectAccess makes every access token fail validation while set.
func (b *Backend) RejectAccess(reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectAccess = reject
}

// RejectRefresh makes every refresh exchange fail while set.
func (b *Backend) RejectRefresh(reject bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectRefresh = reject
}

// FailLogout makes the logout endpoint return a server error.
func (b *Backend) FailLogout(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failLogout = fail
}

// RotateRefresh makes refresh responses carry a new refresh token.
func (b *Backend) RotateRefresh(rotate bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rotateRefresh = rotate
}

// RequireCSRF rejects authenticated mutating calls without the CSRF header.
func (b *Backend) RequireCSRF(require bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requireCSRF = require
}

// SetRefreshDelay holds each refresh response for d.
func (b *Backend) SetRefreshDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshDelay = d
}

// SetHealth replaces the health check payload.
func (b *Backend) SetHealth(h models.HealthStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health = h
}

// User returns the backend's copy of the account.
func (b *Backend) User() models.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.user
}

// Stats returns the dashboard payload the backend serves.
func (b *Backend) Stats() models.DashboardStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Media returns the media analytics payload the backend serves.
func (b *Backend) Media() models.MediaAnalytics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.media
}

// UserAnalytics returns the user analytics payload the backend serves.
func (b *Backend) UserAnalytics() models.UserAnalytics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userAnalytics
}

// SetStaff changes whether the fixture user may read the dashboard.
func (b *Backend) SetStaff(staff bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user.IsStaff = staff
}

// IssueTokens mints a valid access and refresh token pair for the fixture user.
func (b *Backend) IssueTokens() (access, refresh string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mintLocked(tokenTypeAccess, accessTTL), b.mintLocked(tokenTypeRefresh, refreshTTL)
}

type claims struct {
	Type string `json:"typ"`
	Gen  int    `json:"gen"`
	jwt.RegisteredClaims
}

func (b *Backend) mintLocked(typ string, ttl time.Duration) string {
	gen := b.accessGen
	if typ == tokenTypeRefresh {
		gen = b.refreshGen
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Type: typ,
		Gen:  gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   b.user.Username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(b.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

var errTokenInvalid = errors.New("token is invalid or expired")

func (b *Backend) validateLocked(raw, typ string) error {
	c := &claims{}
	_, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return errTokenInvalid
	}

	if c.Type != typ {
		return errTokenInvalid
	}

	switch typ {
	case tokenTypeAccess:
		if b.rejectAccess || c.Gen < b.accessGen {
			return errTokenInvalid
		}
	case tokenTypeRefresh:
		if b.rejectRefresh || c.Gen < b.refreshGen {
			return errTokenInvalid
		}
	}

	return nil
}

func (b *Backend) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.counts[r.URL.Path]++
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		b.mu.Lock()
		err := b.validateLocked(header[len(prefix):], tokenTypeAccess)
		csrfOK := !b.requireCSRF || r.Method == http.MethodGet || r.Header.Get("X-CSRFToken") == CSRF
		b.mu.Unlock()

		if err != nil {
			writeError(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		if !csrfOK {
			writeError(w, http.StatusForbidden, "CSRF Failed: CSRF token missing or incorrect.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireStaff mirrors the admin-only permission on the dashboard views.
func (b *Backend) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		staff := b.user.IsStaff || b.user.IsSuperuser
		b.mu.Unlock()

		if !staff {
			writeError(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		RememberMe bool   `json:"remember_me"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request.")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if req.Username != b.user.Username || req.Password != b.password {
		writeError(w, http.StatusUnauthorized, "Invalid username or password.")
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: CSRF, Path: "/", MaxAge: int((365 * 24 * time.Hour).Seconds())})
	writeJSON(w, http.StatusOK, map[string]any{
		"access":  b.mintLocked(tokenTypeAccess, accessTTL),
		"refresh": b.mintLocked(tokenTypeRefresh, refreshTTL),
		"user":    b.user,
	})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failLogout {
		writeError(w, http.StatusInternalServerError, "Logout failed.")
		return
	}

	var req struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Refresh != "" && b.validateLocked(req.Refresh, tokenTypeRefresh) == nil {
		// blacklists every outstanding refresh token
		b.refreshGen++
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out."})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"refresh": {"This field is required."}})
		return
	}

	b.mu.Lock()
	delay := b.refreshDelay
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.validateLocked(req.Refresh, tokenTypeRefresh); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	resp := map[string]string{"access": b.mintLocked(tokenTypeAccess, accessTTL)}
	if b.rotateRefresh {
		b.refreshGen++
		resp["refresh"] = b.mintLocked(tokenTypeRefresh, refreshTTL)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleGetUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.User())
}

func (b *Backend) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch models.UserPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request.")
		return
	}

	if patch.Email != nil && *patch.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {"This field may not be blank."}})
		return
	}

	b.mu.Lock()
	b.user = b.user.Apply(patch)
	user := b.user
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, user)
}

func (b *Backend) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request.")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if req.CurrentPassword != b.password {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"current_password": {"Current password is incorrect."}})
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"New passwords do not match."}})
		return
	}

	b.password = req.NewPassword
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully."})
}

func (b *Backend) handleHealth(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	h := b.health
	b.mu.Unlock()

	status := http.StatusOK
	if !h.IsHealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (b *Backend) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.Stats())
}

func (b *Backend) handleEventList(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := models.EventAnalyticsList{}
	for id := 1; id <= len(b.events); id++ {
		ev := b.events[id]
		list.Events = append(list.Events, models.EventAnalyticsRow{
			ID:          ev.Event.ID,
			Title:       ev.Event.Title,
			EventID:     ev.Event.EventID,
			EventDate:   ev.Event.EventDate,
			CreatedAt:   ev.Event.CreatedAt,
			IsPublished: ev.Event.IsPublished,
			IsFeatured:  ev.Event.IsFeatured,
			PhotoCount:  ev.Analytics.PhotoCount,
			VideoCount:  ev.Analytics.VideoCount,
			ReelCount:   ev.Analytics.ReelCount,
			ClientCount: ev.Analytics.ClientCount,
			TotalMedia:  ev.Analytics.TotalMedia,
		})
	}
	list.TotalEvents = len(list.Events)

	writeJSON(w, http.StatusOK, list)
}

func (b *Backend) handleEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}

	b.mu.Lock()
	ev, ok := b.events[id]
	b.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

func (b *Backend) handleMedia(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.Media())
}

func (b *Backend) handleUserAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.UserAnalytics())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
