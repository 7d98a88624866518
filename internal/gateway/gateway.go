// Package gateway is the single outbound pipeline for backend API calls.
//
// Every request gets its headers built from the current session: the bearer
// access token, an anti-forgery token on mutating verbs and a request ID.
// A 401 triggers one refresh of the access token and one retry of the
// original call.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/wolfeidau/eddits-console/internal/credentials"
	"github.com/wolfeidau/eddits-console/internal/notify"
	"github.com/wolfeidau/eddits-console/internal/telemetry"
)

const (
	tracerName = "github.com/wolfeidau/eddits-console/internal/gateway"

	headerCSRF      = "X-CSRFToken"
	headerRequestID = "X-Request-ID"

	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 64 << 10
)

// Session supplies the current access token and renews it on demand.
type Session interface {
	AccessToken() string

	// RefreshAccessToken exchanges the refresh token for a new access token
	// and reports whether it succeeded.
	RefreshAccessToken(ctx context.Context) bool
}

// Call describes a single API request.
type Call struct {
	Method string
	Path   string // relative to the API base URL, e.g. /auth/user/
	Body   any    // JSON encoded when non-nil
	Out    any    // JSON decoded from a 2xx response when non-nil

	// NoRefresh disables the 401 refresh and retry path. Auth endpoints use
	// it so they never recurse into the refresh flow.
	NoRefresh bool

	// Quiet suppresses user notifications for failures of this call.
	Quiet bool

	// retried is set on the copy that is re-issued after a 401.
	retried bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

// WithNotifier sets where failures are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(g *Gateway) {
		g.notifier = n
	}
}

// WithSessionExpiredHandler registers fn to run when a 401 could not be
// recovered by a refresh.
func WithSessionExpiredHandler(fn func()) Option {
	return func(g *Gateway) {
		g.onSessionExpired = fn
	}
}

// Gateway sends API calls to the backend.
type Gateway struct {
	baseURL          string
	client           *http.Client
	store            credentials.Store
	notifier         notify.Notifier
	onSessionExpired func()
	tracer           trace.Tracer

	mu      sync.RWMutex
	session Session
}

// New creates a gateway for the API at baseURL. The store supplies the
// anti-forgery token and receives it when the backend sets it.
func New(baseURL string, store credentials.Store, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		store:    store,
		notifier: notify.Discard,
		tracer:   otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.client == nil {
		g.client = NewHTTPClient(DefaultTimeout, CacheOptions{})
	}

	return g
}

// UseSession attaches the session that supplies access tokens.
func (g *Gateway) UseSession(s Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = s
}

func (g *Gateway) currentSession() Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session
}

// BaseURL returns the API base URL.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// Get issues a GET and decodes the response into out.
func (g *Gateway) Get(ctx context.Context, path string, out any) error {
	return g.Do(ctx, Call{Method: http.MethodGet, Path: path, Out: out})
}

// Post issues a POST with a JSON body and decodes the response into out.
func (g *Gateway) Post(ctx context.Context, path string, body, out any) error {
	return g.Do(ctx, Call{Method: http.MethodPost, Path: path, Body: body, Out: out})
}

// Patch issues a PATCH with a JSON body and decodes the response into out.
func (g *Gateway) Patch(ctx context.Context, path string, body, out any) error {
	return g.Do(ctx, Call{Method: http.MethodPatch, Path: path, Body: body, Out: out})
}

// Do sends call. Failures are returned as *APIError and, unless the call is
// Quiet, reported to the notifier once.
func (g *Gateway) Do(ctx context.Context, call Call) error {
	started := time.Now()
	metrics := telemetry.GetMetrics()

	ctx, span := g.tracer.Start(ctx, call.Method+" "+call.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", call.Method),
			attribute.String("url.path", call.Path),
		),
	)
	defer span.End()

	var body []byte
	if call.Body != nil {
		var err error
		body, err = json.Marshal(call.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	err := g.do(ctx, call, body)

	attrs := metric.WithAttributes(attribute.String("method", call.Method))
	metrics.RequestsTotal.Add(ctx, 1, attrs)
	metrics.RequestDuration.Record(ctx, float64(time.Since(started).Milliseconds()), attrs)

	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		metrics.RequestErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", call.Method),
			attribute.String("category", string(apiErr.Category)),
		))

		if !call.Quiet {
			g.notifier.Error(apiErr.Message)
		}
	}

	return err
}

func (g *Gateway) do(ctx context.Context, call Call, body []byte) error {
	sess := g.currentSession()

	var token string
	if sess != nil {
		token = sess.AccessToken()
	}

	resp, err := g.send(ctx, call, body, token)
	if err != nil {
		return newNetworkError(err)
	}

	g.captureCSRF(resp)

	if resp.StatusCode == http.StatusUnauthorized && !call.NoRefresh && !call.retried && sess != nil {
		drain(resp)

		retry := call
		retry.retried = true

		// A racing caller may already have swapped the token.
		if current := sess.AccessToken(); current != "" && current != token {
			log.Debug().
				Str("path", call.Path).
				Str("token", credentials.Fingerprint(current)).
				Msg("retrying with token refreshed by another call")
			telemetry.GetMetrics().RetriesTotal.Add(ctx, 1)
			return g.do(ctx, retry, body)
		}

		if sess.RefreshAccessToken(ctx) {
			log.Debug().Str("path", call.Path).Msg("retrying after token refresh")
			telemetry.GetMetrics().RetriesTotal.Add(ctx, 1)
			return g.do(ctx, retry, body)
		}

		// gave up waiting on the refresh; the session is still intact
		if err := ctx.Err(); err != nil {
			return newNetworkError(err)
		}

		// logged in again while the refresh was in flight
		if current := sess.AccessToken(); current != "" && current != token {
			telemetry.GetMetrics().RetriesTotal.Add(ctx, 1)
			return g.do(ctx, retry, body)
		}

		log.Info().Str("path", call.Path).Msg("session expired, refresh failed")

		if g.onSessionExpired != nil {
			g.onSessionExpired()
		}

		return &APIError{
			StatusCode: http.StatusUnauthorized,
			Category:   CategoryUnauthorized,
			Message:    statusMessages[http.StatusUnauthorized],
			Err:        ErrSessionExpired,
		}
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newStatusError(resp.StatusCode, data)
	}

	if call.Out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return newNetworkError(err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, call.Out); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Category:   CategoryUnknown,
			Message:    msgUnexpected,
			Body:       data,
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}

	return nil
}

func (g *Gateway) send(ctx context.Context, call Call, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, g.baseURL+call.Path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerRequestID, uuid.NewString())

	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	if isMutating(call.Method) {
		if csrf, err := g.store.Get(credentials.CSRFTokenKey); err == nil {
			req.Header.Set(headerCSRF, csrf)
		}
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	return g.client.Do(req)
}

// captureCSRF persists a csrftoken cookie set by the backend.
func (g *Gateway) captureCSRF(resp *http.Response) {
	for _, cookie := range resp.Cookies() {
		if cookie.Name != credentials.CSRFTokenKey {
			continue
		}

		var ttl time.Duration
		switch {
		case cookie.MaxAge < 0:
			ttl = -1
		case cookie.MaxAge > 0:
			ttl = time.Duration(cookie.MaxAge) * time.Second
		case !cookie.Expires.IsZero():
			ttl = time.Until(cookie.Expires)
			if ttl <= 0 {
				ttl = -1
			}
		}

		var err error
		if ttl < 0 || cookie.Value == "" {
			err = g.store.Delete(credentials.CSRFTokenKey)
		} else {
			err = g.store.Set(credentials.CSRFTokenKey, cookie.Value, ttl)
		}
		if err != nil {
			log.Warn().Err(err).Msg("failed to store csrf token")
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
