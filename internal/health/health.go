// Package health probes the backend health endpoint.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/eddits-console/internal/gateway"
	"github.com/wolfeidau/eddits-console/internal/models"
)

const pathHealth = "/health/"

// ErrUnhealthy is returned when the backend answers but reports itself unhealthy.
var ErrUnhealthy = errors.New("backend unhealthy")

// API sends calls to the backend.
type API interface {
	Do(ctx context.Context, call gateway.Call) error
}

// Client checks backend health.
type Client struct {
	api API

	// initialInterval seeds the exponential backoff used by Wait.
	initialInterval time.Duration
}

func New(api API) *Client {
	return &Client{
		api:             api,
		initialInterval: backoff.DefaultInitialInterval,
	}
}

// Check asks the backend for its health once. An unhealthy backend returns
// its status along with ErrUnhealthy.
func (c *Client) Check(ctx context.Context) (*models.HealthStatus, error) {
	var status models.HealthStatus
	err := c.api.Do(ctx, gateway.Call{
		Method:    http.MethodGet,
		Path:      pathHealth,
		Out:       &status,
		NoRefresh: true,
		Quiet:     true,
	})
	if err != nil {
		// 503 still carries the status payload
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable &&
			json.Unmarshal(apiErr.Body, &status) == nil && status.Status != "" {
			return &status, fmt.Errorf("%w: database %s", ErrUnhealthy, status.Database)
		}
		return nil, err
	}

	if !status.IsHealthy() {
		return &status, fmt.Errorf("%w: database %s", ErrUnhealthy, status.Database)
	}

	return &status, nil
}

// Wait polls Check with exponential backoff until the backend is healthy,
// maxWait elapses or ctx is done. Client errors such as a wrong base path
// stop the wait immediately.
func (c *Client) Wait(ctx context.Context, maxWait time.Duration) (*models.HealthStatus, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval

	attempt := 0
	operation := func() (*models.HealthStatus, error) {
		attempt++
		status, err := c.Check(ctx)
		if err == nil {
			return status, nil
		}

		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}

		log.Debug().Err(err).Int("attempt", attempt).Msg("backend not ready")
		return nil, err
	}

	status, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(maxWait),
	)
	if err != nil {
		return nil, fmt.Errorf("backend not healthy after %d attempts: %w", attempt, err)
	}

	return status, nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrUnhealthy) {
		return true
	}

	switch gateway.CategoryOf(err) {
	case gateway.CategoryNetwork, gateway.CategoryServer, gateway.CategoryRateLimited:
		return true
	default:
		return false
	}
}
