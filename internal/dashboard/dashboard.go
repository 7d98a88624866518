// Package dashboard fetches the data behind the dashboard stat widgets.
package dashboard

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wolfeidau/eddits-console/internal/gateway"
	"github.com/wolfeidau/eddits-console/internal/models"
)

const (
	pathStats           = "/dashboard/stats/"
	pathEventsAnalytics = "/dashboard/analytics/events/"
	pathMediaAnalytics  = "/dashboard/analytics/media/"
	pathUserAnalytics   = "/dashboard/analytics/users/"
)

// API sends calls to the backend.
type API interface {
	Do(ctx context.Context, call gateway.Call) error
}

// Client reads dashboard statistics. Calls go through the gateway, so an
// expired access token is refreshed transparently.
type Client struct {
	api API
}

func New(api API) *Client {
	return &Client{api: api}
}

// Stats returns the overview counts, recent uploads, popular events, recent
// activity and the monthly series.
func (c *Client) Stats(ctx context.Context) (*models.DashboardStats, error) {
	var stats models.DashboardStats
	if err := c.get(ctx, pathStats, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Events returns per-event media and client counts for every event.
func (c *Client) Events(ctx context.Context) (*models.EventAnalyticsList, error) {
	var list models.EventAnalyticsList
	if err := c.get(ctx, pathEventsAnalytics, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Event returns analytics for a single event by its numeric ID.
func (c *Client) Event(ctx context.Context, id int) (*models.EventAnalytics, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid event id %d", id)
	}

	var ev models.EventAnalytics
	if err := c.get(ctx, fmt.Sprintf("%s%d/", pathEventsAnalytics, id), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Media returns the media distribution, recent and featured counts, the
// daily upload series for the last 30 days and the top events by media.
func (c *Client) Media(ctx context.Context) (*models.MediaAnalytics, error) {
	var media models.MediaAnalytics
	if err := c.get(ctx, pathMediaAnalytics, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// Users returns user and client counts, registration trends and recent sign ups.
func (c *Client) Users(ctx context.Context) (*models.UserAnalytics, error) {
	var users models.UserAnalytics
	if err := c.get(ctx, pathUserAnalytics, &users); err != nil {
		return nil, err
	}
	return &users, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.api.Do(ctx, gateway.Call{Method: http.MethodGet, Path: path, Out: out})
}
