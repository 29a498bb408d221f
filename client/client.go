// Package client talks to the alert API on behalf of one signed-in user.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linesmerrill/planner-alerts/models"
	"github.com/linesmerrill/planner-alerts/reconciler"
)

// Client calls the alert API with a user token.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New returns a client for baseURL authenticated with token.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// StatusError is a non 2xx answer from the API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// FeedURL is the websocket endpoint of the alert feed.
func (c *Client) FeedURL() string {
	u := c.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws/alerts"
}

// FindByOwner lists the user's alerts. The API scopes the list to the token's user.
func (c *Client) FindByOwner(ctx context.Context, ownerID string) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := c.do(ctx, http.MethodGet, "/api/v1/alerts", nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// MarkRead flags one alert read.
func (c *Client) MarkRead(ctx context.Context, ownerID, alertID string) error {
	return c.do(ctx, http.MethodPut, "/api/v1/alerts/"+url.PathEscape(alertID)+"/read", nil, nil)
}

// Delete removes one alert.
func (c *Client) Delete(ctx context.Context, ownerID, alertID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/alerts/"+url.PathEscape(alertID), nil, nil)
}

// SaveToken registers this installation's push token.
func (c *Client) SaveToken(ctx context.Context, token models.DeviceToken) error {
	req := models.RegisterPushTokenRequest{Token: token.Token, Platform: string(token.Platform)}
	return c.do(ctx, http.MethodPost, "/api/v1/push-tokens", req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, reconciler.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
