// Package monitor renders a live terminal view of the gate server:
// one row per feature with usage, lock state and a cooldown countdown,
// refreshed by polling the HTTP API.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JillVernus/feature-gate/internal/quota"
)

// Snapshot is the result of one poll against the gate server.
type Snapshot struct {
	ActiveTier string
	Statuses   []quota.GateStatus
	FetchedAt  time.Time
}

// Client fetches gate state over the server's HTTP API.
type Client struct {
	baseURL string
	key     string
	httpc   *http.Client
}

// NewClient builds a client for the given server base URL. The key is
// sent as x-api-key on every request; pass "" for an unprotected
// server. Request deadlines come from the caller's context.
func NewClient(baseURL, key string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		httpc:   &http.Client{},
	}
}

// Fetch polls the feature statuses and the active tier.
func (c *Client) Fetch(ctx context.Context) (*Snapshot, error) {
	var statuses []quota.GateStatus
	if err := c.getJSON(ctx, "/api/features", &statuses); err != nil {
		return nil, err
	}

	var cfg struct {
		ActiveTier string `json:"activeTier"`
	}
	if err := c.getJSON(ctx, "/api/limits", &cfg); err != nil {
		return nil, err
	}

	return &Snapshot{
		ActiveTier: cfg.ActiveTier,
		Statuses:   statuses,
		FetchedAt:  time.Now(),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.key != "" {
		req.Header.Set("x-api-key", c.key)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("GET %s: %d: %s", path, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}
