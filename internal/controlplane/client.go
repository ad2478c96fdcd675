// Package controlplane is the bot's client for the control plane API:
// liveness heartbeats, the event log and the authoritative bot status.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/meetbot/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// APIKeyHeader carries the bot's API key.
const APIKeyHeader = "x-api-key"

// Client wraps HTTP calls to the control plane.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client. A zero timeout uses DefaultClientTimeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type heartbeatRequest struct {
	ID     int64          `json:"id"`
	Events []models.Event `json:"events"`
}

type heartbeatResponse struct {
	Success bool `json:"success"`
}

type eventRequest struct {
	ID    int64        `json:"id"`
	Event models.Event `json:"event"`
}

type statusRequest struct {
	ID        int64                  `json:"id"`
	Status    models.LifecycleStatus `json:"status"`
	Recording string                 `json:"recording,omitempty"`
}

// Heartbeat asserts that the bot is alive.
func (c *Client) Heartbeat(ctx context.Context, botID int64) error {
	var resp heartbeatResponse
	req := heartbeatRequest{ID: botID, Events: []models.Event{}}
	if err := c.post(ctx, botPath(botID, "heartbeat"), req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return ErrHeartbeatRejected
	}
	return nil
}

// ReportEvent appends an event to the bot's log.
func (c *Client) ReportEvent(ctx context.Context, botID int64, event models.Event) error {
	return c.post(ctx, botPath(botID, "events"), eventRequest{ID: botID, Event: event}, nil)
}

// UpdateBotStatus sets the bot's status. The recording reference travels in
// the same request so status and recording change together.
func (c *Client) UpdateBotStatus(ctx context.Context, botID int64, status models.LifecycleStatus, recording string) error {
	req := statusRequest{ID: botID, Status: status, Recording: recording}
	return c.post(ctx, botPath(botID, "status"), req, nil)
}

func botPath(id int64, action string) string {
	return "/bots/" + strconv.FormatInt(id, 10) + "/" + action
}

func (c *Client) post(ctx context.Context, path string, data, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrBotNotFound
	case resp.StatusCode >= 400:
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
