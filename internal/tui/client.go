package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/statusserver"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 5 * time.Second

// Client wraps HTTP calls to a bot's status server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout. addr may be a bare
// host:port.
func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// Health fetches /health.
func (c *Client) Health() (*statusserver.HealthResponse, error) {
	var h statusserver.HealthResponse
	if err := c.get("/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Status fetches the live snapshot.
func (c *Client) Status() (*statusserver.Snapshot, error) {
	var snap statusserver.Snapshot
	if err := c.get("/status", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListRuns fetches recent runs.
func (c *Client) ListRuns(limit int) ([]RunItem, error) {
	var runs []models.Run
	if err := c.get("/runs?limit="+strconv.Itoa(limit), &runs); err != nil {
		return nil, err
	}
	items := make([]RunItem, len(runs))
	for i, r := range runs {
		items[i] = RunItem{Run: r}
	}
	return items, nil
}

// ListEvents fetches the journalled events of a run.
func (c *Client) ListEvents(runID string) ([]models.EventRecord, error) {
	var events []models.EventRecord
	if err := c.get("/runs/"+runID+"/events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s", strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
