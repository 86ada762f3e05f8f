// Package httputil holds the debug HTTP surface: the tsweb debug mux that
// exposes sweep progress and metrics, JSON response helpers, and a client
// for reading that progress from another process.
package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxStateSize bounds a decoded state document.
const maxStateSize = 4 << 20

// StateClient reads the JSON state served by a debug mux.
type StateClient struct {
	HTTP    HTTPClient
	BaseURL string
}

// NewStateClient returns a client for the debug server at addr, which may
// be a host:port or a full URL.
func NewStateClient(c HTTPClient, addr string) *StateClient {
	if c == nil {
		c = http.DefaultClient
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &StateClient{HTTP: c, BaseURL: strings.TrimRight(addr, "/")}
}

// SweepState decodes the sweep state into v.
func (c *StateClient) SweepState(ctx context.Context, v any) error {
	return c.getJSON(ctx, SweepStatePath, v)
}

func (c *StateClient) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStateSize))
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var e errorBody
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("get %s: %s: %s", path, resp.Status, e.Error)
		}
		return fmt.Errorf("get %s: %s", path, resp.Status)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
