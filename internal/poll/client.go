// Package poll is the REST catch-up path for dashboards that cannot hold a
// socket open. It reads the same watermark queries the relay serves live,
// so repeated polls return only new pings.
package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"backend-fleettrack/internal/location"
)

type Client struct {
	base  string
	http  *http.Client
	token string
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		http:  &http.Client{Timeout: 10 * time.Second},
		token: token,
	}
}

// ActiveBuses returns the latest ping per active trip with route metadata.
func (c *Client) ActiveBuses(ctx context.Context) ([]location.ActivePosition, error) {
	var positions []location.ActivePosition
	if err := c.get(ctx, "/location/active", &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// Positions returns pings for a bus strictly newer than the since
// watermark. A nil since returns the full retained history.
func (c *Client) Positions(ctx context.Context, busNumber string, since *time.Time) ([]location.Ping, error) {
	path := "/location/bus/" + url.PathEscape(busNumber)
	if since != nil {
		path += "?since=" + url.QueryEscape(since.Format(time.RFC3339))
	}
	var pings []location.Ping
	if err := c.get(ctx, path, &pings); err != nil {
		return nil, err
	}
	return pings, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll: GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
