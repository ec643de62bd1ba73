// Package guest queries the in-guest agent that exposes which base disk
// image a virtual desktop booted from.
package guest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPort is the port the guest agent listens on when the host name
// carries no explicit port.
const DefaultPort = 7410

// Querier resolves the disk-image identifier of a single host. An empty
// identifier with a nil error means the host answered but reports no image.
type Querier interface {
	DiskImage(ctx context.Context, host string) (string, error)
}

// Client is the HTTP implementation of Querier. Each host is dialed
// directly on Port unless BaseURL routes every query through one address.
// The queried host always travels as a query parameter, so one listener
// can answer for many hosts.
type Client struct {
	Port       int
	HTTPClient *http.Client

	// BaseURL, when non-empty, is the single agent address (a relay or a
	// simulator) that serves disk-image queries for all hosts.
	BaseURL string
}

// NewClient returns a guest-agent client. The HTTP client carries no
// timeout of its own; callers bound each query through the context.
func NewClient(port int) *Client {
	if port == 0 {
		port = DefaultPort
	}
	return &Client{Port: port, HTTPClient: &http.Client{}}
}

type imageResponse struct {
	ImageID string `json:"imageId"`
}

// DiskImage asks the agent which base image host booted from. A host given
// as host:port overrides the configured agent port.
func (c *Client) DiskImage(ctx context.Context, host string) (string, error) {
	base := c.BaseURL
	if base == "" {
		addr := host
		if !strings.Contains(addr, ":") {
			addr += ":" + strconv.Itoa(c.Port)
		}
		base = "http://" + addr
	} else if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	base = strings.TrimSuffix(base, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		base+"/v1/disk-image?host="+url.QueryEscape(host), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("guest agent %s: %s: %s", host, resp.Status, strings.TrimSpace(string(data)))
	}

	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ImageID, nil
}

var _ Querier = (*Client)(nil)
