package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// API is the contract the sweep engine needs from a management endpoint.
// Client implements it over the broker's HTTP interface; tests substitute
// in-memory fakes.
type API interface {
	Endpoint() string
	Health(ctx context.Context) (Health, error)
	Site(ctx context.Context) (Site, error)
	ListAvailableMachines(ctx context.Context, max int) ([]Machine, error)
	ListSessions(ctx context.Context, max int) ([]Session, error)
	GetMachine(ctx context.Context, id string) (Machine, error)
	GetSession(ctx context.Context, id string) (Session, error)
	Restart(ctx context.Context, machineID string) (string, error)
	Notify(ctx context.Context, sessionID, title, text string) error
	Task(ctx context.Context, taskID string) (Task, error)
}

// Client talks to one management endpoint's HTTP API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a client bound to the given endpoint address.
func New(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	base := endpoint
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{BaseURL: strings.TrimRight(base, "/"), HTTPClient: httpClient}
}

// Endpoint returns the address this client was created with.
func (c *Client) Endpoint() string {
	return c.BaseURL
}

// Health queries both subsystem health states in one call.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/v1/health", nil, &h)
	return h, err
}

// Site fetches the site identity behind the endpoint.
func (c *Client) Site(ctx context.Context) (Site, error) {
	var s Site
	err := c.do(ctx, http.MethodGet, "/v1/site", nil, &s)
	return s, err
}

// ListAvailableMachines lists unoccupied machines, capped at max records.
func (c *Client) ListAvailableMachines(ctx context.Context, max int) ([]Machine, error) {
	path := "/v1/machines?state=available&max=" + strconv.Itoa(max)
	var machines []Machine
	if err := c.do(ctx, http.MethodGet, path, nil, &machines); err != nil {
		return nil, err
	}
	return machines, nil
}

// ListSessions lists user sessions, capped at max records.
func (c *Client) ListSessions(ctx context.Context, max int) ([]Session, error) {
	path := "/v1/sessions?max=" + strconv.Itoa(max)
	var sessions []Session
	if err := c.do(ctx, http.MethodGet, path, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetMachine fetches the live state of a single machine.
func (c *Client) GetMachine(ctx context.Context, id string) (Machine, error) {
	var m Machine
	err := c.do(ctx, http.MethodGet, "/v1/machines/"+url.PathEscape(id), nil, &m)
	return m, err
}

// GetSession fetches the live state of a single session.
func (c *Client) GetSession(ctx context.Context, id string) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil, &s)
	return s, err
}

// Restart submits an asynchronous restart for a machine and returns the
// broker's task identity.
func (c *Client) Restart(ctx context.Context, machineID string) (string, error) {
	var task Task
	path := "/v1/machines/" + url.PathEscape(machineID) + "/restart"
	if err := c.do(ctx, http.MethodPost, path, nil, &task); err != nil {
		return "", err
	}
	if task.ID == "" {
		return "", fmt.Errorf("broker returned restart task without an id")
	}
	return task.ID, nil
}

// Notify sends a user-facing message to a session. Delivery is synchronous
// from the caller's point of view.
func (c *Client) Notify(ctx context.Context, sessionID, title, text string) error {
	payload := map[string]string{"title": title, "text": text}
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/message"
	return c.do(ctx, http.MethodPost, path, payload, nil)
}

// Task fetches the current state of an asynchronous power action.
func (c *Client) Task(ctx context.Context, taskID string) (Task, error) {
	var t Task
	err := c.do(ctx, http.MethodGet, "/v1/tasks/"+url.PathEscape(taskID), nil, &t)
	return t, err
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("broker %s %s: %s: %s",
			method, path, resp.Status, strings.TrimSpace(string(data)))
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
