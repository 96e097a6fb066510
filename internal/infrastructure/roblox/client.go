package roblox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/blox-verify/internal/domain"
	"github.com/blox-verify/internal/infrastructure/metrics"
)

var (
	// ErrNotFound means the platform answered and the user or asset does not exist.
	ErrNotFound = errors.New("roblox: not found")
	// ErrUnavailable covers transport failures, timeouts and unexpected statuses.
	ErrUnavailable = errors.New("roblox: unavailable")
)

// Endpoints holds the base URL of every platform API the client talks to.
type Endpoints struct {
	Users   string
	Thumbs  string
	Games   string
	Catalog string
	Groups  string
	Web     string
}

// DefaultEndpoints are the public production hosts.
var DefaultEndpoints = Endpoints{
	Users:   "https://users.roblox.com",
	Thumbs:  "https://thumbnails.roblox.com",
	Games:   "https://games.roblox.com",
	Catalog: "https://catalog.roblox.com",
	Groups:  "https://groups.roblox.com",
	Web:     "https://www.roblox.com",
}

// Client is a single-round-trip client for the public Roblox web APIs. It never retries.
type Client struct {
	endpoints Endpoints
	client    *http.Client
	metrics   *metrics.Metrics
}

// NewClient creates a client whose requests time out after timeout. m may be nil.
func NewClient(endpoints Endpoints, timeout time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
		metrics:   m,
	}
}

type usernamesRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type usernamesResponse struct {
	Data []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"data"`
}

// ResolveHandle maps a username to its numeric identity. Banned users are excluded.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (*domain.Identity, error) {
	body, err := json.Marshal(usernamesRequest{Usernames: []string{handle}, ExcludeBannedUsers: true})
	if err != nil {
		return nil, fmt.Errorf("marshal usernames request: %w", err)
	}
	var out usernamesResponse
	if err := c.do(ctx, http.MethodPost, c.endpoints.Users+"/v1/usernames/users", body, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		c.recordErr("not_found")
		return nil, fmt.Errorf("username %q: %w", handle, ErrNotFound)
	}
	u := out.Data[0]
	return &domain.Identity{ID: u.ID, Name: u.Name, DisplayName: u.DisplayName}, nil
}

// User is the public profile of a platform user.
type User struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description"`
	Created     time.Time `json:"created"`
	IsBanned    bool      `json:"isBanned"`
}

// FetchUser returns the public profile of id.
func (c *Client) FetchUser(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, c.endpoints.Users+"/v1/users/"+strconv.FormatInt(id, 10), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// FetchBio returns the free-text "About" field of id.
func (c *Client) FetchBio(ctx context.Context, id int64) (string, error) {
	u, err := c.FetchUser(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Description, nil
}

// Headshot returns the URL of a 150x150 circular avatar headshot.
func (c *Client) Headshot(ctx context.Context, id int64) (string, error) {
	q := url.Values{}
	q.Set("userIds", strconv.FormatInt(id, 10))
	q.Set("size", "150x150")
	q.Set("format", "Png")
	q.Set("isCircular", "true")

	var out struct {
		Data []struct {
			ImageURL string `json:"imageUrl"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, c.endpoints.Thumbs+"/v1/users/avatar-headshot?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 || out.Data[0].ImageURL == "" {
		return "", fmt.Errorf("headshot for %d: %w", id, ErrNotFound)
	}
	return out.Data[0].ImageURL, nil
}

// ProfileURL is the public profile page of id.
func (c *Client) ProfileURL(id int64) string {
	return fmt.Sprintf("%s/users/%d/profile", c.endpoints.Web, id)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.recordErr("transport")
		return fmt.Errorf("%s %s: %w: %w", method, req.URL.Path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.recordErr("not_found")
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		c.recordErr("status")
		return fmt.Errorf("%s %s: status %d: %w", method, req.URL.Path, resp.StatusCode, ErrUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.recordErr("decode")
		return fmt.Errorf("decode %s: %w: %w", req.URL.Path, ErrUnavailable, err)
	}
	return nil
}

func (c *Client) recordErr(kind string) {
	if c.metrics != nil {
		c.metrics.RecordLookupError(kind)
	}
}
