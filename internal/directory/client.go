package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Client implements interfaces.Directory against the account/application
// directory's JSON API. Every call is bounded by the configured timeout; the
// original system had no bound, which let a slow directory hang the auth
// handshake indefinitely.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// Config holds directory client settings.
type Config struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns directory settings with a 10 second call bound.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:9090",
		Timeout: 10 * time.Second,
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("directory base URL cannot be empty")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid directory base URL: %w", err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("directory timeout must be positive")
	}
	return nil
}

// NewClient creates a directory client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		timeout:    cfg.Timeout,
	}, nil
}

// FindApplicationByID resolves an application record by id.
func (c *Client) FindApplicationByID(ctx context.Context, id int64) (*types.Application, error) {
	var app types.Application
	status, err := c.getJSON(ctx, "/apps/"+strconv.FormatInt(id, 10), &app)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, interfaces.ErrApplicationNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d for application %d", status, id)
	}
	return &app, nil
}

// tokenResponse is the directory's answer for a token hash lookup: either a
// user record or an explicit error marker.
type tokenResponse struct {
	types.User
	Error string `json:"error"`
}

// FindUserByTokenHash resolves a token hash to a user record. The directory
// signals a bad token with an INVALID_ACCESS_TOKEN error payload rather than
// an HTTP failure, so that case maps to ErrInvalidToken; any other error
// payload is a directory fault and everything else is a transport error.
func (c *Client) FindUserByTokenHash(ctx context.Context, hash string) (*types.User, error) {
	var resp tokenResponse
	status, err := c.getJSON(ctx, "/hashed-tokens/"+url.PathEscape(hash), &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || resp.Error == types.CodeInvalidToken {
		return nil, interfaces.ErrInvalidToken
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("directory returned error %q for token lookup", resp.Error)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("directory returned status %d for token lookup", status)
	}
	user := resp.User
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("directory returned invalid user record: %w", err)
	}
	return &user, nil
}

// getJSON performs a GET and decodes the body into out. A decode is skipped
// for 404 responses, whose bodies are not part of the contract.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("directory request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode directory response: %w", err)
	}
	return resp.StatusCode, nil
}
