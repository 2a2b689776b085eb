package fireplace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/fireplace-bridge/internal/infrastructure/config"
)

// Controller endpoints.
const (
	PathStatus = "/jsonSetings"
	PathPower  = "/analog"
	PathSave   = "/SAVE"
)

const (
	defaultTimeout = 5 * time.Second

	// maxBodySize caps how much of a response is read. The status document
	// is a few dozen bytes.
	maxBodySize = 64 * 1024
)

// Client talks to one fireplace controller.
//
// Thread Safety: safe for concurrent use. The poller and the command router
// share one Client.
type Client struct {
	base     *url.URL
	http     *http.Client
	method   string
	username string
	password string
}

// NewClient creates a client from the device configuration.
//
// Returns:
//   - *Client: Ready to use
//   - error: If the base URL is invalid
func NewClient(cfg config.DeviceConfig) (*Client, error) {
	base, err := cfg.ParsedBaseURL()
	if err != nil {
		return nil, fmt.Errorf("fireplace: invalid base url %q: %w", cfg.BaseURL, err)
	}

	timeout := cfg.GetHTTPTimeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	method := strings.ToUpper(cfg.CommandMethod)
	if method == "" {
		method = http.MethodGet
	}

	return &Client{
		base:     base,
		http:     &http.Client{Timeout: timeout},
		method:   method,
		username: cfg.Username,
		password: cfg.Password,
	}, nil
}

// BaseURL returns the controller address in use.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// FetchStatus reads and decodes the controller status.
//
// A transport failure or non-2xx status wraps ErrUnreachable or
// ErrUnexpectedStatus. A body that is not a JSON object wraps
// ErrMalformedBody. Per-field problems are reported on the Status fields.
func (c *Client) FetchStatus(ctx context.Context) (Status, error) {
	body, err := c.do(ctx, http.MethodGet, PathStatus, nil)
	if err != nil {
		return Status{}, err
	}
	return DecodeStatus(body)
}

// SendCommand issues a command request: path with query parameters, using
// the configured command method. The response body is ignored.
func (c *Client) SendCommand(ctx context.Context, path string, query url.Values) error {
	_, err := c.do(ctx, c.method, path, query)
	return err
}

// SetPower switches the fireplace on or off.
func (c *Client) SetPower(ctx context.Context, on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	return c.SendCommand(ctx, PathPower, url.Values{KeyPower: {value}})
}

// SetFireMode selects the flame program. Range checking is the caller's job.
func (c *Client) SetFireMode(ctx context.Context, mode int) error {
	return c.SendCommand(ctx, PathSave, url.Values{KeyFireMode: {strconv.Itoa(mode)}})
}

// SetAudioMode selects the sound program.
func (c *Client) SetAudioMode(ctx context.Context, mode int) error {
	return c.SendCommand(ctx, PathSave, url.Values{KeyAudioMode: {strconv.Itoa(mode)}})
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fireplace: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrUnreachable, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, method, path, resp.StatusCode)
	}

	return body, nil
}
