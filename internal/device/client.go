// Package device talks to the sensor's embedded HTTP server: the sample
// buffer endpoint and the enable/disable callbacks.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrActionFailed wraps every failed enable/disable call.
var ErrActionFailed = errors.New("device action failed")

// Action is one of the device-side control endpoints.
type Action string

const (
	ActionStart Action = "H"
	ActionStop  Action = "L"
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	default:
		return string(a)
	}
}

// maxBodyBytes bounds the /data payload; a week of 1 minute samples is well under this.
const maxBodyBytes = 4 << 20

// Client is a retry-less HTTP client for one sensor.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.SugaredLogger
}

// NewClient creates a client for the device at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("device"),
	}
}

// FetchSamples retrieves the raw sample buffer, most recent last. Transport
// errors, non-2xx statuses and malformed bodies are all returned as errors.
func (c *Client) FetchSamples(ctx context.Context) ([]float64, error) {
	resp, err := c.get(ctx, "/data")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var raw []float64
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode sample buffer: %w", err)
	}

	c.logger.Debugw("fetched samples", "count", len(raw))
	return raw, nil
}

// Start enables the device (GET /H).
func (c *Client) Start(ctx context.Context) error {
	return c.Do(ctx, ActionStart)
}

// Stop disables the device (GET /L).
func (c *Client) Stop(ctx context.Context) error {
	return c.Do(ctx, ActionStop)
}

// Do performs a control call. Any 2xx status is success; everything else is
// reported as ErrActionFailed.
func (c *Client) Do(ctx context.Context, a Action) error {
	resp, err := c.get(ctx, "/"+string(a))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrActionFailed, a, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: unexpected status code %d", ErrActionFailed, a, resp.StatusCode)
	}

	c.logger.Infow("device action succeeded", "action", a.String())
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device: %w", err)
	}
	return resp, nil
}
