package flightsim

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/flightguard/internal/domain/telemetry"
	"github.com/okian/flightguard/internal/domain/types"
)

// maxErrorBody caps how much of a failed response is quoted in errors.
const maxErrorBody = 512

// Client talks to the compliance HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Health returns nil when /healthz answers 200.
func (c *Client) Health(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnhealthy, status, body)
	}
	return nil
}

// Check submits one telemetry sample.
func (c *Client) Check(ctx context.Context, raw telemetry.Raw) (types.CheckResult, error) {
	var res types.CheckResult
	err := c.call(ctx, http.MethodPost, "/compliance/check", raw, &res, http.StatusOK)
	return res, err
}

// Train requests a training run. The decoded result is returned even when
// the service refuses, so callers can read the reason.
func (c *Client) Train(ctx context.Context, wait bool) (types.TrainResult, error) {
	var res types.TrainResult
	path := "/compliance/train?wait=" + strconv.FormatBool(wait)
	err := c.call(ctx, http.MethodPost, path, nil, &res, http.StatusOK, http.StatusAccepted)
	return res, err
}

// ModelStatus fetches the serving model status.
func (c *Client) ModelStatus(ctx context.Context) (types.ModelStatus, error) {
	var st types.ModelStatus
	err := c.call(ctx, http.MethodGet, "/compliance/model-status", nil, &st, http.StatusOK)
	return st, err
}

// Stats fetches service counters.
func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	err := c.call(ctx, http.MethodGet, "/stats", nil, &st, http.StatusOK)
	return st, err
}

func (c *Client) call(ctx context.Context, method, path string, in, out any, accept ...int) error {
	status, body, err := c.do(ctx, method, path, in)
	if err != nil {
		return err
	}
	// Error bodies still decode where they share the success shape.
	decodeErr := json.Unmarshal(body, out)
	for _, ok := range accept {
		if status == ok {
			if decodeErr != nil {
				return fmt.Errorf("decode %s: %w", path, decodeErr)
			}
			return nil
		}
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Errorf("%w: %s %s: HTTP %d: %s", ErrUnexpectedStatus, method, path, status, bytes.TrimSpace(body))
}

func (c *Client) do(ctx context.Context, method, path string, in any) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}
