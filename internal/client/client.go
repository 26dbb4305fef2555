// Package client talks to the remote backtest simulation, share and trader APIs.
package client

import (
	"bytes"
	"context"
	"copin/types"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout = 60 * time.Second

	simulatePath = "/simulator/backtest"
	sharePath    = "/share"
	tradersPath  = "/traders/statistic"
)

var ErrEmptyShareID = errors.New("share endpoint returned no id")

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *zap.Logger
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type simulatePayload struct {
	Protocol types.Protocol        `json:"protocol"`
	Data     types.SimulateRequest `json:"data"`
}

type simulateResponse struct {
	Result []types.BackTestResultData `json:"result"`
}

// Simulate posts one request to the simulator. There is no retry.
func (c *Client) Simulate(ctx context.Context, protocol types.Protocol, req types.SimulateRequest) ([]types.BackTestResultData, error) {
	var resp simulateResponse
	payload := simulatePayload{Protocol: protocol, Data: req}
	if err := c.post(ctx, simulatePath, payload, &resp); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	return resp.Result, nil
}

type sharePayload struct {
	Protocol types.Protocol `json:"protocol"`
	types.ShareRequest
}

type shareResponse struct {
	ID string `json:"id"`
}

func (c *Client) Share(ctx context.Context, protocol types.Protocol, req types.ShareRequest) (string, error) {
	var resp shareResponse
	if err := c.post(ctx, sharePath, sharePayload{Protocol: protocol, ShareRequest: req}, &resp); err != nil {
		return "", fmt.Errorf("share: %w", err)
	}
	if resp.ID == "" {
		return "", ErrEmptyShareID
	}
	return resp.ID, nil
}

type tradersPayload struct {
	Protocol types.Protocol `json:"protocol"`
	Accounts []string       `json:"accounts"`
}

type tradersResponse struct {
	Data []types.TraderData `json:"data"`
}

// Traders looks up statistics for the given accounts, keyed by account.
func (c *Client) Traders(ctx context.Context, protocol types.Protocol, accounts []string) (map[string]types.TraderData, error) {
	out := make(map[string]types.TraderData, len(accounts))
	if len(accounts) == 0 {
		return out, nil
	}
	var resp tradersResponse
	if err := c.post(ctx, tradersPath, tradersPayload{Protocol: protocol, Accounts: accounts}, &resp); err != nil {
		return nil, fmt.Errorf("traders: %w", err)
	}
	for _, t := range resp.Data {
		out[t.Account] = t
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.log.Debug("api call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls "message" out of a JSON error body, falling back to the raw text.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
