package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxRetries   = 2
	defaultRetryBackoff = 500 * time.Millisecond
)

type Option func(*apiClient)

func WithBaseURL(baseURL string) Option {
	return func(c *apiClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *apiClient) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *apiClient) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithRetryBackoff(d time.Duration) Option {
	return func(c *apiClient) {
		c.backoff = d
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *apiClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

type apiClient struct {
	provider   Method
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

func newAPIClient(provider Method, baseURL string, opts ...Option) *apiClient {
	c := &apiClient{
		provider:   provider,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		backoff:    defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	StatusCode int
	Body       []byte
}

// do sends one logical request. Connection failures and gateway errors are
// retried; any other response is returned to the caller to interpret.
func (c *apiClient) do(ctx context.Context, method, path, secretKey string, payload interface{}) (*apiResponse, error) {
	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &ProviderError{Provider: c.provider, Kind: KindProtocol, Message: "failed to encode request", Err: err}
		}
		body = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * c.backoff
			log.Printf("Retrying %s %s (attempt %d) after %v: %v", method, path, attempt+1, wait, lastErr)
			select {
			case <-ctx.Done():
				return nil, &ProviderError{Provider: c.provider, Kind: KindNetwork, Message: "request cancelled", Err: ctx.Err()}
			case <-time.After(wait):
			}
		}

		resp, err := c.once(ctx, method, path, secretKey, body)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if isGatewayStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			continue
		}
		return resp, nil
	}

	return nil, &ProviderError{Provider: c.provider, Kind: KindNetwork, Message: "provider unreachable", Err: lastErr}
}

func (c *apiClient) once(ctx context.Context, method, path, secretKey string, body []byte) (*apiResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &apiResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *apiClient) decode(resp *apiResponse, v interface{}) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return &ProviderError{
			Provider: c.provider,
			Kind:     KindProtocol,
			Message:  fmt.Sprintf("unreadable response (status %d)", resp.StatusCode),
			Err:      err,
		}
	}
	return nil
}

func isGatewayStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}
