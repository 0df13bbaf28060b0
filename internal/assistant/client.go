package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout    = 30 * time.Second
	maxResponseLength = 1 << 20
)

var (
	// ErrUnavailable indicates the completion endpoint could not be reached or
	// returned a server error.
	ErrUnavailable = errors.New("assistant: completion endpoint unavailable")
	// ErrRejected indicates the completion endpoint rejected the request.
	ErrRejected = errors.New("assistant: request rejected")
	// ErrEmptyAnswer indicates the endpoint returned no usable answer.
	ErrEmptyAnswer = errors.New("assistant: empty answer")
)

// Client calls the business-question completion endpoint. The endpoint is a
// black box: prompt text in, answer text out.
type Client struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
}

// ClientOption customises client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the request timeout when no custom HTTP client is supplied.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs an assistant completion client.
func NewClient(endpoint, authToken string, opts ...ClientOption) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("assistant: endpoint is required")
	}

	client := &Client{
		endpoint:   endpoint,
		authToken:  strings.TrimSpace(authToken),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// Complete sends the prompt and returns the raw answer text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", ErrUnavailable
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrRejected)
	}

	payload, err := json.Marshal(completionRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("assistant: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("assistant: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLength))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var decoded completionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrRejected, decoded.Error)
	}

	answer := strings.TrimSpace(decoded.Answer)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}
