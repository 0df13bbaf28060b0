package fiscal

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
	maxResponseLength = 4 << 20
)

var (
	// ErrUnavailable indicates the fiscal provider could not be reached or
	// returned a server error. Emission stays pending for manual retry.
	ErrUnavailable = errors.New("fiscal: provider unavailable")
	// ErrRejected indicates the provider refused the emission request.
	ErrRejected = errors.New("fiscal: emission rejected")
)

// EmissionRequest carries the sale data submitted to the fiscal provider.
type EmissionRequest struct {
	SaleID      string         `json:"sale_id"`
	Unit        string         `json:"unit"`
	Document    string         `json:"document,omitempty"`
	TotalCents  int64          `json:"total_cents"`
	Method      string         `json:"payment_method"`
	Lines       []EmissionLine `json:"lines"`
	RequestedAt time.Time      `json:"requested_at"`
	Idempotency string         `json:"idempotency_key,omitempty"`
}

// EmissionLine is one sale line in an emission request.
type EmissionLine struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitCents   int64  `json:"unit_cents"`
	TotalCents  int64  `json:"total_cents"`
}

// EmissionResult is the provider's synchronous response: an opaque access key
// plus the rendered XML document. Authorization may still arrive later via
// webhook.
type EmissionResult struct {
	AccessKey string `json:"access_key"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	XML       []byte `json:"xml,omitempty"`
}

// WebhookPayload is the status callback delivered by the provider.
type WebhookPayload struct {
	AccessKey  string    `json:"access_key"`
	SaleID     string    `json:"sale_id"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Webhook status values reported by the provider.
const (
	WebhookStatusAuthorized = "authorized"
	WebhookStatusRejected   = "rejected"
)

// Client submits emission requests to the fiscal provider endpoint.
type Client struct {
	endpoint   string
	apiKey     string
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

// NewClient constructs a fiscal provider client.
func NewClient(endpoint, apiKey string, opts ...ClientOption) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("fiscal: endpoint is required")
	}

	client := &Client{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Emit submits an emission request and returns the provider result.
func (c *Client) Emit(ctx context.Context, req EmissionRequest) (EmissionResult, error) {
	if c == nil || c.httpClient == nil {
		return EmissionResult{}, ErrUnavailable
	}
	if strings.TrimSpace(req.SaleID) == "" {
		return EmissionResult{}, fmt.Errorf("%w: sale id is required", ErrRejected)
	}
	if len(req.Lines) == 0 {
		return EmissionResult{}, fmt.Errorf("%w: at least one line is required", ErrRejected)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return EmissionResult{}, fmt.Errorf("fiscal: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return EmissionResult{}, fmt.Errorf("fiscal: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-Api-Key", c.apiKey)
	}
	if key := strings.TrimSpace(req.Idempotency); key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return EmissionResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseLength))
	if err != nil {
		return EmissionResult{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return EmissionResult{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return EmissionResult{}, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, rejectionDetail(body))
	}

	var result EmissionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return EmissionResult{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(result.AccessKey) == "" {
		return EmissionResult{}, fmt.Errorf("%w: missing access key", ErrUnavailable)
	}
	return result, nil
}

func rejectionDetail(body []byte) string {
	var decoded struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil {
		if decoded.Detail != "" {
			return decoded.Detail
		}
		if decoded.Error != "" {
			return decoded.Error
		}
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 200 {
		trimmed = trimmed[:200]
	}
	return trimmed
}
