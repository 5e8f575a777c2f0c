// Package vapi is a thin client for the Vapi voice-agent API: starting
// outbound calls, fetching call snapshots, and parsing webhooks into
// normalized results.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/circuitbreaker"
	"github.com/jkindrix/callbridge/internal/metrics"
)

const (
	// DefaultBaseURL is the default Vapi API endpoint.
	DefaultBaseURL = "https://api.vapi.ai"

	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// minCompleteTranscript is the transcript length below which a call
	// snapshot is not yet considered enriched.
	minCompleteTranscript = 50
)

// Config holds configuration for the Vapi client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client is the Vapi API client.
type Client struct {
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

// New creates a new Vapi API client.
func New(cfg *Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	cbConfig := &circuitbreaker.Config{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		circuitBreaker: circuitbreaker.New("vapi-api", cbConfig, logger),
		logger:         logger,
	}
}

// APIError represents an error response from the Vapi API.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Err        string `json:"error,omitempty"`
}

func (e *APIError) Error() string {
	if e.Err != "" {
		return fmt.Sprintf("vapi API error %d: %s (%s)", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("vapi API error %d: %s", e.StatusCode, e.Message)
}

// SetMetrics attaches vendor API counters. Optional.
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// StartCall queues an outbound call and returns once the vendor accepts it.
func (c *Client) StartCall(ctx context.Context, req *StartCallRequest) (*StartCallResponse, error) {
	var resp StartCallResponse
	if err := c.request(ctx, "start_call", http.MethodPost, "/call", req, &resp); err != nil {
		return nil, fmt.Errorf("start call to %s: %w", req.Customer.Number, err)
	}

	c.logger.Info("call queued",
		zap.String("call_id", resp.ID),
		zap.String("status", resp.Status),
	)
	return &resp, nil
}

// GetCall fetches the full call snapshot.
func (c *Client) GetCall(ctx context.Context, callID string) (*Call, error) {
	var call Call
	if err := c.request(ctx, "get_call", http.MethodGet, "/call/"+callID, nil, &call); err != nil {
		return nil, fmt.Errorf("get call %s: %w", callID, err)
	}
	return &call, nil
}

// IsDataComplete reports whether a snapshot carries everything enrichment
// needs: an ended call, a substantive transcript, and analysis output.
func IsDataComplete(call *Call) bool {
	if call == nil || call.Status != CallStateEnded {
		return false
	}
	if len(call.BestTranscript()) <= minCompleteTranscript {
		return false
	}
	if call.Analysis == nil {
		return false
	}
	return call.Analysis.Summary != "" || call.Analysis.StructuredData != nil
}

// IsCircuitOpen reports whether the vendor circuit breaker is open.
func (c *Client) IsCircuitOpen() bool {
	return c.circuitBreaker.IsOpen()
}

// request performs an HTTP request with circuit breaker protection.
func (c *Client) request(ctx context.Context, operation, method, path string, body, result interface{}) error {
	start := time.Now()
	err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return c.doRequest(ctx, method, path, body, result)
	})
	if c.metrics != nil {
		c.metrics.RecordVendorAPICall(operation, err == nil, time.Since(start))
		c.metrics.SetCircuitBreakerState("vapi", gaugeState(c.circuitBreaker.State()))
	}
	return err
}

// gaugeState maps breaker states onto the 0=closed 1=half-open 2=open
// gauge convention.
func gaugeState(s circuitbreaker.State) int {
	switch s {
	case circuitbreaker.StateHalfOpen:
		return 1
	case circuitbreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("vapi API request",
		zap.String("method", method),
		zap.String("path", path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr == nil && apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		apiErr.StatusCode = resp.StatusCode
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
