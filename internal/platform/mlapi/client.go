// Package mlapi talks to the external CHD prediction service.
package mlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// DefaultModel is used when a caller does not pick one.
const DefaultModel = "voting_ensemble"

// ErrServiceDown wraps transport failures where the ML service could not be
// reached at all (connection refused).
var ErrServiceDown = errors.New("ml api unreachable")

// StatusError is returned for any non-2xx response. Message carries the
// upstream "error" field when the body had one.
type StatusError struct {
	StatusCode int
	Message    string
	Body       json.RawMessage
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("ml api returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("ml api returned %d", e.StatusCode)
}

type Probabilities struct {
	LowRisk  *float64 `json:"low_risk"`
	HighRisk *float64 `json:"high_risk"`
}

// Prediction is the /predict response body.
type Prediction struct {
	Result           int                    `json:"result"`
	RiskLevel        string                 `json:"prediction"`
	Probability      *float64               `json:"probability"`
	Probabilities    Probabilities          `json:"probabilities"`
	ModelUsed        string                 `json:"model_used"`
	ModelDisplayName string                 `json:"model_display_name"`
	Metrics          map[string]interface{} `json:"metrics"`
	Confidence       *float64               `json:"confidence"`
}

type predictRequest struct {
	Model     string      `json:"model"`
	InputData interface{} `json:"inputData"`
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithObserver registers a callback invoked after every call with the
// endpoint name, whether it succeeded, and how long it took.
func WithObserver(fn func(endpoint string, ok bool, d time.Duration)) Option {
	return func(cl *Client) { cl.observe = fn }
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	observe    func(endpoint string, ok bool, d time.Duration)
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict sends the derived feature set for one patient to /predict.
func (c *Client) Predict(ctx context.Context, model string, input interface{}) (*Prediction, error) {
	if model == "" {
		model = DefaultModel
	}
	body, err := json.Marshal(predictRequest{Model: model, InputData: input})
	if err != nil {
		return nil, fmt.Errorf("encode predict request: %w", err)
	}

	raw, err := c.do(ctx, "predict", http.MethodPost, "/predict", body)
	if err != nil {
		return nil, err
	}

	var p Prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}
	return &p, nil
}

// Models returns the /models body unchanged.
func (c *Client) Models(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, "models", http.MethodGet, "/models", nil)
}

func (c *Client) ModelComparison(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, "model_comparison", http.MethodGet, "/model-comparison", nil)
}

func (c *Client) ModelMetrics(ctx context.Context, model string) (json.RawMessage, error) {
	return c.do(ctx, "model_metrics", http.MethodGet, "/model-metrics/"+url.PathEscape(model), nil)
}

func (c *Client) Health(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, "health", http.MethodGet, "/health", nil)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body []byte) (raw json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		if c.observe != nil {
			c.observe(endpoint, err == nil, time.Since(start))
		}
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %v", ErrServiceDown, err)
		}
		return nil, fmt.Errorf("call ml api %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode}
		if json.Valid(data) {
			se.Body = data
			var e struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(data, &e) == nil {
				se.Message = e.Error
			}
		}
		return nil, se
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("ml api %s returned invalid JSON", endpoint)
	}
	return data, nil
}
