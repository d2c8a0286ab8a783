// Package generation talks to the remote media generation service.
package generation

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

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"flowstudio/application/ports"
	pkgerrors "flowstudio/pkg/errors"
	"flowstudio/pkg/observability"
)

const breakerName = "generation"

// Config holds the client settings.
type Config struct {
	BaseURL string
	APIKey  string
	// RequestTimeout bounds a single HTTP call. Zero leaves it to ctx.
	RequestTimeout time.Duration
	// MaxFailures is the number of consecutive server failures that opens
	// the breaker.
	MaxFailures int
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	HTTPClient  *http.Client
}

// Client implements ports.GenerationService over JSON/HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	metrics *observability.Collector
	tracer  *observability.Tracer
	logger  *zap.Logger
}

var _ ports.GenerationService = (*Client)(nil)

// statusError is a non-2xx reply. Only 5xx replies count against the
// breaker.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("generation service returned %d", e.code)
	}
	return fmt.Sprintf("generation service returned %d: %s", e.code, e.body)
}

// NewClient creates a client for the service at cfg.BaseURL.
func NewClient(cfg Config, metrics *observability.Collector, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, pkgerrors.NewValidationError("generation base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
		metrics: metrics,
		tracer:  observability.NewTracer("flowstudio/generation"),
		logger:  logger,
	}

	maxFailures := uint32(cfg.MaxFailures)
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			c.reportState(to)
		},
		IsSuccessful: isSuccessful,
	})
	c.reportState(gobreaker.StateClosed)

	return c, nil
}

func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code < 500
	}
	return false
}

func (c *Client) reportState(s gobreaker.State) {
	if c.metrics == nil {
		return
	}
	var v float64
	switch s {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	c.metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(v)
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) GenerateImage(ctx context.Context, req ports.ImageRequest) (ports.GenerationResult, error) {
	return c.call(ctx, "/v1/images", req)
}

func (c *Client) GenerateVideo(ctx context.Context, req ports.VideoRequest) (ports.GenerationResult, error) {
	return c.call(ctx, "/v1/videos", req)
}

func (c *Client) GenerateModel(ctx context.Context, req ports.ModelRequest) (ports.GenerationResult, error) {
	return c.call(ctx, "/v1/models", req)
}

func (c *Client) RemoveBackground(ctx context.Context, imageURL string) (ports.GenerationResult, error) {
	return c.call(ctx, "/v1/background-removal", struct {
		ImageURL string `json:"image_url"`
	}{ImageURL: imageURL})
}

func (c *Client) call(ctx context.Context, path string, body any) (ports.GenerationResult, error) {
	ctx, span := c.tracer.StartSpan(ctx, "generation.call", attribute.String("path", path))
	defer span.End()
	c.tracer.AddAnnotation(ctx, "breaker.state", c.breaker.State().String())

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, path, body)
	})
	if err != nil {
		c.tracer.RecordError(ctx, err)
		return ports.GenerationResult{}, c.translate(ctx, path, err)
	}
	return out.(ports.GenerationResult), nil
}

func (c *Client) translate(ctx context.Context, path string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.logger.Warn("Generation request rejected by circuit breaker", zap.String("path", path))
		return pkgerrors.NewUnavailableError("generation service").WithCause(err)
	case ctx.Err() != nil:
		return ctx.Err()
	}

	var se *statusError
	if errors.As(err, &se) && se.code < 500 {
		return pkgerrors.NewExternalError("generation service", err).WithCode(fmt.Sprintf("HTTP_%d", se.code))
	}
	c.logger.Error("Generation request failed", zap.String("path", path), zap.Error(err))
	return pkgerrors.NewExternalError("generation service", err)
}

func (c *Client) post(ctx context.Context, path string, body any) (ports.GenerationResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return ports.GenerationResult{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return ports.GenerationResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return ports.GenerationResult{}, err
	}
	defer resp.Body.Close()
	c.logger.Debug("Generation response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ports.GenerationResult{}, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	var result ports.GenerationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ports.GenerationResult{}, fmt.Errorf("decode response: %w", err)
	}
	if result.URL == "" {
		return ports.GenerationResult{}, errors.New("response carried no media url")
	}
	return result, nil
}
