// Package detect is a client for the UI-element detection service.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// BoundingBox is an element region in pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is an element center in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Element is one detected UI element.
type Element struct {
	ID          int         `json:"id"`
	Type        string      `json:"type"`
	Content     string      `json:"content"`
	BoundingBox BoundingBox `json:"boundingBox"`
	Center      Point       `json:"center"`
	Interactive bool        `json:"interactive"`
}

// Result is a detection response.
type Result struct {
	AnnotatedImage []byte    `json:"annotatedImage,omitempty"`
	Elements       []Element `json:"elements"`
}

// Detector finds UI elements in a screenshot.
type Detector interface {
	Detect(ctx context.Context, image []byte, width, height int) (*Result, error)
}

// Config configures a Client.
type Config struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	MaxRetries uint
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client calls a detection service over HTTP.
type Client struct {
	url        string
	apiKey     string
	maxRetries uint
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a detection client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("detector url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "detect").Logger(),
	}, nil
}

type detectRequest struct {
	Image  []byte `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Detect posts the image and returns the detected elements. Server errors
// and transport failures are retried; client errors are not.
func (c *Client) Detect(ctx context.Context, image []byte, width, height int) (*Result, error) {
	body, err := json.Marshal(detectRequest{Image: image, Width: width, Height: height})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	result, err := backoff.Retry(ctx, func() (*Result, error) {
		return c.post(ctx, body)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug().Err(err).Dur("retryIn", next).Msg("Detection failed, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("elements", len(result.Elements)).
		Dur("duration", time.Since(start)).
		Msg("Detection complete")
	return result, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("failed to call detector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
		if resp.StatusCode < http.StatusInternalServerError {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return &result, nil
}

// StatusError reports a non-200 detector response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("detector error (status %d): %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
