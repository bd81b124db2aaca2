package channel

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// DefaultRequestTimeout bounds a single command round trip.
	DefaultRequestTimeout = 2 * time.Minute
	// MaxRequestTimeout bounds long-running capture operations.
	MaxRequestTimeout = 30 * time.Minute
	// DefaultBarrierTimeout bounds how long a send waits for reconnection.
	DefaultBarrierTimeout = 30 * time.Second
	// DefaultMaxAttempts is the total number of attempts per send.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the pause before a retry when no reconnection is running.
	DefaultRetryDelay = 250 * time.Millisecond
)

// Options configures a Channel.
type Options struct {
	URL          string
	SharedSecret string
	// Token is sent as a bearer Authorization header on every dial.
	Token string
	// Spec describes the session to create.
	Spec map[string]interface{}

	RequestTimeout   time.Duration
	BarrierTimeout   time.Duration
	HandshakeTimeout time.Duration
	RetryDelay       time.Duration
	MaxAttempts      int

	// ReconnectAttempts bounds redials after a transport loss; zero means 10.
	ReconnectAttempts        uint
	ReconnectInitialInterval time.Duration
	ReconnectMaxInterval     time.Duration

	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

func (o *Options) validate() error {
	if o.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(o.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
	if o.SharedSecret == "" {
		return fmt.Errorf("shared secret is required")
	}
	if o.MaxAttempts < 0 {
		return fmt.Errorf("invalid max attempts: %d", o.MaxAttempts)
	}
	if o.RequestTimeout > MaxRequestTimeout {
		return fmt.Errorf("request timeout exceeds %s", MaxRequestTimeout)
	}
	return nil
}

func (o *Options) applyDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.BarrierTimeout <= 0 {
		o.BarrierTimeout = DefaultBarrierTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.ReconnectAttempts == 0 {
		o.ReconnectAttempts = 10
	}
	if o.ReconnectInitialInterval <= 0 {
		o.ReconnectInitialInterval = 200 * time.Millisecond
	}
	if o.ReconnectMaxInterval <= 0 {
		o.ReconnectMaxInterval = 5 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{HandshakeTimeout: o.HandshakeTimeout}
	}
}

// SendOption customizes a single Send.
type SendOption func(*sendOptions)

type sendOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the per-request timeout, capped at MaxRequestTimeout.
func WithTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) {
		if d > MaxRequestTimeout {
			d = MaxRequestTimeout
		}
		if d > 0 {
			o.timeout = d
		}
	}
}
