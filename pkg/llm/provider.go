package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Provider streams one model turn as canonical events.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Stream starts a model turn. Transport failures are returned as
	// *ModelBackendError before any event is produced; the returned channel
	// is closed by the adapter after the final or error event.
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}

// ProviderConfig configures a backend.
type ProviderConfig struct {
	Provider string
	APIKey   string
	// BaseURL overrides the backend endpoint, e.g. for OpenAI-compatible
	// gateways.
	BaseURL string
	// Model is used when a Request names none.
	Model      string
	MaxTokens  int
	MaxRetries int
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// NewProvider creates the backend named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "openrouter":
		return NewOpenAIProvider(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// send delivers ev unless ctx is done.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
