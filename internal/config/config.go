package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/deskpilot/internal/logger"
	"github.com/harun/deskpilot/pkg/toolexecutor"
)

// Config represents the main deskpilot configuration
type Config struct {
	// Peer is the remote desktop endpoint
	Peer PeerConfig `json:"peer" mapstructure:"peer"`

	// LLM selects the model backend
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Agent tunes the orchestration loop
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Detector is the optional UI element detection service
	Detector DetectorConfig `json:"detector" mapstructure:"detector"`

	// Transcript
	Transcript TranscriptConfig `json:"transcript" mapstructure:"transcript"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// PeerConfig holds the command channel settings. Durations are milliseconds.
type PeerConfig struct {
	URL          string `json:"url" mapstructure:"url"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
	AccessToken  string `json:"access_token" mapstructure:"access_token"`

	RequestTimeoutMs   int `json:"request_timeout_ms" mapstructure:"request_timeout_ms"`
	BarrierTimeoutMs   int `json:"barrier_timeout_ms" mapstructure:"barrier_timeout_ms"`
	HandshakeTimeoutMs int `json:"handshake_timeout_ms" mapstructure:"handshake_timeout_ms"`
	ReadyTimeoutMs     int `json:"ready_timeout_ms" mapstructure:"ready_timeout_ms"`
	RetryDelayMs       int `json:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	MaxAttempts        int `json:"max_attempts" mapstructure:"max_attempts"`

	Reconnect ReconnectConfig `json:"reconnect" mapstructure:"reconnect"`
}

// ReconnectConfig bounds redials after a transport loss
type ReconnectConfig struct {
	MaxAttempts       int `json:"max_attempts" mapstructure:"max_attempts"`
	InitialIntervalMs int `json:"initial_interval_ms" mapstructure:"initial_interval_ms"`
	MaxIntervalMs     int `json:"max_interval_ms" mapstructure:"max_interval_ms"`
}

// LLMConfig holds model backend settings
type LLMConfig struct {
	Provider        string  `json:"provider" mapstructure:"provider"` // openai, anthropic, openrouter
	APIKey          string  `json:"api_key" mapstructure:"api_key"`
	BaseURL         string  `json:"base_url" mapstructure:"base_url"`
	Model           string  `json:"model" mapstructure:"model"`
	MaxTokens       int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature     float64 `json:"temperature" mapstructure:"temperature"`
	ReasoningBudget int     `json:"reasoning_budget" mapstructure:"reasoning_budget"`
	MaxRetries      int     `json:"max_retries" mapstructure:"max_retries"`
}

// AgentConfig tunes the agent loop
type AgentConfig struct {
	MaxIterations   int    `json:"max_iterations" mapstructure:"max_iterations"`
	RecencyWindow   int    `json:"recency_window" mapstructure:"recency_window"`
	ToolCallDelayMs int    `json:"tool_call_delay_ms" mapstructure:"tool_call_delay_ms"`
	SystemPrompt    string `json:"system_prompt" mapstructure:"system_prompt"`
}

// ToolsConfig holds tool configuration
type ToolsConfig struct {
	Policy    toolexecutor.ToolPolicy `json:"policy" mapstructure:"policy"`
	TimeoutMs int                     `json:"timeout_ms" mapstructure:"timeout_ms"`
}

// DetectorConfig configures the element detector. An empty URL disables it.
type DetectorConfig struct {
	URL        string `json:"url" mapstructure:"url"`
	APIKey     string `json:"api_key" mapstructure:"api_key"`
	TimeoutMs  int    `json:"timeout_ms" mapstructure:"timeout_ms"`
	MaxRetries int    `json:"max_retries" mapstructure:"max_retries"`
}

// TranscriptConfig configures the run journal
type TranscriptConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	Path        string `json:"path" mapstructure:"path"`
	StoreImages bool   `json:"store_images" mapstructure:"store_images"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"`
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`
	Compress  bool   `json:"compress" mapstructure:"compress"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// MetricsConfig enables the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// TracingConfig enables OpenTelemetry spans
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Peer: PeerConfig{
			RequestTimeoutMs:   30000,
			BarrierTimeoutMs:   30000,
			HandshakeTimeoutMs: 10000,
			ReadyTimeoutMs:     60000,
			RetryDelayMs:       500,
			MaxAttempts:        3,
			Reconnect: ReconnectConfig{
				MaxAttempts:       10,
				InitialIntervalMs: 500,
				MaxIntervalMs:     10000,
			},
		},
		LLM: LLMConfig{
			Provider:   "anthropic",
			Model:      "claude-sonnet-4",
			MaxTokens:  4096,
			MaxRetries: 2,
		},
		Agent: AgentConfig{
			MaxIterations: 100,
			RecencyWindow: 3,
		},
		Tools: ToolsConfig{
			Policy:    toolexecutor.ToolPolicy{Allow: []string{"*"}},
			TimeoutMs: 120000,
		},
		Detector: DetectorConfig{
			TimeoutMs:  30000,
			MaxRetries: 3,
		},
		Transcript: TranscriptConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
			MaxSize:   50,
			MaxAge:    14,
			Compress:  true,
		},
		Tracing: TracingConfig{
			ServiceName: "deskpilot",
			SampleRatio: 1,
		},
	}
}

// String returns the configuration as JSON
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Peer.URL == "" {
		return fmt.Errorf("peer.url is required")
	}
	if c.Peer.SharedSecret == "" {
		return fmt.Errorf("peer.shared_secret is required")
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic", "openai", "openrouter":
	case "":
		return fmt.Errorf("llm.provider is required")
	default:
		return fmt.Errorf("invalid llm.provider %s (must be: anthropic, openai, openrouter)", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("no LLM credentials configured: llm.api_key is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}

	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if c.Agent.RecencyWindow < 0 {
		return fmt.Errorf("agent.recency_window must be >= 0")
	}

	if err := c.Tools.Policy.Validate(); err != nil {
		return fmt.Errorf("tools.policy: %w", err)
	}

	return errors.Join(NewValidator().ValidateConfig(c)...)
}

// LoggerConfig converts the logging section for the logger package.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:     c.Logging.Level,
		File:      c.Logging.File,
		Console:   c.Logging.Console,
		Pretty:    c.Logging.Pretty,
		Redaction: c.Logging.Redaction,
		MaxSize:   c.Logging.MaxSize,
		MaxAge:    c.Logging.MaxAge,
		Compress:  c.Logging.Compress,
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// RequestTimeout returns the per-send timeout
func (p PeerConfig) RequestTimeout() time.Duration { return ms(p.RequestTimeoutMs) }

// BarrierTimeout returns how long sends wait for a reconnect
func (p PeerConfig) BarrierTimeout() time.Duration { return ms(p.BarrierTimeoutMs) }

// HandshakeTimeout returns the dial handshake timeout
func (p PeerConfig) HandshakeTimeout() time.Duration { return ms(p.HandshakeTimeoutMs) }

// ReadyTimeout returns how long to wait for the session to become ready
func (p PeerConfig) ReadyTimeout() time.Duration { return ms(p.ReadyTimeoutMs) }

// RetryDelay returns the delay between send attempts
func (p PeerConfig) RetryDelay() time.Duration { return ms(p.RetryDelayMs) }

// ToolCallDelay returns the pause between consecutive tool calls
func (a AgentConfig) ToolCallDelay() time.Duration { return ms(a.ToolCallDelayMs) }

// Timeout returns the per-tool timeout
func (t ToolsConfig) Timeout() time.Duration { return ms(t.TimeoutMs) }

// Timeout returns the detector request timeout
func (d DetectorConfig) Timeout() time.Duration { return ms(d.TimeoutMs) }
