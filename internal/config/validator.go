package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidatePeerURL requires a ws or wss URL with a host
func (v *Validator) ValidatePeerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid peer url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid peer url scheme %q (must be ws or wss)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("peer url has no host")
	}
	return nil
}

// ValidateHTTPURL requires an http or https URL
func (v *Validator) ValidateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid %s scheme %q (must be http or https)", field, u.Scheme)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Peer.URL != "" {
		if err := v.ValidatePeerURL(cfg.Peer.URL); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.Peer.MaxAttempts < 0 {
		errors = append(errors, fmt.Errorf("peer.max_attempts must be >= 0"))
	}
	for name, value := range map[string]int{
		"peer.request_timeout_ms":            cfg.Peer.RequestTimeoutMs,
		"peer.barrier_timeout_ms":            cfg.Peer.BarrierTimeoutMs,
		"peer.handshake_timeout_ms":          cfg.Peer.HandshakeTimeoutMs,
		"peer.ready_timeout_ms":              cfg.Peer.ReadyTimeoutMs,
		"peer.retry_delay_ms":                cfg.Peer.RetryDelayMs,
		"peer.reconnect.max_attempts":        cfg.Peer.Reconnect.MaxAttempts,
		"peer.reconnect.initial_interval_ms": cfg.Peer.Reconnect.InitialIntervalMs,
		"peer.reconnect.max_interval_ms":     cfg.Peer.Reconnect.MaxIntervalMs,
		"agent.tool_call_delay_ms":           cfg.Agent.ToolCallDelayMs,
		"tools.timeout_ms":                   cfg.Tools.TimeoutMs,
		"detector.timeout_ms":                cfg.Detector.TimeoutMs,
		"detector.max_retries":               cfg.Detector.MaxRetries,
		"llm.max_retries":                    cfg.LLM.MaxRetries,
		"llm.reasoning_budget":               cfg.LLM.ReasoningBudget,
	} {
		if value < 0 {
			errors = append(errors, fmt.Errorf("%s must be >= 0", name))
		}
	}

	if cfg.LLM.APIKey != "" && cfg.LLM.BaseURL == "" {
		if err := v.ValidateAPIKey(cfg.LLM.APIKey, strings.ToLower(cfg.LLM.Provider)); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.LLM.BaseURL != "" {
		if err := v.ValidateHTTPURL("llm.base_url", cfg.LLM.BaseURL); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateMaxTokens(cfg.LLM.MaxTokens); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errors = append(errors, err)
	}

	if cfg.Detector.URL != "" {
		if err := v.ValidateHTTPURL("detector.url", cfg.Detector.URL); err != nil {
			errors = append(errors, err)
		}
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
