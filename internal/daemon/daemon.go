// Package daemon hosts one deskpilot process: it builds every component from
// the configuration, connects the command channel and drives agent runs.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/harun/deskpilot/internal/config"
	"github.com/harun/deskpilot/internal/observability"
	"github.com/harun/deskpilot/internal/tracing"
	"github.com/harun/deskpilot/pkg/agent"
	"github.com/harun/deskpilot/pkg/channel"
	"github.com/harun/deskpilot/pkg/command"
	"github.com/harun/deskpilot/pkg/desktop"
	"github.com/harun/deskpilot/pkg/detect"
	"github.com/harun/deskpilot/pkg/llm"
	"github.com/harun/deskpilot/pkg/toolexecutor"
	"github.com/harun/deskpilot/pkg/transcript"
	"github.com/rs/zerolog"
)

// Daemon represents one deskpilot process
type Daemon struct {
	config *config.Config
	logger zerolog.Logger
	// base is handed to components, which add their own fields.
	base zerolog.Logger

	// Core modules
	provider   llm.Provider
	detector   detect.Detector
	transcript *transcript.Store

	// Session
	channel  *channel.Channel
	desktop  *desktop.Desktop
	executor *toolexecutor.ToolExecutor

	// Services
	metricsServer *http.Server
	lifecycle     *LifecycleManager

	trackPID  bool
	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracer *tracing.Provider
}

// Status is a snapshot of the daemon.
type Status struct {
	Running      bool
	Uptime       time.Duration
	SessionID    string
	SessionState string
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithPIDFile makes Start publish a PID file in the data directory, for the
// status and stop commands.
func WithPIDFile() Option {
	return func(d *Daemon) { d.trackPID = true }
}

var (
	connectChannel = channel.Connect
	newProvider    = llm.NewProvider
)

// New creates a new daemon instance. It does not touch the network.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log.With().Str("component", "daemon").Logger(),
		base:   log,
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.NewProvider(tracing.ProviderConfig{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without spans")
		} else {
			d.tracer = tp
			log.Info().Float64("sampleRatio", cfg.Tracing.SampleRatio).Msg("Tracing initialized")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.shutdownTracing()
		_ = d.closeCoreModules()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

// initializeCoreModules builds the components that need no live session.
func (d *Daemon) initializeCoreModules() error {
	if path := d.config.Logging.AuditFile; path != "" {
		if err := observability.InitAuditLogger(path); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, audit events are discarded")
		} else {
			d.logger.Info().Str("path", path).Msg("Audit logger initialized")
		}
	}

	provider, err := newProvider(llm.ProviderConfig{
		Provider:   d.config.LLM.Provider,
		APIKey:     d.config.LLM.APIKey,
		BaseURL:    d.config.LLM.BaseURL,
		Model:      d.config.LLM.Model,
		MaxTokens:  d.config.LLM.MaxTokens,
		MaxRetries: d.config.LLM.MaxRetries,
		Logger:     d.base,
	})
	if err != nil {
		return fmt.Errorf("failed to create model provider: %w", err)
	}
	d.provider = provider
	d.logger.Info().Str("provider", provider.Name()).Str("model", d.config.LLM.Model).Msg("Model provider initialized")

	if d.config.Detector.URL != "" {
		client, err := detect.NewClient(detect.Config{
			URL:        d.config.Detector.URL,
			APIKey:     d.config.Detector.APIKey,
			Timeout:    d.config.Detector.Timeout(),
			MaxRetries: uint(d.config.Detector.MaxRetries),
			Logger:     d.base,
		})
		if err != nil {
			return fmt.Errorf("failed to create detector client: %w", err)
		}
		d.detector = client
		d.logger.Info().Str("url", d.config.Detector.URL).Msg("Element detector initialized")
	}

	if d.config.Transcript.Enabled {
		store, err := transcript.Open(transcript.Config{
			DBPath:      d.config.Transcript.Path,
			StoreImages: d.config.Transcript.StoreImages,
			Logger:      d.base,
		})
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		d.transcript = store
		d.logger.Info().Str("path", d.config.Transcript.Path).Msg("Transcript initialized")
	}

	return nil
}

// Start connects the command channel, waits for the session and registers
// the desktop tools.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.mu.Unlock()

	if d.trackPID {
		if err := d.lifecycle.Start(); err != nil {
			return err
		}
	}
	d.startMetricsServer()

	peer := d.config.Peer
	ch, err := connectChannel(ctx, channel.Options{
		URL:                      peer.URL,
		SharedSecret:             peer.SharedSecret,
		Token:                    peer.AccessToken,
		RequestTimeout:           peer.RequestTimeout(),
		BarrierTimeout:           peer.BarrierTimeout(),
		HandshakeTimeout:         peer.HandshakeTimeout(),
		RetryDelay:               peer.RetryDelay(),
		MaxAttempts:              peer.MaxAttempts,
		ReconnectAttempts:        uint(peer.Reconnect.MaxAttempts),
		ReconnectInitialInterval: time.Duration(peer.Reconnect.InitialIntervalMs) * time.Millisecond,
		ReconnectMaxInterval:     time.Duration(peer.Reconnect.MaxIntervalMs) * time.Millisecond,
		Logger:                   d.base,
	})
	if err != nil {
		d.stopServices(ctx)
		return fmt.Errorf("failed to connect to peer: %w", err)
	}
	if err := ch.WaitUntilReady(ctx, peer.ReadyTimeout()); err != nil {
		_ = ch.Close(context.Background())
		d.stopServices(ctx)
		return fmt.Errorf("session did not become ready: %w", err)
	}

	dt := desktop.New(desktop.NewChannelDispatcher(ch))
	executor, err := toolexecutor.NewDesktopExecutor(dt, toolexecutor.Config{
		Policy:  &d.config.Tools.Policy,
		Timeout: d.config.Tools.Timeout(),
		Logger:  d.base,
	})
	if err != nil {
		_ = ch.Close(context.Background())
		d.stopServices(ctx)
		return fmt.Errorf("failed to create tool executor: %w", err)
	}

	d.mu.Lock()
	d.channel = ch
	d.desktop = dt
	d.executor = executor
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	observability.RecordSessionAudit(ctx, "session.ready", ch.Session().ID, "success")
	d.logger.Info().Str("sessionId", ch.Session().ID).Msg("Daemon started")
	return nil
}

// RunGoal runs one agent run towards goal. Results are journaled when the
// transcript is enabled and passed on to emit.
func (d *Daemon) RunGoal(ctx context.Context, goal string, emit func(agent.Result)) (runErr error) {
	if err := d.requireRunning(); err != nil {
		return err
	}

	sessionID := d.channel.Session().ID
	ctx = tracing.WithSessionID(ctx, sessionID)

	orch, err := agent.New(agent.Config{
		Provider:        d.provider,
		Tools:           d.executor,
		Screen:          d.desktop.Screen,
		Detector:        d.detector,
		Model:           d.config.LLM.Model,
		SystemPrompt:    d.config.Agent.SystemPrompt,
		MaxTokens:       d.config.LLM.MaxTokens,
		Temperature:     d.config.LLM.Temperature,
		ReasoningBudget: d.config.LLM.ReasoningBudget,
		MaxIterations:   d.config.Agent.MaxIterations,
		RecencyWindow:   d.config.Agent.RecencyWindow,
		ToolCallDelay:   d.config.Agent.ToolCallDelay(),
		Logger:          d.base,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	if d.transcript != nil {
		runID, err := d.transcript.StartRun(ctx, goal, sessionID)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to journal run, continuing without transcript")
		} else {
			emit = d.transcript.Recorder(ctx, runID, emit)
			defer func() {
				// The run context may already be cancelled.
				if ferr := d.transcript.FinishRun(context.Background(), runID, runErr); ferr != nil {
					d.logger.Warn().Err(ferr).Str("runId", runID).Msg("Failed to finish run")
				}
			}()
		}
	}

	initial := []llm.Message{llm.NewTextMessage(llm.RoleUser, goal)}
	return orch.Run(ctx, initial, emit)
}

// Exec sends a single command of the given kind. The payload is decoded
// with the kind's registered payload type.
func (d *Daemon) Exec(ctx context.Context, kind command.Kind, payload json.RawMessage, expectsResult bool) (json.RawMessage, error) {
	if err := d.requireRunning(); err != nil {
		return nil, err
	}
	decoded, err := command.DecodePayload(kind, payload)
	if err != nil {
		return nil, err
	}
	return desktop.NewChannelDispatcher(d.channel).Dispatch(ctx, kind, decoded, expectsResult)
}

// Transcript returns the run journal, or nil when disabled.
func (d *Daemon) Transcript() *transcript.Store {
	return d.transcript
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{Running: d.running}
	if d.running {
		status.Uptime = time.Since(d.startTime)
	}
	if d.channel != nil {
		session := d.channel.Session()
		status.SessionID = session.ID
		status.SessionState = session.State.String()
	}
	return status
}

// Shutdown closes the session and every component.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.running = false
	ch := d.channel
	d.mu.Unlock()

	var errs []error
	if ch != nil {
		if err := ch.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	d.stopServices(ctx)
	if err := d.closeCoreModules(); err != nil {
		errs = append(errs, err)
	}
	d.shutdownTracing()

	d.logger.Info().Msg("Daemon stopped")
	return errors.Join(errs...)
}

func (d *Daemon) requireRunning() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return fmt.Errorf("daemon is not running")
	}
	return nil
}

func (d *Daemon) startMetricsServer() {
	addr := d.config.Metrics.Addr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", d.handleHealth)

	d.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := d.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	d.logger.Info().Str("addr", addr).Msg("Metrics server started")
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := d.Status()
	code := http.StatusOK
	if !status.Running {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"running":      status.Running,
		"uptimeMs":     status.Uptime.Milliseconds(),
		"sessionId":    status.SessionID,
		"sessionState": status.SessionState,
	})
}

func (d *Daemon) stopServices(ctx context.Context) {
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := d.metricsServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop metrics server")
		}
		cancel()
		d.metricsServer = nil
	}
	if d.trackPID && d.lifecycle != nil {
		if err := d.lifecycle.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to stop lifecycle manager")
		}
	}
}

func (d *Daemon) closeCoreModules() error {
	if d.transcript != nil {
		if err := d.transcript.Close(); err != nil {
			return fmt.Errorf("close transcript: %w", err)
		}
		d.transcript = nil
	}
	if err := observability.GetAuditLogger().Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		d.logger.Warn().Err(err).Msg("Failed to close audit logger")
	}
	return nil
}

func (d *Daemon) shutdownTracing() {
	if d.tracer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.tracer.Shutdown(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to shut down tracing")
	}
	d.tracer = nil
}
