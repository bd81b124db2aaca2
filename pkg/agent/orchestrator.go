package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/deskpilot/internal/observability"
	"github.com/harun/deskpilot/internal/tracing"
	"github.com/harun/deskpilot/pkg/command"
	"github.com/harun/deskpilot/pkg/llm"
	"github.com/harun/deskpilot/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "github.com/harun/deskpilot/pkg/agent"

// Orchestrator runs one agent loop. Build a new one per run.
type Orchestrator struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	history []llm.Message
	started bool
}

// New creates an orchestrator, filling defaults for zero limits.
func New(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.Screen == nil {
		return nil, fmt.Errorf("screen is required")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = DefaultRecencyWindow
	}
	if cfg.ToolCallDelay < 0 {
		return nil, fmt.Errorf("tool call delay cannot be negative")
	}

	return &Orchestrator{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "agent").Logger(),
	}, nil
}

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []llm.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneMessages(o.history)
}

func (o *Orchestrator) appendTurn(msg llm.Message) {
	o.mu.Lock()
	o.history = append(o.history, msg)
	o.mu.Unlock()
}

// Run drives the loop until the model stops asking for tools, the iteration
// budget runs out or a fatal failure occurs. emit is called synchronously for
// each result; the loop does not advance until it returns.
//
// Screenshot and model failures are returned. Tool failures become
// "Error: ..." tool turns. Exhausting the budget emits an Error result
// wrapping ErrIterationBudgetExceeded and returns nil.
func (o *Orchestrator) Run(ctx context.Context, initial []llm.Message, emit func(Result)) (err error) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyRun
	}
	o.started = true
	o.history = cloneMessages(initial)
	o.mu.Unlock()

	if emit == nil {
		emit = func(Result) {}
	}

	ctx = tracing.NewRunContext(ctx)
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.run",
		attribute.Int("agent.max_iterations", o.cfg.MaxIterations),
	)
	start := time.Now()
	status := "success"
	defer func() {
		if err != nil {
			status = "failure"
			if ctx.Err() != nil {
				status = "cancelled"
			}
		}
		observability.RecordAgentRun(status, time.Since(start))
		tracing.EndSpan(span, err)
	}()

	logger := tracing.LoggerFromContext(ctx, o.logger)
	logger.Info().Int("initialTurns", len(initial)).Msg("Agent run started")

	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		observability.RecordAgentIteration()
		iterCtx := tracing.WithIteration(ctx, iteration)

		done, err := o.iterate(iterCtx, iteration, emit)
		if err != nil {
			iterLogger := tracing.LoggerFromContext(iterCtx, o.logger)
			iterLogger.Error().Err(err).Msg("Agent run failed")
			return err
		}
		if done {
			logger.Info().Int("iterations", iteration).Msg("Agent run completed")
			return nil
		}
	}

	status = "budget_exceeded"
	logger.Warn().Int("maxIterations", o.cfg.MaxIterations).Msg("Iteration budget exceeded")
	emit(Result{
		Kind:      ResultError,
		Iteration: o.cfg.MaxIterations,
		Text:      ErrIterationBudgetExceeded.Error(),
		Err:       fmt.Errorf("%w after %d iterations", ErrIterationBudgetExceeded, o.cfg.MaxIterations),
	})
	return nil
}

// iterate runs one capture, model and tool round. It reports whether the
// run is finished.
func (o *Orchestrator) iterate(ctx context.Context, iteration int, emit func(Result)) (bool, error) {
	logger := tracing.LoggerFromContext(ctx, o.logger)

	shot, err := o.capture(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	o.appendTurn(screenshotTurn(shot))
	emit(Result{Kind: ResultScreenshot, Iteration: iteration, Screenshot: shot})

	o.mu.Lock()
	pruned := pruneScreenshots(o.history, o.cfg.RecencyWindow)
	outbound := cloneMessages(o.history)
	o.mu.Unlock()
	if pruned > 0 {
		logger.Debug().Int("pruned", pruned).Msg("Replaced older screenshots")
	}

	final, calls, err := o.stream(ctx, iteration, outbound, emit)
	if err != nil {
		return false, err
	}

	o.appendTurn(llm.Message{
		Role:              llm.RoleAssistant,
		Parts:             textParts(final.Text),
		ToolCalls:         calls,
		ContinuationToken: final.ContinuationToken,
	})
	if final.Text != "" {
		emit(Result{Kind: ResultMessage, Iteration: iteration, Text: final.Text})
	}

	for i, call := range calls {
		if i > 0 && o.cfg.ToolCallDelay > 0 {
			if err := sleep(ctx, o.cfg.ToolCallDelay); err != nil {
				return false, err
			}
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		msg, err := o.cfg.Tools.Execute(ctx, call)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logger.Warn().Err(err).Str("tool", call.Name).Msg("Tool call failed")
			msg = toolexecutor.ErrorResult(call, err)
		}
		o.appendTurn(msg)
	}

	if len(calls) == 0 && !final.ShouldContinue {
		return true, nil
	}
	return false, nil
}

func (o *Orchestrator) capture(ctx context.Context) (*ScreenshotContext, error) {
	res, err := o.cfg.Screen.Screenshot(ctx, command.Screenshot{})
	if err != nil {
		return nil, err
	}
	shot := &ScreenshotContext{
		Image:     res.Image,
		MediaType: res.MediaType(),
		Width:     res.Width,
		Height:    res.Height,
	}

	if o.cfg.Detector != nil {
		detected, err := o.cfg.Detector.Detect(ctx, res.Image, res.Width, res.Height)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			logger := tracing.LoggerFromContext(ctx, o.logger)
			logger.Warn().Err(err).Msg("Element detection failed, continuing without elements")
		default:
			shot.Elements = detected.Elements
			shot.AnnotatedImage = detected.AnnotatedImage
		}
	}
	return shot, nil
}

// stream invokes the model and collects its turn. Reasoning is emitted as
// it arrives; tool calls are collected in stream order.
func (o *Orchestrator) stream(ctx context.Context, iteration int, outbound []llm.Message, emit func(Result)) (llm.Event, []llm.ToolCall, error) {
	events, err := o.cfg.Provider.Stream(ctx, llm.Request{
		Model:           o.cfg.Model,
		System:          o.cfg.SystemPrompt,
		Messages:        outbound,
		Tools:           o.cfg.Tools.Schemas(),
		MaxTokens:       o.cfg.MaxTokens,
		Temperature:     o.cfg.Temperature,
		ReasoningBudget: o.cfg.ReasoningBudget,
	})
	if err != nil {
		return llm.Event{}, nil, fmt.Errorf("model request failed: %w", err)
	}

	var (
		calls []llm.ToolCall
		final *llm.Event
	)
	for {
		select {
		case <-ctx.Done():
			return llm.Event{}, nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return llm.Event{}, nil, err
				}
				if final == nil {
					return llm.Event{}, nil, errors.New("model stream ended without a final message")
				}
				return *final, calls, nil
			}
			switch ev.Kind {
			case llm.EventReasoning:
				emit(Result{Kind: ResultReasoning, Iteration: iteration, Text: ev.Text})
			case llm.EventToolCall:
				if ev.ToolCall == nil {
					continue
				}
				call := *ev.ToolCall
				calls = append(calls, call)
				emit(Result{Kind: ResultToolCall, Iteration: iteration, ToolCall: &call})
			case llm.EventFinal:
				if final == nil {
					f := ev
					final = &f
				}
			case llm.EventError:
				return llm.Event{}, nil, fmt.Errorf("model stream failed: %w", ev.Err)
			}
		}
	}
}

func textParts(text string) []llm.Part {
	if text == "" {
		return nil
	}
	return []llm.Part{llm.TextPart(text)}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
