package agent

import (
	"context"
	"errors"
	"time"

	"github.com/harun/deskpilot/pkg/command"
	"github.com/harun/deskpilot/pkg/desktop"
	"github.com/harun/deskpilot/pkg/detect"
	"github.com/harun/deskpilot/pkg/llm"
	"github.com/rs/zerolog"
)

// ImagePlaceholder replaces the images of screenshots outside the recency
// window.
const ImagePlaceholder = "[screenshot omitted]"

const (
	DefaultMaxIterations = 100
	DefaultRecencyWindow = 3
)

var (
	// ErrIterationBudgetExceeded is carried by the Error result emitted when
	// the loop runs out of iterations.
	ErrIterationBudgetExceeded = errors.New("iteration budget exceeded")
	// ErrAlreadyRun is returned when Run is called twice on one orchestrator.
	ErrAlreadyRun = errors.New("orchestrator has already run")
)

// ResultKind discriminates Result values.
type ResultKind int

const (
	ResultReasoning ResultKind = iota
	ResultToolCall
	ResultScreenshot
	ResultMessage
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultReasoning:
		return "reasoning"
	case ResultToolCall:
		return "tool_call"
	case ResultScreenshot:
		return "screenshot"
	case ResultMessage:
		return "message"
	case ResultError:
		return "error"
	}
	return "unknown"
}

// Result is one item of run progress handed to the caller.
type Result struct {
	Kind       ResultKind
	Iteration  int
	Text       string
	ToolCall   *llm.ToolCall
	Screenshot *ScreenshotContext
	Err        error
}

// ScreenshotContext is a captured screen with optional detected elements.
type ScreenshotContext struct {
	Image          []byte
	MediaType      string
	Width          int
	Height         int
	Elements       []detect.Element
	AnnotatedImage []byte
}

// Screen captures the desktop. *desktop.Screen satisfies it.
type Screen interface {
	Screenshot(ctx context.Context, opts command.Screenshot) (desktop.ScreenshotResult, error)
}

// ToolExecutor runs model tool calls. *toolexecutor.ToolExecutor satisfies it.
type ToolExecutor interface {
	Execute(ctx context.Context, call llm.ToolCall) (llm.Message, error)
	Schemas() []llm.ToolSchema
}

// Config holds orchestrator configuration
type Config struct {
	Provider llm.Provider
	Tools    ToolExecutor
	Screen   Screen
	// Detector is optional; detection failures are logged and ignored.
	Detector detect.Detector

	Model           string
	SystemPrompt    string
	MaxTokens       int
	Temperature     float64
	ReasoningBudget int

	MaxIterations int
	RecencyWindow int
	// ToolCallDelay is waited between consecutive tool calls of one turn.
	ToolCallDelay time.Duration

	Logger zerolog.Logger
}
