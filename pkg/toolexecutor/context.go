package toolexecutor

import (
	"context"

	"github.com/harun/deskpilot/pkg/llm"
)

type toolCallKey struct{}

// ContextWithToolCall attaches the call being executed for tool handlers.
func ContextWithToolCall(ctx context.Context, call llm.ToolCall) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, toolCallKey{}, call)
}

// ToolCallFromContext returns the call being executed, if any.
func ToolCallFromContext(ctx context.Context) (llm.ToolCall, bool) {
	if ctx == nil {
		return llm.ToolCall{}, false
	}
	call, ok := ctx.Value(toolCallKey{}).(llm.ToolCall)
	return call, ok
}
