package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/harun/deskpilot/pkg/agent"
	"github.com/harun/deskpilot/pkg/llm"
	"github.com/stretchr/testify/assert"
)

func TestPrinter(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.Print(agent.Result{Kind: agent.ResultScreenshot, Iteration: 2, Screenshot: &agent.ScreenshotContext{Width: 800, Height: 600}})
	p.Print(agent.Result{Kind: agent.ResultReasoning, Text: "thinking "})
	p.Print(agent.Result{Kind: agent.ResultReasoning, Text: "hard"})
	p.Print(agent.Result{Kind: agent.ResultToolCall, ToolCall: &llm.ToolCall{Name: "click", Arguments: []byte(`{"x":1}`)}})
	p.Print(agent.Result{Kind: agent.ResultMessage, Text: " Finished. "})
	p.Print(agent.Result{Kind: agent.ResultError, Err: errors.New("budget")})

	out := buf.String()
	assert.Contains(t, out, "[2] screen 800x600, 0 elements")
	assert.Contains(t, out, "thinking hard")
	assert.Contains(t, out, `→ click {"x":1}`)
	assert.Contains(t, out, "\nFinished.\n")
	assert.Contains(t, out, "error: budget")

	t.Run("should hide reasoning when disabled", func(t *testing.T) {
		buf.Reset()
		p.showReasoning = false
		p.Print(agent.Result{Kind: agent.ResultReasoning, Text: "secret"})
		assert.Empty(t, buf.String())
	})
}
