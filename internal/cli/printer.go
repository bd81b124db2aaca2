package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/harun/deskpilot/pkg/agent"
)

// printer renders agent results for a terminal.
type printer struct {
	w             io.Writer
	showReasoning bool

	iteration *color.Color
	reasoning *color.Color
	tool      *color.Color
	message   *color.Color
	failure   *color.Color
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:             w,
		showReasoning: true,
		iteration:     color.New(color.FgHiBlack),
		reasoning:     color.New(color.FgHiBlack, color.Italic),
		tool:          color.New(color.FgCyan),
		message:       color.New(color.FgGreen, color.Bold),
		failure:       color.New(color.FgRed, color.Bold),
	}
}

// Print writes one result. Reasoning deltas are written without a newline
// so streamed text reads as one paragraph.
func (p *printer) Print(r agent.Result) {
	switch r.Kind {
	case agent.ResultReasoning:
		if p.showReasoning {
			p.reasoning.Fprint(p.w, r.Text)
		}
	case agent.ResultScreenshot:
		p.iteration.Fprintf(p.w, "\n[%d] screen %s\n", r.Iteration, resultSummary(r))
	case agent.ResultToolCall:
		p.tool.Fprintf(p.w, "\n→ %s\n", resultSummary(r))
	case agent.ResultMessage:
		p.message.Fprintf(p.w, "\n%s\n", strings.TrimSpace(r.Text))
	case agent.ResultError:
		p.failure.Fprintf(p.w, "\nerror: %s\n", resultSummary(r))
	default:
		fmt.Fprintf(p.w, "%s\n", resultSummary(r))
	}
}
