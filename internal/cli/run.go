package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harun/deskpilot/internal/daemon"
	"github.com/harun/deskpilot/pkg/agent"
	"github.com/spf13/cobra"
)

var (
	runMaxIterations int
	runNoTranscript  bool
	runShowReasoning bool
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run the agent towards a goal",
	Long: `Connect to the configured desktop session and let the model work towards
the goal until it stops calling tools or the iteration budget runs out.
Interrupting the command cancels the run and closes the session.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "override agent.max_iterations")
	runCmd.Flags().BoolVar(&runNoTranscript, "no-transcript", false, "do not journal this run")
	runCmd.Flags().BoolVar(&runShowReasoning, "reasoning", true, "print model reasoning as it streams")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	goal := strings.TrimSpace(strings.Join(args, " "))
	if goal == "" {
		return fmt.Errorf("goal cannot be empty")
	}

	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer log.Close()

	if runMaxIterations > 0 {
		cfg.Agent.MaxIterations = runMaxIterations
	}
	if runNoTranscript {
		cfg.Transcript.Enabled = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(cfg, log.Zerolog(), daemon.WithPIDFile())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.Shutdown(shutdownCtx); err != nil {
			zl := log.Zerolog()
			zl.Warn().Err(err).Msg("Shutdown failed")
		}
	}()

	if err := d.Start(ctx); err != nil {
		return err
	}

	p := newPrinter(cmd.OutOrStdout())
	p.showReasoning = runShowReasoning
	err = d.RunGoal(ctx, goal, p.Print)
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("run interrupted")
	}
	return err
}

// resultSummary is the one-line rendering used by run and runs.
func resultSummary(r agent.Result) string {
	switch r.Kind {
	case agent.ResultToolCall:
		if r.ToolCall != nil {
			return fmt.Sprintf("%s %s", r.ToolCall.Name, string(r.ToolCall.Arguments))
		}
	case agent.ResultScreenshot:
		if r.Screenshot != nil {
			return fmt.Sprintf("%dx%d, %d elements", r.Screenshot.Width, r.Screenshot.Height, len(r.Screenshot.Elements))
		}
	case agent.ResultError:
		if r.Err != nil {
			return r.Err.Error()
		}
	}
	return r.Text
}
