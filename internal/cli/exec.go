package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/deskpilot/internal/daemon"
	"github.com/harun/deskpilot/pkg/command"
	"github.com/spf13/cobra"
)

var (
	execResult bool
	execList   bool
)

var execCmd = &cobra.Command{
	Use:   "exec <kind> [payload-json]",
	Short: "Send a single command to the desktop session",
	Long: `Send one command, e.g.

  deskpilot exec pointer.leftClick '{"x":100,"y":200}'
  deskpilot exec --result pointer.getPosition

The payload is decoded with the payload type of the kind. Use --list to see
every kind.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runExec,
}

func init() {
	execCmd.Flags().BoolVar(&execResult, "result", false, "wait for and print the command result")
	execCmd.Flags().BoolVar(&execList, "list", false, "list command kinds and exit")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if execList {
		for _, kind := range command.Kinds() {
			fmt.Fprintln(out, kind)
		}
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("a command kind is required")
	}

	kind := command.Kind(args[0])
	if !command.Known(kind) {
		return fmt.Errorf("unknown command kind: %s", kind)
	}
	var payload json.RawMessage
	if len(args) == 2 {
		payload = json.RawMessage(args[1])
		if !json.Valid(payload) {
			return fmt.Errorf("payload is not valid JSON")
		}
	}

	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer log.Close()
	cfg.Transcript.Enabled = false

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(cfg, log.Zerolog())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = d.Shutdown(shutdownCtx)
	}()

	if err := d.Start(ctx); err != nil {
		return err
	}

	result, err := d.Exec(ctx, kind, payload, execResult)
	if err != nil {
		return err
	}
	if execResult && len(result) > 0 {
		fmt.Fprintln(out, string(result))
	}
	return nil
}
