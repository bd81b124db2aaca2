package cli

import (
	"fmt"
	"os"

	"github.com/harun/deskpilot/internal/config"
	"github.com/spf13/cobra"
)

var (
	configurePeerURL  string
	configureSecret   string
	configureProvider string
	configureModel    string
	configureAPIKey   string
	configureForce    bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a configuration file",
	Long: `Write a configuration file with the default settings and the values given
as flags. Secrets can also be supplied later through DESKPILOT_* environment
variables, e.g. DESKPILOT_LLM_API_KEY.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configurePeerURL, "peer-url", "", "websocket URL of the desktop peer")
	configureCmd.Flags().StringVar(&configureSecret, "shared-secret", "", "shared secret for the peer handshake")
	configureCmd.Flags().StringVar(&configureProvider, "provider", "", "model provider (anthropic, openai, openrouter)")
	configureCmd.Flags().StringVar(&configureModel, "model", "", "model name")
	configureCmd.Flags().StringVar(&configureAPIKey, "api-key", "", "model provider API key")
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing configuration file")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configureForce {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	if configurePeerURL != "" {
		cfg.Peer.URL = configurePeerURL
	}
	if configureSecret != "" {
		cfg.Peer.SharedSecret = configureSecret
	}
	if configureProvider != "" {
		cfg.LLM.Provider = configureProvider
	}
	if configureModel != "" {
		cfg.LLM.Model = configureModel
	}
	if configureAPIKey != "" {
		cfg.LLM.APIKey = configureAPIKey
	}

	// Only what was given is checked; missing secrets may come from the environment.
	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errs[0])
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)
	fmt.Fprintln(out, `You can now start a run with: deskpilot run "<goal>"`)
	return nil
}
