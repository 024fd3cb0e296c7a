package cli

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/milestone/internal/infrastructure/config"
	"github.com/felixgeelhaar/milestone/pkg/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configMode     string
	configBucket   string
	configURL      string
	configProvider string
	configModel    string
	configForce    bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage .milestone/config.yaml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with defaults and the given overrides",
	Example: `  milestone config init
  milestone config init --mode shared --bucket my-team-roadmap`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := getProjectRoot()
		if err != nil {
			return err
		}

		path, err := storage.NewFileStore(root, nil).ResolvePath(storage.ConfigFile)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return NewCLIError("config already exists", "Use --force to overwrite", nil)
		}

		cfg := config.Default()
		if configMode != "" {
			cfg.Mode = config.Mode(configMode)
		}
		if configBucket != "" {
			cfg.Remote.Bucket = configBucket
			if configMode == "" {
				cfg.Mode = config.ModeShared
			}
		}
		if configURL != "" {
			cfg.Remote.BaseURL = configURL
		}
		if configProvider != "" {
			cfg.AI.Provider = configProvider
		}
		if configModel != "" {
			cfg.AI.Model = configModel
		}
		if err := cfg.Validate(); err != nil {
			return NewCLIError(err.Error(), "Pass --bucket for shared mode", err)
		}

		if err := config.Save(root, cfg); err != nil {
			return MapError(fmt.Errorf("failed to save config: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote .milestone/config.yaml (mode %s)\n", cfg.Mode)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration, environment overrides applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := getProjectRoot()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configMode, "mode", "", "Replication mode (shared, standalone)")
	configInitCmd.Flags().StringVar(&configBucket, "bucket", "", "Remote bucket (selects shared mode)")
	configInitCmd.Flags().StringVar(&configURL, "remote-url", "", "Remote store base URL")
	configInitCmd.Flags().StringVar(&configProvider, "ai-provider", "", "AI provider (gemini, openai, ollama, mock)")
	configInitCmd.Flags().StringVar(&configModel, "ai-model", "", "AI model")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	RootCmd.AddCommand(configCmd)
}
