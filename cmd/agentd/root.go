package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-runtime/infrastructure/config"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "agentd",
		Short: "Agent execution runtime",
		Long: `agentd runs goal-directed agent sessions: a budgeted control loop
over registered tools and a model provider, with every external call
passing through a safety interceptor chain.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or JSON config file")

	cmd.AddCommand(newRunCommand(&configPath))
	cmd.AddCommand(newToolsCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func loadConfig(path string) (*config.RuntimeConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.NewLoader().LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func initLogging(cfg *config.RuntimeConfig) {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	})
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "agentd", version)
		},
	}
}
