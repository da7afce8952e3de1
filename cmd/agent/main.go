package main

import (
	"fmt"
	"os"

	"agentloop/internal/infrastructure/env"

	"github.com/spf13/cobra"
)

var (
	configPath    string
	envDir        string
	providerFlag  string
	modelFlag     string
	maxIterations int
	logConsole    bool
)

var rootCmd = &cobra.Command{
	Use:           "agent",
	Short:         "Bounded, resumable tool-using agent loop",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&envDir, "env-dir", ".", "directory holding .env files")
	flags.StringVar(&providerFlag, "provider", "", "model provider (anthropic, openrouter, ollama, replay)")
	flags.StringVar(&modelFlag, "model", "", "model name")
	flags.IntVar(&maxIterations, "max-iterations", 0, "model calls allowed per run")
	flags.BoolVar(&logConsole, "log-console", false, "also write logs to stderr")

	rootCmd.AddCommand(runCmd, resumeCmd, stateCmd, toolsCmd, serveCmd)
}

// loadConfig reads .env files, the config file and flag overrides, in that
// order of increasing precedence.
func loadConfig(cmd *cobra.Command) (env.Config, *env.EnvService, error) {
	secrets := env.NewEnvService(envDir)

	cfg, err := env.LoadConfig(configPath)
	if err != nil {
		return cfg, nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = providerFlag
	}
	if flags.Changed("model") {
		cfg.Model = modelFlag
	}
	if flags.Changed("max-iterations") {
		cfg.MaxIterations = maxIterations
	}
	if flags.Changed("log-console") {
		cfg.LogConsole = logConsole
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	return cfg, secrets, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
