package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mitchins/SmolRouter/pkg/cli"
	"github.com/mitchins/SmolRouter/pkg/config"
)

const defaultEnvFile = ".env"

var (
	// Global flags
	cfgFile string
	envFile string
	noColor bool
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smolrouter",
		Short: "SmolRouter - a small routing gateway for LLM APIs",
		Long: `SmolRouter accepts OpenAI and Ollama API requests and forwards them to
an upstream chosen by the caller's host and the requested model.

Aliases give a model name an ordered list of upstreams to fail over
through, and provider API keys are rotated as their quotas run out.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadEnvFile,
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the config (default .env when present)")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newRunCmd(), newValidateCmd(), newRouteCmd(), newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

// loadEnvFile loads dotenv variables. Variables already set in the
// environment win. An explicit --env-file must exist; the default .env is
// optional.
func loadEnvFile(cmd *cobra.Command, args []string) error {
	path := envFile
	if path == "" {
		path = defaultEnvFile
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the config file with environment overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return cfg, nil
}
