// Package cmd implements the omniassist command line.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/omniassist/server/config"
	"github.com/omniassist/server/logger"
)

// NewRootCommand builds the command tree. version is reported by the
// version subcommand and the startup banner.
func NewRootCommand(version string) *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "omniassist",
		Short: "Chat assistant backend with persistent sessions",
		Long: `omniassist answers questions with a hosted language model, keeps
chat sessions in a key-value store, and interprets voice commands.
It serves JSON-RPC over WebSocket and a REST API.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./config.yaml or ~/.omniassist/config.yaml)")

	root.AddCommand(
		NewServeCommand(version, &configFile),
		NewAskCommand(&configFile),
		NewVoiceCommand(&configFile),
		NewVersionCommand(version),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		os.Exit(1)
	}
}

// ModelFlags selects the hosted model and the key-value store. Shared by
// every command that talks to the model.
type ModelFlags struct {
	DataDir  string
	LogLevel string
	Store    string
	Provider string
	Model    string
	Endpoint string
	Timeout  time.Duration
	AppsFile string
}

func NewModelFlags() *ModelFlags {
	d := config.Default()
	return &ModelFlags{
		DataDir:  d.Server.DataDir,
		LogLevel: d.Log.Level,
		Provider: d.Model.Provider,
		Timeout:  d.Model.Timeout,
	}
}

func (f *ModelFlags) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.DataDir, "data-dir", f.DataDir, "directory for logs and file-backed storage")
	flagSet.StringVar(&f.LogLevel, "log-level", f.LogLevel, "log level (debug, info, warn, error)")
	flagSet.StringVar(&f.Store, "store", f.Store, "key-value store URL (file://, memory://, redis://, sqlite://, postgres://)")
	flagSet.StringVar(&f.Provider, "provider", f.Provider, "model provider (gemini, openai)")
	flagSet.StringVar(&f.Model, "model", f.Model, "model name (default depends on provider)")
	flagSet.StringVar(&f.Endpoint, "endpoint", f.Endpoint, "model API base URL")
	flagSet.DurationVar(&f.Timeout, "timeout", f.Timeout, "model request timeout")
	flagSet.StringVar(&f.AppsFile, "apps-file", f.AppsFile, "YAML application catalog for voice commands")
}

// loadConfig merges the config file, environment and the flags set on cmd.
func loadConfig(cmd *cobra.Command, configFile string) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		File:  configFile,
		Flags: cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveDataDir(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initCLILogger logs to stderr only, so command output stays clean on stdout.
func initCLILogger(cfg *config.Config) {
	level := cfg.Log.Level
	if level == config.Default().Log.Level {
		level = "warn"
	}
	logger.Init(logger.Config{DevMode: cfg.Server.DevMode, Level: level})
}

func fprintln(cmd *cobra.Command, a ...any) {
	fmt.Fprintln(cmd.OutOrStdout(), a...)
}
