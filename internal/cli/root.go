package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cadre-oss/hearth/internal/config"
	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "Memory-backed conversational companion",
	Long: `hearth - a companion that remembers.

Runs a persona-driven conversation over a local or hosted language model,
keeping durable facts, searchable past turns and a short-term buffer, and
failing over to a fallback backend when the primary stops answering.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints errors with their suggestion.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if s := apperrors.Suggestion(err); s != "" {
			fmt.Fprintln(os.Stderr, "  →", s)
		}
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ./hearth.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.String("backend", "", "primary backend name (overrides dispatcher.primary)")
	pf.String("fallback", "", "fallback backend name (overrides dispatcher.fallback)")
	pf.Bool("no-fallback", false, "disable failover")
	pf.String("log-level", "", "log level (debug, info, warn, error)")

	for _, name := range []string{"backend", "fallback", "no-fallback", "log-level"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(factCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("hearth")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("HEARTH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// configPath returns the configuration file in effect.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Join(".", config.FileName)
}

// loadConfig loads the configuration file, applies flag and HEARTH_*
// environment overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configPath())
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config) {
	if b := viper.GetString("backend"); b != "" {
		cfg.Dispatcher.Primary = b
	}
	if f := viper.GetString("fallback"); f != "" {
		cfg.Dispatcher.Fallback = f
	}
	if viper.GetBool("no-fallback") {
		cfg.Dispatcher.Fallback = ""
	}
	if l := viper.GetString("log-level"); l != "" {
		cfg.Logging.Level = l
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.Config) (*telemetry.Logger, error) {
	logger := telemetry.NewLoggerLevel(cfg.Logging.Level)
	if cfg.Logging.File != "" {
		if err := logger.WithFile(cfg.Logging.File); err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
	}
	return logger, nil
}
