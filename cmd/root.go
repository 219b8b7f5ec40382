// Package cmd implements the crossflow command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crossflow/crossflow/scan"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "crossflow",
	Short: "Cross-module taint flow scanner for JavaScript and Python projects",
	Long: `crossflow builds the import graph of a project, extracts local taint
facts per module and propagates them across module boundaries to find
source-to-sink flows, under deterministic depth, module and time budgets.`,
	SilenceUsage: true,
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file with scan defaults")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
}

// fileConfig is the optional YAML configuration, providing defaults that
// explicit flags override.
type fileConfig struct {
	LogLevel string       `yaml:"log_level"`
	Rules    string       `yaml:"rules"`
	Format   string       `yaml:"format"`
	Scan     scan.Request `yaml:"scan"`
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
