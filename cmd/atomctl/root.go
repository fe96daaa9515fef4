package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/seg16/atom"
	"github.com/wippyai/seg16/config"
	"github.com/wippyai/seg16/kernel"
	"github.com/wippyai/seg16/ldt"
	"github.com/wippyai/seg16/localheap"
	"github.com/wippyai/seg16/stack16"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOut    bool
)

var rootCmd = &cobra.Command{
	Use:   "atomctl",
	Short: "Inspect and exercise 16-bit atom tables",
	Long: `atomctl drives an in-process 16-bit kernel: per-segment atom tables,
the global USER atom table, and the 16-bit stack used to cross between flat and
segmented code. Scripts and the interactive mode run against a fresh kernel.`,
	SilenceUsage: true,
	Version:      "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config and applies --verbose.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	return cfg, nil
}

// newKernel builds a kernel from the command line configuration and installs
// its logger in every package.
func newKernel(ctx context.Context) (*kernel.Kernel, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	installLogger(log)
	return kernel.New(ctx, cfg)
}

func installLogger(l *zap.Logger) {
	ldt.SetLogger(l.Named("ldt"))
	localheap.SetLogger(l.Named("localheap"))
	atom.SetLogger(l.Named("atom"))
	stack16.SetLogger(l.Named("stack16"))
	kernel.SetLogger(l.Named("kernel"))
}

// printJSON outputs data as indented JSON
func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
