package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"nucleus-sweep/internal/config"
	"nucleus-sweep/internal/logger"
)

const (
	AppName    = "nucleus-sweep"
	AppVersion = "1.0.0"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func main() {
	configureRuntime()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// configureRuntime leaves GC headroom for the large per-image rasters.
func configureRuntime() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(200)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           AppName,
		Short:         "Sweep global/local threshold pairs of a nuclear segmentation pipeline",
		Version:       AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit JSON log lines instead of console output")

	root.AddCommand(
		newSweepCmd(opts),
		newShowCmd(),
		newHistoryCmd(opts),
		newMethodsCmd(),
	)
	return root
}

// loadConfig reads the config file and applies the root flag overrides. The result
// is not validated.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logJSON {
		cfg.Log.JSON = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logger.New(level, cfg.Log.JSON), nil
}
