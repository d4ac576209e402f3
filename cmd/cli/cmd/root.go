package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spgemm-symbolic/internal/service"
	"github.com/spgemm-symbolic/pkg/config"
	"github.com/spgemm-symbolic/pkg/pprof"
	"github.com/spgemm-symbolic/pkg/telemetry"
	"github.com/spgemm-symbolic/pkg/utils"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Pprof flags
	pprofEnabled  bool
	pprofMode     string
	pprofDir      string
	pprofProfiles string
	pprofAddr     string

	cfg               *config.Config
	logger            utils.Logger
	pprofCollector    *pprof.Collector
	telemetryShutdown telemetry.ShutdownFunc
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "spgemm-symbolic",
	Short: "Compute the nonzero structure of sparse matrix products",
	Long: `spgemm-symbolic runs the symbolic phase of a sparse matrix-matrix product.

Given the sparsity patterns of A and B it estimates the size of every row of
C = A*B, counts the exact number of columns per row with one of several
set-merge accumulators and, optionally, materializes the column indices.
Each run writes a JSON report and can be recorded in a database and archived
to object storage.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logger, err = newLogger(cfg.Log); err != nil {
			return err
		}
		utils.SetGlobalLogger(logger)

		if telemetryShutdown, err = telemetry.Init(cmd.Context()); err != nil {
			logger.Warn("Telemetry disabled: %v", err)
		}

		if pprofEnabled {
			pcfg, err := buildPprofConfig()
			if err != nil {
				return err
			}
			collector, err := pprof.NewCollector(pcfg)
			if err != nil {
				return err
			}
			if err := collector.Start(); err != nil {
				return err
			}
			pprofCollector = collector
			if pcfg.Mode == pprof.ModeHTTP {
				logger.Info("pprof endpoints at http://%s/debug/pprof/", collector.Addr())
			} else {
				logger.Info("pprof collection started (dir: %s)", pcfg.OutputDir)
			}
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pprofCollector != nil {
			if err := pprofCollector.Stop(); err != nil {
				logger.Warn("Failed to stop pprof collector: %v", err)
			}
			for _, f := range pprofCollector.Files() {
				logger.Info("pprof profile saved to: %s", f)
			}
		}
		if telemetryShutdown != nil {
			if err := telemetryShutdown(context.Background()); err != nil {
				logger.Warn("Failed to flush traces: %v", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.PersistentFlags().BoolVar(&pprofEnabled, "pprof", false, "Profile the process while it runs")
	rootCmd.PersistentFlags().StringVar(&pprofMode, "pprof-mode", "file", "Pprof mode: file or http")
	rootCmd.PersistentFlags().StringVar(&pprofDir, "pprof-dir", "./pprof", "Output directory for pprof data")
	rootCmd.PersistentFlags().StringVar(&pprofProfiles, "pprof-profiles", "cpu,heap", "Comma-separated profile types: cpu,heap,goroutine,block,mutex,allocs")
	rootCmd.PersistentFlags().StringVar(&pprofAddr, "pprof-addr", ":6060", "HTTP listen address for http mode")

	binName := BinName()
	rootCmd.Example = `  # Run the default random product and verify it
  ` + binName + ` run --verify

  # Force a strategy on a larger product
  ` + binName + ` run --strategy two-level --rows 20000 --inner 20000 --cols 40000

  # Compare every strategy and record the runs
  ` + binName + ` bench -c ./configs/config.yaml

  # Profile the count phase
  ` + binName + ` run --pprof --pprof-profiles cpu`
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

func newLogger(lc config.LogConfig) (utils.Logger, error) {
	level := utils.ParseLogLevel(lc.Level)
	if verbose {
		level = utils.LevelDebug
	}
	if lc.File == "" {
		return utils.NewDefaultLogger(level, os.Stderr), nil
	}
	return utils.NewFileLogger(level, lc.File)
}

func buildPprofConfig() (*pprof.Config, error) {
	pcfg := pprof.DefaultConfig()
	pcfg.Enabled = true
	pcfg.OutputDir = pprofDir
	pcfg.Addr = pprofAddr
	switch strings.ToLower(pprofMode) {
	case "file":
		pcfg.Mode = pprof.ModeFile
	case "http":
		pcfg.Mode = pprof.ModeHTTP
	default:
		return nil, fmt.Errorf("invalid pprof mode: %q (valid: file, http)", pprofMode)
	}
	profiles, err := pprof.ParseProfileTypes(pprofProfiles)
	if err != nil {
		return nil, err
	}
	pcfg.Profiles = profiles
	return pcfg, pcfg.Validate()
}

// openService builds and initializes the service for the loaded config.
func openService(ctx context.Context) (*service.Service, error) {
	svc, err := service.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	svc.SetVersion(Version)
	if err := svc.Initialize(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}
