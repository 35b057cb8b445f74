// Package cli wires configuration, logging and the citation pipeline into
// the refcite command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"refcite/internal/config"
	"refcite/internal/logging"
)

// skipConfigAnnotation marks commands that must run without a loaded config.
const skipConfigAnnotation = "refcite/skip-config"

// app is the state shared by all subcommands of one invocation.
type app struct {
	cfgPath  string
	logLevel string

	cfg      *config.AppConfig
	usedPath string
	logger   *zap.Logger
}

// NewRootCommand builds the refcite command tree.
func NewRootCommand() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	root := &cobra.Command{
		Use:               "refcite",
		Short:             "refcite: insert evidence-based citations into a draft from reference texts",
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
		PersistentPostRun: func(*cobra.Command, []string) { _ = a.logger.Sync() },
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (default ./refcite.yaml, then ~/.config/refcite/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		a.newRunCmd(),
		a.newFinalizeCmd(),
		a.newReviewCmd(),
		a.newConfigCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfigAnnotation] != "" {
		return nil
	}
	var (
		cfg *config.AppConfig
		err error
	)
	if a.cfgPath == "" {
		cfg, a.usedPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(a.cfgPath)
		a.usedPath = a.cfgPath
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	a.logger.Debug("configuration loaded", zap.String("path", a.usedPath))
	return nil
}
