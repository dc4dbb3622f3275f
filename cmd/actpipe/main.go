package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"actpipe/internal/config"
	"actpipe/internal/logging"
)

var version = "dev"

// app carries what PersistentPreRunE prepared for the subcommands.
type app struct {
	v        *viper.Viper
	cfgFile  string
	cfg      config.Config
	log      *slog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:                "actpipe",
		Short:              "Clean, enrich and publish user activity batches",
		SilenceUsage:       true,
		PersistentPreRunE:  a.init,
		PersistentPostRunE: a.close,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./actpipe.yaml)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")
	pf.String("log-file", "", "also append logs to this file")
	bind(a.v, pf.Lookup("log-level"), "logging.level")
	bind(a.v, pf.Lookup("log-format"), "logging.format")
	bind(a.v, pf.Lookup("log-file"), "logging.file")

	root.AddCommand(a.runCmd(), a.generateCmd(), a.verifyCmd(), versionCmd())
	return root
}

func (a *app) init(*cobra.Command, []string) error {
	if err := config.ReadFile(a.v, a.cfgFile); err != nil {
		return err
	}
	config.BindEnv(a.v)
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	log, closeLog, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	a.log, a.closeLog = log, closeLog
	return nil
}

func (a *app) close(*cobra.Command, []string) error {
	if a.closeLog == nil {
		return nil
	}
	return a.closeLog()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skips config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "actpipe", version)
		},
	}
}
