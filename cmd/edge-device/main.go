package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/config"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/logging"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath     string
		httpAddr    string
		metricsAddr string
		dbPath      string
		prediction  bool
		record      bool
	)
	cmd := &cobra.Command{
		Use:           "edge-device",
		Short:         "Coordinate the machine fleet: dispatch jobs, order repairs, collect training data",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("http-addr") {
				cfg.HTTP.Addr = httpAddr
			}
			if flags.Changed("metrics-addr") {
				cfg.HTTP.MetricsAddr = metricsAddr
			}
			if flags.Changed("db") {
				cfg.Store.Path = dbPath
			}
			if flags.Changed("prediction") {
				cfg.Edge.Prediction = prediction
			}
			if flags.Changed("record") {
				cfg.Edge.RecordMachineData = record
			}
			if err := cfg.ValidateEdge(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			defer log.Sync()
			return run(cmd.Context(), cfg, log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "YAML config file")
	f.StringVar(&httpAddr, "http-addr", "", "HTTP API listen address")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address, empty to disable")
	f.StringVar(&dbPath, "db", "", "Badger job store path")
	f.BoolVar(&prediction, "prediction", false, "dispatch by predicted remain_time instead of shortest job first")
	f.BoolVar(&record, "record", false, "record machine snapshots as training data")
	return cmd
}

func run(parent context.Context, cfg config.Config, log *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.Open(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
		log.Info("shutdown complete")
	}()

	if err := srv.Run(ctx); err != nil {
		log.Error("edge device failed", zap.Error(err))
		return err
	}
	return nil
}
