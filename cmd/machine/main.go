package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/codec"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/config"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/logging"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/machine"
	natsclient "github.com/devghori1264/aerophoenix/edgefleet/internal/nats"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/protocol"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		id      string
		tick    time.Duration
		seed    uint64
	)
	cmd := &cobra.Command{
		Use:           "machine",
		Short:         "Run one simulated machine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			if cmd.Flags().Changed("id") {
				cfg.Machine.ID = id
			}
			if cmd.Flags().Changed("tick") {
				cfg.Machine.TickInterval = tick
			}
			if err := cfg.ValidateMachine(); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			defer log.Sync()

			rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
			if cmd.Flags().Changed("seed") {
				rng = rand.New(rand.NewPCG(seed, seed))
			}
			return run(cmd, cfg, rng, log)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfgPath, "config", "", "YAML config file")
	f.StringVar(&id, "id", "", "machine id (default $MACHINE_ID)")
	f.DurationVar(&tick, "tick", time.Second, "tick interval")
	f.Uint64Var(&seed, "seed", 0, "seed the failure draws for a reproducible run")
	return cmd
}

func run(cmd *cobra.Command, cfg config.Config, rng *rand.Rand, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wire, err := codec.Get(cfg.Transport.Codec)
	if err != nil {
		return err
	}
	conn, err := natsclient.Connect(cfg.Transport.NatsURL, "machine-"+cfg.Machine.ID, log.Named("nats"))
	if err != nil {
		log.Error("connect nats", zap.Error(err))
		return err
	}
	defer conn.Close()

	r := machine.NewRunner(
		machine.New(cfg.Machine.ID, rng),
		protocol.NewClient(conn, wire),
		machine.WithTickInterval(cfg.Machine.TickInterval),
		machine.WithLogger(log),
	)
	if err := r.Run(ctx); err != nil {
		log.Error("machine failed", zap.String("machine_id", cfg.Machine.ID), zap.Error(err))
		return err
	}
	return nil
}
