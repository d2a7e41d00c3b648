package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/api"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/config"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/logging"
)

type app struct {
	cfgPath string
	edgeURL string
	timeout time.Duration

	cfg config.Config
	log *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Operate the machine fleet: jobs, training data and models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("edge-url") {
				cfg.HTTP.EdgeURL = a.edgeURL
			}
			log, err := logging.New(cfg.Log.Level, "console")
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "YAML config file")
	pf.StringVar(&a.edgeURL, "edge-url", "", "edge device API base URL")
	pf.DurationVar(&a.timeout, "timeout", 10*time.Second, "HTTP request timeout")

	root.AddCommand(
		a.pingCmd(),
		a.machinesCmd(),
		a.jobsCmd(),
		a.trainingCmd(),
		a.modelCmd(),
	)
	return root
}

func (a *app) client() *api.Client {
	return api.NewClient(a.cfg.HTTP.EdgeURL, a.timeout)
}

func (a *app) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the edge device is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := a.client().Ping(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func (a *app) machinesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "machines [ID]",
		Short: "Show the registered machines, or one machine",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client()
			if len(args) == 1 {
				m, err := c.Machine(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, m)
			}
			ms, err := c.Machines(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, ms)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
