package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/jobs"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
)

func (a *app) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List, generate and reset jobs in the edge device's job store",
	}
	cmd.AddCommand(a.jobsListCmd(), a.jobsGenerateCmd(), a.jobsResetCmd())
	return cmd
}

func (a *app) jobsListCmd() *cobra.Command {
	var field, value string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally where --field equals --value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.client()
			var (
				list []models.Job
				err  error
			)
			if field != "" {
				list, err = c.Search(cmd.Context(), field, value)
			} else {
				list, err = c.GetAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, list)
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "job field to match, e.g. status")
	cmd.Flags().StringVar(&value, "value", "", "value the field must equal")
	return cmd
}

func (a *app) jobsGenerateCmd() *cobra.Command {
	var (
		count int
		limit int
		poll  time.Duration
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Insert random jobs, pausing while too many are unfinished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g := &jobs.Generator{
				Store: a.client(),
				Count: count,
				Limit: limit,
				Poll:  poll,
				Log:   a.log,
			}
			if cmd.Flags().Changed("seed") {
				g.Rand = rand.New(rand.NewPCG(seed, seed))
			}
			n, err := g.Run(cmd.Context())
			a.log.Info("generation done", zap.Int("inserted", n))
			return err
		},
	}
	f := cmd.Flags()
	f.IntVar(&count, "count", 10, "number of jobs to insert")
	f.IntVar(&limit, "limit", 10, "wait while this many jobs are unfinished, 0 for no limit")
	f.DurationVar(&poll, "poll", 5*time.Second, "backlog check interval")
	f.Uint64Var(&seed, "seed", 0, "seed for reproducible jobs")
	return cmd
}

func (a *app) jobsResetCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return jobs stuck in processing to unfinished with their full job time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reset, err := jobs.ResetStale(cmd.Context(), a.client(), all)
			for _, j := range reset {
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s (job_time %d)\n", j.ID, j.JobTime)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also reset jobs with no remaining time")
	return cmd
}
