package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/blob"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/predict"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/training"
)

func (a *app) trainingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "training",
		Short: "Prepare recorded machine data for model fitting",
	}
	cmd.AddCommand(a.trainingBuildCmd())
	return cmd
}

func (a *app) trainingBuildCmd() *cobra.Command {
	var in, out, fromBlob string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Label a recording with the remain_time until each machine's next failure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fromBlob != "" {
				blobs, err := blob.NewDir(a.cfg.Blob.Dir, a.cfg.Blob.Compress)
				if err != nil {
					return err
				}
				if err := blobs.Download(cmd.Context(), fromBlob, in); err != nil {
					return err
				}
				a.log.Info("recording downloaded", zap.String("blob", fromBlob), zap.String("path", in))
			}
			f, err := os.Open(in)
			if err != nil {
				return err
			}
			rows, err := training.ReadRows(f)
			f.Close()
			if err != nil {
				return err
			}
			labelled := training.Build(rows)

			dst, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := training.WriteRows(dst, labelled); err != nil {
				dst.Close()
				return err
			}
			if err := dst.Close(); err != nil {
				return err
			}
			a.log.Info("training file written",
				zap.String("path", out), zap.Int("rows", len(rows)), zap.Int("labelled", len(labelled)))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in, "in", "machine_reports_without_remain_time.csv", "recorded machine data")
	f.StringVar(&out, "out", "machine_reports.csv", "labelled training file")
	f.StringVar(&fromBlob, "from-blob", "", "download the recording from the blob container first")
	return cmd
}

func (a *app) modelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Fit and serve the remain_time model",
	}
	cmd.AddCommand(a.modelFitCmd(), a.modelServeCmd())
	return cmd
}

func (a *app) modelFitCmd() *cobra.Command {
	var in, out string
	var publish bool
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a linear model to a labelled training file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(in)
			if err != nil {
				return err
			}
			rows, err := training.ReadRows(f)
			f.Close()
			if err != nil {
				return err
			}
			var samples []predict.Sample
			for _, r := range rows {
				if s, ok := r.Sample(); ok {
					samples = append(samples, s)
				}
			}
			model, err := predict.Fit(samples)
			if err != nil {
				return fmt.Errorf("fit %d samples: %w", len(samples), err)
			}
			if err := model.Save(out); err != nil {
				return err
			}
			a.log.Info("model written", zap.String("path", out), zap.Int("samples", len(samples)),
				zap.Float64("intercept", model.Intercept), zap.Float64s("coefficients", model.Coefficients[:]))

			if publish {
				// stored under its own name so edge devices can fetch it by model path
				blobs, err := blob.NewDir(a.cfg.Blob.Dir, false)
				if err != nil {
					return err
				}
				dst := filepath.Join(blobs.Root, filepath.Base(out))
				if err := model.Save(dst); err != nil {
					return err
				}
				a.log.Info("model published", zap.String("blob", filepath.Base(out)))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in, "in", "machine_reports.csv", "labelled training file")
	f.StringVar(&out, "out", "model.yaml", "model output file")
	f.BoolVar(&publish, "publish", false, "also place the model in the blob container")
	return cmd
}

func (a *app) modelServeCmd() *cobra.Command {
	var path, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a linear model over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			model, err := predict.LoadLinear(path)
			if err != nil {
				return err
			}
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			gs := grpc.NewServer()
			predict.RegisterServer(gs, model)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				gs.GracefulStop()
			}()
			a.log.Info("predictor listening", zap.Stringer("addr", lis.Addr()), zap.String("model", path))
			return gs.Serve(lis)
		},
	}
	f := cmd.Flags()
	f.StringVar(&path, "model", "model.yaml", "linear model file")
	f.StringVar(&addr, "addr", ":50051", "gRPC listen address")
	return cmd
}
