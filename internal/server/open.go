package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/blob"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/codec"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/config"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/coordinator"
	natsclient "github.com/devghori1264/aerophoenix/edgefleet/internal/nats"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/predict"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/protocol"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/storage"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/telemetry"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/training"
)

// Open builds an edge device from cfg: tracing, the NATS connection, the
// Badger job store, the blob container, the model and the coordinator.
// On error everything opened so far is closed.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (srv *Server, err error) {
	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i].Close()
			}
		}
	}()

	if cfg.Telemetry.Tracing {
		shutdown, err := telemetry.SetupTracing(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		closers = append(closers, closerFunc(func() error { return shutdown(context.Background()) }))
	}

	wire, err := codec.Get(cfg.Transport.Codec)
	if err != nil {
		return nil, err
	}
	conn, err := natsclient.Connect(cfg.Transport.NatsURL, "edge-device", log.Named("nats"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	closers = append(closers, conn)

	store, err := storage.NewBadgerStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	closers = append(closers, store)

	blobs, err := blob.NewDir(cfg.Blob.Dir, cfg.Blob.Compress)
	if err != nil {
		return nil, err
	}

	opts := []coordinator.Option{
		coordinator.WithLogger(log.Named("coordinator")),
		coordinator.WithBlobs(blobs),
		coordinator.WithMailboxSize(cfg.Edge.MailboxSize),
	}
	if cfg.Edge.Prediction {
		model, closer, err := OpenModel(ctx, cfg.Model, blobs, log)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		opts = append(opts, coordinator.WithModel(model))
	}
	if cfg.Edge.RecordMachineData {
		opts = append(opts, coordinator.WithRecorder(training.NewRecorder(cfg.Edge.TrainingFile)))
	}

	coord, err := coordinator.New(coordinator.Settings{
		Prediction:             cfg.Edge.Prediction,
		RepairTime:             cfg.Edge.RepairTime,
		TotalDamageRepairTime:  cfg.Edge.TotalDamageRepairTime,
		TotalDamageProbability: cfg.Edge.TotalDamageProbability,
		TickInterval:           cfg.Edge.TickInterval,
	}, protocol.NewClient(conn, wire), store, opts...)
	if err != nil {
		return nil, err
	}

	srv = New(coord, store, log, cfg.HTTP.Addr, cfg.HTTP.MetricsAddr)
	for _, c := range closers {
		srv.own(c)
	}
	return srv, nil
}

// OpenModel returns the remain_time model: a remote predictor when an
// endpoint is set, otherwise the local linear model file, first fetched
// from the blob container when Download is set. The returned closer may
// be nil.
func OpenModel(ctx context.Context, cfg config.Model, blobs blob.Container, log *zap.Logger) (predict.Model, io.Closer, error) {
	if cfg.Endpoint != "" {
		remote, err := predict.Dial(cfg.Endpoint, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("dial predictor: %w", err)
		}
		log.Info("using remote predictor", zap.String("endpoint", cfg.Endpoint))
		return remote, remote, nil
	}
	if cfg.Path == "" {
		return nil, nil, errors.New("no model configured")
	}
	if cfg.Download {
		name := filepath.Base(cfg.Path)
		if err := blobs.Download(ctx, name, cfg.Path); err != nil {
			return nil, nil, fmt.Errorf("download model %s: %w", name, err)
		}
		log.Info("model downloaded", zap.String("blob", name), zap.String("path", cfg.Path))
	}
	model, err := predict.LoadLinear(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	return model, nil, nil
}
