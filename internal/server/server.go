// Package server runs the edge device process: the coordinator loop, the
// REST API and the metrics listener.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/api"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/coordinator"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Server owns the edge device's long running parts and the resources they
// were built from.
type Server struct {
	coord       *coordinator.Coordinator
	store       storage.JobStore
	log         *zap.Logger
	httpAddr    string
	metricsAddr string

	ready   chan struct{}
	httpLn  net.Listener
	closers []io.Closer
}

// New creates a server around an existing coordinator. An empty
// metricsAddr disables the metrics listener.
func New(coord *coordinator.Coordinator, store storage.JobStore, log *zap.Logger, httpAddr, metricsAddr string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		coord:       coord,
		store:       store,
		log:         log,
		httpAddr:    httpAddr,
		metricsAddr: metricsAddr,
		ready:       make(chan struct{}),
	}
}

// Ready is closed once the listeners are bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// HTTPAddr is the bound API address, valid after Ready.
func (s *Server) HTTPAddr() net.Addr { return s.httpLn.Addr() }

// Run serves until ctx is done or one of the parts fails.
func (s *Server) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return err
	}
	var metricsLn net.Listener
	if s.metricsAddr != "" {
		if metricsLn, err = net.Listen("tcp", s.metricsAddr); err != nil {
			httpLn.Close()
			return err
		}
	}
	s.httpLn = httpLn
	close(s.ready)

	httpSrv := &http.Server{
		Handler:           api.NewHTTPHandler(s.coord.Registry(), s.store, s.log.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	mux := http.NewServeMux()
	api.RegisterMetrics(mux)
	metricsSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.coord.Run(gctx) })
	g.Go(func() error {
		s.log.Info("HTTP API listening", zap.Stringer("addr", httpLn.Addr()))
		return serve(httpSrv, httpLn)
	})
	if metricsLn != nil {
		g.Go(func() error {
			s.log.Info("Prometheus metrics available", zap.String("url", "http://"+metricsLn.Addr().String()+"/metrics"))
			return serve(metricsSrv, metricsLn)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutdown initiated")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(httpSrv.Shutdown(sctx), metricsSrv.Shutdown(sctx))
	})
	return g.Wait()
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the resources handed to the server, last opened first.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Server) own(c io.Closer) { s.closers = append(s.closers, c) }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
