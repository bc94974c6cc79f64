// Package api serves the engine's query surface over HTTP: test lists,
// score series, segmentations, and alarms. It is read-only; plot and
// report rendering stay external.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/regressoor/pkg/analyzer"
	"github.com/ethpandaops/regressoor/pkg/config"
	"github.com/ethpandaops/regressoor/pkg/series"
	"github.com/ethpandaops/regressoor/pkg/store"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	analyzer   *analyzer.Analyzer
	extractor  *series.Extractor
	httpServer *http.Server
}

// NewServer creates a new API server over the given store.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	s store.Store,
) Server {
	return &server{
		log:       log.WithField("component", "api"),
		cfg:       cfg,
		store:     s,
		analyzer:  analyzer.New(log, cfg, s),
		extractor: series.NewExtractor(log, s),
	}
}

// Start builds the router and runs the HTTP server until ctx is done.
func (s *server) Start(ctx context.Context) error {
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.log.WithField("listen", s.cfg.Server.Listen).Info("API server listening")

		if err := s.httpServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	s.log.Info("API server stopped")

	return nil
}
