// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway assembles the LLM gateway service: an audited,
// provider-agnostic chat-completion proxy with reversible PII handling and
// asynchronous judge scoring.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/veilgate/services/gateway/events"
	"github.com/AleutianAI/veilgate/services/gateway/handlers"
	"github.com/AleutianAI/veilgate/services/gateway/observability"
	"github.com/AleutianAI/veilgate/services/gateway/privacy"
	"github.com/AleutianAI/veilgate/services/gateway/providers"
	"github.com/AleutianAI/veilgate/services/gateway/queue"
	"github.com/AleutianAI/veilgate/services/gateway/settings"
)

// Config holds the gateway's startup configuration, normally populated
// from environment variables by cmd/veilgate.
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// DataDir is the badger database directory. Empty means in-memory,
	// which loses the audit trail and pending judge tasks on exit.
	DataDir string

	// DetectorURL is the base URL of the PII entity-detection service.
	DetectorURL string

	// JudgeMaxAttempts bounds judge task retries. Zero means the queue
	// default.
	JudgeMaxAttempts int

	// TraceStdout enables span export to stdout for local debugging.
	TraceStdout bool

	// Debug enables gin debug mode and verbose request logs.
	Debug bool
}

// Service is the assembled gateway.
type Service struct {
	cfg     Config
	logger  *slog.Logger
	db      *badger.DB
	queue   *queue.Queue
	router  *gin.Engine
	tracing *sdktrace.TracerProvider
}

// New assembles the gateway from its configuration. The returned service
// owns the badger handle and the task queue; Run releases both on
// shutdown.
func New(cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.DataDir).WithLogger(nil)
	if cfg.DataDir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	eventStore, err := events.NewStore(db, logger)
	if err != nil {
		return nil, err
	}
	settingStore, err := settings.NewStore(db)
	if err != nil {
		return nil, err
	}

	detector := privacy.NewClient(cfg.DetectorURL)
	dispatcher := providers.NewDispatcher(logger)
	metrics := observability.InitMetrics()

	svc := handlers.NewService(
		eventStore,
		settingStore,
		dispatcher,
		privacy.NewMasker(detector, nil),
		privacy.NewPseudonymizer(detector),
		nil, // queue wired below, it needs the env factory
		metrics,
		logger,
	)
	taskQueue := queue.New(db, svc.NewEnv, logger, cfg.JudgeMaxAttempts)
	svc.Queue = taskQueue

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	svc.RegisterRoutes(router)

	s := &Service{
		cfg:    cfg,
		logger: logger,
		db:     db,
		queue:  taskQueue,
		router: router,
	}
	if cfg.TraceStdout {
		if err := s.initTracing(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Run starts the queue worker and the HTTP server, then blocks until
// SIGINT/SIGTERM and shuts both down, flushing badger last.
func (s *Service) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.queue.Start(ctx)
	go s.reportAbandonedTasks(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", slog.Int("port", s.cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown", slog.Any("error", err))
	}
	s.queue.Stop()
	if s.tracing != nil {
		if err := s.tracing.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("tracer shutdown", slog.Any("error", err))
		}
	}
	return s.db.Close()
}

// reportAbandonedTasks drains the queue's failure channel into the log and
// the metrics. Abandoned judge tasks surface nowhere else.
func (s *Service) reportAbandonedTasks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case failure := <-s.queue.Failures():
			s.logger.Error("judge task abandoned",
				slog.String("task_id", failure.TaskID),
				slog.Any("error", failure.Err),
			)
			if observability.DefaultMetrics != nil {
				observability.DefaultMetrics.RecordJudgeTask(false)
			}
		}
	}
}

func (s *Service) initTracing() error {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}
	s.tracing = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(s.tracing)
	return nil
}
