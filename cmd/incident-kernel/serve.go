package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/incidentdesk/internal/adapters/duckdb"
	"github.com/manthysbr/incidentdesk/internal/adapters/providers"
	"github.com/manthysbr/incidentdesk/internal/core/domain"
	"github.com/manthysbr/incidentdesk/internal/core/ports"
	"github.com/manthysbr/incidentdesk/internal/core/services"
	"github.com/manthysbr/incidentdesk/pkg/kernel"
)

const (
	reasoningTimeout = 90 * time.Second
	shutdownTimeout  = 5 * time.Second
)

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	logger.Info("starting incident kernel")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, logger); err != nil {
		logger.Error("kernel stopped with error", "error", err)
		return err
	}
	logger.Info("kernel stopped")
	return nil
}

func serve(ctx context.Context, logger *slog.Logger) error {
	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	catalog := domain.BuiltinCatalog()
	classifier, err := services.NewIntentClassifier(catalog)
	if err != nil {
		return fmt.Errorf("failed to build classifier: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewDispatchMetrics(registry)
	eventBus := services.NewEventBus(logger)

	var messages ports.MessageRepository
	if cfg.Storage.DuckDBPath != "" {
		repo, err := duckdb.NewRepository(cfg.Storage.DuckDBPath)
		if err != nil {
			return fmt.Errorf("failed to init repository: %w", err)
		}
		defer repo.Close()
		messages = repo
		logger.Info("persisting history", "path", cfg.Storage.DuckDBPath)
	}
	store := services.NewConversationStore(logger, messages, 0)

	rawBackend, err := providers.BuildBackend(logger, cfg, catalog)
	if err != nil {
		return err
	}
	backend := services.NewGuardedBackend(logger, rawBackend, metrics)

	deps := services.DispatcherDeps{
		Catalog:    catalog,
		Classifier: classifier,
		Backend:    backend,
		Store:      store,
		Bus:        eventBus,
		Metrics:    metrics,
	}
	llm, err := providers.BuildLLM(cfg)
	if err != nil {
		return err
	}
	if llm != nil {
		deps.Reasoning = services.NewReActStrategy(logger, llm, catalog, backend, cfg.Scope, cfg.Reasoning.MaxIterations, reasoningTimeout)
	}
	logger.Info("dispatcher configured",
		"backend", backend.Name(),
		"reasoning", cfg.Reasoning.Mode,
		"failure_threshold", cfg.Dispatcher.FailureThreshold,
	)

	dispatcher, err := services.NewDispatcher(logger, deps, cfg.Dispatcher)
	if err != nil {
		return err
	}

	apiServer, err := kernel.NewServer(logger, dispatcher, eventBus, registry, cfg.Server.AllowedOrigins)
	if err != nil {
		return fmt.Errorf("failed to build api server: %w", err)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           c.Handler(apiServer.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

