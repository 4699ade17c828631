package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"jute-fleet-backend/config"
	"jute-fleet-backend/internal/api"
	"jute-fleet-backend/internal/db"
	"jute-fleet-backend/internal/events"
	"jute-fleet-backend/internal/fleet"
	"jute-fleet-backend/internal/logs"
	"jute-fleet-backend/internal/metrics"
	"jute-fleet-backend/internal/model"
	"jute-fleet-backend/internal/notification"
)

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the fleet engine and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logs.Logger

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			return errors.New("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	snapshots, err := openStore(cfg.Storage, gormDB)
	if err != nil {
		return err
	}
	defer snapshots.Close()
	logger.WithField("driver", cfg.Storage.Driver).Info("snapshot store initialized")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Workers outlive the engine so the final events still get delivered.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var listeners []model.EventListener
	if webpushOptions != nil {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions)
		pool.OnDrop(m.DroppedJobs.Inc)
		pool.Start(workerCtx)
		listeners = append(listeners, pool)
	}
	if cfg.Events.NatsURL != "" {
		publisher, err := events.NewPublisher(cfg.Events.NatsURL, cfg.Events.Subject)
		if err != nil {
			logger.WithError(err).Warn("machine events will not be published")
		} else {
			defer publisher.Close()
			listeners = append(listeners, publisher)
		}
	}

	engine := fleet.New(fleet.Options{
		Store:         snapshots,
		TickInterval:  cfg.Engine.TickInterval,
		FlushInterval: cfg.Engine.FlushInterval,
		PinLifetime:   cfg.Engine.PinLifetime,
		OverridePin:   cfg.Engine.OverridePin,
		Catalog:       cfg.Catalog,
		DefaultOwner:  cfg.Engine.DefaultOwner,
		Metrics:       m,
		Listeners:     listeners,
	})
	engine.Start(ctx)

	handler := api.NewHandler(engine, fleet.NewDirectory(cfg.Users), gormDB, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server, m.Handler()),
	}

	return run(ctx, server, engine)
}

// run serves HTTP until ctx ends or the listener fails, then stops the engine
// and drains the server. A listener failure is returned after the engine has
// flushed.
func run(ctx context.Context, server *http.Server, engine interface{ Stop(context.Context) error }) error {
	logger := logs.Logger

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var failed error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
			failed = fmt.Errorf("HTTP server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Open event streams end when the engine closes its subscriptions.
	if err := engine.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("final snapshot flush failed")
	}
	if err := server.Shutdown(shutdownCtx); err != nil && failed == nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	if failed != nil {
		return failed
	}

	logger.Info("server gracefully stopped")
	return nil
}
