// cmd/inventory/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"libraryinfo/internal/config"
	"libraryinfo/internal/inventory"
	"libraryinfo/internal/store"
	"libraryinfo/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("inventory service stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := telemetry.NewLogger(os.Stdout, level, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:        cfg.OTelEnabled,
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    cfg.ServiceName,
		MetricInterval: cfg.OTelMetricInterval,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("failed to flush traces", slog.Any("error", err))
		}
	}()

	st, err := store.Open(ctx, store.Config{
		Driver:          cfg.DatabaseDriver,
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, store.WithLogger(logger))
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []inventory.HandlerOption{
		inventory.WithHandlerLogger(logger),
		inventory.WithAdminRateLimit(cfg.AdminRateLimit, cfg.AdminRateBurst),
		inventory.WithSchemaReset(cfg.AllowSchemaReset),
		inventory.WithRequestTimeout(cfg.RequestTimeout),
	}
	if cfg.AdminTokenHash != "" {
		token, err := inventory.NewAdminToken(cfg.AdminTokenHash, cfg.AdminTokenSalt)
		if err != nil {
			return err
		}
		opts = append(opts, inventory.WithAdminToken(token))
	}

	svc := inventory.NewService(st, logger)
	handler := inventory.NewHandler(svc, opts...)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting inventory service",
			slog.String("addr", server.Addr),
			slog.String("driver", st.Driver()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down inventory service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
