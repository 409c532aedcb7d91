package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/library-backend/api/routes"
	"github.com/angelmondragon/library-backend/internal/bootstrap"
	"github.com/angelmondragon/library-backend/pkg/env"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := bootstrap.EarlyLogger("api")
	if err := run(logg); err != nil {
		logg.Error(context.Background(), "api.exit", err)
		os.Exit(1)
	}
}

func run(early *logger.Logger) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(sigCtx, "api", early)
	if err != nil {
		return err
	}
	logg := infra.Logger
	defer func() {
		if err := infra.Close(); err != nil {
			logg.Error(context.Background(), "api.close_failed", err)
		}
	}()

	services, err := bootstrap.Build(sigCtx, infra.Config, logg, infra.DB, infra.Redis, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logg.Error(context.Background(), "api.events_close_failed", err)
		}
	}()

	addr := ":" + env.Get("PORT", infra.Config.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  infra.Config.App.Env,
		"addr": addr,
	})
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:       infra.Config,
			Logger:       logg,
			DB:           infra.DB,
			Redis:        infra.Redis,
			Metrics:      promhttp.Handler(),
			HTTPMetrics:  metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
			Catalog:      services.Catalog,
			Loans:        services.Loans,
			Reservations: services.Reservations,
			HoldJobs:     services.HoldJobs,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "api.listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
	}

	logg.Info(ctx, "api.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
