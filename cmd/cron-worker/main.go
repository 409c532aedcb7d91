package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/library-backend/internal/bootstrap"
	"github.com/angelmondragon/library-backend/internal/cron"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
)

func main() {
	logg := bootstrap.EarlyLogger("cron-worker")
	if err := run(logg); err != nil {
		logg.Error(context.Background(), "cron_worker.exit", err)
		os.Exit(1)
	}
}

func run(early *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(ctx, "cron-worker", early)
	if err != nil {
		return err
	}
	logg := infra.Logger
	defer func() {
		if err := infra.Close(); err != nil {
			logg.Error(context.Background(), "cron_worker.close_failed", err)
		}
	}()

	services, err := bootstrap.Build(ctx, infra.Config, logg, infra.DB, infra.Redis, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logg.Error(context.Background(), "cron_worker.events_close_failed", err)
		}
	}()

	jobs, err := cron.NewHoldJobs(services.HoldJobs)
	if err != nil {
		return err
	}
	lock, err := cron.NewCirculationLock(infra.Redis, infra.Config.Cron.LockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(jobs...),
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   infra.Config.Cron.Interval,
		JobTimeout: infra.Config.Cron.JobTimeout,
	})
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", infra.Config.App.Env)
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron_worker.stopped")
	return nil
}
