// Package bootstrap assembles the circulation services shared by the API and
// the cron worker.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/library-backend/internal/catalog"
	"github.com/angelmondragon/library-backend/internal/holdjobs"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/internal/reservations"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/events"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/redis"
)

// Services is the wired circulation graph.
type Services struct {
	Catalog      catalog.Service
	Loans        loans.Service
	Reservations reservations.Service
	HoldJobs     *holdjobs.Runner
	Availability *catalog.AvailabilityCache
	Events       events.Publisher
	Metrics      *metrics.CirculationMetrics
}

// Close releases the event publisher.
func (s *Services) Close() error {
	if s == nil || s.Events == nil {
		return nil
	}
	return s.Events.Close()
}

// Build wires every circulation service. redisClient may be nil, which turns
// the availability cache off.
func Build(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*Services, error) {
	if cfg == nil || dbClient == nil {
		return nil, fmt.Errorf("config and database are required")
	}
	circulationMetrics := metrics.NewCirculationMetrics(reg)

	var cache *catalog.AvailabilityCache
	if redisClient != nil && cfg.Cache.Enabled {
		cache = catalog.NewAvailabilityCache(redisClient, cfg.Cache.AvailabilityTTL, logg, circulationMetrics)
	}

	loanSvc, err := loans.NewService(loans.ServiceParams{
		DB:           dbClient,
		Policy:       loans.PolicyFromConfig(cfg.Circulation),
		Reservations: reservations.HoldGateway{},
		Holds:        reservations.HoldGateway{},
		Availability: cache,
		Metrics:      circulationMetrics,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("loan service: %w", err)
	}

	queue, err := reservations.NewService(reservations.ServiceParams{
		DB:           dbClient,
		DueDates:     loans.DueDates{},
		HoldDuration: cfg.Circulation.HoldDuration,
		Availability: cache,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("reservation service: %w", err)
	}

	catalogSvc, err := catalog.NewService(catalog.ServiceParams{
		DB:       dbClient,
		DueDates: loans.DueDates{},
		Cache:    cache,
		Logger:   logg,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}

	publisher, err := events.New(ctx, cfg.Events, logg)
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}

	runner, err := holdjobs.NewRunner(holdjobs.RunnerParams{
		Queue:        queue,
		Availability: cache,
		Events:       publisher,
		Metrics:      circulationMetrics,
		Logger:       logg,
	})
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("hold job runner: %w", err)
	}

	return &Services{
		Catalog:      catalogSvc,
		Loans:        loanSvc,
		Reservations: queue,
		HoldJobs:     runner,
		Availability: cache,
		Events:       publisher,
		Metrics:      circulationMetrics,
	}, nil
}
