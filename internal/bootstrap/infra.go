package bootstrap

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/env"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/migrate"
	"github.com/angelmondragon/library-backend/pkg/redis"
)

// Infra holds the process-wide connections each binary opens at start.
type Infra struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client
}

// EarlyLogger logs until the config is loaded.
func EarlyLogger(service string) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: service,
		WarnStack:   env.Bool("LIBRARY_LOG_WARN_STACK", false),
	})
}

// Open loads .env and the config, then connects the database (running dev
// migrations when enabled) and Redis. Partially opened resources are closed
// on failure.
func Open(ctx context.Context, service string, early *logger.Logger) (*Infra, error) {
	if err := godotenv.Load(); err != nil {
		early.Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	infra := &Infra{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: service,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
	ctx = infra.Logger.WithField(ctx, "env", cfg.App.Env)

	if infra.DB, err = db.New(ctx, cfg.DB, infra.Logger); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, infra.Logger, infra.DB); err != nil {
		return nil, multierr.Append(fmt.Errorf("dev migrations: %w", err), infra.Close())
	}
	if infra.Redis, err = redis.New(ctx, cfg.Redis, infra.Logger); err != nil {
		return nil, multierr.Append(fmt.Errorf("open redis: %w", err), infra.Close())
	}
	return infra, nil
}

// Close releases Redis and the database pool.
func (i *Infra) Close() error {
	if i == nil {
		return nil
	}
	var err error
	if i.Redis != nil {
		err = multierr.Append(err, i.Redis.Close())
	}
	if i.DB != nil {
		err = multierr.Append(err, i.DB.Close())
	}
	return err
}
