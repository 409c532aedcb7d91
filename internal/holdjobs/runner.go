// Package holdjobs drives the reservation queue's batch operations and fans
// their results out to the availability cache, metrics and event stream.
package holdjobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/internal/reservations"
	"github.com/angelmondragon/library-backend/pkg/events"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
)

type holdQueue interface {
	ProcessHolds(ctx context.Context, titleID *uuid.UUID) (*reservations.ProcessResult, error)
	ExpireHolds(ctx context.Context) (*reservations.ExpireResult, error)
}

type invalidator interface {
	Invalidate(ctx context.Context, titleID uuid.UUID)
}

// RunnerParams groups dependencies for the hold job runner.
type RunnerParams struct {
	Queue        holdQueue
	Availability invalidator
	Events       events.Publisher
	Metrics      *metrics.CirculationMetrics
	Logger       *logger.Logger
}

// Runner is shared by the admin endpoints and the cron worker.
type Runner struct {
	queue        holdQueue
	availability invalidator
	events       events.Publisher
	metrics      *metrics.CirculationMetrics
	logg         *logger.Logger
}

// NewRunner validates params and builds a Runner.
func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Queue == nil {
		return nil, fmt.Errorf("reservation queue required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	publisher := params.Events
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Runner{
		queue:        params.Queue,
		availability: params.Availability,
		events:       publisher,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// ProcessHolds assigns available copies to queued readers for titleID, or for
// every queued title when titleID is nil.
func (r *Runner) ProcessHolds(ctx context.Context, titleID *uuid.UUID) (*reservations.ProcessResult, error) {
	result, err := r.queue.ProcessHolds(ctx, titleID)
	if err != nil {
		return nil, err
	}

	for _, hold := range result.Holds {
		r.invalidate(ctx, hold.BookTitleID)
		r.publishHold(ctx, hold)
	}
	r.metrics.HoldsCreated(len(result.Holds))
	r.metrics.HoldFailures("process", result.Failed())

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"titles":       len(result.Outcomes),
		"holds":        len(result.Holds),
		"failed":       result.Failed(),
		"title_filter": titleFilter(titleID),
	})
	if err := result.Err(); err != nil {
		r.logg.Error(logCtx, "process holds finished with failures", err)
	} else {
		r.logg.Info(logCtx, "process holds complete")
	}
	return result, nil
}

// ExpireHolds releases lapsed holds and promotes the next reader of each
// affected title.
func (r *Runner) ExpireHolds(ctx context.Context) (*reservations.ExpireResult, error) {
	result, err := r.queue.ExpireHolds(ctx)
	if err != nil {
		return nil, err
	}

	for _, titleID := range result.AffectedTitleIDs {
		r.invalidate(ctx, titleID)
	}
	for _, hold := range result.Holds {
		r.publishHold(ctx, hold)
	}
	if result.ExpiredCount > 0 {
		r.publish(ctx, events.TypeHoldExpired, events.HoldsExpiredEvent{
			ExpiredCount:     result.ExpiredCount,
			AffectedTitleIDs: result.AffectedTitleIDs,
		})
	}
	r.metrics.HoldsExpired(result.ExpiredCount)
	r.metrics.HoldsCreated(result.NextHoldsProcessed)
	r.metrics.HoldFailures("expire", result.Failed())

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"expired":    result.ExpiredCount,
		"next_holds": result.NextHoldsProcessed,
		"titles":     len(result.AffectedTitleIDs),
		"failed":     result.Failed(),
	})
	if err := result.Err(); err != nil {
		r.logg.Error(logCtx, "expire holds finished with failures", err)
	} else {
		r.logg.Info(logCtx, "expire holds complete")
	}
	return result, nil
}

func (r *Runner) invalidate(ctx context.Context, titleID uuid.UUID) {
	if r.availability == nil {
		return
	}
	r.availability.Invalidate(ctx, titleID)
}

func (r *Runner) publishHold(ctx context.Context, hold reservations.HoldResult) {
	r.publish(ctx, events.TypeHoldCreated, events.HoldCreatedEvent{
		ReservationID: hold.ReservationID,
		UserID:        hold.UserID,
		BookTitleID:   hold.BookTitleID,
		BookCopyID:    hold.BookCopyID,
		HoldExpiresAt: hold.HoldExpiresAt,
	})
}

// publish never fails the job; the database is the source of truth.
func (r *Runner) publish(ctx context.Context, eventType string, data any) {
	if err := r.events.Publish(ctx, eventType, data); err != nil {
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"event_type": eventType,
			"error":      err.Error(),
		}), "event publish failed")
	}
}

func titleFilter(titleID *uuid.UUID) string {
	if titleID == nil {
		return "all"
	}
	return titleID.String()
}
