package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/internal/reservations"
)

const (
	ExpireHoldsJobName  = "expire-holds"
	ProcessHoldsJobName = "process-holds"
)

// holdRunner is satisfied by *holdjobs.Runner.
type holdRunner interface {
	ProcessHolds(ctx context.Context, titleID *uuid.UUID) (*reservations.ProcessResult, error)
	ExpireHolds(ctx context.Context) (*reservations.ExpireResult, error)
}

type expireHoldsJob struct {
	runner holdRunner
}

// NewExpireHoldsJob releases lapsed holds and promotes the next reader in
// line for each affected title.
func NewExpireHoldsJob(runner holdRunner) (Job, error) {
	if runner == nil {
		return nil, fmt.Errorf("hold runner required")
	}
	return &expireHoldsJob{runner: runner}, nil
}

func (j *expireHoldsJob) Name() string { return ExpireHoldsJobName }

func (j *expireHoldsJob) Run(ctx context.Context) error {
	result, err := j.runner.ExpireHolds(ctx)
	if err != nil {
		return err
	}
	return result.Err()
}

type processHoldsJob struct {
	runner holdRunner
}

// NewProcessHoldsJob sweeps every title with queued readers. It catches copies
// that became available outside a return, such as newly added stock or a
// cancelled hold.
func NewProcessHoldsJob(runner holdRunner) (Job, error) {
	if runner == nil {
		return nil, fmt.Errorf("hold runner required")
	}
	return &processHoldsJob{runner: runner}, nil
}

func (j *processHoldsJob) Name() string { return ProcessHoldsJobName }

func (j *processHoldsJob) Run(ctx context.Context) error {
	result, err := j.runner.ProcessHolds(ctx, nil)
	if err != nil {
		return err
	}
	return result.Err()
}

// NewHoldJobs returns the circulation jobs in run order. Expiry runs first so
// released copies are picked up by the sweep in the same cycle.
func NewHoldJobs(runner holdRunner) ([]Job, error) {
	expire, err := NewExpireHoldsJob(runner)
	if err != nil {
		return nil, err
	}
	process, err := NewProcessHoldsJob(runner)
	if err != nil {
		return nil, err
	}
	return []Job{expire, process}, nil
}
