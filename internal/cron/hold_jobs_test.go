package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-backend/internal/reservations"
)

type stubRunner struct {
	calls     []string
	processed *reservations.ProcessResult
	expired   *reservations.ExpireResult
	err       error
}

func (s *stubRunner) ProcessHolds(_ context.Context, titleID *uuid.UUID) (*reservations.ProcessResult, error) {
	s.calls = append(s.calls, ProcessHoldsJobName)
	if titleID != nil {
		return nil, errors.New("sweep must not filter by title")
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.processed == nil {
		return &reservations.ProcessResult{}, nil
	}
	return s.processed, nil
}

func (s *stubRunner) ExpireHolds(context.Context) (*reservations.ExpireResult, error) {
	s.calls = append(s.calls, ExpireHoldsJobName)
	if s.err != nil {
		return nil, s.err
	}
	if s.expired == nil {
		return &reservations.ExpireResult{}, nil
	}
	return s.expired, nil
}

func TestNewHoldJobsOrder(t *testing.T) {
	runner := &stubRunner{}
	jobs, err := NewHoldJobs(runner)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	for _, job := range jobs {
		require.NoError(t, job.Run(context.Background()))
	}
	require.Equal(t, []string{ExpireHoldsJobName, ProcessHoldsJobName}, runner.calls)
	require.Equal(t, ExpireHoldsJobName, jobs[0].Name())
	require.Equal(t, ProcessHoldsJobName, jobs[1].Name())
}

func TestHoldJobsRequireRunner(t *testing.T) {
	_, err := NewHoldJobs(nil)
	require.Error(t, err)
}

func TestHoldJobsSurfaceFailures(t *testing.T) {
	t.Run("runner error", func(t *testing.T) {
		job, err := NewExpireHoldsJob(&stubRunner{err: errors.New("db down")})
		require.NoError(t, err)
		require.EqualError(t, job.Run(context.Background()), "db down")
	})

	t.Run("per title failure", func(t *testing.T) {
		titleID := uuid.New()
		runner := &stubRunner{processed: &reservations.ProcessResult{
			Outcomes: []reservations.TitleOutcome{{
				TitleID: titleID,
				Outcome: reservations.OutcomeFailed,
				Error:   "lock timeout",
			}},
		}}
		job, err := NewProcessHoldsJob(runner)
		require.NoError(t, err)
		require.Error(t, job.Run(context.Background()))
	})
}
