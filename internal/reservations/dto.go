package reservations

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

// ReservationDTO is the read model of a reservation. QueuePosition is only
// set for ACTIVE reservations.
type ReservationDTO struct {
	ID            uuid.UUID               `json:"id"`
	UserID        uuid.UUID               `json:"user_id"`
	BookTitleID   uuid.UUID               `json:"book_title_id"`
	Status        enums.ReservationStatus `json:"status"`
	HoldExpiresAt *time.Time              `json:"hold_expires_at,omitempty"`
	QueuePosition *int                    `json:"queue_position,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func newReservationDTO(r models.Reservation, position int) ReservationDTO {
	dto := ReservationDTO{
		ID:            r.ID,
		UserID:        r.UserID,
		BookTitleID:   r.BookTitleID,
		Status:        r.Status,
		HoldExpiresAt: r.HoldExpiresAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.Status == enums.ReservationStatusActive && position > 0 {
		dto.QueuePosition = &position
	}
	return dto
}

// CreateResult is returned when a reader joins a queue.
type CreateResult struct {
	Reservation         ReservationDTO `json:"reservation"`
	QueuePosition       int            `json:"queue_position"`
	ExpectedAvailableAt *time.Time     `json:"expected_available_at,omitempty"`
	Message             string         `json:"message"`
}

// CancelResult is returned after a cancellation.
type CancelResult struct {
	Reservation ReservationDTO `json:"reservation"`
	Message     string         `json:"message"`
}

// HoldResult describes a copy set aside for a reservation.
type HoldResult struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	UserID        uuid.UUID `json:"user_id"`
	BookTitleID   uuid.UUID `json:"book_title_id"`
	BookCopyID    uuid.UUID `json:"book_copy_id"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
	Message       string    `json:"message"`
}

func newHoldResult(r models.Reservation, copyID uuid.UUID, expiresAt time.Time) HoldResult {
	return HoldResult{
		ReservationID: r.ID,
		UserID:        r.UserID,
		BookTitleID:   r.BookTitleID,
		BookCopyID:    copyID,
		HoldExpiresAt: expiresAt,
		Message:       fmt.Sprintf("Copy set aside. Pick it up before %s", expiresAt.Format(time.RFC3339)),
	}
}

// Outcome names what happened to one unit of batch work.
type Outcome string

const (
	OutcomeHoldCreated Outcome = "HOLD_CREATED"
	OutcomeNoCopy      Outcome = "NO_COPY_AVAILABLE"
	OutcomeQueueEmpty  Outcome = "QUEUE_EMPTY"
	OutcomeExpired     Outcome = "EXPIRED"
	OutcomeSkipped     Outcome = "SKIPPED"
	OutcomeFailed      Outcome = "FAILED"
)

// TitleOutcome reports the result of processing one title, or one
// reservation for expiry runs.
type TitleOutcome struct {
	TitleID       uuid.UUID  `json:"book_title_id"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	Outcome       Outcome    `json:"outcome"`
	Error         string     `json:"error,omitempty"`

	err error
}

func failedOutcome(titleID uuid.UUID, reservationID *uuid.UUID, err error) TitleOutcome {
	return TitleOutcome{
		TitleID:       titleID,
		ReservationID: reservationID,
		Outcome:       OutcomeFailed,
		Error:         err.Error(),
		err:           err,
	}
}

func combineOutcomeErrors(outcomes []TitleOutcome) error {
	var errs error
	for _, outcome := range outcomes {
		if outcome.Outcome != OutcomeFailed {
			continue
		}
		err := outcome.err
		if err == nil {
			err = fmt.Errorf("title %s: %s", outcome.TitleID, outcome.Error)
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}

// ProcessResult collects the holds created by a ProcessHolds run together
// with the outcome of every title visited.
type ProcessResult struct {
	Holds    []HoldResult   `json:"holds"`
	Outcomes []TitleOutcome `json:"outcomes"`
}

// Err combines the failures of individual titles, or nil when all succeeded.
func (r *ProcessResult) Err() error {
	return combineOutcomeErrors(r.Outcomes)
}

// Failed counts titles that could not be processed.
func (r *ProcessResult) Failed() int {
	return countFailed(r.Outcomes)
}

// ExpireResult summarises an ExpireHolds run.
type ExpireResult struct {
	ExpiredCount       int            `json:"expired_count"`
	NextHoldsProcessed int            `json:"next_holds_processed"`
	AffectedTitleIDs   []uuid.UUID    `json:"affected_book_title_ids"`
	Holds              []HoldResult   `json:"holds"`
	Outcomes           []TitleOutcome `json:"outcomes"`
	Message            string         `json:"message"`
}

// Err combines the failures of individual reservations and titles.
func (r *ExpireResult) Err() error {
	return combineOutcomeErrors(r.Outcomes)
}

// Failed counts reservations or titles that could not be processed.
func (r *ExpireResult) Failed() int {
	return countFailed(r.Outcomes)
}

func countFailed(outcomes []TitleOutcome) int {
	n := 0
	for _, outcome := range outcomes {
		if outcome.Outcome == OutcomeFailed {
			n++
		}
	}
	return n
}
