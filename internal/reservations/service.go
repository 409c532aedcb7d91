package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

type dbRunner interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DueDateReader returns the earliest due date among active loans of a title.
type DueDateReader interface {
	EarliestDueDate(ctx context.Context, conn *gorm.DB, titleID uuid.UUID) (*time.Time, error)
}

// AvailabilityInvalidator drops cached availability for a title.
type AvailabilityInvalidator interface {
	Invalidate(ctx context.Context, titleID uuid.UUID)
}

// ServiceParams groups dependencies for the reservation queue.
type ServiceParams struct {
	DB           dbRunner
	DueDates     DueDateReader
	HoldDuration time.Duration
	Availability AvailabilityInvalidator
	Logger       *logger.Logger
	Now          func() time.Time
}

// Service manages the FIFO hold queue of each title.
type Service interface {
	CreateReservation(ctx context.Context, userID, titleID uuid.UUID) (*CreateResult, error)
	CancelReservation(ctx context.Context, actorID, reservationID uuid.UUID, isAdmin bool) (*CancelResult, error)
	ProcessSingleTitleHold(ctx context.Context, titleID uuid.UUID) (*HoldResult, error)
	ProcessHolds(ctx context.Context, titleID *uuid.UUID) (*ProcessResult, error)
	ExpireHolds(ctx context.Context) (*ExpireResult, error)
	QueuePosition(ctx context.Context, reservationID uuid.UUID) (int, error)
	GetReservation(ctx context.Context, reservationID uuid.UUID) (*ReservationDTO, error)
	ListUserReservations(ctx context.Context, userID uuid.UUID) ([]ReservationDTO, error)
}

type service struct {
	db           dbRunner
	dueDates     DueDateReader
	holdDuration time.Duration
	availability AvailabilityInvalidator
	logg         *logger.Logger
	now          func() time.Time
}

// NewService builds the reservation queue.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db is required")
	}
	if params.DueDates == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "due date reader is required")
	}
	if params.HoldDuration <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold duration must be positive")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		db:           params.DB,
		dueDates:     params.DueDates,
		holdDuration: params.HoldDuration,
		availability: params.Availability,
		logg:         params.Logger,
		now:          now,
	}, nil
}

// CreateReservation queues the user for a title. Queuing is only allowed
// when every copy is out and at least one of them is on loan.
func (s *service) CreateReservation(ctx context.Context, userID, titleID uuid.UUID) (*CreateResult, error) {
	if userID == uuid.Nil || titleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and book title id are required")
	}

	now := s.now()
	var (
		reservation models.Reservation
		position    int
		expected    *time.Time
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := inventory.NewLedger(tx)
		repo := NewRepository(tx)

		exists, err := ledger.TitleExists(ctx, titleID)
		if err != nil {
			return err
		}
		if !exists {
			return inventory.ErrTitleNotFound
		}

		counts, err := ledger.CountByStatus(ctx, titleID)
		if err != nil {
			return err
		}
		if counts.Available > 0 {
			return ErrCopyAvailable.WithDetails(map[string]any{"available_copies": counts.Available})
		}
		if counts.Total == 0 {
			return ErrNoCopiesRegistered
		}

		expected, err = s.dueDates.EarliestDueDate(ctx, tx, titleID)
		if err != nil {
			return err
		}
		if expected == nil {
			return ErrNothingToWaitFor
		}

		pending, err := repo.HasPending(ctx, userID, titleID)
		if err != nil {
			return err
		}
		if pending {
			return ErrDuplicateReservation
		}

		reservation = models.Reservation{
			ID:          uuid.New(),
			UserID:      userID,
			BookTitleID: titleID,
			Status:      enums.ReservationStatusActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := repo.Create(ctx, &reservation); err != nil {
			return err
		}
		position, err = repo.QueuePosition(ctx, &reservation)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx, "reservation.created", map[string]any{
		"reservation_id": reservation.ID.String(),
		"user_id":        userID.String(),
		"book_title_id":  titleID.String(),
		"queue_position": position,
	})

	return &CreateResult{
		Reservation:         newReservationDTO(reservation, position),
		QueuePosition:       position,
		ExpectedAvailableAt: expected,
		Message:             fmt.Sprintf("Reservation created. Queue position: %d", position),
	}, nil
}

// CancelReservation cancels a pending reservation on behalf of its owner or
// an admin. A held copy goes back to the shelf.
func (s *service) CancelReservation(ctx context.Context, actorID, reservationID uuid.UUID, isAdmin bool) (*CancelResult, error) {
	now := s.now()
	var (
		reservation *models.Reservation
		released    bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)

		var err error
		reservation, err = repo.LockByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if !isAdmin && reservation.UserID != actorID {
			return ErrForbidden
		}
		if reservation.Status.IsTerminal() {
			return ErrNotCancellable.WithDetails(map[string]any{"status": reservation.Status})
		}
		if reservation.Status == enums.ReservationStatusOnHold {
			released, err = s.releaseHeldCopy(ctx, tx, reservation.ID)
			if err != nil {
				return err
			}
		}
		return repo.Transition(ctx, reservation, enums.ReservationStatusCancelled, reservation.HoldExpiresAt, now)
	})
	if err != nil {
		return nil, err
	}

	if released {
		s.invalidate(ctx, reservation.BookTitleID)
	}
	s.log(ctx, "reservation.cancelled", map[string]any{
		"reservation_id": reservation.ID.String(),
		"actor_id":       actorID.String(),
		"released_copy":  released,
	})

	return &CancelResult{
		Reservation: newReservationDTO(*reservation, 0),
		Message:     "Reservation cancelled",
	}, nil
}

// ProcessSingleTitleHold sets one AVAILABLE copy aside for the oldest ACTIVE
// reservation of the title. It returns nil when there is no copy to hold or
// nobody waiting.
func (s *service) ProcessSingleTitleHold(ctx context.Context, titleID uuid.UUID) (*HoldResult, error) {
	hold, _, err := s.processTitle(ctx, titleID)
	return hold, err
}

func (s *service) processTitle(ctx context.Context, titleID uuid.UUID) (*HoldResult, Outcome, error) {
	var (
		hold    *HoldResult
		outcome Outcome
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := inventory.NewLedger(tx).WithClock(s.now)
		repo := NewRepository(tx)

		bookCopy, err := ledger.LockAvailableCopy(ctx, titleID)
		if err != nil {
			return err
		}
		if bookCopy == nil {
			outcome = OutcomeNoCopy
			return nil
		}

		head, err := repo.LockHeadOfQueue(ctx, titleID)
		if err != nil {
			return err
		}
		if head == nil {
			outcome = OutcomeQueueEmpty
			return nil
		}

		now := s.now()
		expiresAt := now.Add(s.holdDuration)
		if err := ledger.MarkOnHold(ctx, bookCopy, head.ID, expiresAt); err != nil {
			return err
		}
		if err := repo.Transition(ctx, head, enums.ReservationStatusOnHold, &expiresAt, now); err != nil {
			return err
		}

		result := newHoldResult(*head, bookCopy.ID, expiresAt)
		hold = &result
		outcome = OutcomeHoldCreated
		return nil
	})
	if err != nil {
		return nil, OutcomeFailed, err
	}
	return hold, outcome, nil
}

// ProcessHolds runs one hold pass for titleID, or for every title with an
// ACTIVE reservation when titleID is nil. A failing title never stops the
// others; see ProcessResult.Outcomes.
func (s *service) ProcessHolds(ctx context.Context, titleID *uuid.UUID) (*ProcessResult, error) {
	var titles []uuid.UUID
	if titleID != nil {
		titles = []uuid.UUID{*titleID}
	} else {
		var err error
		titles, err = NewRepository(s.db.DB()).TitlesWithActiveReservations(ctx)
		if err != nil {
			return nil, err
		}
	}

	result := &ProcessResult{
		Holds:    []HoldResult{},
		Outcomes: make([]TitleOutcome, 0, len(titles)),
	}
	for _, id := range titles {
		hold, outcome, err := s.processTitle(ctx, id)
		if err != nil {
			result.Outcomes = append(result.Outcomes, failedOutcome(id, nil, err))
			s.logError(ctx, "reservation.process_hold_failed", id, err)
			continue
		}
		result.Outcomes = append(result.Outcomes, TitleOutcome{TitleID: id, Outcome: outcome})
		if hold != nil {
			result.Holds = append(result.Holds, *hold)
		}
	}
	return result, nil
}

// ExpireHolds expires every hold whose deadline has passed, each in its own
// transaction, then runs one hold pass per affected title so the freed copy
// can go to the next reader in line. It does not cascade further.
func (s *service) ExpireHolds(ctx context.Context) (*ExpireResult, error) {
	now := s.now()
	expired, err := NewRepository(s.db.DB()).ListExpiredHolds(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &ExpireResult{
		AffectedTitleIDs: []uuid.UUID{},
		Holds:            []HoldResult{},
		Outcomes:         []TitleOutcome{},
	}
	seen := map[uuid.UUID]bool{}
	for _, candidate := range expired {
		reservationID := candidate.ID
		done, err := s.expireOne(ctx, candidate.ID, now)
		if err != nil {
			result.Outcomes = append(result.Outcomes, failedOutcome(candidate.BookTitleID, &reservationID, err))
			s.logError(ctx, "reservation.expire_failed", candidate.BookTitleID, err)
			continue
		}
		if !done {
			result.Outcomes = append(result.Outcomes, TitleOutcome{
				TitleID:       candidate.BookTitleID,
				ReservationID: &reservationID,
				Outcome:       OutcomeSkipped,
			})
			continue
		}
		result.ExpiredCount++
		result.Outcomes = append(result.Outcomes, TitleOutcome{
			TitleID:       candidate.BookTitleID,
			ReservationID: &reservationID,
			Outcome:       OutcomeExpired,
		})
		if !seen[candidate.BookTitleID] {
			seen[candidate.BookTitleID] = true
			result.AffectedTitleIDs = append(result.AffectedTitleIDs, candidate.BookTitleID)
		}
	}

	for _, titleID := range result.AffectedTitleIDs {
		hold, outcome, err := s.processTitle(ctx, titleID)
		if err != nil {
			result.Outcomes = append(result.Outcomes, failedOutcome(titleID, nil, err))
			s.logError(ctx, "reservation.process_hold_failed", titleID, err)
			continue
		}
		result.Outcomes = append(result.Outcomes, TitleOutcome{TitleID: titleID, Outcome: outcome})
		if hold != nil {
			result.Holds = append(result.Holds, *hold)
			result.NextHoldsProcessed++
		}
	}

	result.Message = fmt.Sprintf("Expired: %d, new holds: %d", result.ExpiredCount, result.NextHoldsProcessed)
	return result, nil
}

// expireOne reports false when the reservation was no longer an expired
// hold by the time it was locked.
func (s *service) expireOne(ctx context.Context, reservationID uuid.UUID, now time.Time) (bool, error) {
	expired := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		reservation, err := repo.LockByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != enums.ReservationStatusOnHold ||
			reservation.HoldExpiresAt == nil ||
			!reservation.HoldExpiresAt.Before(now) {
			return nil
		}
		if _, err := s.releaseHeldCopy(ctx, tx, reservation.ID); err != nil {
			return err
		}
		if err := repo.Transition(ctx, reservation, enums.ReservationStatusExpired, reservation.HoldExpiresAt, now); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}

func (s *service) releaseHeldCopy(ctx context.Context, tx *gorm.DB, reservationID uuid.UUID) (bool, error) {
	ledger := inventory.NewLedger(tx).WithClock(s.now)
	bookCopy, err := ledger.LockHeldCopy(ctx, reservationID)
	if err != nil {
		return false, err
	}
	if bookCopy == nil {
		return false, nil
	}
	if err := ledger.MarkAvailable(ctx, bookCopy); err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) QueuePosition(ctx context.Context, reservationID uuid.UUID) (int, error) {
	repo := NewRepository(s.db.DB())
	reservation, err := repo.FindByID(ctx, reservationID)
	if err != nil {
		return 0, err
	}
	return repo.QueuePosition(ctx, reservation)
}

func (s *service) GetReservation(ctx context.Context, reservationID uuid.UUID) (*ReservationDTO, error) {
	repo := NewRepository(s.db.DB())
	reservation, err := repo.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	position, err := repo.QueuePosition(ctx, reservation)
	if err != nil {
		return nil, err
	}
	dto := newReservationDTO(*reservation, position)
	return &dto, nil
}

func (s *service) ListUserReservations(ctx context.Context, userID uuid.UUID) ([]ReservationDTO, error) {
	repo := NewRepository(s.db.DB())
	reservations, err := repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ReservationDTO, 0, len(reservations))
	for i := range reservations {
		position, err := repo.QueuePosition(ctx, &reservations[i])
		if err != nil {
			return nil, err
		}
		out = append(out, newReservationDTO(reservations[i], position))
	}
	return out, nil
}

func (s *service) invalidate(ctx context.Context, titleID uuid.UUID) {
	if s.availability == nil {
		return
	}
	s.availability.Invalidate(ctx, titleID)
}

func (s *service) log(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}

func (s *service) logError(ctx context.Context, msg string, titleID uuid.UUID, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithTitleID(ctx, titleID.String()), msg, err)
}
