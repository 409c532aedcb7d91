package loans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/inventory"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
)

type dbRunner interface {
	DB() *gorm.DB
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PendingReservationChecker answers whether anyone is queued for a title.
// Implementations must read through tx.
type PendingReservationChecker interface {
	HasPendingReservation(ctx context.Context, tx *gorm.DB, titleID uuid.UUID) (bool, error)
}

// HoldClaimer converts the caller's valid hold on a title into a claim: the
// reservation is fulfilled and the held copy is returned still ON_HOLD so the
// loan engine can lend it. It returns nil when the user holds no valid copy.
type HoldClaimer interface {
	ClaimHold(ctx context.Context, tx *gorm.DB, userID, titleID uuid.UUID, now time.Time) (*models.BookCopy, error)
}

// AvailabilityInvalidator drops cached availability for a title.
type AvailabilityInvalidator interface {
	Invalidate(ctx context.Context, titleID uuid.UUID)
}

// ServiceParams groups dependencies for the loan service.
type ServiceParams struct {
	DB           dbRunner
	Policy       Policy
	Reservations PendingReservationChecker
	Holds        HoldClaimer
	Availability AvailabilityInvalidator
	Metrics      *metrics.CirculationMetrics
	Logger       *logger.Logger
	Now          func() time.Time
}

// Service exposes the lending rules.
type Service interface {
	CreateLoan(ctx context.Context, userID, titleID uuid.UUID) (*LoanDTO, error)
	ReturnLoan(ctx context.Context, loanID uuid.UUID) (*ReturnResult, error)
	RenewLoan(ctx context.Context, loanID, userID uuid.UUID) (*RenewResult, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanDTO, error)
	ListUserActiveLoans(ctx context.Context, userID uuid.UUID) ([]LoanDTO, error)
	ListOverdueLoans(ctx context.Context) ([]LoanDTO, error)
}

type service struct {
	db           dbRunner
	policy       Policy
	reservations PendingReservationChecker
	holds        HoldClaimer
	availability AvailabilityInvalidator
	metrics      *metrics.CirculationMetrics
	logg         *logger.Logger
	now          func() time.Time
}

// NewService builds a loan service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "db is required")
	}
	if params.Reservations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation checker is required")
	}
	if params.Holds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold claimer is required")
	}
	if err := params.Policy.validate(); err != nil {
		return nil, err
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		db:           params.DB,
		policy:       params.Policy,
		reservations: params.Reservations,
		holds:        params.Holds,
		availability: params.Availability,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          now,
	}, nil
}

// CreateLoan lends a copy of titleID to userID. A copy the user holds is
// preferred; otherwise only AVAILABLE copies qualify, so holds placed for
// other readers are never taken.
func (s *service) CreateLoan(ctx context.Context, userID, titleID uuid.UUID) (*LoanDTO, error) {
	if userID == uuid.Nil || titleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and book title id are required")
	}

	now := s.now()
	var loan models.Loan
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		ledger := inventory.NewLedger(tx).WithClock(s.now)

		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}
		active, err := repo.CountActiveByUser(ctx, userID)
		if err != nil {
			return err
		}
		if active >= int64(s.policy.MaxActiveLoans) {
			return ErrTooManyActiveLoans.WithDetails(map[string]any{
				"active_loans": active,
				"limit":        s.policy.MaxActiveLoans,
			})
		}

		exists, err := ledger.TitleExists(ctx, titleID)
		if err != nil {
			return err
		}
		if !exists {
			return inventory.ErrTitleNotFound
		}

		bookCopy, err := s.holds.ClaimHold(ctx, tx, userID, titleID, now)
		if err != nil {
			return err
		}
		if bookCopy == nil {
			bookCopy, err = ledger.LockAvailableCopy(ctx, titleID)
			if err != nil {
				return err
			}
		}
		if bookCopy == nil {
			return ErrNoCopyAvailable
		}

		if err := ledger.MarkLoaned(ctx, bookCopy); err != nil {
			return err
		}

		loan = models.Loan{
			ID:         uuid.New(),
			UserID:     userID,
			BookCopyID: bookCopy.ID,
			LoanedAt:   now,
			DueDate:    now.Add(s.policy.LoanPeriod),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := repo.Create(ctx, &loan); err != nil {
			return err
		}
		loan.BookCopy = bookCopy
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, titleID)
	s.metrics.LoanCreated()
	s.log(ctx, "loan.created", map[string]any{
		"loan_id":       loan.ID.String(),
		"user_id":       userID.String(),
		"book_title_id": titleID.String(),
		"book_copy_id":  loan.BookCopyID.String(),
	})

	dto := NewLoanDTO(loan, now, s.policy)
	return &dto, nil
}

// ReturnLoan closes an active loan, records the fine and shelves the copy.
// Reservations waiting on the title are served by the next hold pass.
func (s *service) ReturnLoan(ctx context.Context, loanID uuid.UUID) (*ReturnResult, error) {
	now := s.now()
	var (
		loan     *models.Loan
		daysLate int
		fine     = FineFor(0, s.policy.FinePerDay)
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		ledger := inventory.NewLedger(tx).WithClock(s.now)

		var err error
		loan, err = repo.LockByID(ctx, loanID)
		if err != nil {
			return err
		}
		if !loan.IsActive() {
			return ErrAlreadyReturned
		}

		daysLate = DaysLate(loan.DueDate, now)
		fine = FineFor(daysLate, s.policy.FinePerDay)
		if err := repo.MarkReturned(ctx, loan, now, fine); err != nil {
			return err
		}

		bookCopy, err := ledger.FindByID(ctx, loan.BookCopyID)
		if err != nil {
			return err
		}
		if err := ledger.MarkAvailable(ctx, bookCopy); err != nil {
			return err
		}
		loan.BookCopy = bookCopy
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, loan.BookCopy.BookTitleID)
	s.metrics.LoanReturned(fine)
	s.log(ctx, "loan.returned", map[string]any{
		"loan_id":   loan.ID.String(),
		"days_late": daysLate,
		"fine":      fine.StringFixed(2),
	})

	return &ReturnResult{
		Loan:        NewLoanDTO(*loan, now, s.policy),
		DaysLate:    daysLate,
		FineApplied: fine,
		Message:     returnMessage(daysLate, fine),
	}, nil
}

// RenewLoan extends an active loan by one loan period. Preconditions are
// checked in a fixed order so callers always see the first failing rule.
func (s *service) RenewLoan(ctx context.Context, loanID, userID uuid.UUID) (*RenewResult, error) {
	now := s.now()
	var (
		loan        *models.Loan
		previousDue time.Time
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := NewRepository(tx)
		ledger := inventory.NewLedger(tx)

		var err error
		loan, err = repo.LockByID(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.UserID != userID {
			return ErrForbidden
		}
		if !loan.IsActive() {
			return ErrAlreadyReturned
		}
		if loan.RenewalsCount >= s.policy.MaxRenewals {
			return ErrRenewalLimitReached.WithDetails(map[string]any{
				"renewals_count": loan.RenewalsCount,
				"limit":          s.policy.MaxRenewals,
			})
		}
		if IsOverdue(*loan, now) {
			return ErrLoanOverdue.WithDetails(map[string]any{"due_date": loan.DueDate})
		}

		bookCopy, err := ledger.FindByID(ctx, loan.BookCopyID)
		if err != nil {
			return err
		}
		pending, err := s.reservations.HasPendingReservation(ctx, tx, bookCopy.BookTitleID)
		if err != nil {
			return err
		}
		if pending {
			return ErrReservationPending
		}

		previousDue = loan.DueDate
		if err := repo.Extend(ctx, loan, loan.DueDate.Add(s.policy.LoanPeriod), now); err != nil {
			return err
		}
		loan.BookCopy = bookCopy
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log(ctx, "loan.renewed", map[string]any{
		"loan_id":  loan.ID.String(),
		"due_date": loan.DueDate,
	})

	return &RenewResult{
		Loan:            NewLoanDTO(*loan, now, s.policy),
		PreviousDueDate: previousDue,
		NewDueDate:      loan.DueDate,
		Message:         renewMessage(loan.DueDate),
	}, nil
}

func (s *service) GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanDTO, error) {
	loan, err := NewRepository(s.db.DB()).FindByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	dto := NewLoanDTO(*loan, s.now(), s.policy)
	return &dto, nil
}

func (s *service) ListUserActiveLoans(ctx context.Context, userID uuid.UUID) ([]LoanDTO, error) {
	loans, err := NewRepository(s.db.DB()).ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.toDTOs(loans), nil
}

func (s *service) ListOverdueLoans(ctx context.Context) ([]LoanDTO, error) {
	now := s.now()
	loans, err := NewRepository(s.db.DB()).ListOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	return s.toDTOs(loans), nil
}

func (s *service) toDTOs(loans []models.Loan) []LoanDTO {
	now := s.now()
	out := make([]LoanDTO, 0, len(loans))
	for _, loan := range loans {
		out = append(out, NewLoanDTO(loan, now, s.policy))
	}
	return out
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
