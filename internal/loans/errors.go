package loans

import pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"

var (
	ErrLoanNotFound        = pkgerrors.Rule(pkgerrors.CodeNotFound, "LOAN_NOT_FOUND", "loan not found")
	ErrForbidden           = pkgerrors.Rule(pkgerrors.CodeForbidden, "LOAN_NOT_OWNED", "loan belongs to another user")
	ErrTooManyActiveLoans  = pkgerrors.Rule(pkgerrors.CodeStateConflict, "TOO_MANY_ACTIVE_LOANS", "active loan limit reached")
	ErrNoCopyAvailable     = pkgerrors.Rule(pkgerrors.CodeStateConflict, "NO_COPY_AVAILABLE", "no copy of this title is available")
	ErrAlreadyReturned     = pkgerrors.Rule(pkgerrors.CodeStateConflict, "ALREADY_RETURNED", "loan was already returned")
	ErrRenewalLimitReached = pkgerrors.Rule(pkgerrors.CodeStateConflict, "RENEWAL_LIMIT_REACHED", "loan cannot be renewed again")
	ErrLoanOverdue         = pkgerrors.Rule(pkgerrors.CodeStateConflict, "LOAN_OVERDUE", "overdue loans cannot be renewed")
	ErrReservationPending  = pkgerrors.Rule(pkgerrors.CodeStateConflict, "RESERVATION_PENDING", "other readers are waiting for this title")
)
