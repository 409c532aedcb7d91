package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/api/validators"
	"github.com/angelmondragon/library-backend/internal/loans"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

type titleRequest struct {
	BookTitleID uuid.UUID `json:"book_title_id" validate:"required"`
}

var errLoanNotOwned = pkgerrors.Rule(pkgerrors.CodeForbidden, "LOAN_NOT_OWNED", "loan belongs to another user")

// LoanCreate lends a copy of the requested title to the caller.
func LoanCreate(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("loan"))
			return
		}
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload titleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loan, err := svc.CreateLoan(r.Context(), actor.UserID, payload.BookTitleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, loan)
	}
}

func LoanListMine(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("loan"))
			return
		}
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.ListUserActiveLoans(r.Context(), actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

// LoanGet returns one loan to its borrower or an admin.
func LoanGet(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loan, ok := authorizedLoan(w, r, svc, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

// LoanReturn closes a loan and assesses any late fine.
func LoanReturn(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loan, ok := authorizedLoan(w, r, svc, logg)
		if !ok {
			return
		}
		result, err := svc.ReturnLoan(r.Context(), loan.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// LoanRenew extends the caller's own loan by one loan period.
func LoanRenew(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("loan"))
			return
		}
		actor, err := actorFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loanID, err := validators.ParseUUIDParam(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RenewLoan(r.Context(), loanID, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminLoansOverdue(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("loan"))
			return
		}
		items, err := svc.ListOverdueLoans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func authorizedLoan(w http.ResponseWriter, r *http.Request, svc loans.Service, logg *logger.Logger) (*loans.LoanDTO, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, serviceUnavailable("loan"))
		return nil, false
	}
	actor, err := actorFrom(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	loanID, err := validators.ParseUUIDParam(r, "loanId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	loan, err := svc.GetLoan(r.Context(), loanID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	if loan.UserID != actor.UserID && !actor.IsAdmin() {
		responses.WriteError(r.Context(), logg, w, errLoanNotOwned)
		return nil, false
	}
	return loan, true
}
