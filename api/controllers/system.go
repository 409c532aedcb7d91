package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/api/validators"
	"github.com/angelmondragon/library-backend/internal/reservations"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

// HoldJobs is satisfied by *holdjobs.Runner.
type HoldJobs interface {
	ProcessHolds(ctx context.Context, titleID *uuid.UUID) (*reservations.ProcessResult, error)
	ExpireHolds(ctx context.Context) (*reservations.ExpireResult, error)
}

// AdminProcessHolds assigns available copies to queued readers, optionally
// for a single title.
func AdminProcessHolds(jobs HoldJobs, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jobs == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("hold jobs"))
			return
		}
		titleID, err := validators.ParseOptionalUUIDQuery(r, "book_title_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := jobs.ProcessHolds(r.Context(), titleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminExpireHolds(jobs HoldJobs, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jobs == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("hold jobs"))
			return
		}
		result, err := jobs.ExpireHolds(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
