package reservations

import pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"

var (
	ErrReservationNotFound  = pkgerrors.Rule(pkgerrors.CodeNotFound, "RESERVATION_NOT_FOUND", "reservation not found")
	ErrForbidden            = pkgerrors.Rule(pkgerrors.CodeForbidden, "RESERVATION_NOT_OWNED", "reservation belongs to another user")
	ErrCopyAvailable        = pkgerrors.Rule(pkgerrors.CodeStateConflict, "COPY_AVAILABLE", "a copy is available, borrow it directly")
	ErrNoCopiesRegistered   = pkgerrors.Rule(pkgerrors.CodeStateConflict, "NO_COPIES_REGISTERED", "this title has no copies")
	ErrNothingToWaitFor     = pkgerrors.Rule(pkgerrors.CodeStateConflict, "NOTHING_TO_WAIT_FOR", "no active loan exists for this title")
	ErrDuplicateReservation = pkgerrors.Rule(pkgerrors.CodeStateConflict, "DUPLICATE_RESERVATION", "you already have a pending reservation for this title")
	ErrNotCancellable       = pkgerrors.Rule(pkgerrors.CodeStateConflict, "NOT_CANCELLABLE", "reservation can no longer be cancelled")

	errReservationChanged = pkgerrors.Rule(pkgerrors.CodeConflict, "RESERVATION_STATE_CHANGED", "reservation was modified concurrently")
)
