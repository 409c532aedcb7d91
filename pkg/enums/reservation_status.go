package enums

import "fmt"

// ReservationStatus tracks a reservation through the hold queue.
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusOnHold    ReservationStatus = "ON_HOLD"
	ReservationStatusFulfilled ReservationStatus = "FULFILLED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusActive,
	ReservationStatusOnHold,
	ReservationStatusFulfilled,
	ReservationStatusExpired,
	ReservationStatusCancelled,
}

// PendingReservationStatuses are the non-terminal states.
var PendingReservationStatuses = []ReservationStatus{
	ReservationStatusActive,
	ReservationStatusOnHold,
}

// String implements fmt.Stringer.
func (r ReservationStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReservationStatus.
func (r ReservationStatus) IsValid() bool {
	for _, candidate := range validReservationStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (r ReservationStatus) IsTerminal() bool {
	switch r {
	case ReservationStatusFulfilled, ReservationStatusExpired, ReservationStatusCancelled:
		return true
	}
	return false
}

// ParseReservationStatus converts raw input into a ReservationStatus.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	for _, candidate := range validReservationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation status %q", value)
}
