package enums

import "fmt"

// ReservationStatus tracks the lifecycle of a stock hold.
type ReservationStatus string

const (
	// ReservationStatusActive holds stock and is subject to expiry.
	ReservationStatusActive ReservationStatus = "active"
	// ReservationStatusCommitted is bound to an order awaiting payment; exempt from sweep.
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
	ReservationStatusExpired   ReservationStatus = "expired"
	// ReservationStatusFulfilled is terminal: the hold's stock was committed
	// to a paid order, so the row no longer counts against reserved quantity.
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
)

var validReservationStatuses = []ReservationStatus{
	ReservationStatusActive,
	ReservationStatusCommitted,
	ReservationStatusReleased,
	ReservationStatusExpired,
	ReservationStatusFulfilled,
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

// Holds reports whether a reservation in this status still counts against stock.
func (r ReservationStatus) Holds() bool {
	return r == ReservationStatusActive || r == ReservationStatusCommitted
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
