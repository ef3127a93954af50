package domain

import "time"

type ReservationState string

const (
	ReservationHeld     ReservationState = "held"
	ReservationReleased ReservationState = "released"
)

// Reservation records units taken under a caller supplied key so that
// retried reserve and release calls are applied once.
type Reservation struct {
	Key        string
	ResourceID int64
	Quantity   int
	State      ReservationState
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Mutation is one compare-and-set step against a resource. The store applies
// it only if the resource still has ExpectedLoaned units out.
type Mutation struct {
	ResourceID     int64
	ExpectedLoaned int
	NewLoaned      int
	// Reservation, when set, is inserted or updated together with the
	// resource row.
	Reservation *Reservation
}
