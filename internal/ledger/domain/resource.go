package domain

import (
	"fmt"
	"time"

	"github.com/dmehra2102/university-lending/pkg/apperr"
)

var (
	ErrResourceNotFound         = fmt.Errorf("resource %w", apperr.ErrNotFound)
	ErrInsufficientAvailability = apperr.ErrInsufficientAvailability
	ErrInvalidQuantity          = fmt.Errorf("quantity must be at least 1: %w", apperr.ErrInvalidArgument)
	ErrReservationClosed        = apperr.ErrReservationClosed
)

// Status is derived from Loaned and never stored.
type Status int

const (
	StatusAvailable Status = iota
	StatusBorrowed
)

func (s Status) String() string {
	if s == StatusBorrowed {
		return "borrowed"
	}
	return "available"
}

// Wire values used by the resource service JSON API.
const (
	WireAvailable = "disponible"
	WireBorrowed  = "prestado"
)

func (s Status) Wire() string {
	if s == StatusBorrowed {
		return WireBorrowed
	}
	return WireAvailable
}

type Resource struct {
	ID          int64
	Name        string
	Description string
	Quantity    int
	Loaned      int
	UpdatedAt   time.Time
}

func (r Resource) Available() int { return r.Quantity - r.Loaned }

func (r Resource) Status() Status {
	if r.Loaned > 0 {
		return StatusBorrowed
	}
	return StatusAvailable
}

func (r Resource) Availability() Availability {
	return Availability{
		ResourceID: r.ID,
		Quantity:   r.Quantity,
		Loaned:     r.Loaned,
		Available:  r.Available(),
		Status:     r.Status(),
	}
}

// Reserve returns the loaned count after taking qty units. The receiver is
// not modified.
func (r Resource) Reserve(qty int) (int, error) {
	if qty < 1 {
		return 0, ErrInvalidQuantity
	}
	if qty > r.Available() {
		return 0, fmt.Errorf("resource %d: requested %d, available %d: %w", r.ID, qty, r.Available(), ErrInsufficientAvailability)
	}
	return r.Loaned + qty, nil
}

// Release returns the loaned count after giving back qty units, floored at
// zero. clamped reports that the floor was hit.
func (r Resource) Release(qty int) (loaned int, clamped bool, err error) {
	if qty < 1 {
		return 0, false, ErrInvalidQuantity
	}
	loaned = r.Loaned - qty
	if loaned < 0 {
		return 0, true, nil
	}
	return loaned, false, nil
}

type Availability struct {
	ResourceID int64
	Quantity   int
	Loaned     int
	Available  int
	Status     Status
}
