package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/dmehra2102/university-lending/pkg/apperr"
)

// LoanPeriod is the fixed lending policy.
const LoanPeriod = 7 * 24 * time.Hour

// MaxQuantity is the largest loan the ledger protocol and the INT columns can
// carry.
const MaxQuantity = math.MaxInt32

var (
	ErrLoanNotFound    = fmt.Errorf("loan %w", apperr.ErrNotFound)
	ErrAlreadyReturned = apperr.ErrAlreadyReturned
	ErrInvalidQuantity = fmt.Errorf("quantity must be at least 1: %w", apperr.ErrInvalidArgument)
	ErrMissingStudent  = fmt.Errorf("student_id is required: %w", apperr.ErrInvalidArgument)
	ErrQuantityTooBig  = fmt.Errorf("quantity must be at most %d: %w", MaxQuantity, apperr.ErrInvalidArgument)
)

// Status is what is stored. Overdue is only ever computed by View.
type Status string

const (
	StatusActive   Status = "active"
	StatusReturned Status = "returned"
	StatusOverdue  Status = "overdue"
)

type Loan struct {
	ID         string
	StudentID  string
	ResourceID int64
	Quantity   int
	LoanDate   time.Time
	DueDate    time.Time
	ReturnDate *time.Time
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewLoan(id, studentID string, resourceID int64, qty int, now time.Time) Loan {
	now = now.UTC()
	return Loan{
		ID:         id,
		StudentID:  studentID,
		ResourceID: resourceID,
		Quantity:   qty,
		LoanDate:   now,
		DueDate:    now.Add(LoanPeriod),
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (l Loan) Active() bool { return l.Status == StatusActive }

// View reports the status a reader should see at now.
func (l Loan) View(now time.Time) Status {
	if l.Status == StatusActive && now.After(l.DueDate) {
		return StatusOverdue
	}
	return l.Status
}

// Returned gives the loan in its terminal state.
func (l Loan) Returned(now time.Time) (Loan, error) {
	if l.Status == StatusReturned {
		return Loan{}, fmt.Errorf("loan %s: %w", l.ID, ErrAlreadyReturned)
	}
	now = now.UTC()
	l.Status = StatusReturned
	l.ReturnDate = &now
	l.UpdatedAt = now
	return l, nil
}

func ValidateRequest(studentID string, qty int) error {
	if studentID == "" {
		return ErrMissingStudent
	}
	if qty < 1 {
		return ErrInvalidQuantity
	}
	if qty > MaxQuantity {
		return ErrQuantityTooBig
	}
	return nil
}
