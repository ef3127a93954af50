package domain

import (
	"errors"
	"time"
)

// ErrStateChanged means the saga was moved by someone else (typically the
// reconciler) between read and write.
var ErrStateChanged = errors.New("saga state changed concurrently")

type SagaState string

const (
	StateStarted      SagaState = "started"
	StateReserved     SagaState = "reserved"
	StateCompleted    SagaState = "completed"
	StateCompensating SagaState = "compensating"
	StateCompensated  SagaState = "compensated"
)

// Pending are the states a crashed create can be left in. The reconciler
// drives them to compensated.
var Pending = []SagaState{StateStarted, StateReserved, StateCompensating}

// Saga is the durable record of a loan creation. Its ID is also the loan ID
// and the ledger reservation key.
type Saga struct {
	ID         string
	StudentID  string
	ResourceID int64
	Quantity   int
	State      SagaState
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s Saga) Terminal() bool {
	return s.State == StateCompleted || s.State == StateCompensated
}
