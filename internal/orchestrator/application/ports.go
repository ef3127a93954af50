package application

import (
	"context"
	"time"

	loandomain "github.com/dmehra2102/university-lending/internal/loan/domain"
	"github.com/dmehra2102/university-lending/internal/orchestrator/domain"
	"github.com/dmehra2102/university-lending/pkg/outbox"
)

// Ledger reserves and releases units. The key makes both calls idempotent.
type Ledger interface {
	Reserve(ctx context.Context, resourceID int64, qty int, key string) error
	Release(ctx context.Context, resourceID int64, qty int, key string) error
}

type StudentDirectory interface {
	Verify(ctx context.Context, studentID string) error
}

// LoanStore persists loans, the saga log and outbox events.
type LoanStore interface {
	StartSaga(ctx context.Context, s domain.Saga) error
	// TransitionSaga moves a saga from one state to another, failing with
	// domain.ErrStateChanged if it is no longer in from.
	TransitionSaga(ctx context.Context, id string, from, to domain.SagaState, lastErr string) error
	// CompleteLoan inserts the loan, moves its saga from reserved to
	// completed and queues ev, all or nothing.
	CompleteLoan(ctx context.Context, l loandomain.Loan, ev outbox.Event) error
	GetLoan(ctx context.Context, id string) (loandomain.Loan, error)
	// MarkReturned stores the returned loan and queues ev in one step. It
	// fails with ErrAlreadyReturned if the stored loan is not active.
	MarkReturned(ctx context.Context, l loandomain.Loan, ev outbox.Event) error
	// StaleSagas lists pending sagas not updated since before.
	StaleSagas(ctx context.Context, before time.Time, limit int) ([]domain.Saga, error)
}
