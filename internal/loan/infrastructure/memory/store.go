// Package memory keeps loans, sagas and outbox events in process. Each
// method is atomic under one lock, mirroring the Postgres transactions.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	loandomain "github.com/dmehra2102/university-lending/internal/loan/domain"
	"github.com/dmehra2102/university-lending/internal/orchestrator/domain"
	"github.com/dmehra2102/university-lending/pkg/outbox"
)

type Store struct {
	mu     sync.Mutex
	loans  map[string]loandomain.Loan
	sagas  map[string]domain.Saga
	outbox *outbox.MemoryStore
	now    func() time.Time
}

func NewStore(ob *outbox.MemoryStore) *Store {
	return &Store{
		loans:  make(map[string]loandomain.Loan),
		sagas:  make(map[string]domain.Saga),
		outbox: ob,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) StartSaga(_ context.Context, saga domain.Saga) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sagas[saga.ID]; ok {
		return fmt.Errorf("saga %s already exists", saga.ID)
	}
	s.sagas[saga.ID] = saga
	return nil
}

func (s *Store) TransitionSaga(_ context.Context, id string, from, to domain.SagaState, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, from, to, lastErr)
}

func (s *Store) transition(id string, from, to domain.SagaState, lastErr string) error {
	saga, ok := s.sagas[id]
	if !ok || saga.State != from {
		return fmt.Errorf("saga %s: %w", id, domain.ErrStateChanged)
	}
	saga.State = to
	saga.LastError = lastErr
	saga.UpdatedAt = s.now()
	s.sagas[id] = saga
	return nil
}

func (s *Store) CompleteLoan(_ context.Context, l loandomain.Loan, ev outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[l.ID]; ok {
		return fmt.Errorf("loan %s already exists", l.ID)
	}
	if err := s.transition(l.ID, domain.StateReserved, domain.StateCompleted, ""); err != nil {
		return err
	}
	s.loans[l.ID] = l
	s.outbox.Append(ev)
	return nil
}

func (s *Store) GetLoan(_ context.Context, id string) (loandomain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return loandomain.Loan{}, fmt.Errorf("%s: %w", id, loandomain.ErrLoanNotFound)
	}
	return l, nil
}

func (s *Store) MarkReturned(_ context.Context, l loandomain.Loan, ev outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.loans[l.ID]
	if !ok {
		return fmt.Errorf("%s: %w", l.ID, loandomain.ErrLoanNotFound)
	}
	if !cur.Active() {
		return fmt.Errorf("loan %s: %w", l.ID, loandomain.ErrAlreadyReturned)
	}
	s.loans[l.ID] = l
	s.outbox.Append(ev)
	return nil
}

func (s *Store) ListLoans(_ context.Context, studentID string) ([]loandomain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]loandomain.Loan, 0, len(s.loans))
	for _, l := range s.loans {
		if studentID == "" || l.StudentID == studentID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LoanDate.Equal(out[j].LoanDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].LoanDate.Before(out[j].LoanDate)
	})
	return out, nil
}

func (s *Store) StaleSagas(_ context.Context, before time.Time, limit int) ([]domain.Saga, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Saga
	for _, saga := range s.sagas {
		if !saga.Terminal() && saga.UpdatedAt.Before(before) {
			out = append(out, saga)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Saga is for tests and diagnostics.
func (s *Store) Saga(id string) (domain.Saga, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saga, ok := s.sagas[id]
	return saga, ok
}
