package application

import (
	"context"
	"time"

	"github.com/dmehra2102/university-lending/internal/loan/domain"
)

type LoanReader interface {
	GetLoan(ctx context.Context, id string) (domain.Loan, error)
	// ListLoans returns loans ordered by loan date. An empty studentID
	// lists every loan.
	ListLoans(ctx context.Context, studentID string) ([]domain.Loan, error)
}

// Service is the read side of the loan store.
type Service struct {
	repo LoanReader
	now  func() time.Time
}

func NewService(repo LoanReader) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Get(ctx context.Context, id string) (domain.Loan, error) {
	return s.repo.GetLoan(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Loan, error) {
	return s.repo.ListLoans(ctx, "")
}

func (s *Service) ListByStudent(ctx context.Context, studentID string) ([]domain.Loan, error) {
	return s.repo.ListLoans(ctx, studentID)
}

// Overdue lists active loans already past their due date.
func (s *Service) Overdue(ctx context.Context) ([]domain.Loan, error) {
	loans, err := s.repo.ListLoans(ctx, "")
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]domain.Loan, 0, len(loans))
	for _, l := range loans {
		if l.View(now) == domain.StatusOverdue {
			out = append(out, l)
		}
	}
	return out, nil
}
