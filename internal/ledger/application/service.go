package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/university-lending/internal/ledger/domain"
	"github.com/dmehra2102/university-lending/pkg/apperr"
)

type Service struct {
	log   *slog.Logger
	repo  ResourceRepository
	retry RetryPolicy
	now   func() time.Time
}

type Option func(*Service)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(log *slog.Logger, repo ResourceRepository, opts ...Option) *Service {
	s := &Service{
		log:   log,
		repo:  repo,
		retry: DefaultRetryPolicy(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) GetAvailability(ctx context.Context, resourceID int64) (domain.Availability, error) {
	r, err := s.repo.Get(ctx, resourceID)
	if err != nil {
		return domain.Availability{}, err
	}
	return r.Availability(), nil
}

func (s *Service) List(ctx context.Context) ([]domain.Resource, error) {
	return s.repo.List(ctx)
}

// ReserveUnits takes qty units of the resource. With a non-empty key the call
// is idempotent: a key that already holds units returns the current counts.
func (s *Service) ReserveUnits(ctx context.Context, resourceID int64, qty int, key string) (domain.Availability, error) {
	if qty < 1 {
		return domain.Availability{}, domain.ErrInvalidQuantity
	}

	var out domain.Availability
	attempts, err := retryOnConflict(ctx, s.retry, func(ctx context.Context) error {
		r, err := s.repo.Get(ctx, resourceID)
		if err != nil {
			return err
		}

		if key != "" {
			res, found, err := s.repo.GetReservation(ctx, key)
			if err != nil {
				return err
			}
			if found {
				if err := checkReservationResource(res, resourceID); err != nil {
					return err
				}
				if res.State == domain.ReservationReleased {
					return fmt.Errorf("reservation %s: %w", key, domain.ErrReservationClosed)
				}
				out = r.Availability()
				return nil
			}
		}

		loaned, err := r.Reserve(qty)
		if err != nil {
			return err
		}
		m := domain.Mutation{ResourceID: r.ID, ExpectedLoaned: r.Loaned, NewLoaned: loaned}
		if key != "" {
			now := s.now()
			m.Reservation = &domain.Reservation{
				Key:        key,
				ResourceID: r.ID,
				Quantity:   qty,
				State:      domain.ReservationHeld,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
		}
		if err := s.repo.Apply(ctx, m); err != nil {
			return err
		}

		r.Loaned = loaned
		out = r.Availability()
		return nil
	})
	if err != nil {
		return domain.Availability{}, s.exhausted(err, resourceID, attempts)
	}

	s.log.Info("units reserved", "resource_id", resourceID, "quantity", qty, "loaned", out.Loaned, "key", key, "attempts", attempts)
	return out, nil
}

// ReleaseUnits gives back qty units. Releasing more than is loaned floors at
// zero and is logged, never returned as an error. With a key the quantity
// recorded at reserve time wins, and repeated calls are no-ops.
func (s *Service) ReleaseUnits(ctx context.Context, resourceID int64, qty int, key string) (domain.Availability, error) {
	if qty < 1 {
		return domain.Availability{}, domain.ErrInvalidQuantity
	}

	var out domain.Availability
	attempts, err := retryOnConflict(ctx, s.retry, func(ctx context.Context) error {
		r, err := s.repo.Get(ctx, resourceID)
		if err != nil {
			return err
		}

		release := qty
		m := domain.Mutation{ResourceID: r.ID, ExpectedLoaned: r.Loaned}

		if key != "" {
			res, found, err := s.repo.GetReservation(ctx, key)
			if err != nil {
				return err
			}
			now := s.now()

			if !found {
				// Nothing was reserved under this key. Leave a tombstone so a
				// late reserve with the same key cannot take units.
				s.log.Warn("release for unknown reservation, recording tombstone", "resource_id", resourceID, "key", key)
				m.NewLoaned = r.Loaned
				m.Reservation = &domain.Reservation{
					Key:        key,
					ResourceID: r.ID,
					State:      domain.ReservationReleased,
					CreatedAt:  now,
					UpdatedAt:  now,
				}
				if err := s.repo.Apply(ctx, m); err != nil {
					return err
				}
				out = r.Availability()
				return nil
			}

			if err := checkReservationResource(res, resourceID); err != nil {
				return err
			}
			if res.State == domain.ReservationReleased {
				out = r.Availability()
				return nil
			}
			if res.Quantity != qty {
				s.log.Warn("release quantity differs from reservation", "resource_id", resourceID, "key", key, "requested", qty, "reserved", res.Quantity)
			}
			release = res.Quantity
			res.State = domain.ReservationReleased
			res.UpdatedAt = now
			m.Reservation = &res
		}

		loaned, clamped, err := r.Release(release)
		if err != nil {
			return err
		}
		if clamped {
			s.log.Warn("release exceeds loaned units, clamped at zero", "resource_id", resourceID, "loaned", r.Loaned, "release", release)
		}
		m.NewLoaned = loaned
		if err := s.repo.Apply(ctx, m); err != nil {
			return err
		}

		r.Loaned = loaned
		out = r.Availability()
		return nil
	})
	if err != nil {
		return domain.Availability{}, s.exhausted(err, resourceID, attempts)
	}

	s.log.Info("units released", "resource_id", resourceID, "quantity", qty, "loaned", out.Loaned, "key", key, "attempts", attempts)
	return out, nil
}

// exhausted turns a conflict that survived every retry into an
// unavailability error for the caller.
func (s *Service) exhausted(err error, resourceID int64, attempts int) error {
	if !errors.Is(err, ErrConflict) {
		return err
	}
	s.log.Error("compare-and-set retries exhausted", "resource_id", resourceID, "attempts", attempts)
	return fmt.Errorf("resource %d: %w after %d attempts: %w", resourceID, ErrConflict, attempts, apperr.ErrServiceUnavailable)
}

func checkReservationResource(res domain.Reservation, resourceID int64) error {
	if res.ResourceID != resourceID {
		return fmt.Errorf("reservation %s belongs to resource %d: %w", res.Key, res.ResourceID, apperr.ErrInvalidArgument)
	}
	return nil
}
