package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/university-lending/internal/orchestrator/domain"
	"github.com/dmehra2102/university-lending/pkg/apperr"
)

// Reconciler finishes sagas abandoned by a crashed or timed-out create. Any
// saga still pending after the grace period is compensated: its reservation
// is released by key and the saga is closed.
type Reconciler struct {
	log      *slog.Logger
	ledger   Ledger
	store    LoanStore
	interval time.Duration
	grace    time.Duration
	batch    int
	timeout  time.Duration
	now      func() time.Time
}

type ReconcilerOption func(*Reconciler)

func WithReconcileInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.interval = d }
}

// WithGrace sets how long a saga may stay pending before it is considered
// abandoned. It must comfortably exceed the coordinator's call timeout.
func WithGrace(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.grace = d }
}

func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(log *slog.Logger, ledger Ledger, store LoanStore, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		log:      log,
		ledger:   ledger,
		store:    store,
		interval: 30 * time.Second,
		grace:    time.Minute,
		batch:    50,
		timeout:  3 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopping")
			return nil
		case <-t.C:
			if _, err := r.Tick(ctx); err != nil {
				r.log.Error("reconcile tick error", "err", err)
			}
		}
	}
}

// Tick runs one pass and returns how many sagas it compensated.
func (r *Reconciler) Tick(ctx context.Context) (int, error) {
	sagas, err := r.store.StaleSagas(ctx, r.now().Add(-r.grace), r.batch)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, s := range sagas {
		if r.compensate(ctx, s) {
			done++
		}
	}
	return done, nil
}

func (r *Reconciler) compensate(ctx context.Context, s domain.Saga) bool {
	log := r.log.With("loan_id", s.ID, "resource_id", s.ResourceID, "state", s.State)

	if s.State != domain.StateCompensating {
		err := r.step(ctx, func(ctx context.Context) error {
			return r.store.TransitionSaga(ctx, s.ID, s.State, domain.StateCompensating, "abandoned")
		})
		if errors.Is(err, domain.ErrStateChanged) {
			return false
		}
		if err != nil {
			log.Error("reconciler could not claim saga", "err", err)
			return false
		}
	}

	err := r.step(ctx, func(ctx context.Context) error {
		return releaseReservation(ctx, r.ledger, s)
	})
	if err != nil {
		log.Warn("reconciler release failed, will retry", "err", err)
		return false
	}

	err = r.step(ctx, func(ctx context.Context) error {
		return r.store.TransitionSaga(ctx, s.ID, domain.StateCompensating, domain.StateCompensated, "abandoned")
	})
	if err != nil {
		log.Error("reconciler could not close saga", "err", err)
		return false
	}
	log.Info("abandoned saga compensated", "quantity", s.Quantity)
	return true
}

func (r *Reconciler) step(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(ctx)
}

// releaseReservation frees what the saga holds. A resource that no longer
// exists holds nothing, so NotFound counts as released.
func releaseReservation(ctx context.Context, ledger Ledger, s domain.Saga) error {
	err := ledger.Release(ctx, s.ResourceID, s.Quantity, s.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}
