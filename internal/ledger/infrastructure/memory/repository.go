// Package memory is an in-process resource store for local runs and tests.
// It honours the same compare-and-set contract as the Postgres store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/university-lending/internal/ledger/application"
	"github.com/dmehra2102/university-lending/internal/ledger/domain"
)

type Repository struct {
	mu           sync.Mutex
	resources    map[int64]domain.Resource
	reservations map[string]domain.Reservation
}

func NewRepository(seed ...domain.Resource) *Repository {
	r := &Repository{
		resources:    make(map[int64]domain.Resource),
		reservations: make(map[string]domain.Reservation),
	}
	for _, res := range seed {
		r.Put(res)
	}
	return r
}

// Put creates or replaces a resource.
func (r *Repository) Put(res domain.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.UpdatedAt.IsZero() {
		res.UpdatedAt = time.Now().UTC()
	}
	r.resources[res.ID] = res
}

func (r *Repository) Get(_ context.Context, id int64) (domain.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[id]
	if !ok {
		return domain.Resource{}, fmt.Errorf("resource %d: %w", id, domain.ErrResourceNotFound)
	}
	return res, nil
}

func (r *Repository) List(_ context.Context) ([]domain.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) GetReservation(_ context.Context, key string) (domain.Reservation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[key]
	return res, ok, nil
}

func (r *Repository) Apply(_ context.Context, m domain.Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.resources[m.ResourceID]
	if !ok {
		return fmt.Errorf("resource %d: %w", m.ResourceID, domain.ErrResourceNotFound)
	}
	if res.Loaned != m.ExpectedLoaned {
		return application.ErrConflict
	}
	if m.Reservation != nil {
		existing, found := r.reservations[m.Reservation.Key]
		switch m.Reservation.State {
		case domain.ReservationHeld:
			if found {
				return application.ErrConflict
			}
		case domain.ReservationReleased:
			if found && existing.State != domain.ReservationHeld {
				return application.ErrConflict
			}
		}
		r.reservations[m.Reservation.Key] = *m.Reservation
	}

	res.Loaned = m.NewLoaned
	res.UpdatedAt = time.Now().UTC()
	r.resources[m.ResourceID] = res
	return nil
}
