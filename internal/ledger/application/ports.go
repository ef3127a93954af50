package application

import (
	"context"
	"errors"

	"github.com/dmehra2102/university-lending/internal/ledger/domain"
)

// ErrConflict is returned by Apply when the resource or reservation changed
// since it was read.
var ErrConflict = errors.New("concurrent update conflict")

type ResourceRepository interface {
	Get(ctx context.Context, id int64) (domain.Resource, error)
	List(ctx context.Context) ([]domain.Resource, error)
	GetReservation(ctx context.Context, key string) (domain.Reservation, bool, error)
	// Apply performs the compare-and-set described by m. A held reservation
	// is inserted only if the key is unused; a released one either inserts a
	// tombstone or moves an existing held row to released.
	Apply(ctx context.Context, m domain.Mutation) error
}
