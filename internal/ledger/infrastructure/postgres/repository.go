package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/university-lending/internal/ledger/application"
	"github.com/dmehra2102/university-lending/internal/ledger/domain"
	"github.com/dmehra2102/university-lending/pkg/apperr"
)

const (
	tableResources    = "resources"
	tableReservations = "reservations"
)

var dialect = goqu.Dialect("postgres")

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	id          BIGSERIAL PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	quantity    INT NOT NULL CHECK (quantity >= 0),
	loaned      INT NOT NULL DEFAULT 0 CHECK (loaned >= 0 AND loaned <= quantity),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS reservations (
	key         TEXT PRIMARY KEY,
	resource_id BIGINT NOT NULL REFERENCES resources(id),
	quantity    INT NOT NULL,
	state       TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

// Insert adds a resource with nothing loaned and returns its id.
func (r *Repository) Insert(ctx context.Context, res domain.Resource) (int64, error) {
	query, args, err := dialect.Insert(tableResources).
		Rows(goqu.Record{"name": res.Name, "description": res.Description, "quantity": res.Quantity}).
		Returning("id").
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (domain.Resource, error) {
	query, args, err := selectResources().Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return domain.Resource{}, err
	}

	var res domain.Resource
	err = r.pool.QueryRow(ctx, query, args...).
		Scan(&res.ID, &res.Name, &res.Description, &res.Quantity, &res.Loaned, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Resource{}, fmt.Errorf("resource %d: %w", id, domain.ErrResourceNotFound)
	}
	if err != nil {
		return domain.Resource{}, err
	}
	return res, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Resource, error) {
	query, args, err := selectResources().Order(goqu.I("id").Asc()).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Resource
	for rows.Next() {
		var res domain.Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.Description, &res.Quantity, &res.Loaned, &res.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *Repository) GetReservation(ctx context.Context, key string) (domain.Reservation, bool, error) {
	query, args, err := dialect.From(tableReservations).
		Select("key", "resource_id", "quantity", "state", "created_at", "updated_at").
		Where(goqu.C("key").Eq(key)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return domain.Reservation{}, false, err
	}

	var res domain.Reservation
	err = r.pool.QueryRow(ctx, query, args...).
		Scan(&res.Key, &res.ResourceID, &res.Quantity, &res.State, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, false, nil
	}
	if err != nil {
		return domain.Reservation{}, false, err
	}
	return res, true, nil
}

// Apply runs the compare-and-set on loaned and the reservation write in one
// transaction. Zero affected rows on either statement is a conflict.
func (r *Repository) Apply(ctx context.Context, m domain.Mutation) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query, args, err := dialect.Update(tableResources).
		Set(goqu.Record{"loaned": m.NewLoaned, "updated_at": goqu.L("now()")}).
		Where(goqu.C("id").Eq(m.ResourceID), goqu.C("loaned").Eq(m.ExpectedLoaned)).
		Returning("loaned").
		Prepared(true).
		ToSQL()
	if err != nil {
		return err
	}

	var loaned int
	err = tx.QueryRow(ctx, query, args...).Scan(&loaned)
	if errors.Is(err, pgx.ErrNoRows) {
		return application.ErrConflict
	}
	if err != nil {
		return err
	}
	if loaned != m.NewLoaned {
		r.log.Error("post-update verification failed", "resource_id", m.ResourceID, "expected", m.NewLoaned, "actual", loaned)
		return fmt.Errorf("resource %d: loaned is %d, expected %d: %w", m.ResourceID, loaned, m.NewLoaned, apperr.ErrInternalInconsistency)
	}

	if m.Reservation != nil {
		ok, err := r.writeReservation(ctx, tx, *m.Reservation)
		if err != nil {
			return err
		}
		if !ok {
			return application.ErrConflict
		}
	}

	return tx.Commit(ctx)
}

func (r *Repository) writeReservation(ctx context.Context, tx pgx.Tx, res domain.Reservation) (bool, error) {
	ins := dialect.Insert(tableReservations).Rows(goqu.Record{
		"key":         res.Key,
		"resource_id": res.ResourceID,
		"quantity":    res.Quantity,
		"state":       string(res.State),
		"created_at":  res.CreatedAt,
		"updated_at":  res.UpdatedAt,
	})

	if res.State == domain.ReservationHeld {
		ins = ins.OnConflict(goqu.DoNothing())
	} else {
		ins = ins.OnConflict(goqu.DoUpdate("key", goqu.Record{
			"state":      string(domain.ReservationReleased),
			"updated_at": res.UpdatedAt,
		}).Where(goqu.I("reservations.state").Eq(string(domain.ReservationHeld))))
	}

	query, args, err := ins.Prepared(true).ToSQL()
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func selectResources() *goqu.SelectDataset {
	return dialect.From(tableResources).
		Select("id", "name", "description", "quantity", "loaned", "updated_at").
		Prepared(true)
}
