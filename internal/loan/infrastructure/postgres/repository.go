package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	loandomain "github.com/dmehra2102/university-lending/internal/loan/domain"
	"github.com/dmehra2102/university-lending/internal/orchestrator/domain"
	"github.com/dmehra2102/university-lending/pkg/outbox"
)

const (
	tableLoans = "loans"
	tableSagas = "loan_sagas"
)

var dialect = goqu.Dialect("postgres")

const schema = `
CREATE TABLE IF NOT EXISTS loan_sagas (
	id          TEXT PRIMARY KEY,
	student_id  TEXT NOT NULL,
	resource_id BIGINT NOT NULL,
	quantity    INT NOT NULL,
	state       TEXT NOT NULL,
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS loan_sagas_pending_idx ON loan_sagas (state, updated_at);
CREATE TABLE IF NOT EXISTS loans (
	id          TEXT PRIMARY KEY REFERENCES loan_sagas(id),
	student_id  TEXT NOT NULL,
	resource_id BIGINT NOT NULL,
	quantity    INT NOT NULL CHECK (quantity >= 1),
	loan_date   TIMESTAMPTZ NOT NULL,
	due_date    TIMESTAMPTZ NOT NULL,
	return_date TIMESTAMPTZ,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS loans_student_idx ON loans (student_id, loan_date);`

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// EnsureSchema creates the loan tables and the outbox they write to.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, outbox.Schema)
	return err
}

func (r *Repository) StartSaga(ctx context.Context, s domain.Saga) error {
	query, args, err := dialect.Insert(tableSagas).Rows(goqu.Record{
		"id":          s.ID,
		"student_id":  s.StudentID,
		"resource_id": s.ResourceID,
		"quantity":    s.Quantity,
		"state":       string(s.State),
		"last_error":  s.LastError,
		"created_at":  s.CreatedAt,
		"updated_at":  s.UpdatedAt,
	}).Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query, args...)
	return err
}

func (r *Repository) TransitionSaga(ctx context.Context, id string, from, to domain.SagaState, lastErr string) error {
	return transition(ctx, r.pool, id, from, to, lastErr)
}

func transition(ctx context.Context, db execer, id string, from, to domain.SagaState, lastErr string) error {
	query, args, err := dialect.Update(tableSagas).
		Set(goqu.Record{"state": string(to), "last_error": lastErr, "updated_at": goqu.L("now()")}).
		Where(goqu.C("id").Eq(id), goqu.C("state").Eq(string(from))).
		Prepared(true).
		ToSQL()
	if err != nil {
		return err
	}
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("saga %s not in %s: %w", id, from, domain.ErrStateChanged)
	}
	return nil
}

// CompleteLoan writes the loan, closes its saga and queues ev in one
// transaction. If the reconciler already claimed the saga nothing is written.
func (r *Repository) CompleteLoan(ctx context.Context, l loandomain.Loan, ev outbox.Event) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := transition(ctx, tx, l.ID, domain.StateReserved, domain.StateCompleted, ""); err != nil {
			return err
		}

		query, args, err := dialect.Insert(tableLoans).Rows(goqu.Record{
			"id":          l.ID,
			"student_id":  l.StudentID,
			"resource_id": l.ResourceID,
			"quantity":    l.Quantity,
			"loan_date":   l.LoanDate,
			"due_date":    l.DueDate,
			"return_date": l.ReturnDate,
			"status":      string(l.Status),
			"created_at":  l.CreatedAt,
			"updated_at":  l.UpdatedAt,
		}).Prepared(true).ToSQL()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return err
		}
		return outbox.Insert(ctx, tx, ev)
	})
}

func (r *Repository) GetLoan(ctx context.Context, id string) (loandomain.Loan, error) {
	query, args, err := selectLoans().Where(goqu.C("id").Eq(id)).ToSQL()
	if err != nil {
		return loandomain.Loan{}, err
	}
	l, err := scanLoan(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return loandomain.Loan{}, fmt.Errorf("%s: %w", id, loandomain.ErrLoanNotFound)
	}
	return l, err
}

// MarkReturned only updates an active loan, so two concurrent returns cannot
// both queue a LoanReturned event.
func (r *Repository) MarkReturned(ctx context.Context, l loandomain.Loan, ev outbox.Event) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		query, args, err := dialect.Update(tableLoans).
			Set(goqu.Record{
				"status":      string(l.Status),
				"return_date": l.ReturnDate,
				"updated_at":  l.UpdatedAt,
			}).
			Where(goqu.C("id").Eq(l.ID), goqu.C("status").Eq(string(loandomain.StatusActive))).
			Prepared(true).
			ToSQL()
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("loan %s: %w", l.ID, loandomain.ErrAlreadyReturned)
		}
		return outbox.Insert(ctx, tx, ev)
	})
}

func (r *Repository) ListLoans(ctx context.Context, studentID string) ([]loandomain.Loan, error) {
	ds := selectLoans().Order(goqu.I("loan_date").Asc(), goqu.I("id").Asc())
	if studentID != "" {
		ds = ds.Where(goqu.C("student_id").Eq(studentID))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []loandomain.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) StaleSagas(ctx context.Context, before time.Time, limit int) ([]domain.Saga, error) {
	states := make([]any, 0, len(domain.Pending))
	for _, s := range domain.Pending {
		states = append(states, string(s))
	}
	query, args, err := dialect.From(tableSagas).
		Select("id", "student_id", "resource_id", "quantity", "state", "last_error", "created_at", "updated_at").
		Where(goqu.C("state").In(states...), goqu.C("updated_at").Lt(before)).
		Order(goqu.I("updated_at").Asc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Saga
	for rows.Next() {
		var s domain.Saga
		if err := rows.Scan(&s.ID, &s.StudentID, &s.ResourceID, &s.Quantity, &s.State, &s.LastError, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func selectLoans() *goqu.SelectDataset {
	return dialect.From(tableLoans).
		Select("id", "student_id", "resource_id", "quantity", "loan_date", "due_date", "return_date", "status", "created_at", "updated_at").
		Prepared(true)
}

func scanLoan(row pgx.Row) (loandomain.Loan, error) {
	var l loandomain.Loan
	err := row.Scan(&l.ID, &l.StudentID, &l.ResourceID, &l.Quantity, &l.LoanDate, &l.DueDate, &l.ReturnDate, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
