//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loandomain "github.com/dmehra2102/university-lending/internal/loan/domain"
	"github.com/dmehra2102/university-lending/internal/loan/infrastructure/postgres"
	"github.com/dmehra2102/university-lending/internal/orchestrator/domain"
	"github.com/dmehra2102/university-lending/internal/testenv"
	"github.com/dmehra2102/university-lending/pkg/apperr"
	"github.com/dmehra2102/university-lending/pkg/logging"
	"github.com/dmehra2102/university-lending/pkg/outbox"
)

func TestRepository_SagaAndLoanLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := testenv.Postgres(t)
	repo := postgres.NewRepository(logging.Discard(), pool)
	require.NoError(t, repo.EnsureSchema(ctx))
	events := outbox.NewPostgresStore(logging.Discard(), pool, 3)

	now := time.Now().UTC().Truncate(time.Microsecond)
	saga := domain.Saga{ID: "l1", StudentID: "A2023001", ResourceID: 1, Quantity: 2, State: domain.StateStarted, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.StartSaga(ctx, saga))

	loan := loandomain.NewLoan("l1", "A2023001", 1, 2, now)
	ev := outbox.Event{AggregateType: "loan", AggregateID: "l1", Type: loandomain.EventLoanCreated, Payload: []byte(`{"loan_id":"l1"}`)}

	err := repo.CompleteLoan(ctx, loan, ev)
	assert.ErrorIs(t, err, domain.ErrStateChanged, "saga not reserved yet")
	_, err = repo.GetLoan(ctx, "l1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, repo.TransitionSaga(ctx, "l1", domain.StateStarted, domain.StateReserved, ""))
	assert.ErrorIs(t, repo.TransitionSaga(ctx, "l1", domain.StateStarted, domain.StateReserved, ""), domain.ErrStateChanged)
	require.NoError(t, repo.CompleteLoan(ctx, loan, ev))

	got, err := repo.GetLoan(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, loandomain.StatusActive, got.Status)
	assert.Equal(t, 2, got.Quantity)
	assert.True(t, got.DueDate.Equal(loan.DueDate))

	returned, err := got.Returned(time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.MarkReturned(ctx, returned, outbox.Event{AggregateType: "loan", AggregateID: "l1", Type: loandomain.EventLoanReturned, Payload: []byte(`{}`)}))
	assert.ErrorIs(t, repo.MarkReturned(ctx, returned, outbox.Event{Payload: []byte(`{}`)}), apperr.ErrAlreadyReturned)

	batch, err := events.LockBatch(ctx, "relay-1", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, loandomain.EventLoanCreated, batch[0].Type)
	assert.Equal(t, loandomain.EventLoanReturned, batch[1].Type)

	again, err := events.LockBatch(ctx, "relay-2", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "leased events are not handed out twice")

	require.NoError(t, events.MarkSent(ctx, []int64{batch[0].ID}))
	require.NoError(t, events.MarkFailed(ctx, batch[1].ID, "broker down"))
	retry, err := events.LockBatch(ctx, "relay-2", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, 1, retry[0].RetryCount)
}

func TestRepository_StaleSagasAndListing(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewRepository(logging.Discard(), testenv.Postgres(t))
	require.NoError(t, repo.EnsureSchema(ctx))

	old := time.Now().UTC().Add(-time.Hour)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, repo.StartSaga(ctx, domain.Saga{ID: id, StudentID: "A1", ResourceID: 1, Quantity: 1, State: domain.StateStarted, CreatedAt: old, UpdatedAt: old}))
	}
	require.NoError(t, repo.TransitionSaga(ctx, "b", domain.StateStarted, domain.StateReserved, ""))
	require.NoError(t, repo.CompleteLoan(ctx, loandomain.NewLoan("b", "A1", 1, 1, old), outbox.Event{Payload: []byte(`{}`)}))

	stale, err := repo.StaleSagas(ctx, time.Now().UTC().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "a", stale[0].ID)
	assert.Equal(t, domain.StateStarted, stale[0].State)

	loans, err := repo.ListLoans(ctx, "A1")
	require.NoError(t, err)
	assert.Len(t, loans, 1)
	loans, err = repo.ListLoans(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, loans)
}
