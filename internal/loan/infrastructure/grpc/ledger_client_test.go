package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	ledgerapp "github.com/dmehra2102/university-lending/internal/ledger/application"
	ledgerdomain "github.com/dmehra2102/university-lending/internal/ledger/domain"
	ledgergrpc "github.com/dmehra2102/university-lending/internal/ledger/infrastructure/grpc"
	"github.com/dmehra2102/university-lending/internal/ledger/infrastructure/memory"
	"github.com/dmehra2102/university-lending/pkg/apperr"
	"github.com/dmehra2102/university-lending/pkg/logging"
)

type ledgerFixture struct {
	*LedgerClient
	svc *ledgerapp.Service
}

func (f ledgerFixture) free(t *testing.T, resourceID int64) int {
	t.Helper()
	av, err := f.svc.GetAvailability(context.Background(), resourceID)
	require.NoError(t, err)
	return av.Available
}

func startLedger(t *testing.T, seed ...ledgerdomain.Resource) ledgerFixture {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	svc := ledgerapp.NewService(logging.Discard(), memory.NewRepository(seed...))
	gs := ledgergrpc.NewGRPCServer(ledgergrpc.NewServer(logging.Discard(), svc))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	client, err := NewLedgerClient(logging.Discard(), "passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return ledgerFixture{LedgerClient: client, svc: svc}
}

func TestLedgerClient_ReserveRelease(t *testing.T) {
	ctx := context.Background()
	c := startLedger(t, ledgerdomain.Resource{ID: 1, Quantity: 5})

	require.NoError(t, c.Reserve(ctx, 1, 3, "loan-1"))
	assert.Equal(t, 2, c.free(t, 1))

	err := c.Reserve(ctx, 1, 3, "loan-2")
	assert.ErrorIs(t, err, apperr.ErrInsufficientAvailability)

	require.NoError(t, c.Release(ctx, 1, 3, "loan-1"))
	require.NoError(t, c.Release(ctx, 1, 3, "loan-1"))
	assert.Equal(t, 5, c.free(t, 1))

	err = c.Reserve(ctx, 1, 1, "loan-1")
	assert.ErrorIs(t, err, apperr.ErrReservationClosed)
}

func TestLedgerClient_ErrorKinds(t *testing.T) {
	ctx := context.Background()
	c := startLedger(t, ledgerdomain.Resource{ID: 1, Quantity: 1})

	assert.ErrorIs(t, c.Reserve(ctx, 42, 1, ""), apperr.ErrNotFound)
	assert.ErrorIs(t, c.Reserve(ctx, 1, 0, ""), apperr.ErrInvalidArgument)
}

func TestLedgerClient_RejectsQuantityBeyondWireRange(t *testing.T) {
	ctx := context.Background()
	c := startLedger(t, ledgerdomain.Resource{ID: 1, Quantity: 5})

	err := c.Reserve(ctx, 1, 1<<32+1, "loan-1")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Equal(t, 5, c.free(t, 1), "no units taken")

	require.NoError(t, c.Reserve(ctx, 1, 2, "loan-2"))
	err = c.Release(ctx, 1, 1<<32+2, "loan-2")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Equal(t, 3, c.free(t, 1))
}

func TestLedgerClient_UnreachableIsUnavailable(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	require.NoError(t, lis.Close())

	c, err := NewLedgerClient(logging.Discard(), "passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = c.Reserve(ctx, 1, 1, "")
	assert.ErrorIs(t, err, apperr.ErrServiceUnavailable)
}
