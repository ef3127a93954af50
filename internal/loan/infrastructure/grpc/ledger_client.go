package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/dmehra2102/university-lending/internal/ledger/infrastructure/grpc/ledgerpb"
	"github.com/dmehra2102/university-lending/pkg/apperr"
)

// LedgerClient talks to the resource service. Every error it returns carries
// one of the shared error kinds.
type LedgerClient struct {
	log  *slog.Logger
	conn *grpc.ClientConn
	cc   pb.LedgerClient
}

func NewLedgerClient(log *slog.Logger, addr string, opts ...grpc.DialOption) (*LedgerClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &LedgerClient{
		log:  log,
		conn: conn,
		cc:   pb.NewLedgerClient(conn),
	}, nil
}

func (c *LedgerClient) Reserve(ctx context.Context, resourceID int64, qty int, key string) error {
	q, err := wireQuantity(qty)
	if err != nil {
		return err
	}
	_, err = c.cc.Reserve(ctx, &pb.ReserveRequest{ResourceID: resourceID, Quantity: q, ReservationKey: key})
	if err != nil {
		c.log.Warn("ledger reserve failed", "resource_id", resourceID, "quantity", qty, "key", key, "err", err)
		return pb.FromStatus(err)
	}
	return nil
}

func (c *LedgerClient) Release(ctx context.Context, resourceID int64, qty int, key string) error {
	q, err := wireQuantity(qty)
	if err != nil {
		return err
	}
	_, err = c.cc.Release(ctx, &pb.ReleaseRequest{ResourceID: resourceID, Quantity: q, ReservationKey: key})
	if err != nil {
		c.log.Warn("ledger release failed", "resource_id", resourceID, "quantity", qty, "key", key, "err", err)
		return pb.FromStatus(err)
	}
	return nil
}

func (c *LedgerClient) Close() error {
	return c.conn.Close()
}

// wireQuantity refuses quantities the int32 wire field would truncate.
func wireQuantity(qty int) (int32, error) {
	if qty > math.MaxInt32 || qty < math.MinInt32 {
		return 0, fmt.Errorf("quantity %d out of range: %w", qty, apperr.ErrInvalidArgument)
	}
	return int32(qty), nil
}
