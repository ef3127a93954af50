package grpc

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/dmehra2102/university-lending/internal/ledger/application"
	"github.com/dmehra2102/university-lending/internal/ledger/domain"
	pb "github.com/dmehra2102/university-lending/internal/ledger/infrastructure/grpc/ledgerpb"
)

type Server struct {
	log *slog.Logger
	svc *application.Service
}

func NewServer(log *slog.Logger, svc *application.Service) *Server {
	return &Server{log: log, svc: svc}
}

func (s *Server) GetAvailability(ctx context.Context, req *pb.GetAvailabilityRequest) (*pb.AvailabilityResponse, error) {
	av, err := s.svc.GetAvailability(ctx, req.ResourceID)
	if err != nil {
		return nil, pb.ToStatus(err)
	}
	return toPB(av), nil
}

func (s *Server) Reserve(ctx context.Context, req *pb.ReserveRequest) (*pb.AvailabilityResponse, error) {
	av, err := s.svc.ReserveUnits(ctx, req.ResourceID, int(req.Quantity), req.ReservationKey)
	if err != nil {
		return nil, pb.ToStatus(err)
	}
	return toPB(av), nil
}

func (s *Server) Release(ctx context.Context, req *pb.ReleaseRequest) (*pb.AvailabilityResponse, error) {
	av, err := s.svc.ReleaseUnits(ctx, req.ResourceID, int(req.Quantity), req.ReservationKey)
	if err != nil {
		return nil, pb.ToStatus(err)
	}
	return toPB(av), nil
}

func toPB(av domain.Availability) *pb.AvailabilityResponse {
	return &pb.AvailabilityResponse{
		ResourceID: av.ResourceID,
		Quantity:   int32(av.Quantity),
		Loaned:     int32(av.Loaned),
		Available:  int32(av.Available),
		Status:     av.Status.Wire(),
	}
}

func NewGRPCServer(srv *Server) *grpc.Server {
	gs := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	pb.RegisterLedgerServer(gs, srv)
	return gs
}

func Run(addr string, srv *Server) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := NewGRPCServer(srv)
	go func() {
		if err := gs.Serve(lis); err != nil {
			srv.log.Error("grpc serve stopped", "err", err)
		}
	}()
	return gs, nil
}
