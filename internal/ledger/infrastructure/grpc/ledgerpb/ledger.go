// Package ledgerpb defines the lending.ledger.v1.Ledger gRPC service. Messages
// travel as JSON through the codec registered in this package.
package ledgerpb

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "lending.ledger.v1.Ledger"

const (
	methodGetAvailability = "/" + ServiceName + "/GetAvailability"
	methodReserve         = "/" + ServiceName + "/Reserve"
	methodRelease         = "/" + ServiceName + "/Release"
)

type GetAvailabilityRequest struct {
	ResourceID int64 `json:"resource_id"`
}

type ReserveRequest struct {
	ResourceID     int64  `json:"resource_id"`
	Quantity       int32  `json:"quantity"`
	ReservationKey string `json:"reservation_key,omitempty"`
}

type ReleaseRequest struct {
	ResourceID     int64  `json:"resource_id"`
	Quantity       int32  `json:"quantity"`
	ReservationKey string `json:"reservation_key,omitempty"`
}

type AvailabilityResponse struct {
	ResourceID int64  `json:"resource_id"`
	Quantity   int32  `json:"quantity"`
	Loaned     int32  `json:"loaned"`
	Available  int32  `json:"available"`
	Status     string `json:"status"`
}

type LedgerServer interface {
	GetAvailability(context.Context, *GetAvailabilityRequest) (*AvailabilityResponse, error)
	Reserve(context.Context, *ReserveRequest) (*AvailabilityResponse, error)
	Release(context.Context, *ReleaseRequest) (*AvailabilityResponse, error)
}

type LedgerClient interface {
	GetAvailability(ctx context.Context, in *GetAvailabilityRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error)
	Reserve(ctx context.Context, in *ReserveRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error)
	Release(ctx context.Context, in *ReleaseRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error)
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&serviceDesc, srv)
}

type ledgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) LedgerClient {
	return &ledgerClient{cc: cc}
}

func (c *ledgerClient) GetAvailability(ctx context.Context, in *GetAvailabilityRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	out := new(AvailabilityResponse)
	if err := c.cc.Invoke(ctx, methodGetAvailability, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerClient) Reserve(ctx context.Context, in *ReserveRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	out := new(AvailabilityResponse)
	if err := c.cc.Invoke(ctx, methodReserve, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerClient) Release(ctx context.Context, in *ReleaseRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	out := new(AvailabilityResponse)
	if err := c.cc.Invoke(ctx, methodRelease, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailability", Handler: getAvailabilityHandler},
		{MethodName: "Reserve", Handler: reserveHandler},
		{MethodName: "Release", Handler: releaseHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lending/ledger/v1/ledger.proto",
}

func getAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetAvailabilityRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).GetAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetAvailability}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).GetAvailability(ctx, req.(*GetAvailabilityRequest))
	})
}

func reserveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReserveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).Reserve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodReserve}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).Reserve(ctx, req.(*ReserveRequest))
	})
}

func releaseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReleaseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).Release(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRelease}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).Release(ctx, req.(*ReleaseRequest))
	})
}
