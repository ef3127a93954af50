package ledgerpb

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/university-lending/pkg/apperr"
)

var kindCodes = map[apperr.Kind]codes.Code{
	apperr.KindNotFound:                 codes.NotFound,
	apperr.KindInsufficientAvailability: codes.FailedPrecondition,
	apperr.KindInvalidArgument:          codes.InvalidArgument,
	apperr.KindReservationClosed:        codes.Aborted,
	apperr.KindServiceUnavailable:       codes.Unavailable,
	apperr.KindInternalInconsistency:    codes.DataLoss,
}

// ToStatus converts a ledger error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	code, ok := kindCodes[apperr.KindOf(err)]
	if !ok {
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// FromStatus converts a gRPC error seen by a client back into the shared
// error kinds. Anything that is not a known ledger outcome, including
// timeouts and transport failures, is ServiceUnavailable.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("ledger: %v: %w", err, apperr.ErrServiceUnavailable)
	}
	for kind, code := range kindCodes {
		if st.Code() == code {
			return fmt.Errorf("ledger: %s: %w", st.Message(), apperr.FromKind(kind))
		}
	}
	return fmt.Errorf("ledger: %s (%s): %w", st.Message(), st.Code(), apperr.ErrServiceUnavailable)
}
