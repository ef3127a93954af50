// Package apperr holds the error kinds shared by the lending services and
// their mapping to HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrNotFound                 = errors.New("not found")
	ErrInsufficientAvailability = errors.New("insufficient availability")
	ErrAlreadyReturned          = errors.New("loan already returned")
	ErrServiceUnavailable       = errors.New("service unavailable")
	ErrInternalInconsistency    = errors.New("internal inconsistency")
	ErrInvalidArgument          = errors.New("invalid argument")
	ErrReservationClosed        = errors.New("reservation already released")
	ErrDuplicateRequest         = errors.New("duplicate request")
)

type Kind string

const (
	KindNotFound                 Kind = "not_found"
	KindInsufficientAvailability Kind = "insufficient_availability"
	KindAlreadyReturned          Kind = "already_returned"
	KindServiceUnavailable       Kind = "service_unavailable"
	KindInternalInconsistency    Kind = "internal_inconsistency"
	KindInvalidArgument          Kind = "invalid_argument"
	KindReservationClosed        Kind = "reservation_closed"
	KindDuplicateRequest         Kind = "duplicate_request"
	KindInternal                 Kind = "internal"
)

var table = []struct {
	err    error
	kind   Kind
	status int
}{
	{ErrNotFound, KindNotFound, http.StatusNotFound},
	{ErrInsufficientAvailability, KindInsufficientAvailability, http.StatusBadRequest},
	{ErrAlreadyReturned, KindAlreadyReturned, http.StatusBadRequest},
	{ErrServiceUnavailable, KindServiceUnavailable, http.StatusServiceUnavailable},
	{ErrInternalInconsistency, KindInternalInconsistency, http.StatusInternalServerError},
	{ErrInvalidArgument, KindInvalidArgument, http.StatusBadRequest},
	{ErrReservationClosed, KindReservationClosed, http.StatusConflict},
	{ErrDuplicateRequest, KindDuplicateRequest, http.StatusConflict},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	for _, e := range table {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// FromKind is the inverse of KindOf, used when decoding a remote error body.
func FromKind(k Kind) error {
	for _, e := range table {
		if e.kind == k {
			return e.err
		}
	}
	return nil
}

type Body struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
}

func WriteHTTP(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(Body{Error: KindOf(err), Message: err.Error()})
}
