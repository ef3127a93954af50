package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_WrappedErrors(t *testing.T) {
	err := fmt.Errorf("resource 7: %w", ErrInsufficientAvailability)

	assert.Equal(t, KindInsufficientAvailability, KindOf(err))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestKindOf_Unknown(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestHTTPStatus_Table(t *testing.T) {
	cases := map[error]int{
		ErrNotFound:              http.StatusNotFound,
		ErrAlreadyReturned:       http.StatusBadRequest,
		ErrServiceUnavailable:    http.StatusServiceUnavailable,
		ErrInternalInconsistency: http.StatusInternalServerError,
		ErrReservationClosed:     http.StatusConflict,
		ErrDuplicateRequest:      http.StatusConflict,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestFromKind_RoundTrip(t *testing.T) {
	assert.Equal(t, ErrNotFound, FromKind(KindOf(ErrNotFound)))
	assert.Nil(t, FromKind("nope"))
}

func TestWriteHTTP(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteHTTP(rec, fmt.Errorf("loan x: %w", ErrNotFound))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body Body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, KindNotFound, body.Error)
	assert.Equal(t, "loan x: not found", body.Message)
}
