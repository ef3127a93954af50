package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerapp "github.com/dmehra2102/university-lending/internal/ledger/application"
	ledgerdomain "github.com/dmehra2102/university-lending/internal/ledger/domain"
	ledgermem "github.com/dmehra2102/university-lending/internal/ledger/infrastructure/memory"
	"github.com/dmehra2102/university-lending/internal/loan/application"
	"github.com/dmehra2102/university-lending/internal/loan/domain"
	"github.com/dmehra2102/university-lending/internal/loan/infrastructure/memory"
	orchestrator "github.com/dmehra2102/university-lending/internal/orchestrator/application"
	"github.com/dmehra2102/university-lending/pkg/apperr"
	"github.com/dmehra2102/university-lending/pkg/idempotency"
	"github.com/dmehra2102/university-lending/pkg/logging"
	"github.com/dmehra2102/university-lending/pkg/outbox"
)

type ledger struct{ svc *ledgerapp.Service }

func (l ledger) Reserve(ctx context.Context, id int64, qty int, key string) error {
	_, err := l.svc.ReserveUnits(ctx, id, qty, key)
	return err
}

func (l ledger) Release(ctx context.Context, id int64, qty int, key string) error {
	_, err := l.svc.ReleaseUnits(ctx, id, qty, key)
	return err
}

type students map[string]bool

func (s students) Verify(_ context.Context, id string) error {
	if !s[id] {
		return fmt.Errorf("student %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

type seenOnce map[string]bool

func (s seenOnce) Seen(_ context.Context, key string) (bool, error) {
	seen := s[key]
	s[key] = true
	return seen, nil
}

func (s seenOnce) Forget(_ context.Context, key string) error {
	delete(s, key)
	return nil
}

func newTestServer(t *testing.T, idem idempotency.KeyStore) (*httptest.Server, *ledgerapp.Service) {
	t.Helper()
	ledgerSvc := ledgerapp.NewService(logging.Discard(), ledgermem.NewRepository(ledgerdomain.Resource{ID: 1, Quantity: 5}))
	store := memory.NewStore(outbox.NewMemoryStore(3))
	coord := orchestrator.NewCoordinator(logging.Discard(), ledger{ledgerSvc}, students{"A2023001": true, "A2023002": true}, store)
	h := NewHandler(logging.Discard(), application.NewService(store), coord, idem)

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv, ledgerSvc
}

func do(t *testing.T, method, url, body string, headers ...string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func errorKind(t *testing.T, body []byte) apperr.Kind {
	t.Helper()
	var e apperr.Body
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Error
}

func TestHandler_LoanLifecycle(t *testing.T) {
	srv, ledgerSvc := newTestServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/loans", `{"student_id":"A2023001","resource_id":1,"quantity":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var created loanResp
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "active", created.Status)
	assert.Equal(t, 3, created.Quantity)
	assert.Nil(t, created.ReturnDate)
	assert.WithinDuration(t, created.LoanDate.Add(7*24*time.Hour), created.DueDate, time.Second)

	resp, body = do(t, http.MethodPost, srv.URL+"/loans", `{"student_id":"A2023002","resource_id":1,"quantity":3}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.KindInsufficientAvailability, errorKind(t, body))

	resp, body = do(t, http.MethodGet, srv.URL+"/loans/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got loanResp
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, created.ID, got.ID)

	resp, body = do(t, http.MethodPut, srv.URL+"/loans/"+created.ID+"/return", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var returned loanResp
	require.NoError(t, json.Unmarshal(body, &returned))
	assert.Equal(t, "returned", returned.Status)
	assert.NotNil(t, returned.ReturnDate)

	av, err := ledgerSvc.GetAvailability(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, av.Loaned)

	resp, body = do(t, http.MethodPut, srv.URL+"/loans/"+created.ID+"/return", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.KindAlreadyReturned, errorKind(t, body))
}

func TestHandler_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := do(t, http.MethodPut, srv.URL+"/loans/nope/return", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperr.KindNotFound, errorKind(t, body))

	resp, _ = do(t, http.MethodGet, srv.URL+"/loans/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodPost, srv.URL+"/loans", `{"student_id":"Z0","resource_id":1,"quantity":1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperr.KindNotFound, errorKind(t, body))
}

func TestHandler_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/loans", `{"student_id":"A2023001","resource_id":1,"quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.KindInvalidArgument, errorKind(t, body))

	resp, _ = do(t, http.MethodPost, srv.URL+"/loans", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_OversizeQuantityIsRejected(t *testing.T) {
	srv, ledgerSvc := newTestServer(t, nil)

	resp, body := do(t, http.MethodPost, srv.URL+"/loans", `{"student_id":"A2023001","resource_id":1,"quantity":4294967299}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.KindInvalidArgument, errorKind(t, body))

	av, err := ledgerSvc.GetAvailability(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, av.Loaned)

	resp, body = do(t, http.MethodGet, srv.URL+"/loans", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestHandler_ListLoans(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, student := range []string{"A2023001", "A2023002", "A2023001"} {
		resp, _ := do(t, http.MethodPost, srv.URL+"/loans", `{"student_id":"`+student+`","resource_id":1,"quantity":1}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/loans", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []loanResp
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, 3)

	resp, body = do(t, http.MethodGet, srv.URL+"/loans/student/A2023001", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mine []loanResp
	require.NoError(t, json.Unmarshal(body, &mine))
	assert.Len(t, mine, 2)
	for _, l := range mine {
		assert.Equal(t, "A2023001", l.StudentID)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/loans/student/nobody", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}

func TestHandler_IdempotencyKey(t *testing.T) {
	srv, ledgerSvc := newTestServer(t, seenOnce{})
	body := `{"student_id":"A2023001","resource_id":1,"quantity":1}`

	resp, _ := do(t, http.MethodPost, srv.URL+"/loans", body, idempotency.Header, "k1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw := do(t, http.MethodPost, srv.URL+"/loans", body, idempotency.Header, "k1")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, apperr.KindDuplicateRequest, errorKind(t, raw))

	av, err := ledgerSvc.GetAvailability(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, av.Loaned)
}

func TestHandler_OverdueIsComputedOnRead(t *testing.T) {
	loan := domain.NewLoan("l1", "A2023001", 1, 1, time.Now())
	h := &Handler{now: func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }}

	assert.Equal(t, "overdue", h.toResp(loan).Status)

	returned, err := loan.Returned(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "returned", h.toResp(returned).Status)
}

func TestHandler_ListOverdueEmpty(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, _ := do(t, http.MethodPost, srv.URL+"/loans", `{"student_id":"A2023001","resource_id":1,"quantity":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/loans/overdue", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))
}
