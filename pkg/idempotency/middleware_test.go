package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmehra2102/university-lending/pkg/logging"
)

type memChecker struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (m *memChecker) Seen(_ context.Context, key string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	seen := m.keys[key]
	m.keys[key] = true
	return seen, nil
}

func (m *memChecker) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func serve(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/loans", nil)
	if key != "" {
		req.Header.Set(Header, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})
	h := Middleware(logging.Discard(), &memChecker{}, "loans")(next)

	assert.Equal(t, http.StatusCreated, serve(h, "abc").Code)

	rec := serve(h, "abc")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate_request"`)

	assert.Equal(t, http.StatusCreated, serve(h, "").Code)
	assert.Equal(t, http.StatusCreated, serve(h, "").Code)
	assert.Equal(t, 3, calls)
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	status := http.StatusServiceUnavailable
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	})
	h := Middleware(logging.Discard(), &memChecker{}, "loans")(next)

	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "abc").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "abc").Code, "retry after 5xx is not a duplicate")

	status = http.StatusOK
	assert.Equal(t, http.StatusOK, serve(h, "abc").Code)
	assert.Equal(t, http.StatusConflict, serve(h, "abc").Code)
}

func TestMiddleware_ClientErrorKeepsKey(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	h := Middleware(logging.Discard(), &memChecker{}, "loans")(next)

	assert.Equal(t, http.StatusBadRequest, serve(h, "abc").Code)
	assert.Equal(t, http.StatusConflict, serve(h, "abc").Code)
}

func TestMiddleware_StoreErrorPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	h := Middleware(logging.Discard(), &memChecker{err: errors.New("redis down")}, "loans")(next)

	assert.Equal(t, http.StatusCreated, serve(h, "abc").Code)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "idem:loan.events:2:41", MessageKey("loan.events", 2, 41))
	assert.Equal(t, "idem:http:loans:abc", RequestKey("loans", "abc"))
}
