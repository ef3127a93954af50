package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmehra2102/university-lending/pkg/apperr"
)

const Header = "Idempotency-Key"

// KeyStore claims request keys and can give a claim back.
type KeyStore interface {
	Checker
	Forget(ctx context.Context, key string) error
}

// Middleware rejects a request whose Idempotency-Key was already used within
// the store TTL. Requests without the header pass through. A store error is
// logged and the request proceeds, since the key is optional to begin with.
// A 5xx response gives the key back so the client can retry with it.
func Middleware(log *slog.Logger, s KeyStore, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			storeKey := RequestKey(scope, key)
			seen, err := s.Seen(r.Context(), storeKey)
			if err != nil {
				log.Warn("idempotency check failed", "key", key, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if seen {
				apperr.WriteHTTP(w, fmt.Errorf("idempotency key %q already used: %w", key, apperr.ErrDuplicateRequest))
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() < http.StatusInternalServerError {
				return
			}
			if err := s.Forget(context.WithoutCancel(r.Context()), storeKey); err != nil {
				log.Warn("idempotency key release failed", "key", key, "err", err)
			}
		})
	}
}
