package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/university-lending/internal/notification/application"
	"github.com/dmehra2102/university-lending/internal/notification/domain"
	"github.com/dmehra2102/university-lending/pkg/apperr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("notification-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.health)
	r.Post("/notify", h.notify)
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "POST /notify")
	defer span.End()

	var n domain.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		apperr.WriteHTTP(w, fmt.Errorf("invalid body: %w", apperr.ErrInvalidArgument))
		return
	}
	if err := h.service.Notify(ctx, n); err != nil {
		if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
			h.log.Error("notify failed", "student_id", n.StudentID, "err", err)
		}
		apperr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "notification sent"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
