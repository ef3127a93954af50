package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/university-lending/internal/ledger/application"
	"github.com/dmehra2102/university-lending/internal/ledger/domain"
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
		tracer:  otel.Tracer("ledger-http"),
	}
}

type resourceResp struct {
	ID             int64  `json:"id"`
	Name           string `json:"name,omitempty"`
	Description    string `json:"description,omitempty"`
	Quantity       int    `json:"quantity"`
	LoanedQuantity int    `json:"loaned_quantity"`
	Available      int    `json:"available"`
	Status         string `json:"status"`
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.health)
	r.Get("/resources", h.listResources)
	r.Get("/resources/{id}", h.getResource)
	r.Put("/resources/{id}/status", h.updateStatus)
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) listResources(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListResources")
	defer span.End()

	list, err := h.service.List(ctx)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]resourceResp, 0, len(list))
	for _, res := range list {
		out = append(out, toResp(res.Availability(), res.Name, res.Description))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getResource(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetResource")
	defer span.End()

	id, err := resourceID(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	span.SetAttributes(attribute.Int64("resource.id", id))

	av, err := h.service.GetAvailability(ctx, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(av, "", ""))
}

// updateStatus moves a single unit: "prestado" takes one, "disponible"
// gives one back.
func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateResourceStatus")
	defer span.End()

	id, err := resourceID(r)
	if err != nil {
		h.fail(w, err)
		return
	}

	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, fmt.Errorf("invalid body: %w", apperr.ErrInvalidArgument))
		return
	}

	var av domain.Availability
	switch req.Status {
	case domain.WireBorrowed:
		av, err = h.service.ReserveUnits(ctx, id, 1, "")
	case domain.WireAvailable:
		av, err = h.service.ReleaseUnits(ctx, id, 1, "")
	default:
		err = fmt.Errorf("status %q: %w", req.Status, apperr.ErrInvalidArgument)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(av, "", ""))
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		h.log.Error("request failed", "err", err)
	}
	apperr.WriteHTTP(w, err)
}

func resourceID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("resource id %q: %w", chi.URLParam(r, "id"), apperr.ErrInvalidArgument)
	}
	return id, nil
}

func toResp(av domain.Availability, name, description string) resourceResp {
	return resourceResp{
		ID:             av.ResourceID,
		Name:           name,
		Description:    description,
		Quantity:       av.Quantity,
		LoanedQuantity: av.Loaned,
		Available:      av.Available,
		Status:         av.Status.Wire(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
