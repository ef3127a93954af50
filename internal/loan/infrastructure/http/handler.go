package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/university-lending/internal/loan/application"
	"github.com/dmehra2102/university-lending/internal/loan/domain"
	orchestrator "github.com/dmehra2102/university-lending/internal/orchestrator/application"
	"github.com/dmehra2102/university-lending/pkg/apperr"
	"github.com/dmehra2102/university-lending/pkg/idempotency"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Handler struct {
	log    *slog.Logger
	loans  *application.Service
	coord  *orchestrator.Coordinator
	idem   idempotency.KeyStore
	tracer trace.Tracer
	now    func() time.Time
}

// NewHandler wires the loan routes. idem may be nil, in which case the
// Idempotency-Key header is ignored.
func NewHandler(log *slog.Logger, loans *application.Service, coord *orchestrator.Coordinator, idem idempotency.KeyStore) *Handler {
	return &Handler{
		log:    log,
		loans:  loans,
		coord:  coord,
		idem:   idem,
		tracer: otel.Tracer("loan-http"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type createLoanReq struct {
	StudentID  string `json:"student_id"`
	ResourceID int64  `json:"resource_id"`
	Quantity   int    `json:"quantity"`
}

type loanResp struct {
	ID         string     `json:"id"`
	StudentID  string     `json:"student_id"`
	ResourceID int64      `json:"resource_id"`
	Quantity   int        `json:"quantity"`
	LoanDate   time.Time  `json:"loan_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date"`
	Status     string     `json:"status"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", h.health)
	r.Group(func(r chi.Router) {
		if h.idem != nil {
			r.Use(idempotency.Middleware(h.log, h.idem, "loans"))
		}
		r.Post("/loans", h.createLoan)
	})
	r.Get("/loans", h.listLoans)
	r.Get("/loans/overdue", h.listOverdue)
	r.Get("/loans/{id}", h.getLoan)
	r.Put("/loans/{id}/return", h.returnLoan)
	r.Get("/loans/student/{studentID}", h.listByStudent)
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) createLoan(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "POST /loans")
	defer span.End()

	var req createLoanReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, fmt.Errorf("invalid body: %w", apperr.ErrInvalidArgument))
		return
	}

	loan, err := h.coord.CreateLoan(ctx, orchestrator.CreateLoanRequest{
		StudentID:  req.StudentID,
		ResourceID: req.ResourceID,
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResp(loan))
}

func (h *Handler) returnLoan(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "PUT /loans/{id}/return")
	defer span.End()

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("loan.id", id))

	loan, err := h.coord.ReturnLoan(ctx, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResp(loan))
}

func (h *Handler) getLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResp(loan))
}

func (h *Handler) listLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeList(w, loans)
}

func (h *Handler) listOverdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.Overdue(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeList(w, loans)
}

func (h *Handler) listByStudent(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.ListByStudent(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeList(w, loans)
}

func (h *Handler) writeList(w http.ResponseWriter, loans []domain.Loan) {
	out := make([]loanResp, 0, len(loans))
	for _, l := range loans {
		out = append(out, h.toResp(l))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		h.log.Error("request failed", "err", err)
	}
	apperr.WriteHTTP(w, err)
}

func (h *Handler) toResp(l domain.Loan) loanResp {
	return loanResp{
		ID:         l.ID,
		StudentID:  l.StudentID,
		ResourceID: l.ResourceID,
		Quantity:   l.Quantity,
		LoanDate:   l.LoanDate,
		DueDate:    l.DueDate,
		ReturnDate: l.ReturnDate,
		Status:     string(l.View(h.now())),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
