package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	loandomain "github.com/dmehra2102/university-lending/internal/loan/domain"
	"github.com/dmehra2102/university-lending/internal/orchestrator/domain"
	"github.com/dmehra2102/university-lending/pkg/apperr"
	"github.com/dmehra2102/university-lending/pkg/outbox"
	"github.com/dmehra2102/university-lending/pkg/tracing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const aggregateLoan = "loan"

type CreateLoanRequest struct {
	StudentID  string
	ResourceID int64
	Quantity   int
}

// Coordinator runs the create and return workflows across the student
// directory, the ledger and the loan store.
type Coordinator struct {
	log         *slog.Logger
	ledger      Ledger
	students    StudentDirectory
	store       LoanStore
	callTimeout time.Duration
	now         func() time.Time
	newID       func() string
	tracer      trace.Tracer
}

type Option func(*Coordinator)

func WithCallTimeout(d time.Duration) Option { return func(c *Coordinator) { c.callTimeout = d } }
func WithClock(now func() time.Time) Option  { return func(c *Coordinator) { c.now = now } }
func WithIDs(newID func() string) Option     { return func(c *Coordinator) { c.newID = newID } }

func NewCoordinator(log *slog.Logger, ledger Ledger, students StudentDirectory, store LoanStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		log:         log,
		ledger:      ledger,
		students:    students,
		store:       store,
		callTimeout: 3 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		tracer:      otel.Tracer("loan-orchestrator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateLoan verifies the student, reserves units under the loan id and
// persists the loan together with its LoanCreated event. A failure after the
// reservation releases it again before the error is returned.
func (c *Coordinator) CreateLoan(ctx context.Context, req CreateLoanRequest) (loandomain.Loan, error) {
	ctx, span := c.tracer.Start(ctx, "CreateLoan", trace.WithAttributes(
		attribute.String("student_id", req.StudentID),
		attribute.Int64("resource_id", req.ResourceID),
		attribute.Int("quantity", req.Quantity),
	))
	defer span.End()

	loan, err := c.createLoan(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return loandomain.Loan{}, err
	}
	span.SetAttributes(attribute.String("loan_id", loan.ID))
	return loan, nil
}

func (c *Coordinator) createLoan(ctx context.Context, req CreateLoanRequest) (loandomain.Loan, error) {
	if err := loandomain.ValidateRequest(req.StudentID, req.Quantity); err != nil {
		return loandomain.Loan{}, err
	}

	if err := c.call(ctx, func(ctx context.Context) error { return c.students.Verify(ctx, req.StudentID) }); err != nil {
		return loandomain.Loan{}, err
	}

	now := c.now()
	saga := domain.Saga{
		ID:         c.newID(),
		StudentID:  req.StudentID,
		ResourceID: req.ResourceID,
		Quantity:   req.Quantity,
		State:      domain.StateStarted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	log := c.log.With("loan_id", saga.ID, "resource_id", req.ResourceID)

	if err := c.call(ctx, func(ctx context.Context) error { return c.store.StartSaga(ctx, saga) }); err != nil {
		return loandomain.Loan{}, unavailable("record saga", err)
	}

	err := c.call(ctx, func(ctx context.Context) error {
		return c.ledger.Reserve(ctx, req.ResourceID, req.Quantity, saga.ID)
	})
	if err != nil {
		if definite(err) {
			c.transition(ctx, log, saga.ID, domain.StateStarted, domain.StateCompensated, err)
		} else {
			c.compensate(ctx, log, saga, domain.StateStarted, err)
		}
		return loandomain.Loan{}, err
	}

	err = c.call(ctx, func(ctx context.Context) error {
		return c.store.TransitionSaga(ctx, saga.ID, domain.StateStarted, domain.StateReserved, "")
	})
	if err != nil {
		if !errors.Is(err, domain.ErrStateChanged) {
			c.compensate(ctx, log, saga, domain.StateStarted, err)
		}
		return loandomain.Loan{}, unavailable("record reservation", err)
	}

	loan := loandomain.NewLoan(saga.ID, req.StudentID, req.ResourceID, req.Quantity, c.now())
	ev, err := c.event(ctx, loan.ID, loandomain.EventLoanCreated, loandomain.LoanCreated{
		LoanID:     loan.ID,
		StudentID:  loan.StudentID,
		ResourceID: loan.ResourceID,
		Quantity:   loan.Quantity,
		DueDate:    loan.DueDate,
	})
	if err == nil {
		err = c.call(ctx, func(ctx context.Context) error { return c.store.CompleteLoan(ctx, loan, ev) })
	}
	if err != nil {
		log.Error("persist loan failed, compensating", "err", err)
		if !errors.Is(err, domain.ErrStateChanged) {
			c.compensate(ctx, log, saga, domain.StateReserved, err)
		}
		return loandomain.Loan{}, unavailable("persist loan", err)
	}

	log.Info("loan created", "student_id", loan.StudentID, "quantity", loan.Quantity, "due_date", loan.DueDate)
	return loan, nil
}

// ReturnLoan releases the loan's units and marks it returned. If the release
// fails the loan stays active and the error is returned. The release is keyed
// by the loan id, so retrying a return never frees units twice.
func (c *Coordinator) ReturnLoan(ctx context.Context, id string) (loandomain.Loan, error) {
	ctx, span := c.tracer.Start(ctx, "ReturnLoan", trace.WithAttributes(attribute.String("loan_id", id)))
	defer span.End()

	loan, err := c.returnLoan(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return loandomain.Loan{}, err
	}
	return loan, nil
}

func (c *Coordinator) returnLoan(ctx context.Context, id string) (loandomain.Loan, error) {
	var loan loandomain.Loan
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		loan, err = c.store.GetLoan(ctx, id)
		return err
	})
	if err != nil {
		return loandomain.Loan{}, err
	}

	returned, err := loan.Returned(c.now())
	if err != nil {
		return loandomain.Loan{}, err
	}
	log := c.log.With("loan_id", id, "resource_id", loan.ResourceID)

	err = c.call(ctx, func(ctx context.Context) error {
		return c.ledger.Release(ctx, loan.ResourceID, loan.Quantity, loan.ID)
	})
	if err != nil {
		log.Error("release failed, loan stays active", "err", err)
		return loandomain.Loan{}, err
	}

	ev, err := c.event(ctx, loan.ID, loandomain.EventLoanReturned, loandomain.LoanReturned{
		LoanID:     loan.ID,
		StudentID:  loan.StudentID,
		ResourceID: loan.ResourceID,
		Quantity:   loan.Quantity,
		ReturnDate: *returned.ReturnDate,
	})
	if err == nil {
		err = c.call(ctx, func(ctx context.Context) error { return c.store.MarkReturned(ctx, returned, ev) })
	}
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyReturned) {
			return loandomain.Loan{}, err
		}
		log.Error("mark returned failed after release", "err", err)
		return loandomain.Loan{}, unavailable("mark loan returned", err)
	}

	log.Info("loan returned", "quantity", loan.Quantity)
	return returned, nil
}

// compensate gives back the units held under saga.ID. If the release fails
// the saga is left compensating for the reconciler to finish.
func (c *Coordinator) compensate(ctx context.Context, log *slog.Logger, saga domain.Saga, from domain.SagaState, cause error) {
	if !c.transition(ctx, log, saga.ID, from, domain.StateCompensating, cause) {
		return
	}
	err := c.call(ctx, func(ctx context.Context) error {
		return releaseReservation(ctx, c.ledger, saga)
	})
	if err != nil {
		log.Error("compensation release failed, left for reconciler", "err", err)
		return
	}
	c.transition(ctx, log, saga.ID, domain.StateCompensating, domain.StateCompensated, cause)
	log.Info("reservation compensated", "quantity", saga.Quantity)
}

func (c *Coordinator) transition(ctx context.Context, log *slog.Logger, id string, from, to domain.SagaState, cause error) bool {
	var msg string
	if cause != nil {
		msg = cause.Error()
	}
	err := c.call(ctx, func(ctx context.Context) error { return c.store.TransitionSaga(ctx, id, from, to, msg) })
	if err != nil {
		log.Warn("saga transition failed", "from", from, "to", to, "err", err)
		return false
	}
	return true
}

func (c *Coordinator) event(ctx context.Context, loanID, typ string, payload any) (outbox.Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: aggregateLoan,
		AggregateID:   loanID,
		Type:          typ,
		Payload:       b,
		Headers:       map[string]string{outbox.HeaderSource: "loan-service"},
		Traceparent:   tracing.Traceparent(ctx),
		CreatedAt:     c.now(),
	}, nil
}

// call runs one step detached from the caller's cancellation and bounded by
// the call timeout, so a client hanging up cannot stop a saga halfway.
func (c *Coordinator) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
	defer cancel()
	err := fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperr.ErrServiceUnavailable) {
		return fmt.Errorf("%w: %w", err, apperr.ErrServiceUnavailable)
	}
	return err
}

// definite reports whether a failed reserve certainly took no units.
func definite(err error) bool {
	return errors.Is(err, apperr.ErrInsufficientAvailability) ||
		errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrInvalidArgument) ||
		errors.Is(err, apperr.ErrReservationClosed)
}

func unavailable(step string, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%s: %w: %w", step, err, apperr.ErrServiceUnavailable)
}
