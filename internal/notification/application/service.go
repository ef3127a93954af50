package application

import (
	"context"
	"fmt"
	"log/slog"

	jsoniter "github.com/json-iterator/go"

	loandomain "github.com/dmehra2102/university-lending/internal/loan/domain"
	"github.com/dmehra2102/university-lending/internal/notification/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Recipients interface {
	Email(ctx context.Context, studentID string) (string, error)
}

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Service struct {
	log        *slog.Logger
	recipients Recipients
	sender     Sender
}

func NewService(log *slog.Logger, recipients Recipients, sender Sender) *Service {
	return &Service{log: log, recipients: recipients, sender: sender}
}

// Notify resolves the student's address and hands the message to the sender.
func (s *Service) Notify(ctx context.Context, n domain.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	to, err := s.recipients.Email(ctx, n.StudentID)
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, to, domain.Subject, n.Message); err != nil {
		return fmt.Errorf("send to %s: %w", n.StudentID, err)
	}
	return nil
}

// HandleEvent turns a loan event into a notification. Event types it does
// not know are skipped.
func (s *Service) HandleEvent(ctx context.Context, eventType string, payload []byte) error {
	var n domain.Notification
	switch eventType {
	case loandomain.EventLoanCreated:
		var ev loandomain.LoanCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		n = domain.Notification{StudentID: ev.StudentID, Message: domain.LoanCreatedMessage(ev.ResourceID, ev.Quantity, ev.DueDate)}
	case loandomain.EventLoanReturned:
		var ev loandomain.LoanReturned
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", eventType, err)
		}
		n = domain.Notification{StudentID: ev.StudentID, Message: domain.LoanReturnedMessage(ev.ResourceID)}
	default:
		s.log.Debug("event type ignored", "event_type", eventType)
		return nil
	}
	return s.Notify(ctx, n)
}

// LogSender only logs. Real mail delivery is outside this service.
type LogSender struct {
	Log *slog.Logger
}

func (l LogSender) Send(_ context.Context, to, subject, body string) error {
	l.Log.Info("notification sent", "to", to, "subject", subject, "body", body)
	return nil
}
