package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/university-lending/internal/notification/application"
	"github.com/dmehra2102/university-lending/pkg/idempotency"
	"github.com/dmehra2102/university-lending/pkg/outbox"
	"github.com/dmehra2102/university-lending/pkg/tracing"
)

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	log    *slog.Logger
	reader Reader
	svc    *application.Service
	idem   idempotency.Checker
	tracer trace.Tracer
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func NewConsumer(log *slog.Logger, reader Reader, svc *application.Service, idem idempotency.Checker) *Consumer {
	return &Consumer{
		log:    log,
		reader: reader,
		svc:    svc,
		idem:   idem,
		tracer: otel.Tracer("notification-consumer"),
	}
}

// Run consumes loan events until ctx is done. Delivery is best effort: a
// message whose notification fails is still committed. When the idempotency
// store is down messages are handled without the duplicate check.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	key := idempotency.MessageKey(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		c.log.Warn("idempotency check failed, handling anyway", "key", key, "err", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return
	}

	eventType := headerValue(msg.Headers, outbox.HeaderEventType)
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "Consume"+eventType, trace.WithAttributes(
		attribute.String("loan_id", string(msg.Key)),
	))
	defer span.End()

	if err := c.svc.HandleEvent(msgCtx, eventType, msg.Value); err != nil {
		span.RecordError(err)
		c.log.Error("notification failed", "loan_id", string(msg.Key), "event_type", eventType, "err", err)
		return
	}
	c.log.Info("event handled", "loan_id", string(msg.Key), "event_type", eventType)
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
