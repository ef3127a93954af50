package kafka

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns the producer the outbox relay publishes loan events with.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
}
