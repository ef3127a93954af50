package outbox

import "time"

// Kafka header keys set on every relayed loan event.
const (
	HeaderEventType = "event_type"
	HeaderSource    = "source"
)

type Status string

// An event moves pending -> in_progress -> sent. A failed dispatch puts it
// back to pending until the store's retry limit parks it as failed.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is one row of the outbox, written in the same transaction as the
// loan change it announces.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string // loan id, also the Kafka message key
	Type          string // LoanCreated or LoanReturned
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string // relay holding the lease while in_progress
	RetryCount    int
	LastError     *string
}
