package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/university-lending/internal/notification/application"
	"github.com/dmehra2102/university-lending/pkg/logging"
	"github.com/dmehra2102/university-lending/pkg/outbox"
)

// fakeReader serves msgs then blocks until ctx is cancelled.
type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type memChecker struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (m *memChecker) Seen(_ context.Context, key string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.seen[key]
	m.seen[key] = true
	return s, nil
}

type emails map[string]string

func (e emails) Email(_ context.Context, id string) (string, error) { return e[id], nil }

type countingSender struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
	want  int
}

func (s *countingSender) Send(context.Context, string, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if s.count == s.want {
		close(s.done)
	}
	return nil
}

func message(offset int64, eventType, payload string) kafka.Message {
	return kafka.Message{
		Topic:   "loan.events",
		Offset:  offset,
		Key:     []byte("l1"),
		Value:   []byte(payload),
		Headers: []kafka.Header{{Key: outbox.HeaderEventType, Value: []byte(eventType)}},
	}
}

func TestConsumer_HandlesEachMessageOnce(t *testing.T) {
	created := `{"loan_id":"l1","student_id":"A2023001","resource_id":1,"quantity":1,"due_date":"2026-10-22T00:00:00Z"}`
	reader := &fakeReader{msgs: []kafka.Message{
		message(1, "LoanCreated", created),
		message(1, "LoanCreated", created),
		message(2, "LoanReturned", `{"loan_id":"l1","student_id":"A2023001","resource_id":1,"quantity":1}`),
		message(3, "LoanCreated", `{`),
	}}
	sender := &countingSender{done: make(chan struct{}), want: 2}
	svc := application.NewService(logging.Discard(), emails{"A2023001": "a@uni.edu"}, sender)
	c := NewConsumer(logging.Discard(), reader, svc, &memChecker{seen: map[string]bool{}})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	<-sender.done
	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, 2, sender.count)
	assert.Equal(t, []int64{1, 1, 2, 3}, reader.committed)
	assert.True(t, reader.closed)
}

func TestConsumer_IdempotencyStoreDownStillNotifies(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(1, "LoanCreated", `{"loan_id":"l1","student_id":"A2023001","resource_id":1,"quantity":1,"due_date":"2026-10-22T00:00:00Z"}`),
		message(2, "LoanReturned", `{"loan_id":"l1","student_id":"A2023001","resource_id":1,"quantity":1}`),
	}}
	sender := &countingSender{done: make(chan struct{}), want: 2}
	svc := application.NewService(logging.Discard(), emails{"A2023001": "a@uni.edu"}, sender)
	c := NewConsumer(logging.Discard(), reader, svc, &memChecker{err: errors.New("redis down")})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	<-sender.done
	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, 2, sender.count)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}
