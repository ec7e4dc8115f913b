package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/simgroup/internal/models"
	"github.com/hyperjump/simgroup/internal/storage"
)

// OutboxSink stores envelopes in the database for a later Relay.
type OutboxSink struct {
	outbox storage.Outbox
}

// NewOutboxSink returns a sink writing to outbox.
func NewOutboxSink(outbox storage.Outbox) *OutboxSink {
	return &OutboxSink{outbox: outbox}
}

func (s *OutboxSink) Send(ctx context.Context, messageType string, records []models.GroupAssignment) error {
	payload, err := Encode(messageType, records)
	if err != nil {
		return err
	}
	if err := s.outbox.EnqueueMessages(ctx, messageType, [][]byte{payload}); err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

func (s *OutboxSink) Close() error { return nil }

// Relay forwards up to limit pending outbox messages to sink, oldest first, marking each
// one sent as soon as it is delivered. It returns the number relayed.
func Relay(ctx context.Context, outbox storage.Outbox, sink Sink, limit int) (int, error) {
	msgs, err := outbox.PendingMessages(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("load pending messages: %w", err)
	}
	relayed := 0
	for _, m := range msgs {
		var env Message
		if err := json.Unmarshal(m.Payload, &env); err != nil {
			return relayed, fmt.Errorf("decode outbox message %d: %w", m.ID, err)
		}
		if err := sink.Send(ctx, m.MessageType, env.Body); err != nil {
			return relayed, fmt.Errorf("relay outbox message %d: %w", m.ID, err)
		}
		if err := outbox.MarkSent(ctx, []int64{m.ID}); err != nil {
			return relayed, fmt.Errorf("mark outbox message %d sent: %w", m.ID, err)
		}
		relayed++
	}
	return relayed, nil
}
