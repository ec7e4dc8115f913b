// Package publish delivers group assignments to downstream consumers in batched,
// typed JSON envelopes.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperjump/simgroup/internal/models"
)

// DefaultBatchSize is the number of assignments per message when none is configured.
const DefaultBatchSize = 50

// Message is the envelope every sink emits.
type Message struct {
	Type   string                   `json:"type"`
	Body   []models.GroupAssignment `json:"body"`
	SentAt time.Time                `json:"sent_at"`
}

// Encode returns the JSON form of a message of messageType carrying records.
func Encode(messageType string, records []models.GroupAssignment) ([]byte, error) {
	b, err := json.Marshal(Message{Type: messageType, Body: records, SentAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", messageType, err)
	}
	return b, nil
}

// Sink sends one message of assignments.
type Sink interface {
	Send(ctx context.Context, messageType string, records []models.GroupAssignment) error
	Close() error
}

// SendBatched splits records into consecutive batches of at most batchSize and sends
// each as its own message. It stops at the first failed batch and returns the number
// of batches sent. Nothing is sent for empty records.
func SendBatched(ctx context.Context, sink Sink, messageType string, records []models.GroupAssignment, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	sent := 0
	for start := 0; start < len(records); start += batchSize {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := sink.Send(ctx, messageType, records[start:end]); err != nil {
			return sent, fmt.Errorf("send batch %d (records %d-%d): %w", sent+1, start, end-1, err)
		}
		sent++
	}
	return sent, nil
}
