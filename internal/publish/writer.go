package publish

import (
	"context"
	"io"
	"sync"

	"github.com/hyperjump/simgroup/internal/models"
)

// WriterSink writes one envelope per line (NDJSON).
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Send(_ context.Context, messageType string, records []models.GroupAssignment) error {
	payload, err := Encode(messageType, records)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(payload, '\n'))
	return err
}

func (s *WriterSink) Close() error { return nil }
