// Package storage defines the persistence interfaces for source records, the publish
// outbox and run history.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/simgroup/internal/models"
)

// ErrNotFound is returned when a record or run does not exist.
var ErrNotFound = errors.New("not found")

// RecordStore persists the point-of-interest records that are grouped.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec *models.SourceRecord) error
	GetRecord(ctx context.Context, id string) (*models.SourceRecord, error)
	UpdateRecord(ctx context.Context, rec *models.SourceRecord) error
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context, offset, limit int) ([]*models.SourceRecord, error)
	UpsertRecords(ctx context.Context, recs []models.SourceRecord) error
	// FetchRecords returns every record ordered by id.
	FetchRecords(ctx context.Context) ([]models.SourceRecord, error)
	CountRecords(ctx context.Context) (int64, error)
}

// Outbox queues serialized publish envelopes for later relay.
type Outbox interface {
	EnqueueMessages(ctx context.Context, messageType string, payloads [][]byte) error
	PendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkSent(ctx context.Context, ids []int64) error
	CountPending(ctx context.Context) (int64, error)
}

// RunLog keeps a history of pipeline runs.
type RunLog interface {
	SaveRun(ctx context.Context, run *models.RunSummary) error
	LastRun(ctx context.Context) (*models.RunSummary, error)
}

// Storage combines all persistence operations.
type Storage interface {
	RecordStore
	Outbox
	RunLog
	Close() error
}
