package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/simgroup/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_CRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	rec := &models.SourceRecord{
		ID:         "poi-1",
		Name:       "Louvre",
		City:       "Paris",
		Attributes: map[string]string{"country": "FR"},
	}
	if err := store.CreateRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetRecord(ctx, "poi-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Louvre" || got.City != "Paris" || got.Attributes["country"] != "FR" {
		t.Errorf("got %+v", got)
	}

	rec.Description = "Art museum"
	if err := store.UpdateRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetRecord(ctx, "poi-1")
	if got.Description != "Art museum" {
		t.Errorf("expected updated description, got %q", got.Description)
	}

	list, err := store.ListRecords(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 record, got %d", len(list))
	}

	if err := store.DeleteRecord(ctx, "poi-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetRecord(ctx, "poi-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.UpdateRecord(ctx, rec); !errors.Is(err, ErrNotFound) {
		t.Errorf("update of missing record: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_UpsertAndFetch(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	recs := []models.SourceRecord{
		{ID: "b", Name: "Big Ben"},
		{ID: "a", Name: "Arc de Triomphe"},
	}
	if err := store.UpsertRecords(ctx, recs); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertRecords(ctx, []models.SourceRecord{{ID: "b", Name: "Elizabeth Tower"}}); err != nil {
		t.Fatal(err)
	}

	all, err := store.FetchRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
	if all[0].ID != "a" || all[1].ID != "b" {
		t.Errorf("records should be ordered by id, got %s, %s", all[0].ID, all[1].ID)
	}
	if all[1].Name != "Elizabeth Tower" {
		t.Errorf("upsert should replace name, got %q", all[1].Name)
	}

	n, err := store.CountRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountRecords = %d, want 2", n)
	}
}

func TestSQLiteStorage_Outbox(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	payloads := [][]byte{[]byte(`{"n":1}`), []byte(`{"n":2}`), []byte(`{"n":3}`)}
	if err := store.EnqueueMessages(ctx, "similarity", payloads); err != nil {
		t.Fatal(err)
	}

	pending, err := store.PendingMessages(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending with limit, got %d", len(pending))
	}
	if string(pending[0].Payload) != `{"n":1}` || pending[0].MessageType != "similarity" {
		t.Errorf("unexpected first message: %+v", pending[0])
	}

	if err := store.MarkSent(ctx, []int64{pending[0].ID, pending[1].ID}); err != nil {
		t.Fatal(err)
	}
	count, err := store.CountPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("CountPending = %d, want 1", count)
	}
	if err := store.MarkSent(ctx, nil); err != nil {
		t.Errorf("MarkSent with no ids should be a no-op: %v", err)
	}
}

func TestSQLiteStorage_Runs(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if _, err := store.LastRun(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no runs, got %v", err)
	}

	start := time.Now().Add(-time.Minute)
	runs := []*models.RunSummary{
		{ID: "r1", Status: 500, Message: "failed", Details: "boom", Threshold: 0.65, StartedAt: start},
		{ID: "r2", Status: 200, Message: "ok", Items: 10, Pairs: 45, Groups: 2, Assigned: 5, Threshold: 0.65,
			StartedAt: start.Add(30 * time.Second), DurationMS: 12},
	}
	for _, r := range runs {
		if err := store.SaveRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	last, err := store.LastRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last.ID != "r2" || last.Pairs != 45 || last.Assigned != 5 || !last.Succeeded() {
		t.Errorf("unexpected last run: %+v", last)
	}
}
