package pipeline

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/simgroup/internal/config"
	"github.com/hyperjump/simgroup/internal/embedding"
	"github.com/hyperjump/simgroup/internal/grouping"
	"github.com/hyperjump/simgroup/internal/models"
	"github.com/hyperjump/simgroup/internal/storage"
	"github.com/hyperjump/simgroup/internal/vector"
)

type staticSource struct {
	records []models.SourceRecord
	err     error
	block   chan struct{}
}

func (s *staticSource) Fetch(ctx context.Context) ([]models.SourceRecord, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.records, s.err
}

type memorySink struct {
	mu      sync.Mutex
	batches [][]models.GroupAssignment
	err     error
}

func (s *memorySink) Send(_ context.Context, _ string, records []models.GroupAssignment) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, records)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) all() []models.GroupAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GroupAssignment
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

type failingEmbedder struct{ embedding.Embedder }

func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model not loaded")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Publish.BatchSize = 2
	return cfg
}

func attractions() []models.SourceRecord {
	return []models.SourceRecord{
		{ID: "eiffel-1", Name: "Eiffel Tower", City: "Paris", Category: "Landmark"},
		{ID: "eiffel-2", Name: "Eiffel Tower", City: "Paris", Category: "Landmark", Description: "  "},
		{ID: "empty"},
		{ID: "sushi", Name: "Sukiyabashi Jiro", City: "Tokyo", Category: "Restaurant"},
	}
}

func newTestPipeline(src *staticSource, sink *memorySink, emb embedding.Embedder, opts ...Option) *Pipeline {
	engine := grouping.NewEngine(grouping.WithTokenGenerator(&grouping.SequenceGenerator{Prefix: "grp"}))
	opts = append([]Option{WithEngine(engine)}, opts...)
	return New(src, emb, sink, testConfig(), opts...)
}

func TestPipeline_Run_Success(t *testing.T) {
	sink := &memorySink{}
	p := newTestPipeline(&staticSource{records: attractions()}, sink, embedding.NewHashingEmbedder(256))

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != http.StatusOK || res.Message != MessageSuccess || !res.Succeeded() {
		t.Errorf("status = %d %q, want 200 %q", res.Status, res.Message, MessageSuccess)
	}
	if res.ID == "" {
		t.Error("successful run should have an id")
	}
	counts := []struct {
		name      string
		got, want int
	}{
		{"items", res.Items, 3},
		{"dropped", res.Dropped, 1},
		{"pairs", res.Pairs, 3},
		{"groups", res.Groups, 1},
		{"assigned", res.Assigned, 2},
		{"batches", res.Batches, 1},
	}
	for _, c := range counts {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	got := sink.all()
	if len(got) != 2 {
		t.Fatalf("published %d assignments, want 2", len(got))
	}
	if got[0].ID != "eiffel-1" || got[1].ID != "eiffel-2" {
		t.Errorf("published ids = %s, %s; want eiffel-1, eiffel-2", got[0].ID, got[1].ID)
	}
	if got[0].GroupID != got[1].GroupID {
		t.Errorf("duplicates landed in different groups: %q and %q", got[0].GroupID, got[1].GroupID)
	}
}

// assertFailed checks a failed run reports a 500 and published nothing.
func assertFailed(t *testing.T, res *RunResult, err error, sink *memorySink, detail string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	if res == nil {
		t.Fatal("failed run should still return a result")
	}
	if res.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", res.Status)
	}
	if detail != "" && !strings.Contains(res.Details, detail) {
		t.Errorf("details = %q, want it to mention %q", res.Details, detail)
	}
	if sink != nil && len(sink.all()) != 0 {
		t.Errorf("failed run published %d assignments", len(sink.all()))
	}
}

func TestPipeline_Run_SourceFailurePublishesNothing(t *testing.T) {
	sink := &memorySink{}
	p := newTestPipeline(&staticSource{err: errors.New("db down")}, sink, embedding.NewHashingEmbedder(16))

	res, err := p.Run(context.Background())
	assertFailed(t, res, err, sink, "db down")
	if res.Message != MessageFailure {
		t.Errorf("message = %q, want %q", res.Message, MessageFailure)
	}
}

func TestPipeline_Run_EmbedFailurePublishesNothing(t *testing.T) {
	sink := &memorySink{}
	p := newTestPipeline(&staticSource{records: attractions()}, sink, failingEmbedder{})

	res, err := p.Run(context.Background())
	assertFailed(t, res, err, sink, "model not loaded")
}

func TestPipeline_Run_DimensionMismatchPublishesNothing(t *testing.T) {
	sink := &memorySink{}
	engine := grouping.NewEngine()
	p := New(&staticSource{records: attractions()}, mixedEmbedder{}, sink, testConfig(), WithEngine(engine))

	res, err := p.Run(context.Background())
	assertFailed(t, res, err, sink, "")
	if !errors.Is(err, grouping.ErrDimensionMismatch) {
		t.Errorf("error = %v, want ErrDimensionMismatch", err)
	}
}

type mixedEmbedder struct{ embedding.Embedder }

func (mixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 2+i)
		out[i][0] = 1
	}
	return out, nil
}

func TestPipeline_Run_PublishFailure(t *testing.T) {
	sink := &memorySink{err: errors.New("queue full")}
	p := newTestPipeline(&staticSource{records: attractions()}, sink, embedding.NewHashingEmbedder(256))

	res, err := p.Run(context.Background())
	assertFailed(t, res, err, nil, "queue full")
}

func TestPipeline_Run_Empty(t *testing.T) {
	sink := &memorySink{}
	p := newTestPipeline(&staticSource{}, sink, embedding.NewHashingEmbedder(16))

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != http.StatusOK || res.Items != 0 || res.Batches != 0 {
		t.Errorf("empty run = %+v, want 200 with no items or batches", res.RunSummary)
	}
	if len(sink.all()) != 0 {
		t.Errorf("empty run published %v", sink.all())
	}
}

func TestPipeline_Run_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Grouping.RunTimeout = 20 * time.Millisecond
	src := &staticSource{block: make(chan struct{})}
	p := New(src, embedding.NewHashingEmbedder(16), &memorySink{}, cfg)

	res, err := p.Run(context.Background())
	assertFailed(t, res, err, nil, "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPipeline_Run_InProgress(t *testing.T) {
	src := &staticSource{block: make(chan struct{})}
	p := New(src, embedding.NewHashingEmbedder(16), &memorySink{}, testConfig())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Run(context.Background())
	}()

	waitFor(t, func() bool {
		if p.mu.TryLock() {
			p.mu.Unlock()
			return false
		}
		return true
	})

	res, err := p.Run(context.Background())
	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("error = %v, want ErrRunInProgress", err)
	}
	if res == nil {
		t.Fatal("rejected run should still return a result")
	}
	if res.Status != http.StatusConflict || res.ID != "" {
		t.Errorf("rejected run = status %d id %q, want 409 without an id", res.Status, res.ID)
	}

	close(src.block)
	<-done
}

func TestPipeline_RunLogAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	snapshot := filepath.Join(dir, "vectors", "last.bin")

	p := newTestPipeline(&staticSource{records: attractions()}, &memorySink{}, embedding.NewHashingEmbedder(32),
		WithRunLog(store), WithSnapshot(snapshot))

	if _, err := p.LastRun(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("LastRun before any run: error = %v, want ErrNotFound", err)
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	last, err := store.LastRun(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if last.ID != res.ID || last.Status != http.StatusOK {
		t.Errorf("stored run = %s %d, want %s 200", last.ID, last.Status, res.ID)
	}

	fromPipeline, err := p.LastRun(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if fromPipeline.ID != res.ID {
		t.Errorf("LastRun().ID = %s, want %s", fromPipeline.ID, res.ID)
	}

	vs, err := vector.NewStore(0)
	if err != nil {
		t.Fatal(err)
	}
	if err := vs.Load(snapshot); err != nil {
		t.Fatal(err)
	}
	if vs.Size() != 3 || vs.Dimensions() != 32 {
		t.Errorf("snapshot has %d vectors of %d dims, want 3 of 32", vs.Size(), vs.Dimensions())
	}
}
