// Package pipeline runs one end-to-end similarity update: fetch records, build text,
// embed, group and publish the assignments.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/simgroup/internal/config"
	"github.com/hyperjump/simgroup/internal/embedding"
	"github.com/hyperjump/simgroup/internal/grouping"
	"github.com/hyperjump/simgroup/internal/models"
	"github.com/hyperjump/simgroup/internal/preprocess"
	"github.com/hyperjump/simgroup/internal/publish"
	"github.com/hyperjump/simgroup/internal/source"
	"github.com/hyperjump/simgroup/internal/storage"
	"github.com/hyperjump/simgroup/internal/vector"
)

// Caller-visible run outcomes.
const (
	MessageSuccess = "updates were successfully sent to queue"
	MessageFailure = "Unable to compute similarity data"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("a similarity run is already in progress")

// RunResult is the outcome of one run. On failure Status is 500 and Details holds the cause.
type RunResult struct {
	models.RunSummary
	Dropped  int           `json:"dropped"`
	Batches  int           `json:"batches"`
	Duration time.Duration `json:"-"`
}

// Pipeline wires a source, an embedder, the grouping engine and a sink.
type Pipeline struct {
	source   source.Source
	embedder embedding.Embedder
	engine   *grouping.Engine
	sink     publish.Sink

	threshold   float64
	textFields  []string
	messageType string
	batchSize   int
	timeout     time.Duration

	runs         storage.RunLog
	snapshotPath string
	logger       *zap.Logger

	mu     sync.Mutex
	lastMu sync.RWMutex
	last   *RunResult
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for stage timings and dropped records.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRunLog records every run summary in runs.
func WithRunLog(runs storage.RunLog) Option {
	return func(p *Pipeline) { p.runs = runs }
}

// WithSnapshot writes the embeddings of each successful run to path.
func WithSnapshot(path string) Option {
	return func(p *Pipeline) { p.snapshotPath = path }
}

// WithEngine replaces the default grouping engine.
func WithEngine(e *grouping.Engine) Option {
	return func(p *Pipeline) { p.engine = e }
}

// New creates a pipeline. Threshold, text fields, message type, batch size and run timeout
// come from cfg.
func New(src source.Source, emb embedding.Embedder, sink publish.Sink, cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:      src,
		embedder:    emb,
		sink:        sink,
		threshold:   cfg.Grouping.ThresholdOrDefault(),
		textFields:  cfg.Source.TextFields,
		messageType: cfg.Publish.MessageType,
		batchSize:   cfg.Publish.BatchSize,
		timeout:     cfg.Grouping.RunTimeout,
		logger:      zap.NewNop(),
	}
	if p.messageType == "" {
		p.messageType = "similarity"
	}
	if p.batchSize <= 0 {
		p.batchSize = publish.DefaultBatchSize
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.engine == nil {
		p.engine = grouping.NewEngine(
			grouping.WithScorer(grouping.NewCosineScorer(cfg.Grouping.Workers)),
			grouping.WithLogger(p.logger),
		)
	}
	return p
}

// Run executes one update. It always returns a non-nil RunResult; err is non-nil exactly
// when the result has a failure status. Nothing is published unless grouping succeeded.
// While another run is active it returns a 409 result with ErrRunInProgress; that
// result has no ID and is not recorded.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	if !p.mu.TryLock() {
		return &RunResult{RunSummary: models.RunSummary{
			Status:    http.StatusConflict,
			Message:   ErrRunInProgress.Error(),
			Threshold: p.threshold,
			StartedAt: time.Now(),
		}}, ErrRunInProgress
	}
	defer p.mu.Unlock()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res := &RunResult{RunSummary: models.RunSummary{
		ID:        uuid.New().String(),
		Threshold: p.threshold,
		StartedAt: time.Now(),
	}}
	log := p.logger.With(zap.String("run_id", res.ID))
	log.Info("similarity run started", zap.Float64("threshold", p.threshold))

	err := p.run(ctx, res, log)
	res.Duration = time.Since(res.StartedAt)
	res.DurationMS = res.Duration.Milliseconds()
	if err != nil {
		res.Status = http.StatusInternalServerError
		res.Message = MessageFailure
		res.Details = err.Error()
		log.Error("similarity run failed", zap.Error(err), zap.Duration("elapsed", res.Duration))
	} else {
		res.Status = http.StatusOK
		res.Message = MessageSuccess
		log.Info("similarity run finished",
			zap.Int("items", res.Items),
			zap.Int("groups", res.Groups),
			zap.Int("assigned", res.Assigned),
			zap.Int("batches", res.Batches),
			zap.Duration("elapsed", res.Duration))
	}

	p.record(res, log)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, res *RunResult, log *zap.Logger) error {
	stage := time.Now()
	records, err := p.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	kept, texts := preprocess.Records(records, p.textFields, log)
	res.Dropped = len(records) - len(kept)
	log.Info("records fetched", zap.Int("records", len(records)), zap.Int("dropped", res.Dropped),
		zap.Duration("elapsed", time.Since(stage)))

	stage = time.Now()
	items, err := p.embed(ctx, kept, texts)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	log.Info("records embedded", zap.Int("items", len(items)), zap.Duration("elapsed", time.Since(stage)))

	if p.snapshotPath != "" {
		if err := saveSnapshot(p.snapshotPath, items); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}

	stage = time.Now()
	result, err := p.engine.ComputeSimilarityGroups(ctx, items, p.threshold)
	if err != nil {
		return fmt.Errorf("group: %w", err)
	}
	res.Items = result.Stats.Items
	res.Pairs = result.Stats.Pairs
	res.Groups = result.Stats.Groups
	res.Assigned = result.Stats.Assigned
	log.Info("similarity groups computed", zap.Int("edges", result.Stats.Edges),
		zap.Int("groups", res.Groups), zap.Duration("elapsed", time.Since(stage)))

	stage = time.Now()
	res.Batches, err = publish.SendBatched(ctx, p.sink, p.messageType, result.Assignments, p.batchSize)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	log.Info("updates published", zap.Int("batches", res.Batches), zap.Duration("elapsed", time.Since(stage)))
	return nil
}

func (p *Pipeline) embed(ctx context.Context, recs []models.SourceRecord, texts []string) ([]models.Item, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	items := make([]models.Item, len(recs))
	for i := range recs {
		items[i] = models.Item{ID: recs[i].ID, Vector: vecs[i]}
	}
	return items, nil
}

func saveSnapshot(path string, items []models.Item) error {
	store, err := vector.NewStore(0)
	if err != nil {
		return err
	}
	ids := make([]string, len(items))
	vecs := make([][]float32, len(items))
	for i, it := range items {
		ids[i] = it.ID
		vecs[i] = it.Vector
	}
	if err := store.Put(ids, vecs); err != nil {
		return err
	}
	return store.Save(path)
}

func (p *Pipeline) record(res *RunResult, log *zap.Logger) {
	p.lastMu.Lock()
	p.last = res
	p.lastMu.Unlock()
	if p.runs == nil {
		return
	}
	// The run context may already be cancelled; the summary is still worth keeping.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.runs.SaveRun(ctx, &res.RunSummary); err != nil {
		log.Warn("failed to record run", zap.Error(err))
	}
}

// LastRun returns the latest run summary, from this process or from the run log.
func (p *Pipeline) LastRun(ctx context.Context) (*models.RunSummary, error) {
	p.lastMu.RLock()
	last := p.last
	p.lastMu.RUnlock()
	if last != nil {
		s := last.RunSummary
		return &s, nil
	}
	if p.runs == nil {
		return nil, storage.ErrNotFound
	}
	return p.runs.LastRun(ctx)
}
