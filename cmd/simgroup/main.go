// Package main is the simgroup CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/simgroup/internal/cli"
	"github.com/hyperjump/simgroup/internal/config"
	"github.com/hyperjump/simgroup/internal/embedding"
	"github.com/hyperjump/simgroup/internal/grouping"
	"github.com/hyperjump/simgroup/internal/models"
	"github.com/hyperjump/simgroup/internal/pipeline"
	"github.com/hyperjump/simgroup/internal/publish"
	"github.com/hyperjump/simgroup/internal/server"
	"github.com/hyperjump/simgroup/internal/source"
	"github.com/hyperjump/simgroup/internal/storage"
	"github.com/hyperjump/simgroup/internal/vector"
	"github.com/hyperjump/simgroup/internal/watcher"
	"github.com/hyperjump/simgroup/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/simgroup/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// loadConfigOrDefaults is loadConfig for commands that can run without a config file:
// a missing default config yields the built-in defaults, an explicit path must exist.
func loadConfigOrDefaults(path string) (*config.Config, error) {
	cfg, _, err := loadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
		return cfg, nil
	}
	return nil, err
}

// resolveThreshold parses the --threshold flag. Empty means the configured threshold.
func resolveThreshold(flagValue string, cfg *config.Config) (float64, error) {
	if strings.TrimSpace(flagValue) == "" {
		return cfg.Grouping.ThresholdOrDefault(), nil
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(flagValue), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q: %w", flagValue, err)
	}
	if t < -1 || t > 1 {
		return 0, fmt.Errorf("invalid threshold %v: must be within [-1, 1]", t)
	}
	return t, nil
}

// loadVectors reads precomputed embeddings: a binary snapshot written by "simgroup run"
// (.bin) or a JSON array of {"id", "vector"} objects.
func loadVectors(path string) ([]models.Item, error) {
	if strings.EqualFold(filepath.Ext(path), ".bin") {
		store, err := vector.NewStore(0)
		if err != nil {
			return nil, err
		}
		if err := store.Load(path); err != nil {
			return nil, err
		}
		return store.Items(), nil
	}
	return source.LoadItems(path)
}

// summaryWriter is where "run" prints its summary. The stdout sink owns stdout, so the
// summary moves to stderr to keep the NDJSON stream clean.
func summaryWriter(sink string) io.Writer {
	if sink == config.SinkStdout {
		return os.Stderr
	}
	return os.Stdout
}

// maxMatrixItems bounds --matrix output; the matrix is n x n cells.
const maxMatrixItems = 2000

func writeMatrix(ctx context.Context, w io.Writer, engine *grouping.Engine, items []models.Item, format cli.OutputFormat) error {
	if len(items) > maxMatrixItems {
		return fmt.Errorf("%d items is too many for a dense matrix (max %d)", len(items), maxMatrixItems)
	}
	m, err := engine.Matrix(ctx, items)
	if err != nil {
		return err
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return cli.WriteMatrix(w, ids, m, format)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "run":
		runOnce()
	case "group":
		runGroup()
	case "server":
		runServer()
	case "watch":
		runWatch()
	case "seed":
		runSeed()
	case "relay":
		runRelay()
	case "version", "--version", "-v":
		fmt.Printf("simgroup version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runOnce() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text or json")
	vectorsOut := fs.String("vectors-out", "", "write the run's embeddings to this snapshot file")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *vectorsOut != "" {
		cfg.Storage.VectorsPath = *vectorsOut
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, runErr := components.Pipeline.Run(ctx)
	if res != nil {
		if err := cli.WriteRunResult(summaryWriter(cfg.Publish.Sink), res, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		}
	}
	if runErr != nil {
		components.Close()
		os.Exit(1)
	}
}

func runGroup() {
	fs := flag.NewFlagSet("group", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (threshold and workers)")
	vectorsPath := fs.String("vectors", "", "items file: JSON [{\"id\",\"vector\"}] or .bin snapshot")
	threshold := fs.String("threshold", "", "similarity threshold (default from config, or 0.65)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	matrix := fs.Bool("matrix", false, "print the dense similarity matrix instead of groups")
	_ = fs.Parse(os.Args[2:])

	if *vectorsPath == "" && fs.NArg() > 0 {
		*vectorsPath = fs.Arg(0)
	}
	if *vectorsPath == "" {
		fmt.Println("Usage: simgroup group [flags] --vectors <items.json|snapshot.bin>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := loadConfigOrDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	t, err := resolveThreshold(*threshold, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	items, err := loadVectors(*vectorsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load vectors: %v\n", err)
		os.Exit(1)
	}

	engine := grouping.NewEngine(grouping.WithScorer(grouping.NewCosineScorer(cfg.Grouping.Workers)))
	if *matrix {
		if err := writeMatrix(context.Background(), os.Stdout, engine, items, format); err != nil {
			fmt.Fprintf(os.Stderr, "Matrix failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	result, err := engine.ComputeSimilarityGroups(context.Background(), items, t)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Grouping failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteGroups(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "re-run the pipeline when watch.paths change")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if *watch {
		watchSvc = newPipelineWatcher(cfg, components.Pipeline, logger)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(components.Pipeline, components.Engine, components.Storage, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if watchSvc != nil {
		watchSvc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if fs.NArg() > 0 {
		cfg.Watch.Paths = fs.Args()
	}
	if len(cfg.Watch.Paths) == 0 && cfg.Source.Type == config.SourceFile {
		cfg.Watch.Paths = []string{cfg.Source.Path}
	}
	if len(cfg.Watch.Paths) == 0 {
		fmt.Println("Usage: simgroup watch [flags] [path...]  (or set watch.paths in config)")
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	watchSvc := newPipelineWatcher(cfg, components.Pipeline, logger)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	logger.Info("watching for changes", zap.Strings("paths", watchSvc.Paths()))
	<-ctx.Done()
	watchSvc.Stop()
}

func newPipelineWatcher(cfg *config.Config, p *pipeline.Pipeline, logger *zap.Logger) *watcher.Watcher {
	return watcher.NewWatcher(
		cfg.Watch.Paths,
		func(ctx context.Context) {
			if _, err := p.Run(ctx); err != nil {
				logger.Warn("watch triggered run failed", zap.Error(err))
			}
		},
		watcher.WithDebounce(cfg.Watch.Debounce),
		watcher.WithLogger(logger),
	)
}

func runSeed() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: simgroup seed [flags] <records.json|records.xlsx>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	records, err := source.ReadFile(path)
	if err != nil {
		fmt.Printf("Failed to read records: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.UpsertRecords(context.Background(), records); err != nil {
		fmt.Printf("Seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d records into %s\n", len(records), cfg.Storage.DatabasePath)
}

func runRelay() {
	fs := flag.NewFlagSet("relay", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	sinkName := fs.String("sink", config.SinkRedis, "destination sink: redis, webhook or stdout")
	limit := fs.Int("limit", 500, "maximum messages to relay")
	_ = fs.Parse(os.Args[2:])

	if *sinkName == config.SinkOutbox {
		fmt.Println("relay destination cannot be the outbox itself")
		os.Exit(1)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	pubCfg := cfg.Publish
	pubCfg.Sink = *sinkName
	sink, err := publish.New(&pubCfg, store, os.Stdout)
	if err != nil {
		fmt.Printf("Failed to create sink: %v\n", err)
		os.Exit(1)
	}
	defer sink.Close()

	n, err := publish.Relay(context.Background(), store, sink, *limit)
	if err != nil {
		fmt.Printf("Relay failed after %d messages: %v\n", n, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Relayed %d messages\n", n)
}

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Embedder embedding.Embedder
	Sink     publish.Sink
	Engine   *grouping.Engine
	Pipeline *pipeline.Pipeline
}

func (c *Components) Close() {
	if c.Sink != nil {
		_ = c.Sink.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	src, err := source.New(&cfg.Source, store)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize source: %w", err)
	}
	c.Embedder, err = embedding.New(&cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Sink, err = publish.New(&cfg.Publish, store, os.Stdout)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize sink: %w", err)
	}
	logger.Info("components initialized",
		zap.String("source", cfg.Source.Type),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("embedding_dims", c.Embedder.Dimensions()),
		zap.String("sink", cfg.Publish.Sink),
	)

	c.Engine = grouping.NewEngine(
		grouping.WithScorer(grouping.NewCosineScorer(cfg.Grouping.Workers)),
		grouping.WithLogger(logger),
	)
	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithRunLog(store),
		pipeline.WithEngine(c.Engine),
	}
	if cfg.Storage.VectorsPath != "" {
		opts = append(opts, pipeline.WithSnapshot(cfg.Storage.VectorsPath))
	}
	c.Pipeline = pipeline.New(src, c.Embedder, c.Sink, cfg, opts...)
	return c, nil
}

func printUsage() {
	fmt.Println(`simgroup - group near-duplicate records by embedding similarity

Usage:
  simgroup run [flags]              Fetch, embed, group and publish once
  simgroup group [flags] <vectors>  Group precomputed vectors and print the groups
  simgroup server [flags]           Start the HTTP server
  simgroup watch [flags] [path...]  Re-run the pipeline when files change
  simgroup seed [flags] <file>      Load records from JSON or XLSX into the database
  simgroup relay [flags]            Forward pending outbox messages to a sink
  simgroup version                  Show version
  simgroup help                     Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/simgroup/config.yaml)
  --debug            Enable debug logging (run, server, watch)

Run Flags:
  --output string       Output format: text or json (default: text)
  --vectors-out string  Write the run's embeddings to a snapshot file

Group Flags:
  --vectors string    Items file: JSON array of {"id","vector"} or a .bin snapshot
  --threshold string  Similarity threshold; pairs must score strictly above it (default 0.65)
  --output string     Output format: text or json (default: text)
  --matrix            Print the dense similarity matrix instead of groups

Server Flags:
  --watch            Also re-run the pipeline when watch.paths change

Relay Flags:
  --sink string      Destination: redis, webhook or stdout (default: redis)
  --limit int        Maximum messages to relay (default: 500)`)
}
