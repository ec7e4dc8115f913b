// Package source fetches the records to be grouped from SQLite or from JSON and Excel files.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/simgroup/internal/config"
	"github.com/hyperjump/simgroup/internal/models"
	"github.com/hyperjump/simgroup/internal/storage"
)

// Source returns the full set of records for one grouping run.
type Source interface {
	Fetch(ctx context.Context) ([]models.SourceRecord, error)
}

// StoreSource reads records from a RecordStore.
type StoreSource struct {
	store storage.RecordStore
}

// NewStoreSource returns a Source backed by store.
func NewStoreSource(store storage.RecordStore) *StoreSource {
	return &StoreSource{store: store}
}

// Fetch returns all stored records.
func (s *StoreSource) Fetch(ctx context.Context) ([]models.SourceRecord, error) {
	recs, err := s.store.FetchRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	return recs, nil
}

// FileSource reads records from a .json or .xlsx file on every Fetch.
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Fetch reads and parses the file.
func (s *FileSource) Fetch(ctx context.Context) ([]models.SourceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ReadFile(s.Path)
}

// ReadFile parses the records in path, choosing the format by extension.
func ReadFile(path string) ([]models.SourceRecord, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ParseBytes parses records from content. ext should include the leading dot.
func ParseBytes(content []byte, ext string) ([]models.SourceRecord, error) {
	switch ext {
	case ".json":
		return parseJSON(content)
	case ".xlsx":
		return parseExcel(content)
	case ".ods":
		return parseODS(content)
	case ".csv":
		return parseCSV(content)
	default:
		return nil, fmt.Errorf("unsupported source format %q (supported: .json, .xlsx, .ods, .csv)", ext)
	}
}

// New builds the Source selected by cfg.Type. store is required for the sqlite source.
func New(cfg *config.SourceConfig, store storage.RecordStore) (Source, error) {
	switch cfg.Type {
	case config.SourceSQLite, "":
		if store == nil {
			return nil, fmt.Errorf("sqlite source requires a record store")
		}
		return NewStoreSource(store), nil
	case config.SourceFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file source requires a path")
		}
		return NewFileSource(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}

// normalizeHeader maps "Opening Hours " to "opening_hours".
func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(h)), "_")
}
