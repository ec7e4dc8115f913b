package source

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/simgroup/internal/models"
)

// LoadItems reads precomputed items ([{"id": ..., "vector": [...]}]) from a JSON file.
func LoadItems(path string) ([]models.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open items: %w", err)
	}
	defer f.Close()
	return DecodeItems(f)
}

// DecodeItems decodes a JSON array of items from r. Every item needs an id.
func DecodeItems(r io.Reader) ([]models.Item, error) {
	var items []models.Item
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	for i, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("item %d has no id", i)
		}
	}
	return items, nil
}
