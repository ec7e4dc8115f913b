// Package preprocess builds the text that is embedded for each source record.
package preprocess

import (
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/hyperjump/simgroup/internal/models"
)

// DefaultFields are joined when no text fields are configured.
var DefaultFields = []string{"name", "description", "address", "city", "category"}

// Normalize lowercases text, trims it and collapses runs of whitespace into one space.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(unicode.ToLower(r))
			wasSpace = false
		}
	}
	return b.String()
}

// Text joins the non-empty fields of r in the given order and normalizes the result.
func Text(r *models.SourceRecord, fields []string) string {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := strings.TrimSpace(r.Field(f)); v != "" {
			parts = append(parts, v)
		}
	}
	return Normalize(strings.Join(parts, " "))
}

// Records returns the records that produce non-empty text, with their texts at the same index.
// Records without an ID or with empty text are dropped and logged at warn level.
func Records(records []models.SourceRecord, fields []string, logger *zap.Logger) ([]models.SourceRecord, []string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]models.SourceRecord, 0, len(records))
	texts := make([]string, 0, len(records))
	for i := range records {
		r := &records[i]
		if strings.TrimSpace(r.ID) == "" {
			logger.Warn("dropping record without id", zap.Int("position", i))
			continue
		}
		text := Text(r, fields)
		if text == "" {
			logger.Warn("dropping record with empty text", zap.String("id", r.ID))
			continue
		}
		kept = append(kept, *r)
		texts = append(texts, text)
	}
	return kept, texts
}
