package source

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/simgroup/internal/models"
)

// parseExcel reads the first sheet. The first row is the header; each following
// non-blank row becomes one record.
func parseExcel(content []byte) ([]models.SourceRecord, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return recordsFromRows(sheets[0], rows)
}

// recordsFromRows turns a header row plus data rows into records. Header cells are
// normalized; the header must contain an id column. Blank rows are skipped.
func recordsFromRows(sheet string, rows [][]string) ([]models.SourceRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	header := make([]string, len(rows[0]))
	hasID := false
	for i, h := range rows[0] {
		header[i] = normalizeHeader(h)
		if header[i] == "id" {
			hasID = true
		}
	}
	if !hasID {
		return nil, fmt.Errorf("sheet %q has no id column", sheet)
	}

	recs := make([]models.SourceRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		var rec models.SourceRecord
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			rec.SetField(header[i], strings.TrimSpace(cell))
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
