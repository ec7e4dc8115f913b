// Package cli provides output helpers for the simgroup command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/simgroup/internal/grouping"
	"github.com/hyperjump/simgroup/internal/pipeline"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" or "json" (case-insensitive).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

// WriteGroups writes a grouping result to w in the given format.
func WriteGroups(w io.Writer, result *grouping.Result, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	s := result.Stats
	fmt.Fprintf(w, "\n%d items, %d pairs scored, %d above %.2f, %d groups (%d items assigned) in %dms\n\n",
		s.Items, s.Pairs, s.Edges, s.Threshold, s.Groups, s.Assigned, s.ElapsedMS)
	for _, g := range result.Groups {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Group %s (%d members)\n", g.ID, len(g.Members))
		fmt.Fprintf(w, "  %s\n", Truncate(strings.Join(g.Members, ", "), 200))
	}
	if len(result.Groups) == 0 {
		fmt.Fprintln(w, "No similar items found.")
	}
	return nil
}

// WriteRunResult writes a pipeline run outcome to w in the given format.
func WriteRunResult(w io.Writer, res *pipeline.RunResult, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "[%d] %s\n", res.Status, res.Message)
	if res.Details != "" {
		fmt.Fprintf(w, "Details: %s\n", res.Details)
	}
	fmt.Fprintf(w, "Run %s: %d items (%d dropped), %d pairs, %d groups, %d assigned, %d batches in %dms\n",
		res.ID, res.Items, res.Dropped, res.Pairs, res.Groups, res.Assigned, res.Batches, res.DurationMS)
	return nil
}

// WriteMatrix writes a dense similarity matrix labelled by item ids. Text output is
// tab-separated with a header row; JSON is {"ids": [...], "matrix": [[...]]}.
func WriteMatrix(w io.Writer, ids []string, m [][]float64, format OutputFormat) error {
	if len(ids) != len(m) {
		return fmt.Errorf("matrix has %d rows for %d ids", len(m), len(ids))
	}
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			IDs    []string    `json:"ids"`
			Matrix [][]float64 `json:"matrix"`
		}{ids, m})
	}
	fmt.Fprintf(w, "\t%s\n", strings.Join(ids, "\t"))
	for i, row := range m {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprintf("%.4f", v)
		}
		fmt.Fprintf(w, "%s\t%s\n", ids[i], strings.Join(cells, "\t"))
	}
	return nil
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
