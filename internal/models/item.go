// Package models defines core data structures for items, pairs, and similarity groups.
package models

// Item is one input to a grouping run. Items are addressed by their position in the
// input slice; ID is only carried through to the output.
type Item struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
}

// Pair is an unordered pair of item indices with I < J.
type Pair struct {
	I     int     `json:"i"`
	J     int     `json:"j"`
	Score float64 `json:"score"`
}

// GroupAssignment maps an item to the similarity group it belongs to.
type GroupAssignment struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
}

// Group is one labeled connected component.
type Group struct {
	ID      string   `json:"group_id"`
	Members []string `json:"members"`
}
