package grouping

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/hyperjump/simgroup/internal/models"
)

func TestLabeler_Label(t *testing.T) {
	l := NewLabeler(&SequenceGenerator{Prefix: "g"})
	ids := []string{"A", "B", "C", "D", "E"}
	assignments, groups, err := l.Label(ids, [][]int{{0, 2}, {1, 3, 4}})
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	wantAssignments := []models.GroupAssignment{
		{ID: "A", GroupID: "g-1"},
		{ID: "C", GroupID: "g-1"},
		{ID: "B", GroupID: "g-2"},
		{ID: "D", GroupID: "g-2"},
		{ID: "E", GroupID: "g-2"},
	}
	if !reflect.DeepEqual(assignments, wantAssignments) {
		t.Errorf("assignments = %v, want %v", assignments, wantAssignments)
	}
	wantGroups := []models.Group{
		{ID: "g-1", Members: []string{"A", "C"}},
		{ID: "g-2", Members: []string{"B", "D", "E"}},
	}
	if !reflect.DeepEqual(groups, wantGroups) {
		t.Errorf("groups = %v, want %v", groups, wantGroups)
	}
}

func TestLabeler_SkipsSingletons(t *testing.T) {
	l := NewLabeler(&SequenceGenerator{Prefix: "g"})
	assignments, groups, err := l.Label([]string{"A", "B"}, [][]int{{0}, {}})
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	if len(assignments) != 0 || len(groups) != 0 {
		t.Errorf("singletons should not be labelled, got %v / %v", assignments, groups)
	}
}

func TestLabeler_InvalidIndex(t *testing.T) {
	l := NewLabeler(nil)
	_, _, err := l.Label([]string{"A"}, [][]int{{0, 1}})
	if !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("Label() error = %v, want ErrInvalidIndex", err)
	}
}

func TestUUIDGenerator_Fresh(t *testing.T) {
	gen := UUIDGenerator{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := gen.NewToken()
		parsed, err := uuid.Parse(tok)
		if err != nil {
			t.Fatalf("token %q is not a UUID: %v", tok, err)
		}
		if parsed.Version() != 4 {
			t.Errorf("token %q has version %d, want 4", tok, parsed.Version())
		}
		if seen[tok] {
			t.Fatalf("token %q repeated", tok)
		}
		seen[tok] = true
	}
}

func TestSequenceGenerator(t *testing.T) {
	g := &SequenceGenerator{Prefix: "run"}
	if got := g.NewToken(); got != "run-1" {
		t.Errorf("first token = %q, want run-1", got)
	}
	if got := g.NewToken(); got != "run-2" {
		t.Errorf("second token = %q, want run-2", got)
	}
}
