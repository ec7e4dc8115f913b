package grouping

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hyperjump/simgroup/internal/models"
)

// TokenGenerator issues group IDs. Every call must return a token not returned before.
type TokenGenerator interface {
	NewToken() string
}

// UUIDGenerator issues random (version 4) UUIDs.
type UUIDGenerator struct{}

// NewToken returns a fresh random UUID string.
func (UUIDGenerator) NewToken() string {
	return uuid.NewString()
}

// SequenceGenerator issues Prefix-1, Prefix-2, ... for tests and reproducible output.
type SequenceGenerator struct {
	Prefix string
	mu     sync.Mutex
	next   int
}

// NewToken returns the next token in the sequence.
func (g *SequenceGenerator) NewToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.Prefix, g.next)
}

// Labeler assigns one fresh token per component.
type Labeler struct {
	tokens TokenGenerator
}

// NewLabeler returns a labeler drawing tokens from gen; nil means UUIDGenerator.
func NewLabeler(gen TokenGenerator) *Labeler {
	if gen == nil {
		gen = UUIDGenerator{}
	}
	return &Labeler{tokens: gen}
}

// Label maps each member of every component of size >= 2 to the component's token.
// ids holds the external item IDs indexed like the component members.
func (l *Labeler) Label(ids []string, components [][]int) ([]models.GroupAssignment, []models.Group, error) {
	assignments := make([]models.GroupAssignment, 0)
	groups := make([]models.Group, 0, len(components))
	for _, comp := range components {
		if len(comp) < 2 {
			continue
		}
		token := l.tokens.NewToken()
		group := models.Group{ID: token, Members: make([]string, 0, len(comp))}
		for _, idx := range comp {
			if idx < 0 || idx >= len(ids) {
				return nil, nil, &InvalidIndexError{Index: idx, N: len(ids)}
			}
			assignments = append(assignments, models.GroupAssignment{ID: ids[idx], GroupID: token})
			group.Members = append(group.Members, ids[idx])
		}
		groups = append(groups, group)
	}
	return assignments, groups, nil
}
