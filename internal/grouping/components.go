package grouping

import (
	"sort"

	"github.com/hyperjump/simgroup/internal/models"
)

// DisjointSet is a union-find over the integers [0, n), with union by size and path halving.
type DisjointSet struct {
	parent []int
	size   []int
}

// NewDisjointSet returns n singleton sets.
func NewDisjointSet(n int) *DisjointSet {
	ds := &DisjointSet{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range ds.parent {
		ds.parent[i] = i
		ds.size[i] = 1
	}
	return ds
}

// Len returns the number of elements.
func (ds *DisjointSet) Len() int { return len(ds.parent) }

// Find returns the representative of x's set.
func (ds *DisjointSet) Find(x int) (int, error) {
	if x < 0 || x >= len(ds.parent) {
		return 0, &InvalidIndexError{Index: x, N: len(ds.parent)}
	}
	for ds.parent[x] != x {
		ds.parent[x] = ds.parent[ds.parent[x]]
		x = ds.parent[x]
	}
	return x, nil
}

// Union merges the sets containing a and b. It reports whether a merge happened.
func (ds *DisjointSet) Union(a, b int) (bool, error) {
	ra, err := ds.Find(a)
	if err != nil {
		return false, err
	}
	rb, err := ds.Find(b)
	if err != nil {
		return false, err
	}
	if ra == rb {
		return false, nil
	}
	if ds.size[ra] < ds.size[rb] {
		ra, rb = rb, ra
	}
	ds.parent[rb] = ra
	ds.size[ra] += ds.size[rb]
	return true, nil
}

// GroupComponents returns the connected components of the graph on n vertices whose
// edges are pairs. Only vertices touched by at least one edge are reported, so every
// component has at least two members. Members are sorted ascending and components are
// ordered by their smallest member; the result depends only on the edge set.
func GroupComponents(n int, edges []models.Pair) ([][]int, error) {
	ds := NewDisjointSet(n)
	touched := make([]bool, n)
	for _, e := range edges {
		if _, err := ds.Union(e.I, e.J); err != nil {
			return nil, err
		}
		touched[e.I] = true
		touched[e.J] = true
	}

	byRoot := make(map[int][]int)
	// ascending scan keeps members sorted and lets first-seen order follow the smallest member
	var roots []int
	for v := 0; v < n; v++ {
		if !touched[v] {
			continue
		}
		root, _ := ds.Find(v)
		if _, ok := byRoot[root]; !ok {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], v)
	}

	components := make([][]int, 0, len(roots))
	for _, root := range roots {
		components = append(components, byRoot[root])
	}
	sort.SliceStable(components, func(a, b int) bool { return components[a][0] < components[b][0] })
	return components, nil
}
