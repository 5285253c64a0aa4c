// Package dag provides a small directed acyclic graph over composition
// layers. Edges point from a layer to the layers it depends on (for example
// the conditional parents whose chosen trait selects its asset folder). It
// rejects cycles at insertion time and reports results in declared layer
// order.
package dag

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when an edge would introduce a dependency cycle.
var ErrCycle = errors.New("cycle detected")

// ErrNodeNotFound is returned when an operation references an unknown layer.
var ErrNodeNotFound = errors.New("layer not found")

// ErrDuplicateNode is returned when adding a layer that already exists.
var ErrDuplicateNode = errors.New("duplicate layer")

// ErrSelfEdge is returned when a layer would depend on itself.
var ErrSelfEdge = errors.New("self-referencing edge")

// DAG holds layers keyed by name with their declared position.
type DAG struct {
	position map[string]int
	// adjacency maps layer → set of layers it depends on.
	adjacency map[string]map[string]bool
	// reverse maps layer → set of layers depending on it.
	reverse map[string]map[string]bool
}

// New creates an empty graph.
func New() *DAG {
	return &DAG{
		position:  make(map[string]int),
		adjacency: make(map[string]map[string]bool),
		reverse:   make(map[string]map[string]bool),
	}
}

// AddNode adds a layer at the given position.
func (d *DAG) AddNode(name string, position int) error {
	if _, exists := d.position[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}
	d.position[name] = position
	d.adjacency[name] = make(map[string]bool)
	d.reverse[name] = make(map[string]bool)
	return nil
}

// AddEdge records that from depends on to.
func (d *DAG) AddEdge(from, to string) error {
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfEdge, from)
	}
	if _, ok := d.position[from]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	if _, ok := d.position[to]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}
	if d.adjacency[from][to] {
		return nil
	}
	if d.hasPath(to, from) {
		return fmt.Errorf("%w: edge %s → %s would create a cycle", ErrCycle, from, to)
	}
	d.adjacency[from][to] = true
	d.reverse[to][from] = true
	return nil
}

// Ancestors returns every layer name transitively depended on by name,
// sorted by position.
func (d *DAG) Ancestors(name string) []string {
	if _, ok := d.position[name]; !ok {
		return nil
	}
	visited := make(map[string]bool)
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range d.adjacency[cur] {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	out := make([]string, 0, len(visited))
	for v := range visited {
		out = append(out, v)
	}
	return d.positionSorted(out)
}

// Downstream reports the dependencies of name that are declared at or after
// its own position. Such dependencies cannot be resolved when layers are
// walked in declared order.
func (d *DAG) Downstream(name string) []string {
	pos, ok := d.position[name]
	if !ok {
		return nil
	}
	var out []string
	for dep := range d.adjacency[name] {
		if d.position[dep] >= pos {
			out = append(out, dep)
		}
	}
	return d.positionSorted(out)
}

// hasPath reports whether there is a directed path from src to dst.
func (d *DAG) hasPath(src, dst string) bool {
	visited := make(map[string]bool)
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range d.adjacency[cur] {
			if dep == dst {
				return true
			}
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return false
}

// positionSorted sorts names by declared position, then by name.
func (d *DAG) positionSorted(names []string) []string {
	sort.Slice(names, func(i, j int) bool {
		pi, pj := d.position[names[i]], d.position[names[j]]
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}
