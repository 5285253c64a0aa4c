package compat

import (
	"cmp"
	"slices"
)

// Coupling is the allowed-pair matrix between a parent layer and a child
// layer joined by at least one rule. Parents and children are indexed by
// trait ID.
type Coupling struct {
	Config      int
	ParentLayer int
	ChildLayer  int
	allowed     [][]bool // [parent][child]
}

// Couplings returns one Coupling per (parent layer, child layer) pair that
// carries a rule in config, ordered by child layer and then parent layer.
func (r *Registry) Couplings(config int) []*Coupling {
	type pair struct{ parent, child int }
	seen := make(map[pair]bool)
	var pairs []pair
	for _, k := range r.order {
		p := pair{k.ParentLayer, k.ChildLayer}
		if k.Config != config || seen[p] {
			continue
		}
		seen[p] = true
		pairs = append(pairs, p)
	}
	slices.SortFunc(pairs, func(a, b pair) int {
		return cmp.Or(cmp.Compare(a.child, b.child), cmp.Compare(a.parent, b.parent))
	})

	out := make([]*Coupling, len(pairs))
	for i, p := range pairs {
		out[i] = r.coupling(config, p.parent, p.child)
	}
	return out
}

func (r *Registry) coupling(config, parentLayer, childLayer int) *Coupling {
	parents := r.layer(config, parentLayer)
	children := r.layer(config, childLayer)
	c := &Coupling{
		Config:      config,
		ParentLayer: parentLayer,
		ChildLayer:  childLayer,
		allowed:     make([][]bool, len(parents.Traits)),
	}
	for _, p := range parents.Traits {
		row := make([]bool, len(children.Traits))
		for i := range row {
			row[i] = true
		}
		c.allowed[p.ID] = row
	}

	for _, k := range r.order {
		if k.Config != config || k.ParentLayer != parentLayer || k.ChildLayer != childLayer {
			continue
		}
		rule := r.rules[k]
		child := children.Trait(k.Child).ID
		for _, p := range parents.Traits {
			if !slices.Contains(rule.Parents, p.Name) {
				c.allowed[p.ID][child] = false
			}
		}
		if rule.Forced {
			forced := parents.Trait(rule.ForcedParent()).ID
			for _, ch := range children.Traits {
				if ch.ID != child {
					c.allowed[forced][ch.ID] = false
				}
			}
		}
	}
	return c
}

// Allows reports whether parent and child may share an edition.
func (c *Coupling) Allows(parent, child int) bool { return c.allowed[parent][child] }

// Shortfall checks whether every parent occurrence in supply can be paired
// with an allowed child occurrence in demand. It returns nil when such a
// pairing exists. Otherwise it returns the parents that cannot all be
// placed: together they need more editions than the children allowed
// alongside any of them can give.
//
// The check is a maximum flow from parents to children, found with
// shortest augmenting paths over a dense residual matrix.
func (c *Coupling) Shortfall(supply, demand []int) []int {
	np, nc := len(supply), len(demand)
	n := np + nc + 2
	src, sink := n-2, n-1

	want := 0
	for _, s := range supply {
		want += s
	}
	unbounded := want + 1

	residual := make([][]int, n)
	for i := range residual {
		residual[i] = make([]int, n)
	}
	for p, s := range supply {
		residual[src][p] = s
		for ch := range demand {
			if c.allowed[p][ch] {
				residual[p][np+ch] = unbounded
			}
		}
	}
	for ch, d := range demand {
		residual[np+ch][sink] = d
	}

	prev := make([]int, n)
	flow := 0
	for {
		for i := range prev {
			prev[i] = -1
		}
		prev[src] = src
		queue := []int{src}
		for len(queue) > 0 && prev[sink] < 0 {
			u := queue[0]
			queue = queue[1:]
			for v := range n {
				if prev[v] < 0 && residual[u][v] > 0 {
					prev[v] = u
					queue = append(queue, v)
				}
			}
		}
		if prev[sink] < 0 {
			break
		}
		bottleneck := unbounded
		for v := sink; v != src; v = prev[v] {
			bottleneck = min(bottleneck, residual[prev[v]][v])
		}
		for v := sink; v != src; v = prev[v] {
			residual[prev[v]][v] -= bottleneck
			residual[v][prev[v]] += bottleneck
		}
		flow += bottleneck
	}
	if flow >= want {
		return nil
	}

	// Parents still reachable from the source form the deficient side of
	// the minimum cut.
	var short []int
	for p := range np {
		if prev[p] >= 0 {
			short = append(short, p)
		}
	}
	return short
}

// Serves reports whether child is allowed alongside at least one of the
// given parents.
func (c *Coupling) Serves(parents []int, child int) bool {
	for _, p := range parents {
		if c.allowed[p][child] {
			return true
		}
	}
	return false
}
