package compat

import (
	"fmt"
	"slices"
	"sort"
)

// TraitRef names a trait by layer index and name.
type TraitRef struct {
	Layer int    `json:"layer"`
	Name  string `json:"trait"`
}

func (t TraitRef) String() string { return fmt.Sprintf("%d/%s", t.Layer, t.Name) }

// RestrictedTraitMap maps a trait known in the current edition to the
// subset of one layer's traits that remain allowed alongside it.
type RestrictedTraitMap map[TraitRef][]string

// Restrictions holds one RestrictedTraitMap per (configuration, layer).
// It is derived once from the registry and never changes during a run:
// retiring a rule stops pinning its child but keeps its restriction.
type Restrictions struct {
	maps map[int]map[int]RestrictedTraitMap
}

// BuildLayerRestrictions derives the restriction maps from every declared
// rule. Each rule contributes entries to its child layer, keyed by the
// parents that exclude the child (or, for a forced rule, by the forced
// parent), and one entry to its parent layer keyed by the child. Entries
// sharing a (layer, key) are intersected.
func (r *Registry) BuildLayerRestrictions() *Restrictions {
	res := &Restrictions{maps: make(map[int]map[int]RestrictedTraitMap)}
	for _, k := range r.order {
		rule := r.rules[k]
		childTraits := r.layer(k.Config, k.ChildLayer).TraitNames()

		withoutChild := remove(childTraits, k.Child)
		for _, p := range rule.IncompatibleParents {
			res.restrict(k.Config, k.ChildLayer, TraitRef{Layer: k.ParentLayer, Name: p}, withoutChild)
		}
		if rule.Forced {
			res.restrict(k.Config, k.ChildLayer, TraitRef{Layer: k.ParentLayer, Name: rule.ForcedParent()}, []string{k.Child})
		}
		res.restrict(k.Config, k.ParentLayer, TraitRef{Layer: k.ChildLayer, Name: k.Child}, rule.Parents)
	}
	return res
}

func (res *Restrictions) restrict(config, layer int, key TraitRef, allowed []string) {
	layers, ok := res.maps[config]
	if !ok {
		layers = make(map[int]RestrictedTraitMap)
		res.maps[config] = layers
	}
	m, ok := layers[layer]
	if !ok {
		m = make(RestrictedTraitMap)
		layers[layer] = m
	}
	prev, ok := m[key]
	if !ok {
		m[key] = slices.Clone(allowed)
		return
	}
	next := make([]string, 0, len(prev))
	for _, name := range prev {
		if slices.Contains(allowed, name) {
			next = append(next, name)
		}
	}
	m[key] = next
}

// Lookup returns the allowed subset of layer given that key is known.
// ok is false when key places no restriction on the layer.
func (res *Restrictions) Lookup(config, layer int, key TraitRef) (allowed []string, ok bool) {
	allowed, ok = res.maps[config][layer][key]
	return allowed, ok
}

// Layer returns the restriction map of one layer, or nil.
func (res *Restrictions) Layer(config, layer int) RestrictedTraitMap {
	return res.maps[config][layer]
}

// Narrow intersects candidates with every restriction on layer keyed by a
// trait in known. The order of candidates is preserved.
func (res *Restrictions) Narrow(config, layer int, candidates []string, known []TraitRef) []string {
	m := res.maps[config][layer]
	if len(m) == 0 {
		return candidates
	}
	out := candidates
	for _, ref := range known {
		allowed, ok := m[ref]
		if !ok {
			continue
		}
		next := make([]string, 0, len(out))
		for _, name := range out {
			if slices.Contains(allowed, name) {
				next = append(next, name)
			}
		}
		out = next
	}
	return out
}

// Entry is one flattened restriction, used for audit export.
type Entry struct {
	Config  int      `json:"layerIndex"`
	Layer   int      `json:"layer"`
	Key     TraitRef `json:"key"`
	Allowed []string `json:"allowed"`
}

// Entries flattens the restriction maps in a stable order.
func (res *Restrictions) Entries() []Entry {
	var out []Entry
	for config, layers := range res.maps {
		for layer, m := range layers {
			for key, allowed := range m {
				out = append(out, Entry{Config: config, Layer: layer, Key: key, Allowed: allowed})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Config != b.Config {
			return a.Config < b.Config
		}
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		if a.Key.Layer != b.Key.Layer {
			return a.Key.Layer < b.Key.Layer
		}
		return a.Key.Name < b.Key.Name
	})
	return out
}
