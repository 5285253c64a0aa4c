package compat

import (
	"math"
	"slices"
)

// WeightFunc returns the resolved weight of a trait in a layer of the
// configuration being reconciled.
type WeightFunc func(layer int, trait string) int

// ParentCap returns the largest number of editions child can appear in
// given its rules: for each rule, the summed weight of the parents it may
// co-occur with, minimized across rules. ok is false when child has no
// rule in the configuration.
func (r *Registry) ParentCap(config, childLayer int, child string, weight WeightFunc) (limit int, ok bool) {
	limit = math.MaxInt
	for _, rule := range r.RulesFor(config, childLayer, child) {
		sum := 0
		for _, p := range rule.Parents {
			sum += weight(rule.Key.ParentLayer, p)
		}
		limit = min(limit, sum)
		ok = true
	}
	if !ok {
		return 0, false
	}
	return limit, true
}

// ReconcileMaxCounts splits each restricted child's resolved weight across
// its rules in the configuration: every rule gets the floor share and the
// remainder goes to the earliest-declared rules. Rules left with a zero
// share are retired.
func (r *Registry) ReconcileMaxCounts(config int, weight WeightFunc) {
	for _, group := range r.childGroups(config) {
		head := group[0].Key
		share(group, weight(head.ChildLayer, head.Child))
		for _, rule := range group {
			rule.Retired = rule.MaxCount == 0
		}
	}
}

// NextRule returns the earliest active rule of child with budget left, or
// nil.
func (r *Registry) NextRule(config, childLayer int, child string) *Rule {
	for _, rule := range r.RulesFor(config, childLayer, child) {
		if !rule.Retired && rule.MaxCount > 0 {
			return rule
		}
	}
	return nil
}

// Consume charges one occurrence of the rule's child against its share.
// remaining is the child's remaining budget after the occurrence. It
// reports whether the rule was retired as a result.
func (r *Registry) Consume(key RuleKey, remaining int) bool {
	rule, ok := r.rules[key]
	if !ok || rule.Retired {
		return false
	}
	rule.MaxCount--
	if rule.MaxCount > 0 {
		return false
	}
	r.Retire(key, remaining)
	return true
}

// Retire stops generation from pinning the rule's child and spreads the
// child's remaining budget evenly over its still-active sibling rules.
// The rule's restrictions stay in force.
func (r *Registry) Retire(key RuleKey, remaining int) {
	rule, ok := r.rules[key]
	if !ok || rule.Retired {
		return
	}
	rule.Retired = true
	rule.MaxCount = 0

	var active []*Rule
	for _, sib := range r.RulesFor(key.Config, key.ChildLayer, key.Child) {
		if !sib.Retired {
			active = append(active, sib)
		}
	}
	if len(active) > 0 {
		share(active, max(remaining, 0))
	}
}

// share assigns floor(total/len(rules)) to each rule, plus one to the
// first total%len(rules) rules.
func share(rules []*Rule, total int) {
	n := len(rules)
	base, rem := total/n, total%n
	for i, rule := range rules {
		rule.MaxCount = base
		if i < rem {
			rule.MaxCount++
		}
	}
}

// childGroups groups a configuration's rules by child, groups ordered by
// their first declaration and rules within a group by declaration.
func (r *Registry) childGroups(config int) [][]*Rule {
	type childKey struct {
		layer int
		name  string
	}
	index := make(map[childKey]int)
	var groups [][]*Rule
	for _, k := range r.order {
		if k.Config != config {
			continue
		}
		ck := childKey{k.ChildLayer, k.Child}
		i, ok := index[ck]
		if !ok {
			i = len(groups)
			index[ck] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r.rules[k])
	}
	return groups
}

// MaxCombinations estimates the number of distinct trait combinations a
// configuration supports: the product of its layer sizes minus, for every
// rule, the combinations it excludes. Combinations excluded by several
// rules are subtracted once per rule, so the figure is a lower bound.
// Layers that bypass the DNA do not count toward uniqueness and are left
// out, along with the rules touching them. The result saturates at
// math.MaxInt and never drops below 0.
func (r *Registry) MaxCombinations(config int) int {
	if config < 0 || config >= len(r.configs) {
		return 0
	}
	layers := r.configs[config].Layers
	sizes := make([]int, len(layers))
	for i, l := range layers {
		sizes[i] = len(l.Traits)
		if l.BypassDNA {
			sizes[i] = 1
		}
	}

	total := product(sizes)
	for _, rule := range r.Rules() {
		k := rule.Key
		if k.Config != config || layers[k.ParentLayer].BypassDNA || layers[k.ChildLayer].BypassDNA {
			continue
		}
		others := slices.Clone(sizes)
		others[k.ParentLayer], others[k.ChildLayer] = 1, 1
		total -= satMul(len(rule.IncompatibleParents), product(others))
		if rule.Forced {
			// The forced parent excludes every other child.
			total -= satMul(sizes[k.ChildLayer]-1, product(others))
		}
		if total <= 0 {
			return 0
		}
	}
	return total
}

func product(xs []int) int {
	p := 1
	for _, x := range xs {
		p = satMul(p, x)
	}
	return p
}

func satMul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}
