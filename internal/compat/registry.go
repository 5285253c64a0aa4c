// Package compat stores the compatibility rules between traits of
// different layers and derives from them the per-layer restriction maps
// and per-rule occurrence shares that drive generation.
//
// A rule is keyed by its child trait and the parent slot it constrains.
// It records the parent traits the child may not co-occur with and, as the
// complement, the parents it may co-occur with. A forced rule allows
// exactly one parent and makes the pairing exclusive in both directions.
package compat

import (
	"slices"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/fault"
)

// RuleKey identifies a rule: one child trait constrained against one
// parent layer within one configuration.
type RuleKey struct {
	Config      int
	ParentLayer int
	ChildLayer  int
	Child       string
}

// Rule is the registry entry for one RuleKey.
type Rule struct {
	Key                 RuleKey
	Seq                 int      // declaration order
	IncompatibleParents []string // in parent-layer order
	Parents             []string // allowed parents, in parent-layer order
	Forced              bool
	MaxCount            int
	Retired             bool
}

// ForcedParent returns the single allowed parent of a forced rule.
func (r *Rule) ForcedParent() string {
	if !r.Forced || len(r.Parents) != 1 {
		return ""
	}
	return r.Parents[0]
}

// Active reports whether generation still pins the rule's child.
func (r *Rule) Active() bool { return !r.Retired }

// Registry holds the declared rules of a collection. It is owned by a
// single run and is not safe for concurrent use.
type Registry struct {
	configs []*catalog.Configuration
	rules   map[RuleKey]*Rule
	order   []RuleKey
}

// New creates an empty registry over the given configurations.
func New(configs []*catalog.Configuration) *Registry {
	return &Registry{
		configs: configs,
		rules:   make(map[RuleKey]*Rule),
	}
}

// Len returns the number of declared rules.
func (r *Registry) Len() int { return len(r.order) }

// Rules returns all rules in declaration order.
func (r *Registry) Rules() []*Rule {
	out := make([]*Rule, len(r.order))
	for i, k := range r.order {
		out[i] = r.rules[k]
	}
	return out
}

// Rule returns the rule for key, or nil.
func (r *Registry) Rule(key RuleKey) *Rule { return r.rules[key] }

// ActiveRules returns the non-retired rules of a configuration in
// declaration order.
func (r *Registry) ActiveRules(config int) []*Rule {
	var out []*Rule
	for _, k := range r.order {
		if rule := r.rules[k]; k.Config == config && !rule.Retired {
			out = append(out, rule)
		}
	}
	return out
}

// RulesFor returns every rule constraining child in childLayer, in
// declaration order, retired or not.
func (r *Registry) RulesFor(config, childLayer int, child string) []*Rule {
	var out []*Rule
	for _, k := range r.order {
		if k.Config == config && k.ChildLayer == childLayer && k.Child == child {
			out = append(out, r.rules[k])
		}
	}
	return out
}

// ForcedChild returns the child a parent trait is forced to, if any.
func (r *Registry) ForcedChild(config, parentLayer int, parent string) (RuleKey, bool) {
	for _, k := range r.order {
		rule := r.rules[k]
		if k.Config == config && k.ParentLayer == parentLayer && rule.ForcedParent() == parent {
			return k, true
		}
	}
	return RuleKey{}, false
}

// DeclareIncompatibility forbids child (in childLayer) from co-occurring
// with incompatibleParent (in parentLayer). Repeated declarations for the
// same child and parent slot accumulate. A declaration that would leave the
// child without any allowed parent, or a parent without any compatible
// child, is refused with a constraint error and leaves the registry
// unchanged.
func (r *Registry) DeclareIncompatibility(child, incompatibleParent string, parentLayer, childLayer, config int) error {
	key, parents, err := r.resolve(child, incompatibleParent, parentLayer, childLayer, config)
	if err != nil {
		return err
	}
	opts := fault.With(fault.Config(config), fault.Trait(child), fault.Layer(r.layer(key.Config, childLayer).Source))

	allowed := parents
	var incompatible []string
	if prev, ok := r.rules[key]; ok {
		allowed = prev.Parents
		incompatible = prev.IncompatibleParents
	}
	if !slices.Contains(allowed, incompatibleParent) {
		// Already excluded.
		return nil
	}
	next := remove(allowed, incompatibleParent)
	if len(next) == 0 {
		return fault.Constraintf(opts, "excluding parent %q leaves no allowed parents", incompatibleParent)
	}
	if r.orphansParent(key, incompatibleParent) {
		return fault.Constraintf(opts, "parent %q would have no compatible trait left in the child layer", incompatibleParent)
	}

	rule := r.upsert(key)
	rule.Parents = next
	rule.IncompatibleParents = inOrder(parents, append(slices.Clone(incompatible), incompatibleParent))
	return nil
}

// DeclareForcedCombination pairs child exclusively with forcedParent: the
// child may only appear with that parent and the parent only with that
// child. It is refused when the parent is already forced to another child
// or the child's slot already excludes the parent.
func (r *Registry) DeclareForcedCombination(child, forcedParent string, parentLayer, childLayer, config int) error {
	key, parents, err := r.resolve(child, forcedParent, parentLayer, childLayer, config)
	if err != nil {
		return err
	}
	opts := fault.With(fault.Config(config), fault.Trait(child), fault.Layer(r.layer(key.Config, childLayer).Source))

	if other, ok := r.ForcedChild(config, parentLayer, forcedParent); ok && other != key {
		return fault.Constraintf(opts, "parent %q is already forced to %q", forcedParent, other.Child)
	}
	if prev, ok := r.rules[key]; ok {
		if prev.Forced && prev.ForcedParent() != forcedParent {
			return fault.Constraintf(opts, "already forced to parent %q", prev.ForcedParent())
		}
		if !slices.Contains(prev.Parents, forcedParent) {
			return fault.Constraintf(opts, "parent %q is already declared incompatible", forcedParent)
		}
	}
	for _, other := range remove(parents, forcedParent) {
		if r.orphansParent(key, other) {
			return fault.Constraintf(opts, "parent %q would have no compatible trait left in the child layer", other)
		}
	}

	rule := r.upsert(key)
	rule.Forced = true
	rule.Parents = []string{forcedParent}
	rule.IncompatibleParents = remove(parents, forcedParent)
	return nil
}

// resolve validates the indices and trait names of a declaration and
// returns the rule key and the full parent-layer trait list.
func (r *Registry) resolve(child, parent string, parentLayer, childLayer, config int) (RuleKey, []string, error) {
	if config < 0 || config >= len(r.configs) {
		return RuleKey{}, nil, fault.Configf(fault.With(fault.Field("configuration")), "configuration %d out of range", config)
	}
	opts := fault.With(fault.Config(config), fault.Trait(child))
	cfg := r.configs[config]
	pl, cl := cfg.Layer(parentLayer), cfg.Layer(childLayer)
	if pl == nil || cl == nil {
		return RuleKey{}, nil, fault.Configf(opts, "layer index out of range (parent %d, child %d)", parentLayer, childLayer)
	}
	if parentLayer >= childLayer {
		return RuleKey{}, nil, fault.Configf(opts, "parent layer %q must precede child layer %q", pl.Source, cl.Source)
	}
	if cl.Trait(child) == nil {
		return RuleKey{}, nil, fault.Configf(append(opts, fault.Layer(cl.Source)), "unknown child trait")
	}
	if pl.Trait(parent) == nil {
		return RuleKey{}, nil, fault.Configf(append(opts, fault.Layer(pl.Source)), "unknown parent trait %q", parent)
	}
	key := RuleKey{Config: config, ParentLayer: parentLayer, ChildLayer: childLayer, Child: child}
	return key, pl.TraitNames(), nil
}

// orphansParent reports whether also excluding key.Child under parent
// would leave parent with no allowed trait in the child layer.
func (r *Registry) orphansParent(key RuleKey, parent string) bool {
	children := r.layer(key.Config, key.ChildLayer).TraitNames()
	excluded := map[string]bool{key.Child: true}
	for _, k := range r.order {
		if k.Config != key.Config || k.ParentLayer != key.ParentLayer || k.ChildLayer != key.ChildLayer {
			continue
		}
		if !slices.Contains(r.rules[k].Parents, parent) {
			excluded[k.Child] = true
		}
	}
	return len(excluded) >= len(children)
}

func (r *Registry) upsert(key RuleKey) *Rule {
	if rule, ok := r.rules[key]; ok {
		return rule
	}
	rule := &Rule{Key: key, Seq: len(r.order)}
	r.rules[key] = rule
	r.order = append(r.order, key)
	return rule
}

func (r *Registry) layer(config, idx int) *catalog.Layer {
	return r.configs[config].Layers[idx]
}

func remove(names []string, name string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// inOrder returns the members of subset in the order they appear in all.
func inOrder(all, subset []string) []string {
	out := make([]string, 0, len(subset))
	for _, n := range all {
		if slices.Contains(subset, n) {
			out = append(out, n)
		}
	}
	return out
}
