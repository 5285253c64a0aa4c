package catalog

import (
	"errors"
	"strings"

	"github.com/papapumpkin/strata/internal/dag"
	"github.com/papapumpkin/strata/internal/fault"
)

// Validate checks a built collection for structural problems and returns
// every one it finds. Weight and capacity problems are left to the
// reconciler, which knows the compatibility caps.
func Validate(c *Collection) []error {
	var errs []error
	add := func(err error) { errs = append(errs, err) }

	if c.Size <= 0 {
		add(fault.Configf(fault.With(fault.Field("collection.size")), "size must be positive, got %d", c.Size))
	}
	if c.RetryBudget < 0 {
		add(fault.Configf(fault.With(fault.Field("collection.retry_budget")), "retry budget must not be negative"))
	}
	if c.StartNumber < 0 || c.Resume < 0 {
		add(fault.Configf(fault.With(fault.Field("collection.start_number")), "start number and resume must not be negative"))
	}
	if err := c.Ladder.Validate(); err != nil {
		add(err)
	}
	if len(c.Configurations) == 0 {
		add(fault.Configf(fault.With(fault.Field("configurations")), "at least one configuration is required"))
	}

	total := 0
	for _, cfg := range c.Configurations {
		total += cfg.Size
		errs = append(errs, validateConfiguration(cfg)...)
	}
	if len(c.Configurations) > 0 && total != c.Size {
		add(fault.Configf(fault.With(fault.Field("configurations.size"), fault.Size(c.Size)),
			"configuration sizes sum to %d, collection size is %d", total, c.Size))
	}

	for i, r := range c.Rules {
		if err := validateRule(c, i, r); err != nil {
			add(err)
		}
	}
	if c.OneOfOne && len(c.Rules) > 0 {
		add(fault.Configf(fault.With(fault.Field("collection.one_of_one")),
			"a one-of-one collection takes trait N of every layer and cannot carry rules"))
	}
	return errs
}

func validateConfiguration(cfg *Configuration) []error {
	var errs []error
	with := func(opts ...fault.Option) []fault.Option {
		return append([]fault.Option{fault.Config(cfg.Index)}, opts...)
	}

	if cfg.Size <= 0 {
		errs = append(errs, fault.Configf(with(fault.Field("size")), "size must be positive, got %d", cfg.Size))
	}
	if len(cfg.Layers) == 0 {
		errs = append(errs, fault.Configf(with(fault.Field("layers")), "configuration has no layers"))
	}

	seenLayer := make(map[string]bool, len(cfg.Layers))
	for _, l := range cfg.Layers {
		if seenLayer[l.Source] {
			errs = append(errs, fault.Configf(with(fault.Layer(l.Source)), "duplicate layer"))
		}
		seenLayer[l.Source] = true

		if len(l.Traits) == 0 {
			errs = append(errs, fault.Configf(with(fault.Layer(l.Source)), "layer has no traits"))
		}
		if l.Opacity < 0 || l.Opacity > 1 {
			errs = append(errs, fault.Configf(with(fault.Layer(l.Source), fault.Field("opacity")), "opacity %v outside [0, 1]", l.Opacity))
		}
		seenTrait := make(map[string]bool, len(l.Traits))
		for _, t := range l.Traits {
			switch {
			case t.Name == "":
				errs = append(errs, fault.Configf(with(fault.Layer(l.Source)), "trait %d has no name", t.ID))
			case strings.ContainsAny(t.Name, reservedRunes):
				errs = append(errs, fault.Configf(with(fault.Layer(l.Source), fault.Trait(t.Name)),
					"trait name may not contain any of %q", reservedRunes))
			case seenTrait[t.Name]:
				errs = append(errs, fault.Configf(with(fault.Layer(l.Source), fault.Trait(t.Name)), "duplicate trait name"))
			}
			seenTrait[t.Name] = true
		}
	}

	if err := validateConditional(cfg); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// validateConditional checks that conditional parents exist, form no cycle
// and precede the layers that depend on them.
func validateConditional(cfg *Configuration) error {
	g, err := conditionalGraph(cfg)
	if err != nil {
		return err
	}
	for _, l := range cfg.Layers {
		if down := g.Downstream(l.Source); len(down) > 0 {
			return fault.Configf(fault.With(fault.Config(cfg.Index), fault.Layer(l.Source), fault.Field("conditional_on")),
				"conditional parents %v must precede the layer", down)
		}
	}
	return nil
}

// conditionalGraph links every layer to the layers it is conditional on.
func conditionalGraph(cfg *Configuration) (*dag.DAG, error) {
	g := dag.New()
	for _, l := range cfg.Layers {
		// Duplicates are reported by validateConfiguration.
		_ = g.AddNode(l.Source, l.Index)
	}
	for _, l := range cfg.Layers {
		for _, parent := range l.ConditionalOn {
			if cfg.LayerIndex(parent) < 0 {
				return nil, fault.Configf(fault.With(fault.Config(cfg.Index), fault.Layer(l.Source), fault.Field("conditional_on")),
					"unknown conditional parent %q", parent)
			}
			parent = cfg.Layers[cfg.LayerIndex(parent)].Source
			if err := g.AddEdge(l.Source, parent); err != nil {
				return nil, fault.Configf(fault.With(fault.Config(cfg.Index), fault.Layer(l.Source), fault.Field("conditional_on")), "%v", err)
			}
		}
	}
	return g, nil
}

// ConditionalAncestors returns the indices of every layer that layer li
// depends on through conditional_on, directly or through another
// conditional layer, in layer order. It returns nil when the conditional
// graph is invalid.
func (c *Configuration) ConditionalAncestors(li int) []int {
	l := c.Layer(li)
	if l == nil || len(l.ConditionalOn) == 0 {
		return nil
	}
	g, err := conditionalGraph(c)
	if err != nil {
		return nil
	}
	names := g.Ancestors(l.Source)
	out := make([]int, 0, len(names))
	for _, name := range names {
		out = append(out, c.LayerIndex(name))
	}
	return out
}

func validateRule(c *Collection, i int, r RuleSpec) error {
	opts := fault.With(fault.Rule(i), fault.Config(r.Config))
	if r.Kind != RuleIncompatible && r.Kind != RuleForced {
		return fault.Configf(append(opts, fault.Field("kind")), "unknown rule kind %q", r.Kind)
	}
	if r.Config < 0 || r.Config >= len(c.Configurations) {
		return fault.Configf(append(opts, fault.Field("configuration")), "configuration index out of range")
	}
	cfg := c.Configurations[r.Config]
	pl, cl := cfg.LayerIndex(r.ParentLayer), cfg.LayerIndex(r.ChildLayer)
	if pl < 0 {
		return fault.Configf(append(opts, fault.Layer(r.ParentLayer)), "unknown parent layer")
	}
	if cl < 0 {
		return fault.Configf(append(opts, fault.Layer(r.ChildLayer)), "unknown child layer")
	}
	if pl >= cl {
		return fault.Configf(append(opts, fault.Layer(r.ChildLayer)), "parent layer %q must precede child layer", r.ParentLayer)
	}
	if cfg.Layers[pl].Trait(r.Parent) == nil {
		return fault.Configf(append(opts, fault.Layer(r.ParentLayer), fault.Trait(r.Parent)), "unknown parent trait")
	}
	if cfg.Layers[cl].Trait(r.Child) == nil {
		return fault.Configf(append(opts, fault.Layer(r.ChildLayer), fault.Trait(r.Child)), "unknown child trait")
	}
	return nil
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}
