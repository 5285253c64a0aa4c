package dna

import (
	"math/rand/v2"
	"slices"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/fault"
	"github.com/papapumpkin/strata/internal/log"
)

// RetryBudget bounds the uniqueness retries of a whole run. One budget is
// shared by the generators of every configuration.
type RetryBudget struct {
	Limit int
	Used  int
}

// NewRetryBudget returns a budget allowing limit retries.
func NewRetryBudget(limit int) *RetryBudget { return &RetryBudget{Limit: limit} }

// Spend consumes one retry and reports whether one was available.
func (b *RetryBudget) Spend() bool {
	if b.Used >= b.Limit {
		return false
	}
	b.Used++
	return true
}

// Edition is the outcome of one successful selection.
type Edition struct {
	DNA     DNA
	Traits  []*catalog.Trait // chosen trait per layer
	Pinned  *compat.RuleKey  // rule whose child was pinned, if any
	Retries int              // collisions discarded before acceptance
}

// Generator selects trait combinations for one configuration. It owns the
// remaining occurrence budget of every trait and mutates the registry's
// rule shares as editions are accepted. It is not safe for concurrent use.
type Generator struct {
	cfg             *catalog.Configuration
	reg             *compat.Registry
	res             *compat.Restrictions
	tracker         *Tracker
	rng             *rand.Rand
	retries         *RetryBudget
	allowDuplicates bool
	oneOfOne        bool
	couplings       []*compat.Coupling

	remaining [][]int // [layer][trait ID]
	accepted  int
	maxCombos int
}

// Option configures a Generator.
type Option func(*Generator)

// WithAllowDuplicates skips the uniqueness check.
func WithAllowDuplicates(on bool) Option {
	return func(g *Generator) { g.allowDuplicates = on }
}

// WithOneOfOne makes edition N take trait N of every layer. Rules and
// budgets are not consulted beyond the trait's own count.
func WithOneOfOne(on bool) Option {
	return func(g *Generator) { g.oneOfOne = on }
}

// WithRetryBudget shares a run-wide retry budget.
func WithRetryBudget(b *RetryBudget) Option {
	return func(g *Generator) { g.retries = b }
}

// NewGenerator prepares a generator over a reconciled configuration. The
// remaining budget of each trait starts at its resolved weight.
func NewGenerator(cfg *catalog.Configuration, reg *compat.Registry, res *compat.Restrictions, tracker *Tracker, rng *rand.Rand, opts ...Option) *Generator {
	g := &Generator{
		cfg:       cfg,
		reg:       reg,
		res:       res,
		tracker:   tracker,
		rng:       rng,
		remaining: make([][]int, len(cfg.Layers)),
		maxCombos: reg.MaxCombinations(cfg.Index),
		couplings: reg.Couplings(cfg.Index),
	}
	for li, l := range cfg.Layers {
		g.remaining[li] = make([]int, len(l.Traits))
		for _, t := range l.Traits {
			g.remaining[li][t.ID] = t.Weight
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retries == nil {
		g.retries = NewRetryBudget(catalog.DefaultRetryBudget)
	}
	return g
}

// Remaining returns the remaining budget of a trait.
func (g *Generator) Remaining(layer int, trait string) int {
	t := g.cfg.Layers[layer].Trait(trait)
	if t == nil {
		return 0
	}
	return g.remaining[layer][t.ID]
}

// Accepted returns the number of editions accepted so far.
func (g *Generator) Accepted() int { return g.accepted }

// RemainingCombinations estimates how many distinct combinations are still
// available: the configuration's combination bound minus accepted editions.
func (g *Generator) RemainingCombinations() int {
	return max(g.maxCombos-g.accepted, 0)
}

// Next selects, checks and accepts one edition. A uniqueness collision
// discards the whole selection and retries against the run's retry budget.
func (g *Generator) Next() (Edition, error) {
	if g.oneOfOne {
		return g.nextOneOfOne()
	}
	retries := 0
	for {
		pin := g.pin()
		traits, err := g.draw(pin)
		if err != nil {
			return Edition{}, err
		}
		d := g.dnaOf(traits)
		if !g.allowDuplicates && !g.tracker.IsUnique(d) {
			if !g.retries.Spend() {
				return Edition{}, fault.Capacityf(fault.With(fault.Config(g.cfg.Index), fault.Size(g.cfg.Size)),
					"uniqueness retry budget of %d exhausted after %d editions", g.retries.Limit, g.accepted)
			}
			retries++
			log.Debug(log.CatGenerate, "dna collision", "config", g.cfg.Index, "dna", d.Canonical(), "retries", g.retries.Used)
			continue
		}

		var pinned *compat.RuleKey
		if pin != nil {
			key := pin.Key
			pinned = &key
		}
		g.accept(traits, d)
		return Edition{DNA: d, Traits: traits, Pinned: pinned, Retries: retries}, nil
	}
}

// nextOneOfOne accepts the edition made of trait N of every layer, where N
// is the number of editions accepted so far.
func (g *Generator) nextOneOfOne() (Edition, error) {
	n := g.accepted
	traits := make([]*catalog.Trait, len(g.cfg.Layers))
	for li, layer := range g.cfg.Layers {
		if n >= len(layer.Traits) || g.remaining[li][n] <= 0 {
			return Edition{}, fault.Capacityf(fault.With(fault.Config(g.cfg.Index), fault.Layer(layer.Name), fault.Size(g.cfg.Size)),
				"no one-of-one trait left for edition %d", n)
		}
		traits[li] = layer.Traits[n]
	}
	d := g.dnaOf(traits)
	g.accept(traits, d)
	return Edition{DNA: d, Traits: traits}, nil
}

// Replay accepts a previously generated DNA without drawing, so a resumed
// run continues from the same budgets and rule shares.
func (g *Generator) Replay(d DNA) error {
	opts := fault.With(fault.Config(g.cfg.Index))
	if len(d) != len(g.cfg.Layers) {
		return fault.Configf(opts, "dna %q has %d genes, configuration has %d layers", d, len(d), len(g.cfg.Layers))
	}
	traits := make([]*catalog.Trait, len(d))
	for li, gene := range d {
		layer := g.cfg.Layers[li]
		t := layer.Trait(gene.Name)
		if t == nil || t.ID != gene.ID {
			return fault.Configf(append(opts, fault.Layer(layer.Name), fault.Trait(gene.Name)), "dna %q does not match the layer", d)
		}
		if g.remaining[li][t.ID] <= 0 {
			return fault.Configf(append(opts, fault.Layer(layer.Name), fault.Trait(gene.Name)), "replayed dna exceeds the trait's count")
		}
		traits[li] = t
	}
	g.accept(traits, g.dnaOf(traits))
	return nil
}

// pin returns the first active rule whose child still has budget. Rules
// whose child has run out are retired on the way.
func (g *Generator) pin() *compat.Rule {
	for _, rule := range g.reg.ActiveRules(g.cfg.Index) {
		if rule.MaxCount <= 0 {
			continue
		}
		k := rule.Key
		if g.Remaining(k.ChildLayer, k.Child) <= 0 {
			g.reg.Retire(k, 0)
			log.Debug(log.CatCompat, "rule retired", "child", k.Child, "reason", "budget exhausted")
			continue
		}
		return rule
	}
	return nil
}

// draw walks the layers in order and picks one trait per layer.
func (g *Generator) draw(pin *compat.Rule) ([]*catalog.Trait, error) {
	var known []compat.TraitRef
	if pin != nil {
		known = append(known, compat.TraitRef{Layer: pin.Key.ChildLayer, Name: pin.Key.Child})
	}

	traits := make([]*catalog.Trait, len(g.cfg.Layers))
	for li, layer := range g.cfg.Layers {
		pinnedHere := pin != nil && pin.Key.ChildLayer == li

		var names []string
		if pinnedHere {
			names = []string{pin.Key.Child}
		} else {
			names = g.res.Narrow(g.cfg.Index, li, layer.TraitNames(), known)
		}

		var candidates []*catalog.Trait
		total := 0
		for _, name := range names {
			t := layer.Trait(name)
			w := g.remaining[li][t.ID]
			if w <= 0 || !g.viable(li, name, known, pin) || !g.feasible(li, t, traits, pin) {
				continue
			}
			candidates = append(candidates, t)
			total += w
		}
		if total == 0 {
			return nil, fault.Invariantf(fault.With(fault.Config(g.cfg.Index), fault.Layer(layer.Name)),
				"no candidate with remaining budget at edition %d", g.accepted)
		}

		t := g.weighted(li, candidates, total)
		traits[li] = t
		if !pinnedHere {
			known = append(known, compat.TraitRef{Layer: li, Name: t.Name})
		}
	}
	return traits, nil
}

// viable reports whether choosing name in layer li leaves every later
// layer at least one allowed trait with budget, and keeps the pinned
// trait allowed.
func (g *Generator) viable(li int, name string, known []compat.TraitRef, pin *compat.Rule) bool {
	with := append(append(make([]compat.TraitRef, 0, len(known)+1), known...), compat.TraitRef{Layer: li, Name: name})
	for d := li + 1; d < len(g.cfg.Layers); d++ {
		if pin != nil && pin.Key.ChildLayer == d {
			if len(g.res.Narrow(g.cfg.Index, d, []string{pin.Key.Child}, with)) == 0 {
				return false
			}
			continue
		}
		layer := g.cfg.Layers[d]
		ok := false
		for _, n := range g.res.Narrow(g.cfg.Index, d, layer.TraitNames(), with) {
			if g.remaining[d][layer.Trait(n).ID] > 0 {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// feasible reports whether charging t in layer li, together with the
// trait already fixed at the other end of each coupling, still lets the
// coupled layers pair off their remaining budgets. A coupling whose other
// end is not yet known is skipped: any parent with budget left has at
// least one child it can still be paired with.
func (g *Generator) feasible(li int, t *catalog.Trait, chosen []*catalog.Trait, pin *compat.Rule) bool {
	for _, c := range g.couplings {
		var parent, child int
		switch li {
		case c.ChildLayer:
			other := g.fixed(c.ParentLayer, chosen, pin)
			if other == nil {
				continue
			}
			parent, child = other.ID, t.ID
		case c.ParentLayer:
			other := g.fixed(c.ChildLayer, chosen, pin)
			if other == nil {
				continue
			}
			parent, child = t.ID, other.ID
		default:
			continue
		}
		if !c.Allows(parent, child) {
			return false
		}
		supply := slices.Clone(g.remaining[c.ParentLayer])
		demand := slices.Clone(g.remaining[c.ChildLayer])
		supply[parent]--
		demand[child]--
		if c.Shortfall(supply, demand) != nil {
			return false
		}
	}
	return true
}

// fixed returns the trait already settled for layer in the edition being
// drawn: an earlier choice or the pinned child.
func (g *Generator) fixed(layer int, chosen []*catalog.Trait, pin *compat.Rule) *catalog.Trait {
	if t := chosen[layer]; t != nil {
		return t
	}
	if pin != nil && pin.Key.ChildLayer == layer {
		return g.cfg.Layers[layer].Trait(pin.Key.Child)
	}
	return nil
}

// weighted draws one candidate with probability proportional to its
// remaining budget.
func (g *Generator) weighted(li int, candidates []*catalog.Trait, total int) *catalog.Trait {
	x := g.rng.IntN(total)
	for _, t := range candidates {
		x -= g.remaining[li][t.ID]
		if x < 0 {
			return t
		}
	}
	return candidates[len(candidates)-1]
}

func (g *Generator) dnaOf(traits []*catalog.Trait) DNA {
	d := make(DNA, len(traits))
	for li, t := range traits {
		d[li] = Gene{ID: t.ID, Name: t.Name, Bypass: g.cfg.Layers[li].BypassDNA}
	}
	return d
}

// accept charges the edition against trait budgets and rule shares and
// records its DNA. Each restricted trait is charged to its earliest rule
// with share left, which for a pinned trait is the pinning rule.
func (g *Generator) accept(traits []*catalog.Trait, d DNA) {
	for li, t := range traits {
		g.remaining[li][t.ID]--
		if rule := g.reg.NextRule(g.cfg.Index, li, t.Name); rule != nil {
			if g.reg.Consume(rule.Key, g.remaining[li][t.ID]) {
				log.Debug(log.CatCompat, "rule retired", "child", t.Name, "reason", "share exhausted")
			}
		}
	}
	g.tracker.Record(d)
	g.accepted++
	log.Debug(log.CatGenerate, "edition accepted", "config", g.cfg.Index, "dna", d.String())
}
