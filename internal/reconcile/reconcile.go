// Package reconcile turns the raw weights of a configuration's traits into
// exact occurrence counts: every layer's counts sum to the configuration
// size, no count exceeds what the compatibility rules and the uniqueness
// requirement allow, and forced pairs share one count.
package reconcile

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/fault"
	"github.com/papapumpkin/strata/internal/log"
)

// Reconciler resolves and scales trait weights for one run.
type Reconciler struct {
	ladder          catalog.Ladder
	rng             *rand.Rand
	exact           bool
	allowDuplicates bool
	zeroCounts      bool
	oneOfOne        bool
	retryBudget     int
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithExactWeight treats raw weights as literal counts.
func WithExactWeight(on bool) Option {
	return func(r *Reconciler) { r.exact = on }
}

// WithAllowDuplicates lifts the per-trait cap implied by uniqueness.
func WithAllowDuplicates(on bool) Option {
	return func(r *Reconciler) { r.allowDuplicates = on }
}

// WithZeroCounts lets a layer hold more traits than editions: traits may
// end with a count of zero and never appear.
func WithZeroCounts(on bool) Option {
	return func(r *Reconciler) { r.zeroCounts = on }
}

// WithOneOfOne gives trait N of every layer to edition N: the first size
// traits of a layer get one edition each and the rest none.
func WithOneOfOne(on bool) Option {
	return func(r *Reconciler) { r.oneOfOne = on }
}

// WithRetryBudget bounds the number of ±1 adjustments per layer.
func WithRetryBudget(n int) Option {
	return func(r *Reconciler) { r.retryBudget = n }
}

// New creates a Reconciler. rng draws weights for rarity tier names.
func New(ladder catalog.Ladder, rng *rand.Rand, opts ...Option) *Reconciler {
	r := &Reconciler{
		ladder:      ladder,
		rng:         rng,
		retryBudget: catalog.DefaultRetryBudget,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveWeight converts a raw weight token into an integer. Numbers pass
// through. A tier name draws uniformly from [previous threshold, threshold),
// except the rarest tier which resolves to its threshold.
func (r *Reconciler) ResolveWeight(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0, fault.Configf(fault.With(fault.Field("weight")), "negative weight %d", n)
		}
		return n, nil
	}
	i, ok := r.ladder.Lookup(raw)
	if !ok {
		return 0, fault.Configf(fault.With(fault.Field("weight")), "unknown rarity %q", raw)
	}
	lo, hi := r.ladder.Band(i)
	if hi <= lo {
		return lo, nil
	}
	return lo + r.rng.IntN(hi-lo), nil
}

// Reconcile assigns the final Weight of every trait in cfg, layer by layer
// in declared order, then splits restricted children's counts across their
// rules. Parents always precede their children, so a child's caps are
// computed from final parent counts.
func (r *Reconciler) Reconcile(cfg *catalog.Configuration, reg *compat.Registry) error {
	weight := func(layer int, trait string) int {
		if t := cfg.Layers[layer].Trait(trait); t != nil {
			return t.Weight
		}
		return 0
	}

	for li, layer := range cfg.Layers {
		if err := r.reconcileLayer(cfg, li, layer, reg, weight); err != nil {
			return err
		}
		log.Debug(log.CatReconcile, "layer reconciled", "config", cfg.Index, "layer", layer.Name, "weights", weightsOf(layer))
	}
	reg.ReconcileMaxCounts(cfg.Index, weight)
	return nil
}

func (r *Reconciler) reconcileLayer(cfg *catalog.Configuration, li int, layer *catalog.Layer, reg *compat.Registry, weight compat.WeightFunc) error {
	opts := fault.With(fault.Config(cfg.Index), fault.Layer(layer.Name), fault.Size(cfg.Size))
	if r.oneOfOne {
		return r.applyOneOfOne(cfg, layer, opts)
	}
	if !r.zeroCounts && len(layer.Traits) > cfg.Size {
		return fault.Configf(append(opts, fault.Field("size")),
			"%d distinct traits cannot fit %d editions", len(layer.Traits), cfg.Size)
	}

	raws := make([]int, len(layer.Traits))
	for i, t := range layer.Traits {
		t.Locked = false
		if r.exact {
			n, err := strconv.Atoi(t.RawWeight)
			if err != nil || n < 0 {
				return fault.Configf(append(opts, fault.Trait(t.Name), fault.Field("weight")),
					"exact weight %q is not a count", t.RawWeight)
			}
			raws[i] = n
			continue
		}
		n, err := r.ResolveWeight(t.RawWeight)
		if err != nil {
			return fault.Annotate(err, append(opts, fault.Trait(t.Name))...)
		}
		raws[i] = n
	}

	// Forced children copy their parent's final count.
	for i, t := range layer.Traits {
		for _, rule := range reg.RulesFor(cfg.Index, li, t.Name) {
			if !rule.Forced {
				continue
			}
			parent := cfg.Layers[rule.Key.ParentLayer].Trait(rule.ForcedParent())
			if r.exact && raws[i] != parent.Weight {
				return fault.Configf(append(opts, fault.Trait(t.Name), fault.Field("weight")),
					"exact count %d differs from the %d of forced parent %s", raws[i], parent.Weight, parent.Name)
			}
			parent.Locked = true
			raws[i] = parent.Weight
			t.Locked = true
		}
	}

	caps := make([]int, len(layer.Traits))
	for i, t := range layer.Traits {
		caps[i] = r.adjustedMax(cfg, li, t.Name, reg, weight)
		if t.Locked && raws[i] > caps[i] {
			return fault.Capacityf(append(opts, fault.Trait(t.Name)),
				"forced count %d exceeds the trait's maximum %d", raws[i], caps[i])
		}
	}

	var err error
	if r.exact {
		err = r.applyExact(layer, raws, caps, cfg.Size, opts)
	} else {
		err = r.applyProportional(layer, raws, caps, cfg.Size, opts)
	}
	if err != nil {
		return err
	}
	return r.cover(cfg, li, layer, reg, caps, opts)
}

// floor is the smallest count an unlocked trait may receive.
func (r *Reconciler) floor() int {
	if r.zeroCounts {
		return 0
	}
	return 1
}

// adjustedMax is the largest count a trait may receive: the configuration
// size, the number of distinct combinations it can take part in when
// duplicates are disallowed, and the capacity of its allowed parents.
func (r *Reconciler) adjustedMax(cfg *catalog.Configuration, li int, trait string, reg *compat.Registry, weight compat.WeightFunc) int {
	limit := cfg.Size
	if !r.allowDuplicates && !cfg.Layers[li].BypassDNA {
		combos := 1
		for i, l := range cfg.Layers {
			if i == li || l.BypassDNA {
				continue
			}
			if combos > math.MaxInt/len(l.Traits) {
				combos = math.MaxInt
				break
			}
			combos *= len(l.Traits)
		}
		limit = min(limit, combos)
	}
	if parents, ok := reg.ParentCap(cfg.Index, li, trait, weight); ok {
		limit = min(limit, parents)
	}
	return limit
}

func (r *Reconciler) applyOneOfOne(cfg *catalog.Configuration, layer *catalog.Layer, opts []fault.Option) error {
	if len(layer.Traits) < cfg.Size {
		return fault.Configf(append(opts, fault.Field("size")),
			"one-of-one needs a trait per edition: %d traits for %d editions", len(layer.Traits), cfg.Size)
	}
	for i, t := range layer.Traits {
		t.Locked = true
		t.Weight = 0
		if i < cfg.Size {
			t.Weight = 1
		}
	}
	return nil
}

func (r *Reconciler) applyExact(layer *catalog.Layer, counts, caps []int, size int, opts []fault.Option) error {
	sum := 0
	for i, t := range layer.Traits {
		if counts[i] > caps[i] {
			return fault.Configf(append(opts, fault.Trait(t.Name), fault.Field("weight")),
				"exact count %d exceeds the trait's maximum %d", counts[i], caps[i])
		}
		sum += counts[i]
	}
	if sum != size {
		return fault.Configf(append(opts, fault.Field("weight")), "exact counts sum to %d, want %d", sum, size)
	}
	for i, t := range layer.Traits {
		t.Weight = counts[i]
	}
	return nil
}

func (r *Reconciler) applyProportional(layer *catalog.Layer, raws, caps []int, size int, opts []fault.Option) error {
	target, rawSum, unlocked, capSum := size, 0, 0, 0
	for i, t := range layer.Traits {
		if t.Locked {
			target -= raws[i]
			continue
		}
		rawSum += raws[i]
		capSum += caps[i]
		unlocked++
	}
	if target < unlocked*r.floor() || target < 0 {
		return fault.Capacityf(opts, "%d editions left for %d unlocked traits after forced counts", max(target, 0), unlocked)
	}
	if capSum < target {
		return fault.Capacityf(opts, "trait maxima sum to %d, below the %d editions to fill", capSum, target)
	}

	counts := make([]int, len(raws))
	current := 0
	for i, t := range layer.Traits {
		if t.Locked {
			counts[i] = raws[i]
			continue
		}
		var n int
		if rawSum == 0 {
			n = int(math.Round(float64(target) / float64(unlocked)))
		} else {
			n = int(math.Round(float64(raws[i]) * float64(target) / float64(rawSum)))
		}
		n = min(max(n, r.floor()), caps[i])
		counts[i] = n
		current += n
	}

	if err := r.redistribute(layer, counts, caps, target-current, opts); err != nil {
		return err
	}
	for i, t := range layer.Traits {
		t.Weight = counts[i]
	}
	return nil
}

// redistribute moves diff toward zero one unit at a time across unlocked
// traits, in trait order, skipping traits at their floor or cap.
func (r *Reconciler) redistribute(layer *catalog.Layer, counts, caps []int, diff int, opts []fault.Option) error {
	attempts := 0
	for diff != 0 {
		moved := false
		for i, t := range layer.Traits {
			if diff == 0 {
				break
			}
			if t.Locked {
				continue
			}
			if attempts >= r.retryBudget {
				return fault.Capacityf(opts, "redistribution exhausted its budget of %d with %+d left", r.retryBudget, diff)
			}
			switch {
			case diff > 0 && counts[i] < caps[i]:
				counts[i]++
				diff--
			case diff < 0 && counts[i] > r.floor():
				counts[i]--
				diff++
			default:
				continue
			}
			attempts++
			moved = true
		}
		if !moved && diff != 0 {
			return fault.Capacityf(opts, "no trait can absorb the remaining %+d", diff)
		}
	}
	if attempts > 0 {
		log.Debug(log.CatReconcile, "weights redistributed", "layer", layer.Name, "adjustments", attempts)
	}
	return nil
}

// cover shifts counts within a child layer until, for every parent layer
// it shares rules with, each parent occurrence can be paired with an
// allowed child occurrence. Each step moves one unit from a child that no
// short parent accepts to the accepting child with the most headroom.
// Exact counts are never moved.
func (r *Reconciler) cover(cfg *catalog.Configuration, li int, layer *catalog.Layer, reg *compat.Registry, caps []int, opts []fault.Option) error {
	var couplings []*compat.Coupling
	for _, c := range reg.Couplings(cfg.Index) {
		if c.ChildLayer == li {
			couplings = append(couplings, c)
		}
	}

	moves := 0
	for {
		c, short := shortfall(cfg, layer, couplings)
		if c == nil {
			break
		}
		parents := cfg.Layers[c.ParentLayer]
		names := make([]string, len(short))
		for i, p := range short {
			names[i] = parents.Traits[p].Name
		}
		if r.exact {
			return fault.Configf(append(opts, fault.Field("weight")),
				"exact counts leave too few compatible traits for %s of layer %s", strings.Join(names, ", "), parents.Name)
		}

		from, to := -1, -1
		for i, t := range layer.Traits {
			if t.Locked {
				continue
			}
			if c.Serves(short, t.ID) {
				if t.Weight < caps[i] && (to < 0 || caps[i]-t.Weight > caps[to]-layer.Traits[to].Weight) {
					to = i
				}
			} else if t.Weight > r.floor() && (from < 0 || t.Weight > layer.Traits[from].Weight) {
				from = i
			}
		}
		if from < 0 || to < 0 || moves >= r.retryBudget {
			return fault.Capacityf(opts, "%s of layer %s need more editions than their compatible traits can cover",
				strings.Join(names, ", "), parents.Name)
		}
		layer.Traits[from].Weight--
		layer.Traits[to].Weight++
		moves++
	}
	if moves > 0 {
		log.Debug(log.CatReconcile, "counts shifted toward compatible traits", "layer", layer.Name, "moves", moves)
	}
	return nil
}

// shortfall returns the first coupling whose parent counts cannot be
// paired with the layer's current counts, and the parents left short.
func shortfall(cfg *catalog.Configuration, layer *catalog.Layer, couplings []*compat.Coupling) (*compat.Coupling, []int) {
	demand := countsOf(layer)
	for _, c := range couplings {
		if short := c.Shortfall(countsOf(cfg.Layers[c.ParentLayer]), demand); short != nil {
			return c, short
		}
	}
	return nil, nil
}

func countsOf(layer *catalog.Layer) []int {
	out := make([]int, len(layer.Traits))
	for _, t := range layer.Traits {
		out[t.ID] = t.Weight
	}
	return out
}

func weightsOf(layer *catalog.Layer) map[string]int {
	out := make(map[string]int, len(layer.Traits))
	for _, t := range layer.Traits {
		out[t.Name] = t.Weight
	}
	return out
}
