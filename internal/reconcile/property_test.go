package reconcile

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"testing"

	"pgregory.net/rapid"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/fault"
)

func genLayer(t *rapid.T, idx, maxTraits int) *catalog.Layer {
	n := rapid.IntRange(1, maxTraits).Draw(t, fmt.Sprintf("traits%d", idx))
	specs := make([]traitSpec, n)
	for i := range specs {
		w := rapid.IntRange(0, 100).Draw(t, fmt.Sprintf("w%d_%d", idx, i))
		specs[i] = traitSpec{name: fmt.Sprintf("T%d_%d", idx, i), raw: strconv.Itoa(w)}
	}
	return newLayer(idx, fmt.Sprintf("L%d", idx), specs...)
}

// Every layer sums to the configuration size and every count stays in
// [1, adjusted maximum].
func TestReconcileSumAndCapsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		layers := rapid.IntRange(1, 4).Draw(t, "layers")
		cfg := &catalog.Configuration{}
		maxTraits := 0
		for i := range layers {
			l := genLayer(t, i, 6)
			maxTraits = max(maxTraits, len(l.Traits))
			cfg.Layers = append(cfg.Layers, l)
		}
		cfg.Size = rapid.IntRange(maxTraits, 300).Draw(t, "size")
		allowDup := rapid.Bool().Draw(t, "allowDuplicates")

		r := New(catalog.DefaultLadder(), rand.New(rand.NewPCG(7, 7)), WithAllowDuplicates(allowDup))
		err := r.Reconcile(cfg, compat.New([]*catalog.Configuration{cfg}))
		if err != nil {
			if !allowDup && errors.Is(err, fault.ErrCapacity) {
				// Too few combinations for the requested size.
				return
			}
			t.Fatalf("Reconcile: %v", err)
		}

		for li, l := range cfg.Layers {
			if got := l.TotalWeight(); got != cfg.Size {
				t.Fatalf("layer %s sums to %d, want %d", l.Name, got, cfg.Size)
			}
			for _, tr := range l.Traits {
				limit := r.adjustedMax(cfg, li, tr.Name, compat.New(nil), nil)
				if tr.Weight < 1 || tr.Weight > limit {
					t.Fatalf("trait %s weight %d outside [1, %d]", tr.Name, tr.Weight, limit)
				}
			}
		}
	})
}

// A forced child always carries its parent's count; an incompatible child
// never exceeds the count of the parents it may appear with.
func TestReconcileRuleProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		parent := genLayer(t, 0, 5)
		child := genLayer(t, 1, 5)
		if len(parent.Traits) < 2 || len(child.Traits) < 2 {
			t.Skip("rules need two traits per layer")
		}
		cfg := &catalog.Configuration{Layers: []*catalog.Layer{parent, child}}
		cfg.Size = rapid.IntRange(5, 200).Draw(t, "size")

		reg := compat.New([]*catalog.Configuration{cfg})
		p := parent.Traits[rapid.IntRange(0, len(parent.Traits)-1).Draw(t, "parent")].Name
		c := child.Traits[rapid.IntRange(0, len(child.Traits)-1).Draw(t, "child")].Name
		forced := rapid.Bool().Draw(t, "forced")
		if forced {
			if err := reg.DeclareForcedCombination(c, p, 0, 1, 0); err != nil {
				t.Fatalf("DeclareForcedCombination: %v", err)
			}
		} else if err := reg.DeclareIncompatibility(c, p, 0, 1, 0); err != nil {
			t.Fatalf("DeclareIncompatibility: %v", err)
		}

		r := New(catalog.DefaultLadder(), rand.New(rand.NewPCG(3, 9)), WithAllowDuplicates(true))
		if err := r.Reconcile(cfg, reg); err != nil {
			if errors.Is(err, fault.ErrCapacity) || errors.Is(err, fault.ErrConfig) {
				return
			}
			t.Fatalf("Reconcile: %v", err)
		}

		pw, cw := parent.Trait(p).Weight, child.Trait(c).Weight
		if forced && pw != cw {
			t.Fatalf("forced pair weights differ: parent %d, child %d", pw, cw)
		}
		if !forced && cw > cfg.Size-pw {
			t.Fatalf("incompatible child weight %d exceeds %d", cw, cfg.Size-pw)
		}
		rule := reg.Rules()[0]
		if rule.MaxCount != cw {
			t.Fatalf("rule maxCount %d, child weight %d", rule.MaxCount, cw)
		}
		for _, l := range cfg.Layers {
			if l.TotalWeight() != cfg.Size {
				t.Fatalf("layer %s sums to %d, want %d", l.Name, l.TotalWeight(), cfg.Size)
			}
		}
	})
}
