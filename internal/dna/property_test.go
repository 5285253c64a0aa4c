package dna

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"pgregory.net/rapid"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/fault"
	"github.com/papapumpkin/strata/internal/reconcile"
)

func drawLayer(t *rapid.T, idx int) *catalog.Layer {
	n := rapid.IntRange(2, 4).Draw(t, fmt.Sprintf("traits%d", idx))
	ts := make([]weighted, n)
	for i := range ts {
		ts[i] = weighted{fmt.Sprintf("T%d_%d", idx, i), rapid.IntRange(1, 50).Draw(t, fmt.Sprintf("w%d_%d", idx, i))}
	}
	return layerOf(idx, fmt.Sprintf("L%d", idx), ts...)
}

// A reconciled configuration with one rule generates its full size
// without violating the rule or overspending any trait.
func TestGenerateHonorsRuleProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		layers := rapid.IntRange(2, 3).Draw(t, "layers")
		cfg := &catalog.Configuration{Size: rapid.IntRange(4, 120).Draw(t, "size")}
		for i := range layers {
			cfg.Layers = append(cfg.Layers, drawLayer(t, i))
		}
		parent := cfg.Layers[0].Traits[rapid.IntRange(0, len(cfg.Layers[0].Traits)-1).Draw(t, "parent")].Name
		child := cfg.Layers[1].Traits[rapid.IntRange(0, len(cfg.Layers[1].Traits)-1).Draw(t, "child")].Name
		forced := rapid.Bool().Draw(t, "forced")

		reg := compat.New([]*catalog.Configuration{cfg})
		var err error
		if forced {
			err = reg.DeclareForcedCombination(child, parent, 0, 1, 0)
		} else {
			err = reg.DeclareIncompatibility(child, parent, 0, 1, 0)
		}
		if err != nil {
			t.Fatalf("declare: %v", err)
		}
		r := reconcile.New(catalog.DefaultLadder(), rand.New(rand.NewPCG(2, 4)), reconcile.WithAllowDuplicates(true))
		if err := r.Reconcile(cfg, reg); err != nil {
			if errors.Is(err, fault.ErrCapacity) || errors.Is(err, fault.ErrConfig) {
				return
			}
			t.Fatalf("Reconcile: %v", err)
		}

		seed := rapid.Uint64().Draw(t, "seed")
		g := NewGenerator(cfg, reg, reg.BuildLayerRestrictions(), NewTracker(), rand.New(rand.NewPCG(seed, seed)), WithAllowDuplicates(true))
		for i := range cfg.Size {
			ed, err := g.Next()
			if err != nil {
				t.Fatalf("edition %d: %v", i, err)
			}
			hasParent := ed.Traits[0].Name == parent
			hasChild := ed.Traits[1].Name == child
			if forced && hasParent != hasChild {
				t.Fatalf("edition %s breaks forced pair %s/%s", ed.DNA, parent, child)
			}
			if !forced && hasParent && hasChild {
				t.Fatalf("edition %s pairs incompatible %s/%s", ed.DNA, parent, child)
			}
		}
		for li, l := range cfg.Layers {
			for _, tr := range l.Traits {
				if left := g.Remaining(li, tr.Name); left != 0 {
					t.Fatalf("trait %s has %d left", tr.Name, left)
				}
			}
		}
	})
}

// Several children excluded from the same parent, plus further random
// exclusions, still generate the full size: reconciliation leaves enough
// compatible editions and each draw keeps the remaining budgets pairable.
func TestGenerateOverlappingIncompatibilitiesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		layers := rapid.IntRange(2, 3).Draw(t, "layers")
		cfg := &catalog.Configuration{Size: rapid.IntRange(4, 120).Draw(t, "size")}
		for i := range layers {
			cfg.Layers = append(cfg.Layers, drawLayer(t, i))
		}
		parents, children := cfg.Layers[0], cfg.Layers[1]
		shared := parents.Traits[rapid.IntRange(0, len(parents.Traits)-1).Draw(t, "shared")].Name

		type pair struct{ parent, child string }
		candidates := []pair{{shared, children.Traits[0].Name}, {shared, children.Traits[1].Name}}
		for i := range rapid.IntRange(0, 4).Draw(t, "extra") {
			p := parents.Traits[rapid.IntRange(0, len(parents.Traits)-1).Draw(t, fmt.Sprintf("parent%d", i))].Name
			c := children.Traits[rapid.IntRange(0, len(children.Traits)-1).Draw(t, fmt.Sprintf("child%d", i))].Name
			candidates = append(candidates, pair{p, c})
		}

		reg := compat.New([]*catalog.Configuration{cfg})
		var excluded []pair
		for _, p := range candidates {
			if err := reg.DeclareIncompatibility(p.child, p.parent, 0, 1, 0); err != nil {
				if errors.Is(err, fault.ErrConstraint) {
					continue
				}
				t.Fatalf("declare: %v", err)
			}
			excluded = append(excluded, p)
		}

		r := reconcile.New(catalog.DefaultLadder(), rand.New(rand.NewPCG(2, 4)), reconcile.WithAllowDuplicates(true))
		if err := r.Reconcile(cfg, reg); err != nil {
			if errors.Is(err, fault.ErrCapacity) {
				return
			}
			t.Fatalf("Reconcile: %v", err)
		}

		seed := rapid.Uint64().Draw(t, "seed")
		g := NewGenerator(cfg, reg, reg.BuildLayerRestrictions(), NewTracker(), rand.New(rand.NewPCG(seed, seed)), WithAllowDuplicates(true))
		for i := range cfg.Size {
			ed, err := g.Next()
			if err != nil {
				t.Fatalf("edition %d: %v", i, err)
			}
			for _, p := range excluded {
				if ed.Traits[0].Name == p.parent && ed.Traits[1].Name == p.child {
					t.Fatalf("edition %s pairs incompatible %s/%s", ed.DNA, p.parent, p.child)
				}
			}
		}
	})
}
