package forge

import "sort"

// TraitCount is how often one trait appeared.
type TraitCount struct {
	Name    string  `json:"value"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// LayerBreakdown is the trait distribution of one attribute type.
type LayerBreakdown struct {
	Layer  string       `json:"trait_type"`
	Traits []TraitCount `json:"traits"`
}

// Breakdown tallies the non-excluded attributes of eds per trait type,
// across configurations. Layers appear in first-seen order and traits by
// descending count, then name.
func Breakdown(eds []Edition) []LayerBreakdown {
	type tally struct {
		counts map[string]int
		total  int
	}
	var order []string
	byLayer := map[string]*tally{}
	for _, ed := range eds {
		for _, a := range ed.Attributes {
			if a.Excluded {
				continue
			}
			t, ok := byLayer[a.TraitType]
			if !ok {
				t = &tally{counts: map[string]int{}}
				byLayer[a.TraitType] = t
				order = append(order, a.TraitType)
			}
			t.counts[a.Value]++
			t.total++
		}
	}

	out := make([]LayerBreakdown, 0, len(order))
	for _, name := range order {
		t := byLayer[name]
		lb := LayerBreakdown{Layer: name}
		for v, n := range t.counts {
			lb.Traits = append(lb.Traits, TraitCount{Name: v, Count: n, Percent: 100 * float64(n) / float64(t.total)})
		}
		sort.Slice(lb.Traits, func(i, j int) bool {
			if lb.Traits[i].Count != lb.Traits[j].Count {
				return lb.Traits[i].Count > lb.Traits[j].Count
			}
			return lb.Traits[i].Name < lb.Traits[j].Name
		})
		out = append(out, lb)
	}
	return out
}
