package catalog

import (
	"fmt"
	"strings"

	"github.com/papapumpkin/strata/internal/fault"
)

// Tier is a named rarity band. Thresholds ascend along the ladder.
type Tier struct {
	Name      string `toml:"name" yaml:"name"`
	Threshold int    `toml:"threshold" yaml:"threshold"`
}

// Ladder is the ordered rarity ladder, rarest tier first.
type Ladder []Tier

// DefaultLadder mirrors the common/mythic ratio of 100:1.
func DefaultLadder() Ladder {
	return Ladder{
		{Name: "Mythic", Threshold: 1},
		{Name: "Legendary", Threshold: 6},
		{Name: "Epic", Threshold: 15},
		{Name: "Rare", Threshold: 31},
		{Name: "Uncommon", Threshold: 56},
		{Name: "Common", Threshold: 100},
	}
}

// Lookup returns the index of the tier named name (case-insensitive).
func (l Ladder) Lookup(name string) (int, bool) {
	for i, t := range l {
		if strings.EqualFold(t.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// Band returns the half-open weight band [min, max) of tier i. The rarest
// tier has an empty band at its threshold.
func (l Ladder) Band(i int) (min, max int) {
	if i == 0 {
		return l[0].Threshold, l[0].Threshold
	}
	return l[i-1].Threshold, l[i].Threshold
}

// Validate checks that tier names are unique and thresholds strictly ascend.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return fault.Configf(fault.With(fault.Field("rarity")), "rarity ladder is empty")
	}
	seen := make(map[string]bool, len(l))
	for i, t := range l {
		key := strings.ToLower(t.Name)
		if key == "" {
			return fault.Configf(fault.With(fault.Field("rarity")), "tier %d has no name", i)
		}
		if seen[key] {
			return fault.Configf(fault.With(fault.Field("rarity")), "duplicate tier %q", t.Name)
		}
		seen[key] = true
		if t.Threshold < 1 {
			return fault.Configf(fault.With(fault.Field("rarity")), "tier %q threshold %d must be positive", t.Name, t.Threshold)
		}
		if i > 0 && t.Threshold <= l[i-1].Threshold {
			return fault.Configf(fault.With(fault.Field("rarity")),
				"tier %q threshold %d must exceed %q threshold %d", t.Name, t.Threshold, l[i-1].Name, l[i-1].Threshold)
		}
	}
	return nil
}

// String renders the ladder as "Mythic=1 Legendary=6 ...".
func (l Ladder) String() string {
	parts := make([]string, len(l))
	for i, t := range l {
		parts[i] = fmt.Sprintf("%s=%d", t.Name, t.Threshold)
	}
	return strings.Join(parts, " ")
}
