// Package catalog models the layer catalog consumed by the trait engine:
// ordered layers, their traits and rarity tokens, the configurations that
// partition a collection, and the declared compatibility rules. It loads
// that model from a TOML or YAML manifest and, for layers without inline
// traits, from a directory of trait files.
package catalog

import "strings"

// Default values applied when the manifest omits them.
const (
	DefaultBlend       = "source-over"
	DefaultOpacity     = 1.0
	DefaultRetryBudget = 10000
)

// Trait is one selectable option within a layer.
type Trait struct {
	ID        int    // stable index within the layer
	Name      string // canonical name, unique within the layer
	RawWeight string // numeric weight or rarity tier name
	Weight    int    // resolved integer weight (occurrence count after reconciliation)
	Locked    bool   // excluded from scaling and redistribution
	ZIndex    int
	File      string // asset file name, passed through to renderers
}

// Layer is one composition slot of a configuration.
type Layer struct {
	Index         int
	Name          string // display name used for attributes
	Source        string // manifest name, also the asset directory name
	Blend         string
	Opacity       float64
	Exclude       bool // attribute is excluded from metadata
	BypassDNA     bool // layer choice does not count toward uniqueness
	ConditionalOn []string
	Traits        []*Trait

	byName map[string]*Trait
}

// NewLayer builds a layer and indexes its traits by name. Trait IDs are
// assigned from their slice position.
func NewLayer(index int, name string, traits []*Trait) *Layer {
	l := &Layer{
		Index:   index,
		Name:    name,
		Source:  name,
		Blend:   DefaultBlend,
		Opacity: DefaultOpacity,
		Traits:  traits,
	}
	l.reindex()
	return l
}

func (l *Layer) reindex() {
	l.byName = make(map[string]*Trait, len(l.Traits))
	for i, t := range l.Traits {
		t.ID = i
		l.byName[t.Name] = t
	}
}

// Trait returns the trait with the given name, or nil.
func (l *Layer) Trait(name string) *Trait {
	if l.byName == nil {
		l.reindex()
	}
	return l.byName[name]
}

// TraitNames returns trait names in declaration order.
func (l *Layer) TraitNames() []string {
	names := make([]string, len(l.Traits))
	for i, t := range l.Traits {
		names[i] = t.Name
	}
	return names
}

// TotalWeight sums the resolved weights of the layer.
func (l *Layer) TotalWeight() int {
	total := 0
	for _, t := range l.Traits {
		total += t.Weight
	}
	return total
}

// Configuration is an ordered layer stack with its target edition count.
type Configuration struct {
	Index       int
	Size        int
	NamePrefix  string
	Description string
	Layers      []*Layer
}

// LayerIndex returns the position of the layer whose source or display
// name matches name, or -1.
func (c *Configuration) LayerIndex(name string) int {
	for i, l := range c.Layers {
		if l.Source == name || l.Name == name {
			return i
		}
	}
	return -1
}

// Layer returns the layer at idx, or nil when out of range.
func (c *Configuration) Layer(idx int) *Layer {
	if idx < 0 || idx >= len(c.Layers) {
		return nil
	}
	return c.Layers[idx]
}

// RuleKind distinguishes incompatibility rules from forced combinations.
type RuleKind string

const (
	// RuleIncompatible forbids child from co-occurring with parent.
	RuleIncompatible RuleKind = "incompatible"
	// RuleForced requires child and parent to co-occur exclusively.
	RuleForced RuleKind = "forced"
)

// RuleSpec is one declared rule. Layers are referenced by name within the
// configuration at index Config.
type RuleSpec struct {
	Kind        RuleKind `toml:"kind" yaml:"kind"`
	Config      int      `toml:"configuration" yaml:"configuration"`
	Child       string   `toml:"child" yaml:"child"`
	ChildLayer  string   `toml:"child_layer" yaml:"child_layer"`
	Parent      string   `toml:"parent" yaml:"parent"`
	ParentLayer string   `toml:"parent_layer" yaml:"parent_layer"`
}

// Collection is the fully built catalog for one generation run.
type Collection struct {
	Name                 string
	Size                 int
	ExactWeight          bool
	AllowDuplicates      bool
	RetryBudget          int
	StartNumber          int
	Resume               int
	ShuffleEditions      bool
	OneOfOne             bool
	BypassZeroProtection bool
	LayersDir            string
	ExcludeFromMetadata  []string
	Ladder               Ladder
	Configurations       []*Configuration
	Rules                []RuleSpec
}

// Excluded reports whether a trait name is excluded from metadata.
func (c *Collection) Excluded(traitName string) bool {
	for _, name := range c.ExcludeFromMetadata {
		if strings.EqualFold(name, traitName) {
			return true
		}
	}
	return false
}

// EditionNumbers returns the edition numbers assigned in generation order,
// starting at StartNumber and offset by Resume.
func (c *Collection) EditionNumbers() []int {
	nums := make([]int, c.Size)
	for i := range nums {
		nums[i] = c.StartNumber + c.Resume + i
	}
	return nums
}
