package forge

import (
	"path/filepath"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/dna"
)

// Edition is one accepted edition with the attributes a renderer or a
// metadata writer needs.
type Edition struct {
	Seq        int // generation order within the run
	Number     int // published edition number
	Config     int
	Name       string // configuration name prefix plus number
	DNA        dna.DNA
	Attributes []Attribute
	Pinned     *compat.RuleKey
	Retries    int
	Replayed   bool
}

// Attribute is the chosen trait of one layer, with its compositing hints
// passed through untouched.
type Attribute struct {
	TraitType string  `json:"trait_type"`
	Value     string  `json:"value"`
	Excluded  bool    `json:"excluded,omitempty"`
	Blend     string  `json:"blend"`
	Opacity   float64 `json:"opacity"`
	ZIndex    int     `json:"z_index"`
	Path      string  `json:"path,omitempty"`
}

// attributes builds the attribute list of traits chosen for cfg.
func attributes(col *catalog.Collection, cfg *catalog.Configuration, traits []*catalog.Trait) []Attribute {
	out := make([]Attribute, len(traits))
	for li, t := range traits {
		layer := cfg.Layers[li]
		out[li] = Attribute{
			TraitType: layer.Name,
			Value:     t.Name,
			Excluded:  layer.Exclude || col.Excluded(t.Name),
			Blend:     layer.Blend,
			Opacity:   layer.Opacity,
			ZIndex:    t.ZIndex,
			Path:      AssetPath(col.LayersDir, cfg, li, traits),
		}
	}
	return out
}

// AssetPath locates the asset of layer li. A layer conditional on other
// layers keeps one variant per parent choice, nested in layer order over
// all of its conditional ancestors, including the parents of a conditional
// parent: <dir>/<Layer>/<Parent>/<ParentTrait>/<file>. Returns "" when the
// trait has no file.
func AssetPath(dir string, cfg *catalog.Configuration, li int, traits []*catalog.Trait) string {
	layer := cfg.Layers[li]
	t := traits[li]
	if t.File == "" {
		return ""
	}
	parts := []string{dir, layer.Source}
	for _, pi := range cfg.ConditionalAncestors(li) {
		if pi < 0 || pi >= len(traits) || traits[pi] == nil {
			continue
		}
		parts = append(parts, cfg.Layers[pi].Source, traits[pi].Name)
	}
	parts = append(parts, t.File)
	return filepath.Join(parts...)
}

// traitsOf resolves the traits named by d in cfg.
func traitsOf(cfg *catalog.Configuration, d dna.DNA) []*catalog.Trait {
	out := make([]*catalog.Trait, len(d))
	for li, g := range d {
		out[li] = cfg.Layers[li].Trait(g.Name)
	}
	return out
}
