package catalog

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/papapumpkin/strata/internal/fault"
)

// Format identifies a manifest encoding.
type Format string

// Supported manifest formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFor returns the manifest format implied by a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fault.Configf(fault.With(fault.Field("manifest")), "unsupported manifest extension %q", filepath.Ext(path))
	}
}

// Manifest is the raw on-disk description of a collection.
type Manifest struct {
	Collection     CollectionSection `toml:"collection" yaml:"collection"`
	Rarity         []Tier            `toml:"rarity" yaml:"rarity"`
	Configurations []ConfigSection   `toml:"configurations" yaml:"configurations"`
	Rules          []RuleSpec        `toml:"rules" yaml:"rules"`

	// Dir is the directory the manifest was loaded from. Relative layer
	// directories resolve against it.
	Dir string `toml:"-" yaml:"-"`
}

// CollectionSection holds collection-wide scalars.
type CollectionSection struct {
	Name                 string   `toml:"name" yaml:"name"`
	Size                 int      `toml:"size" yaml:"size"`
	ExactWeight          bool     `toml:"exact_weight" yaml:"exact_weight"`
	AllowDuplicates      bool     `toml:"allow_duplicates" yaml:"allow_duplicates"`
	RetryBudget          int      `toml:"retry_budget" yaml:"retry_budget"`
	LayersDir            string   `toml:"layers_dir" yaml:"layers_dir"`
	ExcludeFromMetadata  []string `toml:"exclude_from_metadata" yaml:"exclude_from_metadata"`
	StartNumber          int      `toml:"start_number" yaml:"start_number"`
	Resume               int      `toml:"resume" yaml:"resume"`
	ShuffleEditions      bool     `toml:"shuffle_editions" yaml:"shuffle_editions"`
	OneOfOne             bool     `toml:"one_of_one" yaml:"one_of_one"`
	BypassZeroProtection bool     `toml:"bypass_zero_protection" yaml:"bypass_zero_protection"`
}

// ConfigSection describes one layer configuration.
type ConfigSection struct {
	Size        int            `toml:"size" yaml:"size"`
	NamePrefix  string         `toml:"name_prefix" yaml:"name_prefix"`
	Description string         `toml:"description" yaml:"description"`
	Layers      []LayerSection `toml:"layers" yaml:"layers"`
}

// LayerSection describes one layer. When Traits is empty the layer is
// scanned from LayersDir/Name.
type LayerSection struct {
	Name          string         `toml:"name" yaml:"name"`
	DisplayName   string         `toml:"display_name" yaml:"display_name"`
	Blend         string         `toml:"blend" yaml:"blend"`
	Opacity       *float64       `toml:"opacity" yaml:"opacity"`
	Exclude       bool           `toml:"exclude" yaml:"exclude"`
	BypassDNA     bool           `toml:"bypass_dna" yaml:"bypass_dna"`
	ConditionalOn []string       `toml:"conditional_on" yaml:"conditional_on"`
	Traits        []TraitSection `toml:"traits" yaml:"traits"`
}

// TraitSection is an inline trait. Weight may be a number or a tier name.
type TraitSection struct {
	Name   string `toml:"name" yaml:"name"`
	Weight any    `toml:"weight" yaml:"weight"`
	ZIndex *int   `toml:"z_index" yaml:"z_index"`
	File   string `toml:"file" yaml:"file"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := ParseManifest(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// ParseManifest decodes manifest bytes in the given format.
func ParseManifest(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fault.Configf(fault.With(fault.Field("manifest")), "parsing toml: %v", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return nil, fault.Configf(fault.With(fault.Field("manifest")), "parsing yaml: %v", err)
		}
	default:
		return nil, fault.Configf(fault.With(fault.Field("manifest")), "unknown format %q", format)
	}
	return &m, nil
}

// Build resolves the manifest into a Collection: defaults are applied,
// layers without inline traits are scanned from disk, and the result is
// validated. Every validation problem is reported, joined into one error.
func (m *Manifest) Build() (*Collection, error) {
	c := &Collection{
		Name:                 m.Collection.Name,
		Size:                 m.Collection.Size,
		ExactWeight:          m.Collection.ExactWeight,
		AllowDuplicates:      m.Collection.AllowDuplicates,
		RetryBudget:          m.Collection.RetryBudget,
		StartNumber:          m.Collection.StartNumber,
		Resume:               m.Collection.Resume,
		ShuffleEditions:      m.Collection.ShuffleEditions,
		OneOfOne:             m.Collection.OneOfOne,
		BypassZeroProtection: m.Collection.BypassZeroProtection,
		LayersDir:            m.layersDir(),
		ExcludeFromMetadata:  m.Collection.ExcludeFromMetadata,
		Ladder:               Ladder(m.Rarity),
		Rules:                m.Rules,
	}
	if c.RetryBudget == 0 {
		c.RetryBudget = DefaultRetryBudget
	}
	if c.ExcludeFromMetadata == nil {
		c.ExcludeFromMetadata = []string{"None"}
	}
	if len(c.Ladder) == 0 {
		c.Ladder = DefaultLadder()
	}

	for ci, cs := range m.Configurations {
		cfg := &Configuration{
			Index:       ci,
			Size:        cs.Size,
			NamePrefix:  cs.NamePrefix,
			Description: cs.Description,
		}
		for li, ls := range cs.Layers {
			layer, err := m.buildLayer(ci, li, ls, c.LayersDir)
			if err != nil {
				return nil, err
			}
			cfg.Layers = append(cfg.Layers, layer)
		}
		c.Configurations = append(c.Configurations, cfg)
	}

	if errs := Validate(c); len(errs) > 0 {
		return nil, joinErrors(errs)
	}
	return c, nil
}

func (m *Manifest) layersDir() string {
	dir := m.Collection.LayersDir
	if dir == "" {
		dir = "layers"
	}
	if !filepath.IsAbs(dir) && m.Dir != "" {
		dir = filepath.Join(m.Dir, dir)
	}
	return dir
}

func (m *Manifest) buildLayer(ci, li int, ls LayerSection, layersDir string) (*Layer, error) {
	var traits []*Trait
	if len(ls.Traits) == 0 {
		scanned, err := ScanLayer(filepath.Join(layersDir, ls.Name), li)
		if err != nil {
			return nil, fault.Configf(fault.With(fault.Config(ci), fault.Layer(ls.Name)), "scanning layer: %v", err)
		}
		traits = scanned
	} else {
		for _, ts := range ls.Traits {
			raw, err := weightToken(ts.Weight)
			if err != nil {
				return nil, fault.Configf(fault.With(fault.Config(ci), fault.Layer(ls.Name), fault.Trait(ts.Name), fault.Field("weight")), "%v", err)
			}
			z := li * 10
			if ts.ZIndex != nil {
				z = *ts.ZIndex
			}
			traits = append(traits, &Trait{Name: ts.Name, RawWeight: raw, ZIndex: z, File: ts.File})
		}
	}

	name := ls.Name
	if ls.DisplayName != "" {
		name = ls.DisplayName
	}
	layer := NewLayer(li, name, traits)
	layer.Source = ls.Name
	if ls.Blend != "" {
		layer.Blend = ls.Blend
	}
	if ls.Opacity != nil {
		layer.Opacity = *ls.Opacity
	}
	layer.Exclude = ls.Exclude
	layer.BypassDNA = ls.BypassDNA
	layer.ConditionalOn = ls.ConditionalOn
	return layer, nil
}

// weightToken normalizes a decoded weight into its raw string token.
// go-toml decodes integers as int64, yaml.v3 as int.
func weightToken(v any) (string, error) {
	switch w := v.(type) {
	case nil:
		return "1", nil
	case string:
		return strings.TrimSpace(w), nil
	case int:
		return strconv.Itoa(w), nil
	case int64:
		return strconv.FormatInt(w, 10), nil
	case uint64:
		return strconv.FormatUint(w, 10), nil
	case float64:
		if w != math.Trunc(w) {
			return "", fmt.Errorf("weight %v is not an integer", w)
		}
		return strconv.FormatInt(int64(w), 10), nil
	default:
		return "", fmt.Errorf("unsupported weight type %T", v)
	}
}
