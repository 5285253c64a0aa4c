package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Delimiters of the trait file naming convention "z10$Name#Weight.png".
const (
	WeightDelimiter = "#"
	ZIndexDelimiter = "$"
)

// reservedRunes may not appear in trait names: they delimit genes in DNA.
const reservedRunes = "-:?"

// ParseTraitFile splits a trait file name into its name, raw weight token
// and z-index. hasZ is false when the name carries no z-index prefix or
// the prefix is not numeric.
func ParseTraitFile(file string) (name, weight string, z int, hasZ bool) {
	base := file
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}

	weight = "1"
	if i := strings.LastIndex(base, WeightDelimiter); i >= 0 {
		if w := strings.TrimSpace(base[i+1:]); w != "" {
			weight = w
		}
		base = base[:strings.Index(base, WeightDelimiter)]
	}

	name = base
	if i := strings.LastIndex(base, ZIndexDelimiter); i >= 0 {
		name = base[i+1:]
		prefix := base[:strings.Index(base, ZIndexDelimiter)]
		if len(prefix) > 1 {
			if n, err := strconv.Atoi(prefix[1:]); err == nil {
				z, hasZ = n, true
			}
		}
	}
	return name, weight, z, hasZ
}

// ScanLayer reads the trait files of one layer directory. Hidden files and
// subdirectories are skipped. Traits without a z-index prefix default to
// layerIndex*10.
func ScanLayer(dir string, layerIndex int) ([]*Trait, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var traits []*Trait
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name, weight, z, hasZ := ParseTraitFile(e.Name())
		if !hasZ {
			z = layerIndex * 10
		}
		traits = append(traits, &Trait{
			Name:      name,
			RawWeight: weight,
			ZIndex:    z,
			File:      filepath.Join(dir, e.Name()),
		})
	}
	if len(traits) == 0 {
		return nil, fmt.Errorf("no trait files in %s", dir)
	}
	return traits, nil
}
