// Package dna generates the per-edition trait combinations of a
// configuration and tracks their uniqueness across a run.
package dna

import (
	"fmt"
	"strconv"
	"strings"
)

// String form delimiters.
const (
	GeneSeparator = "-"
	idSeparator   = ":"
	bypassSuffix  = "?bypassDNA=true"
)

// Gene is the chosen trait of one layer.
type Gene struct {
	ID     int
	Name   string
	Bypass bool // excluded from uniqueness
}

func (g Gene) String() string {
	s := strconv.Itoa(g.ID) + idSeparator + g.Name
	if g.Bypass {
		s += bypassSuffix
	}
	return s
}

// DNA is the ordered gene list of one edition, one gene per layer.
type DNA []Gene

// String renders "id:name" genes joined by "-", marking bypassed genes.
func (d DNA) String() string {
	parts := make([]string, len(d))
	for i, g := range d {
		parts[i] = g.String()
	}
	return strings.Join(parts, GeneSeparator)
}

// Canonical renders the DNA without bypassed genes. Two editions are
// duplicates when their canonical forms match.
func (d DNA) Canonical() string {
	parts := make([]string, 0, len(d))
	for _, g := range d {
		if !g.Bypass {
			parts = append(parts, strconv.Itoa(g.ID)+idSeparator+g.Name)
		}
	}
	return strings.Join(parts, GeneSeparator)
}

// Parse reads the string form produced by DNA.String.
func Parse(s string) (DNA, error) {
	if s == "" {
		return nil, fmt.Errorf("empty dna")
	}
	parts := strings.Split(s, GeneSeparator)
	d := make(DNA, len(parts))
	for i, p := range parts {
		g := Gene{}
		if rest, ok := strings.CutSuffix(p, bypassSuffix); ok {
			g.Bypass = true
			p = rest
		}
		id, name, ok := strings.Cut(p, idSeparator)
		if !ok || name == "" {
			return nil, fmt.Errorf("gene %d %q: want id:name", i, p)
		}
		n, err := strconv.Atoi(id)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("gene %d %q: bad id", i, p)
		}
		g.ID, g.Name = n, name
		d[i] = g
	}
	return d, nil
}
