package dna

import (
	"fmt"
	"sort"
)

// Tracker records the canonical DNA of every accepted edition. It grows
// monotonically for the lifetime of a run.
type Tracker struct {
	seen map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]struct{})}
}

// IsUnique reports whether d's canonical form has not been recorded.
func (t *Tracker) IsUnique(d DNA) bool {
	_, ok := t.seen[d.Canonical()]
	return !ok
}

// Record inserts d's canonical form. It reports false when the form was
// already present.
func (t *Tracker) Record(d DNA) bool {
	key := d.Canonical()
	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}

// Seed records DNA strings from a prior run's export.
func (t *Tracker) Seed(dnas []string) error {
	for i, s := range dnas {
		d, err := Parse(s)
		if err != nil {
			return fmt.Errorf("seed entry %d: %w", i, err)
		}
		t.Record(d)
	}
	return nil
}

// Export returns the recorded canonical forms, sorted.
func (t *Tracker) Export() []string {
	out := make([]string, 0, len(t.seen))
	for k := range t.seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of recorded forms.
func (t *Tracker) Len() int { return len(t.seen) }
