// Package ledger persists the DNA of accepted editions so an interrupted
// run can continue and a later batch can avoid earlier combinations.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Driver identifies a ledger backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver validates a driver name from configuration.
func ParseDriver(s string) (Driver, error) {
	switch d := Driver(s); d {
	case DriverMemory, DriverSQLite, DriverPostgres:
		return d, nil
	case "":
		return DriverMemory, nil
	default:
		return "", fmt.Errorf("unknown ledger driver %q (want memory, sqlite or postgres)", s)
	}
}

// Record is one accepted edition.
type Record struct {
	RunID     string    `json:"run"`
	Seq       int       `json:"seq"` // generation order within the run
	Config    int       `json:"configuration"`
	Edition   int       `json:"edition"`
	DNA       string    `json:"dna"`
	CreatedAt time.Time `json:"created_at"`
}

// Store appends and reads edition records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// Records returns the records of runID ordered by Seq. An empty runID
	// returns every run's records ordered by run then Seq.
	Records(ctx context.Context, runID string) ([]Record, error)
	Close() error
	Driver() Driver
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.Mutex
	recs []Record
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.RunID == rec.RunID && r.Seq == rec.Seq {
			return fmt.Errorf("ledger: record %s/%d already exists", rec.RunID, rec.Seq)
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *Memory) Records(_ context.Context, runID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.recs {
		if runID == "" || r.RunID == runID {
			out = append(out, r)
		}
	}
	Sort(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }

// Sort orders records by run then sequence.
func Sort(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].RunID != recs[j].RunID {
			return recs[i].RunID < recs[j].RunID
		}
		return recs[i].Seq < recs[j].Seq
	})
}

// DNAs returns the DNA strings of recs in order.
func DNAs(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.DNA
	}
	return out
}

// ByConfig groups records by configuration index, keeping their order.
func ByConfig(recs []Record) map[int][]Record {
	out := make(map[int][]Record)
	for _, r := range recs {
		out[r.Config] = append(out[r.Config], r)
	}
	return out
}
