// Package export writes run artifacts (the compatibility audit and the DNA
// list) to a blob store and reads DNA lists back for resumed batches.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/ledger"
)

// Driver identifies a blob backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// Artifact keys, relative to the run prefix.
const (
	AuditKey = "compatibility/compatibility.json"
	DNAKey   = "dna.json"
)

const contentTypeJSON = "application/json"

// Info describes a stored object.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the blob surface artifacts are written through. Put replaces
// an existing object.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// DNAFile is the serialized DNA list of one run.
type DNAFile struct {
	RunID    string          `json:"run"`
	Editions []ledger.Record `json:"editions"`
}

// Key joins a run prefix and an artifact key.
func Key(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// WriteAudit stores the registry audit under prefix.
func WriteAudit(ctx context.Context, s Store, prefix string, a compat.Audit) (Info, error) {
	return putJSON(ctx, s, Key(prefix, AuditKey), a)
}

// WriteDNA stores the DNA list of a run under prefix.
func WriteDNA(ctx context.Context, s Store, prefix string, f DNAFile) (Info, error) {
	if f.Editions == nil {
		f.Editions = []ledger.Record{}
	}
	return putJSON(ctx, s, Key(prefix, DNAKey), f)
}

// ReadDNA loads a DNA list written by WriteDNA.
func ReadDNA(ctx context.Context, s Store, prefix string) (DNAFile, error) {
	rc, err := s.Get(ctx, Key(prefix, DNAKey))
	if err != nil {
		return DNAFile{}, err
	}
	defer rc.Close()
	return DecodeDNA(rc)
}

// DecodeDNA parses a DNA list. A bare JSON array of DNA strings is also
// accepted, as produced by older tooling.
func DecodeDNA(r io.Reader) (DNAFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return DNAFile{}, fmt.Errorf("read dna list: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var dnas []string
		if err := json.Unmarshal(trimmed, &dnas); err != nil {
			return DNAFile{}, fmt.Errorf("decode dna list: %w", err)
		}
		f := DNAFile{Editions: make([]ledger.Record, len(dnas))}
		for i, d := range dnas {
			f.Editions[i] = ledger.Record{Seq: i, DNA: d}
		}
		return f, nil
	}
	var f DNAFile
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return DNAFile{}, fmt.Errorf("decode dna list: %w", err)
	}
	return f, nil
}

func putJSON(ctx context.Context, s Store, key string, v any) (Info, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Info{}, fmt.Errorf("encode %s: %w", key, err)
	}
	info, err := s.Put(ctx, key, bytes.NewReader(data), contentTypeJSON)
	if err != nil {
		return Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	return info, nil
}

// Memory is a process-local Store, used in tests and dry runs.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memObj
}

type memObj struct {
	info Info
	data []byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{objs: make(map[string]memObj)} }

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Put(_ context.Context, key string, r io.Reader, contentType string) (Info, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	info := Info{Key: key, Size: int64(len(b)), ContentType: contentType, LastModified: time.Now().UTC()}
	m.mu.Lock()
	m.objs[key] = memObj{info: info, data: b}
	m.mu.Unlock()
	return info, nil
}

func (m *Memory) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("blob %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Info
	for k, obj := range m.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
