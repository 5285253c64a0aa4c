// Package fs implements the export store on the local filesystem.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/papapumpkin/strata/internal/export"
)

var _ export.Store = (*Store)(nil)

// Store maps keys to files under a root directory.
type Store struct {
	root string
}

// New returns a store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./build"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Driver() export.Driver { return export.DriverFilesystem }

// Root returns the store's directory.
func (s *Store) Root() string { return s.root }

// sanitizeKey forbids absolute keys and traversal out of the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key traversal")
	}
	return clean, nil
}

// Put writes the object atomically (temp file then rename).
func (s *Store) Put(_ context.Context, key string, r io.Reader, contentType string) (export.Info, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return export.Info{}, err
	}
	p := filepath.Join(s.root, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return export.Info{}, err
	}
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return export.Info{}, err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return export.Info{}, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return export.Info{}, err
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return export.Info{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return export.Info{}, err
	}
	return export.Info{Key: k, Size: st.Size(), ContentType: contentType, LastModified: st.ModTime().UTC()}, nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(k)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob %s not found", key)
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]export.Info, error) {
	var out []export.Info
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		st, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, export.Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
