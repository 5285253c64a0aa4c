package arch_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
)

const internalImport = "github.com/papapumpkin/strata/internal/"

// internalDirPath locates internal/ relative to this file.
func internalDirPath(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Dir(filepath.Dir(file))
}

// internalPackages lists the directories under internal/ that hold
// non-test Go source, arch_test excluded.
func internalPackages(t *testing.T) []string {
	t.Helper()
	dir := internalDirPath(t)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	var pkgs []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != "arch_test" && len(sources(t, filepath.Join(dir, e.Name()))) > 0 {
			pkgs = append(pkgs, e.Name())
		}
	}
	return pkgs
}

func sources(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		t.Fatal(err)
	}
	return slices.DeleteFunc(matches, func(f string) bool { return strings.HasSuffix(f, "_test.go") })
}

// importsOf returns the internal packages imported by the non-test files in
// pkgDir, by top-level name and sorted.
func importsOf(t *testing.T, pkgDir string) []string {
	t.Helper()
	fset := token.NewFileSet()
	var out []string
	for _, f := range sources(t, pkgDir) {
		node, err := parser.ParseFile(fset, f, nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parsing imports in %s: %v", f, err)
		}
		for _, imp := range node.Imports {
			rel, ok := strings.CutPrefix(strings.Trim(imp.Path.Value, `"`), internalImport)
			if !ok {
				continue
			}
			name, _, _ := strings.Cut(rel, "/")
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func TestImportsOf(t *testing.T) {
	t.Parallel()

	imports := importsOf(t, filepath.Join(internalDirPath(t), "dna"))
	for _, want := range []string{"compat", "reconcile"} {
		if !slices.Contains(imports, want) {
			t.Errorf("expected internal/dna to import %q, got %v", want, imports)
		}
	}
	if slices.Contains(internalPackages(t), "arch_test") {
		t.Error("internalPackages should exclude arch_test")
	}
}
