package cmd

import (
	"fmt"
	"os"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/config"
	"github.com/papapumpkin/strata/internal/export"
	"github.com/papapumpkin/strata/internal/ledger"
	"github.com/papapumpkin/strata/internal/log"
)

const defaultManifest = "strata.toml"

// manifestArg returns the manifest path from args, or the default.
func manifestArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultManifest
}

// loadCollection reads and builds the manifest at path, applying runtime
// overrides from cfg. The manifest is returned for its directory.
func loadCollection(path string, cfg config.Config) (*catalog.Manifest, *catalog.Collection, error) {
	m, err := catalog.LoadManifest(path)
	if err != nil {
		return nil, nil, err
	}
	col, err := m.Build()
	if err != nil {
		return m, nil, err
	}
	if cfg.RetryBudget > 0 {
		col.RetryBudget = cfg.RetryBudget
	}
	log.Info(log.CatConfig, "manifest loaded", "path", path, "collection", col.Name,
		"size", col.Size, "configurations", len(col.Configurations))
	return m, col, nil
}

// stateDir resolves where the run state file lives.
func stateDir(cfg config.Config, m *catalog.Manifest) string {
	if cfg.StateDir != "" {
		return cfg.StateDir
	}
	return m.Dir
}

// readPrior loads the DNA of an earlier batch from a dna.json file.
func readPrior(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening prior dna: %w", err)
	}
	defer f.Close()
	file, err := export.DecodeDNA(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ledger.DNAs(file.Editions), nil
}
