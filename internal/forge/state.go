package forge

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// StateFileName is the run state file written next to the manifest.
const StateFileName = "strata.state.toml"

// RunStatus is the lifecycle of a run or one of its configurations.
type RunStatus string

const (
	StatusPending RunStatus = "pending"
	StatusRunning RunStatus = "running"
	StatusDone    RunStatus = "done"
	StatusFailed  RunStatus = "failed"
)

// State is the persisted progress of the latest run.
type State struct {
	Version   int            `toml:"version"`
	RunID     string         `toml:"run_id"`
	Seed      RunSeed        `toml:"seed"`
	Status    RunStatus      `toml:"status"`
	Error     string         `toml:"error,omitempty"`
	Editions  int            `toml:"editions"`
	StartedAt time.Time      `toml:"started_at"`
	UpdatedAt time.Time      `toml:"updated_at"`
	Configs   []ConfigStatus `toml:"configurations"`
}

// RunSeed is a seed stored as a decimal string. TOML integers are signed
// 64-bit, which cannot hold every uint64 seed.
type RunSeed uint64

func (s RunSeed) MarshalText() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(s), 10), nil
}

func (s *RunSeed) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	*s = RunSeed(v)
	return nil
}

// ConfigStatus is the progress of one configuration.
type ConfigStatus struct {
	Index     int       `toml:"index"`
	Size      int       `toml:"size"`
	Generated int       `toml:"generated"`
	Status    RunStatus `toml:"status"`
}

// LoadState reads the state file from dir. It returns nil and no error
// when the file does not exist.
func LoadState(dir string) (*State, error) {
	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var st State
	if err := toml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	return &st, nil
}

// SaveState writes the state file atomically (write temp + rename).
func SaveState(dir string, st *State) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := toml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	path := filepath.Join(dir, StateFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming state file: %w", err)
	}
	return nil
}
