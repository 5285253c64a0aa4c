package forge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStateMissing(t *testing.T) {
	t.Parallel()

	st, err := LoadState(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestSaveLoadState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := &State{
		Version:   1,
		RunID:     "abc",
		Seed:      1 << 63,
		Status:    StatusRunning,
		Editions:  4,
		StartedAt: started,
		Configs:   []ConfigStatus{{Index: 0, Size: 10, Generated: 4, Status: StatusRunning}, {Index: 1, Size: 5, Status: StatusPending}},
	}
	require.NoError(t, SaveState(dir, in))
	assert.False(t, in.UpdatedAt.IsZero())

	out, err := LoadState(dir)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "abc", out.RunID)
	assert.Equal(t, RunSeed(1<<63), out.Seed)
	assert.Equal(t, StatusRunning, out.Status)
	assert.True(t, started.Equal(out.StartedAt))
	assert.Equal(t, in.Configs, out.Configs)

	_, err = os.Stat(filepath.Join(dir, StateFileName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadStateCorrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateFileName), []byte("status = ["), 0o644))
	_, err := LoadState(dir)
	assert.ErrorContains(t, err, "parsing state file")
}
