package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papapumpkin/strata/internal/export"
)

func TestSanitizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "dna.json", want: "dna.json"},
		{key: "run/./compatibility//compatibility.json", want: "run/compatibility/compatibility.json"},
		{key: "", wantErr: true},
		{key: "/etc/passwd", wantErr: true},
		{key: "../escape", wantErr: true},
		{key: "run/../../escape", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			got, err := sanitizeKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStorePutGetList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "build")

	s, err := New(root)
	require.NoError(t, err)
	assert.Equal(t, export.DriverFilesystem, s.Driver())

	info, err := s.Put(ctx, "r1/compatibility/compatibility.json", strings.NewReader(`{"rules":[]}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size)
	_, err = os.Stat(filepath.Join(root, "r1", "compatibility", "compatibility.json"))
	require.NoError(t, err)

	_, err = s.Put(ctx, "r1/dna.json", strings.NewReader("first"), "")
	require.NoError(t, err)
	_, err = s.Put(ctx, "r1/dna.json", strings.NewReader("second"), "")
	require.NoError(t, err)

	rc, err := s.Get(ctx, "r1/dna.json")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "second", string(b))

	_, err = s.Get(ctx, "r1/missing.json")
	assert.ErrorContains(t, err, "not found")

	list, err := s.List(ctx, "r1/")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r1/compatibility/compatibility.json", list[0].Key)
	assert.Equal(t, "r1/dna.json", list[1].Key)
}
