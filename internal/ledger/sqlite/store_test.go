package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papapumpkin/strata/internal/ledger"
)

func TestStoreAppendAndReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, ledger.DriverSQLite, s.Driver())
	assert.Equal(t, path, s.Path())

	recs := []ledger.Record{
		{RunID: "r1", Seq: 1, Config: 0, Edition: 7, DNA: "1:Green-0:Cap"},
		{RunID: "r1", Seq: 0, Config: 0, Edition: 3, DNA: "0:Red-1:Crown?bypassDNA=true"},
		{RunID: "r0", Seq: 0, Config: 1, Edition: 1, DNA: "2:Blue"},
	}
	for _, r := range recs {
		require.NoError(t, s.Append(ctx, r))
	}
	assert.Error(t, s.Append(ctx, recs[0]), "primary key is (run, seq)")
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.Records(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, run, 2)
	assert.Equal(t, "0:Red-1:Crown?bypassDNA=true", run[0].DNA)
	assert.Equal(t, 3, run[0].Edition)
	assert.False(t, run[0].CreatedAt.IsZero())

	all, err := s.Records(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"2:Blue", "0:Red-1:Crown?bypassDNA=true", "1:Green-0:Cap"}, ledger.DNAs(all))
}
