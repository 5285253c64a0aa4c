package dna

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDNAString(t *testing.T) {
	t.Parallel()

	d := DNA{{ID: 0, Name: "RedSkin"}, {ID: 2, Name: "None", Bypass: true}, {ID: 1, Name: "Cap"}}
	assert.Equal(t, "0:RedSkin-2:None?bypassDNA=true-1:Cap", d.String())
	assert.Equal(t, "0:RedSkin-1:Cap", d.Canonical())
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	in := "3:Sky-0:Red?bypassDNA=true-12:Gold Crown"
	d, err := Parse(in)
	require.NoError(t, err)
	require.Len(t, d, 3)
	assert.Equal(t, Gene{ID: 0, Name: "Red", Bypass: true}, d[1])
	assert.Equal(t, "Gold Crown", d[2].Name)
	assert.Equal(t, in, d.String())
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "Red", "x:Red", "-1:Red", "1:", "0:Red--1:Cap"} {
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(in)
			assert.Error(t, err)
		})
	}
}

func TestTracker(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	a := DNA{{ID: 0, Name: "Red"}, {ID: 1, Name: "Cap"}}
	sameButBypass := DNA{{ID: 0, Name: "Red"}, {ID: 1, Name: "Cap"}, {ID: 4, Name: "Sparkle", Bypass: true}}

	assert.True(t, tr.IsUnique(a))
	assert.True(t, tr.Record(a))
	assert.False(t, tr.IsUnique(a))
	assert.False(t, tr.IsUnique(sameButBypass), "bypassed genes do not distinguish editions")
	assert.False(t, tr.Record(sameButBypass))
	assert.Equal(t, 1, tr.Len())
}

func TestTrackerSeedAndExport(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	require.NoError(t, tr.Seed([]string{"1:Green-0:Cap", "0:Red-1:Crown?bypassDNA=true", "0:Red-0:Cap"}))
	assert.Equal(t, []string{"0:Red", "0:Red-0:Cap", "1:Green-0:Cap"}, tr.Export())
	assert.False(t, tr.IsUnique(DNA{{ID: 0, Name: "Red"}, {ID: 1, Name: "Crown", Bypass: true}}))

	assert.Error(t, NewTracker().Seed([]string{"0:Red", "bogus"}))
}
