package compat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCouplingsOrderAndAllows(t *testing.T) {
	t.Parallel()

	r := New(critters())
	require.NoError(t, r.DeclareForcedCombination("Crown", "GreenSkin", skin, hat, 0))
	require.NoError(t, r.DeclareIncompatibility("BlueHair", "RedSkin", skin, hair, 0))
	require.NoError(t, r.DeclareIncompatibility("Cap", "None", hair, hat, 0))

	cs := r.Couplings(0)
	require.Len(t, cs, 3)
	assert.Equal(t, [][2]int{{skin, hair}, {skin, hat}, {hair, hat}},
		[][2]int{{cs[0].ParentLayer, cs[0].ChildLayer}, {cs[1].ParentLayer, cs[1].ChildLayer}, {cs[2].ParentLayer, cs[2].ChildLayer}})

	skinHair := cs[0]
	assert.False(t, skinHair.Allows(0, 0), "RedSkin/BlueHair")
	assert.True(t, skinHair.Allows(1, 0), "GreenSkin/BlueHair")
	assert.True(t, skinHair.Allows(0, 1), "RedSkin/BlackHair")

	skinHat := cs[1]
	assert.True(t, skinHat.Allows(1, 1), "GreenSkin/Crown")
	assert.False(t, skinHat.Allows(1, 0), "forced parent excludes other children")
	assert.False(t, skinHat.Allows(0, 1), "forced child excludes other parents")
	assert.True(t, skinHat.Allows(0, 0), "RedSkin/Cap")

	assert.Empty(t, r.Couplings(3))
}

func TestShortfall(t *testing.T) {
	t.Parallel()

	// Skin {Red, Green} against Hair {Blue, Pink, Black}; Blue and Pink
	// are both incompatible with Red.
	cfg := critters()
	cfg[0].Layers[hair] = layer(hair, "Hair", "BlueHair", "PinkHair", "BlackHair")
	cfg[0].Layers[skin] = layer(skin, "Skin", "RedSkin", "GreenSkin")
	r := New(cfg)
	require.NoError(t, r.DeclareIncompatibility("BlueHair", "RedSkin", skin, hair, 0))
	require.NoError(t, r.DeclareIncompatibility("PinkHair", "RedSkin", skin, hair, 0))
	c := r.Couplings(0)[0]

	tests := []struct {
		name   string
		supply []int
		demand []int
		want   []int
	}{
		{"restricted children fit the compatible parent", []int{60, 40}, []int{20, 20, 60}, nil},
		{"restricted children overflow", []int{60, 40}, []int{40, 40, 20}, []int{0}},
		{"empty", []int{0, 0}, []int{0, 0, 0}, nil},
		{"exact fit", []int{1, 2}, []int{1, 1, 1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, c.Shortfall(tt.supply, tt.demand))
		})
	}
}

func TestShortfallSeesPairingOrder(t *testing.T) {
	t.Parallel()

	// Each parent alone has a compatible child with budget, but A's and
	// B's only children must both take C once X is given to C.
	cfg := critters()
	cfg[0].Layers[skin] = layer(skin, "Skin", "A", "B", "C")
	cfg[0].Layers[hair] = layer(hair, "Hair", "X", "Y", "Z")
	r := New(cfg)
	require.NoError(t, r.DeclareIncompatibility("X", "A", skin, hair, 0))
	require.NoError(t, r.DeclareIncompatibility("Y", "A", skin, hair, 0))
	require.NoError(t, r.DeclareIncompatibility("Y", "B", skin, hair, 0))
	c := r.Couplings(0)[0]

	assert.Nil(t, c.Shortfall([]int{1, 1, 1}, []int{1, 1, 1}))
	// X paired with C leaves A and B for Y and Z, and Y only takes C.
	assert.NotNil(t, c.Shortfall([]int{1, 1, 0}, []int{0, 1, 1}))
	// X paired with B still works.
	assert.Nil(t, c.Shortfall([]int{1, 0, 1}, []int{0, 1, 1}))
}

func TestServes(t *testing.T) {
	t.Parallel()

	r := New(critters())
	require.NoError(t, r.DeclareIncompatibility("BlueHair", "RedSkin", skin, hair, 0))
	c := r.Couplings(0)[0]
	assert.False(t, c.Serves([]int{0}, 0))
	assert.True(t, c.Serves([]int{0, 1}, 0))
	assert.True(t, c.Serves([]int{0}, 1))
}
