package forge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papapumpkin/strata/internal/catalog"
	"github.com/papapumpkin/strata/internal/compat"
	"github.com/papapumpkin/strata/internal/fault"
)

func TestDeclareRules(t *testing.T) {
	t.Parallel()

	col := critters()
	col.Rules = append(col.Rules, catalog.RuleSpec{
		Kind: catalog.RuleForced, Config: 0,
		Child: "BlackHair", ChildLayer: "Hair",
		Parent: "GreenSkin", ParentLayer: "Skin",
	})
	reg := compat.New(col.Configurations)
	require.NoError(t, DeclareRules(reg, col))

	require.Equal(t, 2, reg.Len())
	rules := reg.Rules()
	assert.Equal(t, []string{"RedSkin"}, rules[0].IncompatibleParents)
	assert.True(t, rules[1].Forced)
	assert.Equal(t, "GreenSkin", rules[1].ForcedParent())
}

func TestDeclareRulesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rule catalog.RuleSpec
	}{
		{"unknown configuration", catalog.RuleSpec{Kind: catalog.RuleIncompatible, Config: 5}},
		{"unknown kind", catalog.RuleSpec{Kind: "maybe", Child: "BlueHair", ChildLayer: "Hair", Parent: "RedSkin", ParentLayer: "Skin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			col := critters()
			col.Rules = []catalog.RuleSpec{tt.rule}
			err := DeclareRules(compat.New(col.Configurations), col)
			require.Error(t, err)
			assert.ErrorIs(t, err, fault.ErrConfig)
			var fe *fault.Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, 0, fe.Rule)
		})
	}
}
