package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesContext(t *testing.T) {
	t.Parallel()

	err := Capacityf(With(Config(1), Layer("Hair"), Size(30)), "weights could not be reconciled")
	assert.Equal(t, "capacity error (configuration 1, layer Hair, size 30): weights could not be reconciled", err.Error())
}

func TestErrorOmitsUnsetContext(t *testing.T) {
	t.Parallel()

	err := Configf(nil, "unknown rarity %q", "Shiny")
	assert.Equal(t, `config error: unknown rarity "Shiny"`, err.Error())
}

func TestErrorsIsMatchesKindThroughWrapping(t *testing.T) {
	t.Parallel()

	base := Constraintf(With(Trait("BlueHair"), Rule(2)), "no parents remain")
	wrapped := fmt.Errorf("declaring rule: %w", base)

	assert.ErrorIs(t, wrapped, ErrConstraint)
	assert.NotErrorIs(t, wrapped, ErrConfig)

	var fe *Error
	require.True(t, errors.As(wrapped, &fe))
	assert.Equal(t, "BlueHair", fe.Trait)
	assert.Equal(t, 2, fe.Rule)
}

func TestAnnotateAddsContext(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("resolving: %w", Configf(With(Field("weight")), "unknown rarity"))
	got := Annotate(err, Layer("Skin"), Trait("A"))
	assert.Same(t, err, got)
	assert.Contains(t, got.Error(), "layer Skin, trait A, field weight")

	plain := errors.New("boom")
	assert.Equal(t, plain, Annotate(plain, Layer("Skin")))
}

func TestSplit(t *testing.T) {
	t.Parallel()

	a := Configf(With(Field("size")), "bad size")
	b := Constraintf(nil, "orphaned parent")
	plain := errors.New("plain")

	assert.Nil(t, Split(nil))
	assert.Equal(t, []error{a}, Split(a))
	assert.Equal(t, []error{plain}, Split(plain))
	assert.Equal(t, []error{a, b}, Split(errors.Join(a, b)))
}
