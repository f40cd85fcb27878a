package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = NewStd("sentinel")

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, "unknown", ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuildNilError(t *testing.T) {
	t.Parallel()

	ee := New(nil).Component("engine").Build()
	require.Error(t, ee)
	assert.Equal(t, "unspecified error", ee.Error())
}

func TestWrappedSentinelMatches(t *testing.T) {
	t.Parallel()

	err := New(fmt.Errorf("open sink: %w", errSentinel)).
		Component("output").
		Category(CategoryAudio).
		Context("sample_rate", 48000).
		Build()

	assert.ErrorIs(t, err, errSentinel)
	assert.True(t, IsCategory(err, CategoryAudio))
	assert.False(t, IsCategory(err, CategoryNetwork))
	assert.Equal(t, 48000, err.GetContext()["sample_rate"])
}

func TestIsMatchesCategory(t *testing.T) {
	t.Parallel()

	a := Newf("a").Category(CategoryState).Build()
	b := Newf("b").Category(CategoryState).Build()
	c := Newf("c").Category(CategoryFileIO).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestIsCategoryThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := Newf("device busy").Category(CategoryAudio).Build()
	outer := fmt.Errorf("reopen: %w", inner)

	assert.True(t, IsCategory(outer, CategoryAudio))

	nested := New(inner).Category(CategoryState).Build()
	assert.True(t, IsCategory(nested, CategoryAudio))
	assert.True(t, IsCategory(nested, CategoryState))
}

func TestGetContextIsCopy(t *testing.T) {
	t.Parallel()

	ee := Newf("x").Context("k", 1).Build()
	ctx := ee.GetContext()
	ctx["k"] = 2

	assert.Equal(t, 1, ee.Context["k"])
}

func TestDetailAndLogAttrs(t *testing.T) {
	t.Parallel()

	ee := Newf("boom").Component("engine").Category(CategoryBuffer).
		Context("b", 2).Context("a", 1).Build()

	assert.Equal(t, "[engine/audio-buffer] boom a=1 b=2", ee.Detail())
	assert.Equal(t, []any{"error", "boom", "component", "engine", "category", "audio-buffer", "a", 1, "b", 2}, LogAttrs(ee))
	assert.Equal(t, []any{"error", "plain"}, LogAttrs(fmt.Errorf("plain")))
	assert.Nil(t, LogAttrs(nil))
}

func TestJoinAndUnwrap(t *testing.T) {
	t.Parallel()

	joined := Join(errSentinel, fmt.Errorf("other"))
	assert.ErrorIs(t, joined, errSentinel)

	wrapped := fmt.Errorf("wrap: %w", errSentinel)
	assert.Equal(t, errSentinel, Unwrap(wrapped))

	var ee *EnhancedError
	assert.True(t, As(New(errSentinel).Build(), &ee))
}
