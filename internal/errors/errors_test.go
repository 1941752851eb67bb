package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderDefaults(t *testing.T) {
	err := Newf("something broke").Build()

	assert.Equal(t, "something broke", err.Error())
	assert.Equal(t, string(CategoryGeneric), err.GetCategory())
	assert.Equal(t, ComponentUnknown, err.GetComponent())
	assert.Nil(t, err.GetContext())
}

func TestBuilderFull(t *testing.T) {
	base := stderrors.New("row not found")
	err := New(base).
		Component("datastore").
		Category(CategoryNotFound).
		Context("mismatch_id", uint(42)).
		Build()

	assert.Equal(t, "datastore", err.GetComponent())
	assert.Equal(t, string(CategoryNotFound), err.GetCategory())
	assert.Equal(t, uint(42), err.GetContext()["mismatch_id"])
	assert.ErrorIs(t, err, base)
	assert.False(t, err.Timestamp.IsZero())
}

func TestContextCopyIsIsolated(t *testing.T) {
	err := Newf("x").Context("key", "original").Build()

	ctx := err.GetContext()
	ctx["key"] = "mutated"

	assert.Equal(t, "original", err.GetContext()["key"])
}

func TestCategoryOfWalksWrapChain(t *testing.T) {
	inner := Newf("no mismatch with id 7").
		Category(CategoryNotFound).
		Component("datastore").
		Build()
	wrapped := fmt.Errorf("handling request: %w", inner)

	assert.Equal(t, CategoryNotFound, CategoryOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
}

func TestCategoryOfPlainError(t *testing.T) {
	assert.Equal(t, CategoryGeneric, CategoryOf(stderrors.New("plain")))
}

func TestIsMatchesOnCategory(t *testing.T) {
	a := Newf("first conflict").Category(CategoryConflict).Build()
	b := Newf("second conflict").Category(CategoryConflict).Build()
	c := Newf("validation").Category(CategoryValidation).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestAsFindsEnhancedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", Newf("inner").Category(CategoryParsing).Build())

	var ee *EnhancedError
	require.True(t, As(err, &ee))
	assert.Equal(t, CategoryParsing, ee.Category)
}
