package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjranagit/tsengine/pkg/types"
)

func TestCursorSeekIsForwardOnly(t *testing.T) {
	c := newCursor(points("s", 10, 1, 20, 2, 30, 3).Samples)

	c.seek(15)
	assert.Equal(t, 1, c.pos)

	// An earlier target never rewinds the cursor
	c.seek(5)
	assert.Equal(t, 1, c.pos)

	c.seek(30)
	assert.Equal(t, 2, c.pos)
	assert.False(t, c.exhausted())

	c.seek(31)
	assert.True(t, c.exhausted())
}

func TestCursorMatch(t *testing.T) {
	c := newCursor(points("s", 10, 1, 20, 2).Samples)

	_, ok := c.match(types.At(5))
	assert.False(t, ok)

	s, ok := c.match(types.At(10))
	require.True(t, ok)
	assert.Equal(t, "s/0", s.ID)

	_, ok = c.match(types.At(15))
	assert.False(t, ok)

	s, ok = c.match(types.At(20))
	require.True(t, ok)
	assert.Equal(t, "s/1", s.ID)

	_, ok = c.match(types.At(25))
	assert.False(t, ok)
}

func TestCursorMatchComparesWholeInterval(t *testing.T) {
	c := newCursor(intervals("s", 10, 20, 1, 30, 40, 2).Samples)

	_, ok := c.match(types.Between(10, 25))
	assert.False(t, ok, "same start but different end must not match")

	_, ok = c.match(types.Between(30, 40))
	assert.True(t, ok)
}

func TestCursorMatchPointNeverMatchesInterval(t *testing.T) {
	c := newCursor(intervals("s", 10, 10, 1).Samples)
	_, ok := c.match(types.At(10))
	assert.False(t, ok)
}

func TestCursorEmpty(t *testing.T) {
	c := newCursor(nil)
	assert.True(t, c.exhausted())
	_, ok := c.match(types.At(0))
	assert.False(t, ok)
}
