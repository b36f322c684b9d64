package tagmanager

import (
	"testing"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagToPointResolution(t *testing.T) {
	m := New(nil)
	m.AddExternalData("point-1", "brkr", tagvalue.Bool(false))

	ok := m.AddTagToPointMapping("brkr-tag", "point-1", Binary)
	require.True(t, ok)

	m.SetByTag("brkr-tag", tagvalue.Bool(true))
	assert.True(t, m.GetByTag("brkr-tag").AsBool())
	assert.True(t, m.GetByPoint("brkr").AsBool())
}

func TestAddTagToPointMappingFailsForUnknownPoint(t *testing.T) {
	m := New(nil)
	ok := m.AddTagToPointMapping("t", "no-such-point", Binary)
	assert.False(t, ok)
	assert.False(t, m.GetByTag("t").AsBool())
}

func TestInternalTagFallback(t *testing.T) {
	m := New(nil)
	m.AddInternalTag("foo", tagvalue.Bool(false), Binary)
	m.SetByTag("foo", tagvalue.Bool(true))
	assert.True(t, m.GetByTag("foo").AsBool())
}

func TestClassificationListsDisjoint(t *testing.T) {
	m := New(nil)
	m.AddInternalTag("a", tagvalue.Bool(false), Binary)
	m.AddInternalTag("b", tagvalue.Float64(0), Analog)

	assert.Contains(t, m.BinaryTags(), "a")
	assert.NotContains(t, m.AnalogTags(), "a")
	assert.Contains(t, m.AnalogTags(), "b")
	assert.NotContains(t, m.BinaryTags(), "b")
}

func TestPendingUpdateLifecycle(t *testing.T) {
	m := New(nil)
	m.AddInternalTag("a", tagvalue.Bool(false), Binary)
	m.AddInternalTag("x", tagvalue.Float64(0), Analog)

	m.AddUpdatedBinary("a", true)
	m.AddUpdatedAnalog("x", 42.0)
	assert.True(t, m.HasPendingBinary("a"))
	assert.True(t, m.HasPendingAnalog("x"))

	b, an := m.PendingDepths()
	assert.Equal(t, 1, b)
	assert.Equal(t, 1, an)

	m.UpdateInternalData()
	assert.True(t, m.GetByTag("a").AsBool())
	assert.Equal(t, 42.0, m.GetByTag("x").AsFloat64())

	m.ClearUpdatedTags()
	b, an = m.PendingDepths()
	assert.Equal(t, 0, b)
	assert.Equal(t, 0, an)
	assert.False(t, m.HasPendingBinary("a"))
}

func TestUpdateInternalDataIgnoresUnknownTags(t *testing.T) {
	m := New(nil)
	m.AddUpdatedBinary("ghost", true)
	// Must not panic and must leave nothing behind in the internal store.
	m.UpdateInternalData()
	assert.False(t, m.internal.Has("ghost"))
}
