package tagstore

import (
	"testing"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSetGet(t *testing.T) {
	s := New()
	s.Add("foo", tagvalue.Bool(false))
	require.True(t, s.Has("foo"))
	assert.Equal(t, float64(0), s.Timestamp("foo"))

	ok := s.Set("foo", tagvalue.Bool(true), 100.5)
	require.True(t, ok)
	assert.True(t, s.Get("foo").AsBool())
	assert.Equal(t, 100.5, s.Timestamp("foo"))
}

func TestSetMissingKeyFails(t *testing.T) {
	s := New()
	ok := s.Set("missing", tagvalue.Float64(1), 1)
	assert.False(t, ok)
	assert.False(t, s.Has("missing"))
}

func TestGetMissingReturnsZeroValue(t *testing.T) {
	s := New()
	v := s.Get("nope")
	assert.Equal(t, tagvalue.KindNone, v.Kind())
	assert.False(t, v.AsBool())
	assert.Equal(t, float64(0), v.AsFloat64())
	assert.Equal(t, int32(0), v.AsInt32())
}

func TestAddIsIdempotentByKey(t *testing.T) {
	s := New()
	s.Add("a", tagvalue.Int32(1))
	s.Set("a", tagvalue.Int32(2), 5)
	s.Add("a", tagvalue.Int32(9))
	assert.Equal(t, int32(9), s.Get("a").AsInt32())
	assert.Equal(t, float64(0), s.Timestamp("a"), "Add resets timestamp to 0")
}

func TestClearAndSnapshot(t *testing.T) {
	s := New()
	s.Add("a", tagvalue.Bool(true))
	s.Add("b", tagvalue.Float64(3.14))

	snap := s.Snapshot()
	assert.Len(t, snap, 2)

	s.Clear()
	assert.False(t, s.Has("a"))
	assert.False(t, s.Has("b"))
}
