package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
)

const cyclePeriodMs = 1000

func TestLogicBasicAssignment(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("foo", tagvalue.Bool(false), tagmanager.Binary)

	l := New(mgr, nil, "foo = True")
	require.Len(t, l.lines, 1)

	l.ScanInputs()
	l.ScanLogic(cyclePeriodMs)
	mgr.UpdateInternalData()
	mgr.ClearUpdatedTags()
	assert.True(t, mgr.GetByTag("foo").AsBool())

	// Second cycle: result still equals current value, nothing pending.
	l.ScanInputs()
	l.ScanLogic(cyclePeriodMs)
	assert.False(t, mgr.HasPendingBinary("foo"))
}

func TestLogicDelayedTransition(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("a", tagvalue.Bool(false), tagmanager.Binary)
	mgr.AddInternalTag("b", tagvalue.Bool(false), tagmanager.Binary)

	l := New(mgr, nil, "a = b,delay:3")

	// b is externally set true "at cycle 0".
	mgr.SetByTag("b", tagvalue.Bool(true))

	runCycle := func() {
		l.ScanInputs()
		l.ScanLogic(cyclePeriodMs)
		mgr.UpdateInternalData()
		mgr.ClearUpdatedTags()
	}

	runCycle() // cycle 0: marks delayed, remaining=3000ms
	assert.False(t, mgr.GetByTag("a").AsBool())
	rem, delayed := l.DelayRemainingMs("a")
	require.True(t, delayed)
	assert.Equal(t, int64(3000), rem)

	runCycle() // cycle 1: remaining=2000ms
	assert.False(t, mgr.GetByTag("a").AsBool())
	rem, delayed = l.DelayRemainingMs("a")
	require.True(t, delayed)
	assert.Equal(t, int64(2000), rem)

	runCycle() // cycle 2: remaining=1000ms
	assert.False(t, mgr.GetByTag("a").AsBool())

	runCycle() // cycle 3: remaining reaches 0, enqueues and drains this cycle
	assert.True(t, mgr.GetByTag("a").AsBool())
	_, delayed = l.DelayRemainingMs("a")
	assert.False(t, delayed)
}

func TestLogicAnalogExpressionWithShiftAndFunctions(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("base", tagvalue.Float64(2), tagmanager.Analog)
	mgr.AddInternalTag("result", tagvalue.Float64(0), tagmanager.Analog)

	l := New(mgr, nil, "result = (1 << 3) + abs(-2) + base ** 2")
	l.ScanInputs()
	l.ScanLogic(cyclePeriodMs)
	mgr.UpdateInternalData()

	// (1<<3)=8, abs(-2)=2, base**2=4 => 14
	assert.Equal(t, 14.0, mgr.GetByTag("result").AsFloat64())
}

func TestLogicSkipsMalformedLineButKeepsOthers(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("ok", tagvalue.Bool(false), tagmanager.Binary)

	l := New(mgr, nil, "this has no equals sign\nok = True")
	assert.Len(t, l.lines, 1)

	l.ScanInputs()
	l.ScanLogic(cyclePeriodMs)
	mgr.UpdateInternalData()
	assert.True(t, mgr.GetByTag("ok").AsBool())
}

func TestLogicMalformedDelayDefaultsToZero(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("x", tagvalue.Bool(false), tagmanager.Binary)
	mgr.AddInternalTag("y", tagvalue.Bool(true), tagmanager.Binary)

	l := New(mgr, nil, "x = y,delay:notanumber")
	require.Len(t, l.lines, 1)
	assert.Equal(t, 0, l.lines[0].delayCycles)

	l.ScanInputs()
	l.ScanLogic(cyclePeriodMs)
	mgr.UpdateInternalData()
	assert.True(t, mgr.GetByTag("x").AsBool())
}

func TestLogicPendingUpdateBlocksReEnqueue(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("z", tagvalue.Bool(false), tagmanager.Binary)

	l := New(mgr, nil, "z = True")
	l.ScanInputs()
	l.ScanLogic(cyclePeriodMs)
	require.True(t, mgr.HasPendingBinary("z"))

	// Re-running ScanLogic before the pending map is drained must not panic
	// or double up; the pending entry already exists so applyResult returns.
	l.ScanInputs()
	l.ScanLogic(cyclePeriodMs)
	b, _ := mgr.PendingDepths()
	assert.Equal(t, 1, b)
}
