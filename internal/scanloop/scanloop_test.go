package scanloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/logic"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
)

func TestScanLoopBasicCycle(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("foo", tagvalue.Bool(false), tagmanager.Binary)
	lg := logic.New(mgr, nil, "foo = True")

	l := New(mgr, lg, nil, 10)

	var hookCalls int
	l.RegisterPeriodicHook(func() { hookCalls++ })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(35 * time.Millisecond)
		cancel()
	}()
	l.Run(ctx)

	assert.True(t, mgr.GetByTag("foo").AsBool())
	assert.GreaterOrEqual(t, l.Passes(), uint64(1))
	assert.GreaterOrEqual(t, hookCalls, 1)
}

func TestScanLoopDebugDumpEveryTenthPass(t *testing.T) {
	mgr := tagmanager.New(nil)
	lg := logic.New(mgr, nil, "")
	l := New(mgr, lg, nil, 1)

	for i := 0; i < 10; i++ {
		l.pass()
	}
	require.Equal(t, uint64(10), l.Passes())
}

func TestScanLoopOrderingDrainsAfterLogic(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("x", tagvalue.Float64(0), tagmanager.Analog)
	lg := logic.New(mgr, nil, "x = 5")
	l := New(mgr, lg, nil, 10)

	// A protocol-originated write arriving during the hook phase (step 3)
	// must be visible only after UpdateInternalData drains it in step 4,
	// never racing logic's own enqueue in step 2.
	l.RegisterPeriodicHook(func() {
		mgr.AddUpdatedAnalog("x", 42)
	})

	l.pass()
	assert.Equal(t, 42.0, mgr.GetByTag("x").AsFloat64())
}
