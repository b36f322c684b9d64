package dnp3

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
)

func TestServerOperateUnknownAddressOutOfRange(t *testing.T) {
	mgr := tagmanager.New(nil)
	srv := NewServer(mgr, 1)
	res := srv.Operate(99, true, true, 0, DirectOperate)
	assert.Equal(t, resultOutOfRange, res)
}

func TestServerOperateRequiresSelectBeforeOperate(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("brkr", tagvalue.Bool(false), tagmanager.Binary)
	srv := NewServer(mgr, 1)
	require.True(t, srv.AddBinaryOutput(5, "brkr", true))

	res := srv.Operate(5, true, true, 0, DirectOperate)
	assert.Equal(t, resultNoSelect, res)

	res = srv.Select(5, true)
	assert.Equal(t, resultSuccess, res)
	res = srv.Operate(5, true, true, 0, SelectBeforeOperate)
	assert.Equal(t, resultSuccess, res)
}

func TestServerClassOf(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("temp", tagvalue.Float64(0), tagmanager.Analog)
	srv := NewServer(mgr, 1)
	require.True(t, srv.AddAnalogInput(10, "temp", Class2))

	class, ok := srv.ClassOf(10)
	require.True(t, ok)
	assert.Equal(t, Class2, class)

	_, ok = srv.ClassOf(99)
	assert.False(t, ok)
}

func TestServerClientRoundTrip(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("brkr", tagvalue.Bool(false), tagmanager.Binary)
	srv := NewServer(mgr, 1)
	require.True(t, srv.AddBinaryOutput(5, "brkr", false))
	require.NoError(t, srv.Start("127.0.0.1:0"))
	defer srv.Stop()

	endpoint := srv.ln.Addr().String()
	cl := NewClient()
	conn, err := cl.Connect(endpoint, 2*time.Second)
	require.NoError(t, err)
	defer cl.Close()

	conn.AddBinary("brkr", 5, false)

	msg := conn.WriteBinary("brkr", true)
	require.True(t, msg.IsOK())

	// The write only enqueues a pending update (spec.md §4.5.1); the scan
	// loop drains it into the tag store.
	mgr.UpdateInternalData()
	mgr.ClearUpdatedTags()

	cl.IntegrityScan()
	assert.True(t, mgr.GetByTag("brkr").AsBool())
	assert.True(t, conn.ReadRegisterByTag("brkr").Descriptor.Status)
}
