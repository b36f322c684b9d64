package bacnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
)

func TestServerPointMappingRequiresKnownTag(t *testing.T) {
	mgr := tagmanager.New(nil)
	srv := NewServer(mgr, 1001)
	assert.False(t, srv.AddBinaryInput(1, "unknown"))

	mgr.AddInternalTag("fan", tagvalue.Bool(false), tagmanager.Binary)
	assert.True(t, srv.AddBinaryOutput(1, "fan"))
}

func TestServerWriteBinaryEnqueuesPendingUpdate(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("fan", tagvalue.Bool(false), tagmanager.Binary)
	srv := NewServer(mgr, 1001)
	require.True(t, srv.AddBinaryOutput(7, "fan"))

	assert.True(t, srv.WriteBinary(7, true))
	mgr.UpdateInternalData()
	mgr.ClearUpdatedTags()
	assert.True(t, mgr.GetByTag("fan").AsBool())
}

func TestServerWriteAnalogUnmappedAddressLogsAndDrops(t *testing.T) {
	mgr := tagmanager.New(nil)
	srv := NewServer(mgr, 1001)
	assert.False(t, srv.WriteAnalog(99, 12.0))
}

func TestPresentValueBinary(t *testing.T) {
	assert.Equal(t, float64(1), presentValueBinary(true))
	assert.Equal(t, float64(0), presentValueBinary(false))
}
