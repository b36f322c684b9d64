package iec104

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagmanager"
	"github.com/sandialabs/sceptre-bennu-sub000/internal/tagvalue"
)

func TestDoublePointRoundTrip(t *testing.T) {
	obj := encodeDoublePointObject(42, doublePointFromBool(true))
	ioa, dp := decodeDoublePointObject(obj)
	assert.Equal(t, ioAddress(42), ioa)
	assert.True(t, boolFromDoublePoint(dp))

	obj = encodeDoublePointObject(7, doublePointFromBool(false))
	ioa, dp = decodeDoublePointObject(obj)
	assert.Equal(t, ioAddress(7), ioa)
	assert.False(t, boolFromDoublePoint(dp))
}

func TestShortFloatRoundTrip(t *testing.T) {
	obj := encodeShortFloatObject(99, 12.5)
	ioa, v := decodeShortFloatObject(obj)
	assert.Equal(t, ioAddress(99), ioa)
	assert.InDelta(t, 12.5, v, 0.001)
}

func TestChunkObjectsRespectsPayloadBound(t *testing.T) {
	var objs [][]byte
	for i := 0; i < 100; i++ {
		objs = append(objs, encodeShortFloatObject(ioAddress(i), float64(i)))
	}
	chunks := chunkObjects(typeIDShortFloat, cotPeriodic, 1, 8, objs)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), maxASDUPayload)
	}
}

func TestServerDoubleCommandRequiresMappedIOA(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("brkr", tagvalue.Bool(false), tagmanager.Binary)
	srv := NewServer(mgr, 1)
	require.True(t, srv.AddBinaryOutput(5, 1005, "brkr"))

	a := asdu{typeID: typeIDDoubleCmd, cot: cotActivation, commonAddr: 1,
		objects: encodeDoublePointObject(1005, DPIOn)}
	srv.handleASDU(nil, &sessionState{}, a)

	mgr.UpdateInternalData()
	mgr.ClearUpdatedTags()
	assert.True(t, mgr.GetByTag("brkr").AsBool())
}

func TestServerClientIntegrityScan(t *testing.T) {
	mgr := tagmanager.New(nil)
	mgr.AddInternalTag("brkr", tagvalue.Bool(true), tagmanager.Binary)
	mgr.AddInternalTag("temp", tagvalue.Float64(21.5), tagmanager.Analog)
	srv := NewServer(mgr, 1)
	require.True(t, srv.AddBinaryInput(5, 1005, "brkr"))
	require.True(t, srv.AddAnalogInput(6, 1006, "temp"))
	require.NoError(t, srv.Start("127.0.0.1:0"))
	defer srv.Stop()

	endpoint := srv.ln.Addr().String()
	cl := NewClient()
	conn, err := cl.Connect(endpoint, 1, 2*time.Second)
	require.NoError(t, err)
	defer cl.Close()

	conn.AddBinary("brkr", 5, 1005)
	conn.AddAnalog("temp", 6, 1006)

	cl.IntegrityScan()
	require.Eventually(t, func() bool {
		conn.Poll()
		return conn.ReadRegisterByTag("brkr").Descriptor.Status
	}, 2*time.Second, 20*time.Millisecond)

	conn.Poll()
	assert.True(t, conn.ReadRegisterByTag("brkr").Descriptor.Status)
	assert.InDelta(t, 21.5, conn.ReadRegisterByTag("temp").Descriptor.Value, 0.01)
}
