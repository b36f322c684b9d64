package commandiface

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
)

// fakeClient is a minimal in-memory TagClient for exercising the request
// grammar without a real protocol Connection.
type fakeClient struct {
	registers map[string]common.RegisterDescriptor
}

func newFakeClient() *fakeClient {
	return &fakeClient{registers: make(map[string]common.RegisterDescriptor)}
}

func (f *fakeClient) ReadRegisterByTag(tag string) common.StatusMessage {
	rd, ok := f.registers[tag]
	if !ok {
		return common.Errf("Unable to find tag -- %s", tag)
	}
	return common.Ok(rd)
}

func (f *fakeClient) WriteBinary(tag string, v bool) common.StatusMessage {
	rd, ok := f.registers[tag]
	if !ok {
		return common.Errf("Unable to find tag -- %s", tag)
	}
	rd.Status = v
	f.registers[tag] = rd
	return common.Ok(rd)
}

func (f *fakeClient) WriteAnalog(tag string, v float64) common.StatusMessage {
	rd, ok := f.registers[tag]
	if !ok {
		return common.Errf("Unable to find tag -- %s", tag)
	}
	rd.Value = v
	f.registers[tag] = rd
	return common.Ok(rd)
}

func (f *fakeClient) Tags() []string {
	out := make([]string, 0, len(f.registers))
	for t := range f.registers {
		out = append(out, t)
	}
	return out
}

func TestQueryListsTags(t *testing.T) {
	c := newFakeClient()
	c.registers["load-power"] = common.RegisterDescriptor{Tag: "load-power"}
	s := New(c)

	resp := s.Handle("QUERY=")
	assert.Equal(t, "ACK=load-power,", resp)
}

func TestReadBinaryTag(t *testing.T) {
	c := newFakeClient()
	c.registers["brkr"] = common.RegisterDescriptor{Tag: "brkr", Binary: true, Status: true}
	s := New(c)

	assert.Equal(t, "ACK=brkr:true", s.Handle("READ=brkr"))
}

func TestReadAnalogTag(t *testing.T) {
	c := newFakeClient()
	c.registers["load-power"] = common.RegisterDescriptor{Tag: "load-power", Value: 12.5}
	s := New(c)

	assert.Equal(t, "ACK=load-power:12.5", s.Handle("READ=load-power"))
}

func TestReadUnknownTagFails(t *testing.T) {
	s := New(newFakeClient())
	resp := s.Handle("READ=nope")
	assert.Equal(t, "ERR=Unable to find tag -- nope", resp)
}

func TestWriteBinaryTag(t *testing.T) {
	c := newFakeClient()
	c.registers["load-breaker-toggle"] = common.RegisterDescriptor{Tag: "load-breaker-toggle", Binary: true, Status: true}
	s := New(c)

	resp := s.Handle("WRITE=load-breaker-toggle:false")
	assert.Equal(t, "ACK=Wrote tag load-breaker-toggle -- false", resp)
	assert.False(t, c.registers["load-breaker-toggle"].Status)
}

func TestWriteInvalidValueFails(t *testing.T) {
	c := newFakeClient()
	c.registers["brkr"] = common.RegisterDescriptor{Tag: "brkr", Binary: true}
	s := New(c)

	resp := s.Handle("WRITE=brkr:notabool")
	assert.Equal(t, "ERR=Invalid boolean value -- notabool", resp)
}

func TestUnknownCommandFails(t *testing.T) {
	s := New(newFakeClient())
	resp := s.Handle("FROB=x")
	assert.Equal(t, "ERR=Unknown command -- FROB=x", resp)
}
