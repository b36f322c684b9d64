package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "device.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultCycleTime(t *testing.T) {
	path := writeTempConfig(t, `{"name":"rtu1","logic":"","tags":{"internal-tag":[{"name":"foo","status":false}]}}`)
	dev, err := Load(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, dev.CycleTime)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, `{"name":"rtu1","bogus-field":true}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingName(t *testing.T) {
	path := writeTempConfig(t, `{"cycle-time":500}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRequiresStatusOrValue(t *testing.T) {
	dev := &Device{Name: "rtu1", Tags: Tags{InternalTags: []InternalTag{{Name: "foo"}}}}
	err := dev.Validate()
	assert.Error(t, err)
}

func TestValidateExternalTagRequiresKnownType(t *testing.T) {
	dev := &Device{
		Name: "rtu1",
		Tags: Tags{ExternalTags: []ExternalTag{{Name: "x", IO: "p1", Type: "weird"}}},
	}
	err := dev.Validate()
	assert.Error(t, err)
}

func TestValidateTagNamespacesMustBeDisjoint(t *testing.T) {
	dev := &Device{
		Name: "rtu1",
		Tags: Tags{
			InternalTags: []InternalTag{{Name: "dup", Status: boolPtr(false)}},
			ExternalTags: []ExternalTag{{Name: "dup", IO: "p1", Type: "binary"}},
		},
	}
	err := dev.Validate()
	assert.Error(t, err)
}

func boolPtr(b bool) *bool { return &b }
