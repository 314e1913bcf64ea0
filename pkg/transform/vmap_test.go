package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestVMapYAMLKeepsSensorOrder(t *testing.T) {
	var m VMap

	require.NoError(t, yaml.Unmarshal([]byte(`{"0": "off", ">0": "delivering", "99": "unreached"}`), &m))

	require.Len(t, m.Entries, 3)
	assert.Equal(t, VMapEntry{Token: "0", Label: "off"}, m.Entries[0])
	assert.Equal(t, VMapEntry{Token: ">0", Label: "delivering"}, m.Entries[1])

	// 99 would match ">0" textually later in the list; order decides.
	assert.Equal(t, "delivering", m.MapSensor(int64(99)))
}

func TestVMapYAMLBooleanShapes(t *testing.T) {
	var scalar VMap

	require.NoError(t, yaml.Unmarshal([]byte(`{"on": "1", "off": "2"}`), &scalar))
	assert.True(t, scalar.Boolean())
	assert.Equal(t, []string{"1"}, scalar.On)

	var list VMap

	require.NoError(t, yaml.Unmarshal([]byte(`{"on": [">0"], "off": ["0"]}`), &list))

	state, known := list.MapBinary(int64(3))
	assert.True(t, known)
	assert.True(t, state)
}

func TestVMapYAMLRejectsMixedShape(t *testing.T) {
	var m VMap

	err := yaml.Unmarshal([]byte(`{"on": "1", "0": "off"}`), &m)
	assert.ErrorIs(t, err, ErrInvalidVmap)
}

func TestVMapValidatePerKind(t *testing.T) {
	boolean := &VMap{On: []string{"1"}, Off: []string{"2"}, boolean: true}
	sensor := &VMap{Entries: []VMapEntry{{Token: "0", Label: "off"}}}

	assert.Error(t, boolean.validate(KindSensor))
	assert.Error(t, sensor.validate(KindBinarySensor))
	assert.NoError(t, boolean.validate(KindSwitch))
	assert.Error(t, (&VMap{On: []string{">0"}, Off: []string{"0"}, boolean: true}).validate(KindSwitch))
	assert.Error(t, (&VMap{On: []string{"1", "3"}, Off: []string{"2"}, boolean: true}).validate(KindSwitch))
	assert.Error(t, boolean.validate(KindText))
	assert.Error(t, (&VMap{On: []string{">x"}, Off: []string{"0"}, boolean: true}).validate(KindBinarySensor))
}

func TestVMapSensorNumericNormalization(t *testing.T) {
	m := &VMap{Entries: []VMapEntry{{Token: "5", Label: "five"}}}

	assert.Equal(t, "five", m.MapSensor(float64(5.0)))
	assert.Equal(t, "five", m.MapSensor("5"))
}

func TestVMapSensorPassthroughUnmatched(t *testing.T) {
	m := &VMap{Entries: []VMapEntry{{Token: "1", Label: "one"}}}

	assert.Equal(t, int64(7), m.MapSensor(int64(7)))
}

func TestVMapRawFor(t *testing.T) {
	m := &VMap{On: []string{"1"}, Off: []string{"2"}, boolean: true}

	on, err := m.RawFor(true)
	require.NoError(t, err)
	assert.Equal(t, "1", on)

	off, err := m.RawFor(false)
	require.NoError(t, err)
	assert.Equal(t, "2", off)

	_, err = (&VMap{}).RawFor(true)
	assert.ErrorIs(t, err, ErrVmapNotInvertible)

	_, err = (&VMap{On: []string{">0"}, Off: []string{"0"}, boolean: true}).RawFor(true)
	assert.ErrorIs(t, err, ErrVmapNotInvertible)
}
