// Package transform pkg/transform/vmap.go
package transform

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// VMapEntry is one sensor-vmap rule: a literal or comparison token mapped to
// an output label.
type VMapEntry struct {
	Token string
	Label string
}

// VMap holds a value→label mapping in one of two shapes.
//
// Sensor shape — an ordered list of token→label rules, first match wins:
//
//	vmap: {"0": "off", ">0": "delivering"}
//
// Boolean shape — "on"/"off" buckets of literals and/or comparison tokens,
// used by binary sensors (lists allowed) and switches (two literals only):
//
//	vmap: {on: [">0"], off: ["0"]}
//	vmap: {on: "1", off: "2"}
//
// Declaration order of sensor entries is preserved through YAML decoding.
type VMap struct {
	Entries []VMapEntry
	On      []string
	Off     []string
	boolean bool
}

// IsZero reports whether no mapping is configured.
func (m *VMap) IsZero() bool {
	return m == nil || (len(m.Entries) == 0 && len(m.On) == 0 && len(m.Off) == 0)
}

// Boolean reports whether the vmap uses the on/off shape.
func (m *VMap) Boolean() bool {
	return m != nil && m.boolean
}

// UnmarshalYAML decodes either vmap shape, keeping sensor entries in
// declaration order.
func (m *VMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: expected a mapping", ErrInvalidVmap)
	}

	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valNode := value.Content[i+1]
		key := keyNode.Value

		if key == "on" || key == "off" {
			m.boolean = true

			tokens, err := decodeTokens(valNode)
			if err != nil {
				return err
			}

			if key == "on" {
				m.On = tokens
			} else {
				m.Off = tokens
			}

			continue
		}

		if valNode.Kind != yaml.ScalarNode {
			return fmt.Errorf("%w: label for %q must be a scalar", ErrInvalidVmap, key)
		}

		m.Entries = append(m.Entries, VMapEntry{Token: key, Label: valNode.Value})
	}

	if m.boolean && len(m.Entries) > 0 {
		return fmt.Errorf("%w: cannot mix on/off buckets with sensor entries", ErrInvalidVmap)
	}

	return nil
}

func decodeTokens(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		tokens := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: on/off entries must be scalars", ErrInvalidVmap)
			}

			tokens = append(tokens, c.Value)
		}

		return tokens, nil
	default:
		return nil, fmt.Errorf("%w: on/off must be a value or a list", ErrInvalidVmap)
	}
}

// validate checks the vmap against the semantics of the entity kind.
func (m *VMap) validate(kind EntityKind) error {
	if m.IsZero() {
		return nil
	}

	switch kind {
	case KindSensor:
		if m.boolean {
			return fmt.Errorf("%w: sensor vmap must map values to labels", ErrInvalidVmap)
		}

		for _, e := range m.Entries {
			if isComparison(e.Token) {
				if _, err := comparisonThreshold(e.Token); err != nil {
					return err
				}
			}
		}
	case KindBinarySensor:
		if !m.boolean {
			return fmt.Errorf("%w: binary_sensor vmap needs on/off buckets", ErrInvalidVmap)
		}

		for _, token := range append(append([]string{}, m.On...), m.Off...) {
			if isComparison(token) {
				if _, err := comparisonThreshold(token); err != nil {
					return err
				}
			}
		}
	case KindSwitch:
		// Switches need a deterministic exact state on both sides.
		if !m.boolean || len(m.On) != 1 || len(m.Off) != 1 {
			return fmt.Errorf("%w: switch vmap needs exactly one on and one off value", ErrInvalidVmap)
		}

		if isComparison(m.On[0]) || isComparison(m.Off[0]) {
			return fmt.Errorf("%w: switch vmap cannot use comparison tokens", ErrInvalidVmap)
		}
	case KindText:
		return fmt.Errorf("%w: text entities do not take a vmap", ErrInvalidVmap)
	}

	return nil
}

// MapSensor applies sensor semantics: first matching entry wins, no match
// passes the value through unmapped.
func (m *VMap) MapSensor(v interface{}) interface{} {
	val := valueString(v)

	for _, e := range m.Entries {
		if matchToken(e.Token, val) {
			return e.Label
		}
	}

	return v
}

// MapBinary applies binary-sensor semantics. The second return is false when
// the value matched neither bucket.
func (m *VMap) MapBinary(v interface{}) (state, known bool) {
	val := valueString(v)

	for _, token := range m.On {
		if matchToken(token, val) {
			return true, true
		}
	}

	for _, token := range m.Off {
		if matchToken(token, val) {
			return false, true
		}
	}

	return false, false
}

// MapSwitch applies switch semantics: exact literal match only; anything else
// is unknown, never assumed off.
func (m *VMap) MapSwitch(v interface{}) (state, known bool) {
	if m.IsZero() || len(m.On) == 0 || len(m.Off) == 0 {
		return false, false
	}

	val := valueString(v)

	switch {
	case val == m.On[0]:
		return true, true
	case val == m.Off[0]:
		return false, true
	default:
		return false, false
	}
}

// RawFor inverts a boolean vmap for the write path: it returns the raw value
// to SET for the desired state.
func (m *VMap) RawFor(state bool) (string, error) {
	if m.IsZero() {
		return "", ErrVmapNotInvertible
	}

	bucket := m.Off
	if state {
		bucket = m.On
	}

	if len(bucket) == 0 || isComparison(bucket[0]) {
		return "", ErrVmapNotInvertible
	}

	return bucket[0], nil
}

func isComparison(token string) bool {
	return strings.HasPrefix(token, ">") || strings.HasPrefix(token, "<")
}

func comparisonThreshold(token string) (float64, error) {
	f, err := strconv.ParseFloat(token[1:], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad comparison token %q", ErrInvalidVmap, token)
	}

	return f, nil
}

// matchToken matches one vmap token against a value: exact string equality,
// or a numeric >V / <V comparison when the value is numeric.
func matchToken(token, val string) bool {
	if token == val {
		return true
	}

	if !isComparison(token) {
		// Normalize numeric forms so "5" matches "5.0".
		tf, terr := strconv.ParseFloat(token, 64)
		vf, verr := strconv.ParseFloat(val, 64)

		return terr == nil && verr == nil && tf == vf
	}

	threshold, err := comparisonThreshold(token)
	if err != nil {
		return false
	}

	v, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return false
	}

	if token[0] == '>' {
		return v > threshold
	}

	return v < threshold
}
