package transform

import (
	"strconv"
	"time"
)

// EntityKind determines how a transformed value is surfaced and which vmap
// semantics apply.
type EntityKind string

const (
	KindSensor       EntityKind = "sensor"
	KindBinarySensor EntityKind = "binary_sensor"
	KindSwitch       EntityKind = "switch"
	KindText         EntityKind = "text"
)

// ValidKind reports whether k is one of the known entity kinds.
func ValidKind(k EntityKind) bool {
	switch k {
	case KindSensor, KindBinarySensor, KindSwitch, KindText:
		return true
	default:
		return false
	}
}

// State qualifies a transformed value.
type State string

const (
	// StateOK means Value carries a real reading.
	StateOK State = "ok"
	// StateUnavailable means no value could be produced this cycle (first
	// diff sample, read failure) and the entity should show as unavailable.
	StateUnavailable State = "unavailable"
	// StateUnknown means the raw value matched no vmap bucket. Switches in
	// particular must never be guessed into an off state.
	StateUnknown State = "unknown"
)

// Outcome is the fully transformed result for one OID reading.
type Outcome struct {
	Value interface{} `json:"value"` // float64, string or bool depending on kind
	State State       `json:"state"`
	Unit  string      `json:"unit,omitempty"`
}

// Sample is the previous-cycle raw counter reading kept for diff
// calculations. Only the most recent sample per (oid, port) survives a cycle.
type Sample struct {
	Raw       uint64
	Timestamp time.Time
}

// valueString renders a raw or calc-stage value the way vmap tokens are
// written in profiles: integers without a decimal point.
func valueString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "1"
		}

		return "0"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	default:
		return ""
	}
}

// toFloat coerces the numeric types the transport produces.
func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toCounter coerces a raw value to the unsigned integer domain diff
// calculations operate in.
func toCounter(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case uint64:
		return t, true
	case uint32:
		return uint64(t), true
	case int:
		if t < 0 {
			return 0, false
		}

		return uint64(t), true
	case int64:
		if t < 0 {
			return 0, false
		}

		return uint64(t), true
	case string:
		u, err := strconv.ParseUint(t, 10, 64)
		return u, err == nil
	default:
		return 0, false
	}
}
