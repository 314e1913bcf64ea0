// Package transform pkg/transform/transform.go
//
// Transform is the calc → math → vmap pipeline that turns raw SNMP values
// into typed entity states. It is a pure function: the only state it touches
// is the previous sample passed in, and the replacement sample it hands back.
// The caller (the polling coordinator) owns that state.
package transform

import (
	"math"
	"time"
)

// Transform runs the full pipeline for one raw reading.
//
// prev is the previous diff sample for this (oid, port), or nil. The returned
// sample is non-nil only for diff OIDs and must replace the stored one
// regardless of the outcome state, so a wrap or a first reading still
// baselines the next cycle.
func Transform(raw interface{}, prev *Sample, spec *Spec, kind EntityKind, now time.Time) (Outcome, *Sample) {
	if kind == KindText {
		return Outcome{Value: valueString(raw), State: StateOK}, nil
	}

	value, next, ok := applyCalc(raw, prev, spec, now)
	if !ok {
		return Outcome{State: StateUnavailable, Unit: spec.ResolveUnit()}, next
	}

	value, ok = applyMath(value, spec)
	if !ok {
		return Outcome{State: StateUnavailable, Unit: spec.ResolveUnit()}, next
	}

	out := applyVmap(value, spec, kind)
	if kind == KindSensor {
		out.Unit = spec.ResolveUnit()
	}

	return out, next
}

// applyCalc runs the calc stage. For diff it also produces the replacement
// sample. ok=false means no value could be produced this cycle.
func applyCalc(raw interface{}, prev *Sample, spec *Spec, now time.Time) (value interface{}, next *Sample, ok bool) {
	if spec.Calc != CalcDiff {
		return raw, nil, true
	}

	counter, isCounter := toCounter(raw)
	if !isCounter {
		// Validation rejects diff on non-counters; a device returning
		// garbage mid-flight is handled as a missed cycle, not a crash.
		return nil, nil, false
	}

	next = &Sample{Raw: counter, Timestamp: now}

	if prev == nil {
		// First sample only baselines the next cycle.
		return nil, next, false
	}

	elapsed := now.Sub(prev.Timestamp).Seconds()
	if elapsed <= 0 {
		return nil, next, false
	}

	return float64(counterDelta(prev.Raw, counter, spec.Width)) / elapsed, next, true
}

// counterDelta computes current-previous adjusted for counter wrap at the
// descriptor's modulus.
func counterDelta(previous, current uint64, width int) uint64 {
	if width == 32 {
		return (current + (1 << 32) - previous) & math.MaxUint32
	}

	// 64-bit: unsigned subtraction wraps at 2^64 by itself.
	return current - previous
}

// applyMath evaluates the compiled unit-conversion expression with x bound
// to the calc-stage output. Non-numeric inputs skip the stage; a non-finite
// result is a missed cycle.
func applyMath(value interface{}, spec *Spec) (interface{}, bool) {
	if spec.expr == nil {
		return value, true
	}

	x, ok := toFloat(value)
	if !ok {
		return value, true
	}

	y := spec.expr.Eval(x)
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return nil, false
	}

	return y, true
}

// applyVmap runs the kind-specific vmap stage.
func applyVmap(value interface{}, spec *Spec, kind EntityKind) Outcome {
	switch kind {
	case KindBinarySensor:
		if spec.VMap.IsZero() {
			switch valueString(value) {
			case "1", "on", "true":
				return Outcome{Value: true, State: StateOK}
			default:
				return Outcome{Value: false, State: StateOK}
			}
		}

		state, known := spec.VMap.MapBinary(value)
		if !known {
			return Outcome{State: StateUnknown}
		}

		return Outcome{Value: state, State: StateOK}
	case KindSwitch:
		state, known := spec.VMap.MapSwitch(value)
		if !known {
			return Outcome{State: StateUnknown}
		}

		return Outcome{Value: state, State: StateOK}
	default:
		if !spec.VMap.IsZero() {
			return Outcome{Value: spec.VMap.MapSensor(value), State: StateOK}
		}

		if f, ok := toFloat(value); ok {
			return Outcome{Value: f, State: StateOK}
		}

		return Outcome{Value: value, State: StateOK}
	}
}
