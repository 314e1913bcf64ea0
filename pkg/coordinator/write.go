// Package coordinator pkg/coordinator/write.go
package coordinator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/profile"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/transform"
)

// Write sets a writable entity to the requested state. The desired state is a
// bool for switches and a string for texts; the vmap inverse produces the raw
// wire value. The write is confirmed by an immediate read-back through the
// same transform pipeline, and only a confirmed write updates the snapshot.
func (in *Instance) Write(ctx context.Context, key Key, value interface{}) error {
	if !in.cfg.EnableControls {
		return ErrControlsDisabled
	}

	in.mu.RLock()
	val := in.val
	in.mu.RUnlock()

	if val == nil {
		return ErrDeviceUnreachable
	}

	b, ok := val.supported[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOID, key)
	}

	if !b.desc.Writable {
		return fmt.Errorf("%w: %s", ErrNotWritable, key)
	}

	raw, err := rawWriteValue(b.desc, value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	in.ioMu.Lock()
	defer in.ioMu.Unlock()

	if err := in.client.Set(ctx, b.oid, raw); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteRejected, key, err)
	}

	results, err := in.client.Get(ctx, []string{b.oid})

	now := time.Now()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteUnverified, key, err)
	}

	res := results[b.oid]
	if res.Err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteUnverified, key, res.Err)
	}

	outcome, next := transform.Transform(res.Value, in.samples[key], &b.desc.Spec, b.desc.Kind, now)
	if next != nil {
		in.samples[key] = next
	}

	if !confirms(b.desc.Kind, outcome, value) {
		return fmt.Errorf("%w: %s read back %v", ErrWriteUnverified, key, outcome.Value)
	}

	in.publish(map[Key]Entry{key: {
		Key:      key,
		Kind:     b.desc.Kind,
		Writable: true,
		Outcome:  outcome,
		Updated:  now,
	}}, nil, now)

	return nil
}

// rawWriteValue inverts the entity's vmap into the wire value. Numeric raw
// strings go out as SNMP integers, everything else as octet strings.
func rawWriteValue(desc *profile.Descriptor, value interface{}) (interface{}, error) {
	switch desc.Kind {
	case transform.KindSwitch:
		state, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: switch wants a bool, got %T", ErrWriteRejected, value)
		}

		raw, err := desc.VMap.RawFor(state)
		if err != nil {
			return nil, err
		}

		if n, err := strconv.Atoi(raw); err == nil {
			return n, nil
		}

		return raw, nil
	case transform.KindText:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: text wants a string, got %T", ErrWriteRejected, value)
		}

		return s, nil
	default:
		return nil, fmt.Errorf("%w: kind %s", ErrNotWritable, desc.Kind)
	}
}

// confirms checks the read-back outcome against the requested state.
func confirms(kind transform.EntityKind, out transform.Outcome, want interface{}) bool {
	if out.State != transform.StateOK {
		return false
	}

	switch kind {
	case transform.KindSwitch:
		got, ok := out.Value.(bool)
		return ok && got == want.(bool)
	case transform.KindText:
		got, ok := out.Value.(string)
		return ok && got == want.(string)
	default:
		return false
	}
}
