// Package coordinator pkg/coordinator/types.go
package coordinator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/profile"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/transform"
)

// Key addresses one entity within a device snapshot. Port 0 means
// device-wide; real port indices start at 1 (SNMP ifIndex convention).
type Key struct {
	Name string
	Port int
}

func (k Key) String() string {
	if k.Port == 0 {
		return k.Name
	}

	return fmt.Sprintf("port_%d_%s", k.Port, k.Name)
}

// Entry is one transformed value inside a snapshot.
type Entry struct {
	Key      Key                  `json:"-"`
	Kind     transform.EntityKind `json:"kind"`
	Writable bool                 `json:"writable,omitempty"`
	Outcome  transform.Outcome    `json:"outcome"`
	Updated  time.Time            `json:"updated"`
}

// Snapshot is the latest fully transformed state of one device. Snapshots
// are immutable once published: cadence cycles build a successor and swap it
// in atomically, so readers never observe a half-updated cycle.
type Snapshot struct {
	Device    string        `json:"device"`
	Version   uint64        `json:"version"`
	Timestamp time.Time     `json:"timestamp"`
	Entries   map[Key]Entry `json:"-"`
	MACTable  *MACTable     `json:"mac_table,omitempty"`
}

// MarshalJSON renders entries keyed by their string form.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	type alias Snapshot

	entries := make(map[string]Entry, len(s.Entries))
	for k, e := range s.Entries {
		entries[k.String()] = e
	}

	return json.Marshal(struct {
		*alias
		Entries map[string]Entry `json:"entries"`
	}{alias: (*alias)(s), Entries: entries})
}

// next builds the successor snapshot: a copy with the given entries
// replaced. Passing a nil map reuses the previous entries (MAC-only update).
func (s *Snapshot) next(replace map[Key]Entry, now time.Time) *Snapshot {
	out := &Snapshot{
		Device:    s.Device,
		Version:   s.Version + 1,
		Timestamp: now,
		Entries:   make(map[Key]Entry, len(s.Entries)+len(replace)),
		MACTable:  s.MACTable,
	}

	for k, e := range s.Entries {
		out.Entries[k] = e
	}

	for k, e := range replace {
		out.Entries[k] = e
	}

	return out
}

// Get returns one entry from the snapshot.
func (s *Snapshot) Get(key Key) (Entry, bool) {
	e, ok := s.Entries[key]
	return e, ok
}

// Status is the device-level health summary the coordinator maintains
// alongside the snapshot.
type Status struct {
	Device              string    `json:"device"`
	DeviceType          string    `json:"device_type"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Degraded            bool      `json:"degraded"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastSuccess         time.Time `json:"last_success"`
	PortCount           int       `json:"port_count"`
	SupportedOIDs       int       `json:"supported_oids"`
	UnsupportedOIDs     []string  `json:"unsupported_oids,omitempty"`
}

// scope ties a supported OID to the cadence that owns its snapshot entries.
type scope int

const (
	scopeFast scope = iota // device-wide + per-port dynamic values
	scopeSlow              // static attributes
)

// boundOID is one validated, pollable OID: the catalog descriptor bound to a
// concrete instance OID (port index substituted for port-scoped templates).
type boundOID struct {
	key   Key
	oid   string
	scope scope
	desc  *profile.Descriptor
}
