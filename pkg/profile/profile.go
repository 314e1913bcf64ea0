// Package profile pkg/profile/profile.go
//
// Package profile models declarative device profiles: one YAML file per
// vendor/family, describing which OIDs the device exposes and how to
// transform their values. Profiles are pure data; adding a vendor means
// adding a file, not code.
package profile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/transform"
)

// Descriptor identifies one queryable/settable point on a device.
type Descriptor struct {
	Name       string               `yaml:"-" json:"name"`
	OID        string               `yaml:"oid" json:"oid"`
	Kind       transform.EntityKind `yaml:"kind,omitempty" json:"kind"`
	Writable   bool                 `yaml:"writable,omitempty" json:"writable"`
	PortScoped bool                 `yaml:"-" json:"port_scoped"`

	// PoE marks a port template that only exists on PoE-capable ports.
	PoE bool `yaml:"poe,omitempty" json:"poe,omitempty"`

	transform.Spec `yaml:",inline"`
}

// notExposed marks a descriptor slot a vendor does not implement.
const notExposed = "na"

// exposed reports whether the descriptor carries a real OID.
func (d *Descriptor) exposed() bool {
	return d != nil && d.OID != "" && d.OID != notExposed
}

// normalize fills defaults and validates one descriptor in place.
func (d *Descriptor) normalize(name string, portScoped bool) error {
	d.Name = name
	d.PortScoped = portScoped
	d.OID = strings.TrimPrefix(d.OID, ".")

	if name == "" {
		return ErrEmptyName
	}

	if !validOID(d.OID) {
		return fmt.Errorf("%w: %q", ErrInvalidOID, d.OID)
	}

	if d.Kind == "" {
		d.Kind = transform.KindSensor
	}

	if !transform.ValidKind(d.Kind) {
		return fmt.Errorf("%w: %q", ErrInvalidKind, d.Kind)
	}

	// Switches and texts are the write-path kinds.
	if d.Kind == transform.KindSwitch || d.Kind == transform.KindText {
		d.Writable = true
	}

	// A switch without an explicit vmap gets the ifAdminStatus-style
	// default so its state mapping stays deterministic.
	if d.Kind == transform.KindSwitch && d.VMap.IsZero() {
		d.VMap = &transform.VMap{On: []string{"1"}, Off: []string{"2"}}
	}

	if err := d.Compile(d.Kind); err != nil {
		return fmt.Errorf("descriptor %q: %w", name, err)
	}

	return nil
}

// Instance returns a copy of a port template bound to one port index.
func (d *Descriptor) Instance(port int) *Descriptor {
	inst := *d
	inst.OID = fmt.Sprintf("%s.%d", d.OID, port)

	return &inst
}

// validOID accepts dotted-numeric identifiers, with or without leading dot
// (already stripped by normalize).
func validOID(oid string) bool {
	if oid == "" {
		return false
	}

	for _, part := range strings.Split(oid, ".") {
		if part == "" {
			return false
		}

		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}

	return true
}

// Config holds a profile's capability flags and discovery OIDs.
type Config struct {
	AccessTestOID  string `yaml:"access_test_oid" json:"access_test_oid"`
	PortCountOID   string `yaml:"port_count_oid,omitempty" json:"port_count_oid,omitempty"`
	HasPoE         bool   `yaml:"has_poe,omitempty" json:"has_poe,omitempty"`
	HasMACTable    bool   `yaml:"has_mac_table,omitempty" json:"has_mac_table,omitempty"`
	MACTableOID    string `yaml:"mac_table_oid,omitempty" json:"mac_table_oid,omitempty"`
	MACPortOID     string `yaml:"mac_port_oid,omitempty" json:"mac_port_oid,omitempty"`
	PoEPortListOID string `yaml:"poe_port_list_oid,omitempty" json:"poe_port_list_oid,omitempty"`
	PortExclude    []int  `yaml:"port_exclude,omitempty" json:"port_exclude,omitempty"`
}

// Profile is one vendor/family device description. Immutable after load.
type Profile struct {
	DeviceType string                 `yaml:"device_type"`
	Config     Config                 `yaml:"config"`
	Attributes map[string]*Descriptor `yaml:"attributes"`
	Device     map[string]*Descriptor `yaml:"device"`
	Ports      map[string]*Descriptor `yaml:"ports,omitempty"`
}

// Validate implements config.Validator: it checks required sections and
// normalizes every descriptor. Failures reference the offending descriptor.
func (p *Profile) Validate() error {
	if p.DeviceType == "" {
		return fmt.Errorf("%w: %w", ErrProfileInvalid, ErrMissingDeviceType)
	}

	if p.Config.AccessTestOID == "" {
		return fmt.Errorf("%w: %s: %w", ErrProfileInvalid, p.DeviceType, ErrMissingAccessTest)
	}

	if p.Attributes == nil {
		return fmt.Errorf("%w: %s: %w attributes", ErrProfileInvalid, p.DeviceType, ErrMissingSection)
	}

	if p.Device == nil {
		return fmt.Errorf("%w: %s: %w device", ErrProfileInvalid, p.DeviceType, ErrMissingSection)
	}

	p.Config.AccessTestOID = strings.TrimPrefix(p.Config.AccessTestOID, ".")
	p.Config.PortCountOID = strings.TrimPrefix(p.Config.PortCountOID, ".")
	p.Config.MACTableOID = strings.TrimPrefix(p.Config.MACTableOID, ".")
	p.Config.MACPortOID = strings.TrimPrefix(p.Config.MACPortOID, ".")
	p.Config.PoEPortListOID = strings.TrimPrefix(p.Config.PoEPortListOID, ".")

	for section, descs := range map[string]map[string]*Descriptor{
		"attributes": p.Attributes,
		"device":     p.Device,
		"ports":      p.Ports,
	} {
		portScoped := section == "ports"

		for name, desc := range descs {
			if !desc.exposed() {
				continue
			}

			if err := desc.normalize(name, portScoped); err != nil {
				return fmt.Errorf("%w: %s/%s/%s: %w", ErrProfileInvalid, p.DeviceType, section, name, err)
			}
		}
	}

	return nil
}

// sortedExposed returns a section's implemented descriptors in stable name
// order.
func sortedExposed(descs map[string]*Descriptor) []*Descriptor {
	out := make([]*Descriptor, 0, len(descs))

	for _, d := range descs {
		if d.exposed() {
			out = append(out, d)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}
