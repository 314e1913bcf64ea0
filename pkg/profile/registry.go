// Package profile pkg/profile/registry.go
package profile

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxCustomOIDs caps user-supplied custom OID additions per device.
const MaxCustomOIDs = 20

// Registry is an immutable index of loaded profiles keyed by device type.
// Profiles that failed validation are excluded and recorded in Invalid.
type Registry struct {
	profiles map[string]*Profile

	// Invalid maps profile file path to the error that excluded it.
	Invalid map[string]error
}

// Load reads every *.yaml / *.yml profile under dir. A malformed profile
// fails that profile only: it is excluded, logged and recorded in Invalid.
// Only a directory-level failure fails the whole load.
func Load(dir string) (*Registry, error) {
	reg := &Registry{
		profiles: make(map[string]*Profile),
		Invalid:  make(map[string]error),
	}

	var paths []string

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, p)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read profile directory '%s': %w", dir, err)
	}

	sort.Strings(paths)

	for _, path := range paths {
		prof, err := loadProfile(path)
		if err != nil {
			log.Printf("Excluding profile %s: %v", path, err)
			reg.Invalid[path] = err

			continue
		}

		if _, exists := reg.profiles[prof.DeviceType]; exists {
			err := fmt.Errorf("%w: duplicate device_type %q", ErrProfileInvalid, prof.DeviceType)
			log.Printf("Excluding profile %s: %v", path, err)
			reg.Invalid[path] = err

			continue
		}

		reg.profiles[prof.DeviceType] = prof
		log.Printf("Loaded device profile %q from %s", prof.DeviceType, path)
	}

	return reg, nil
}

func loadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileInvalid, err)
	}
	defer f.Close()

	var prof Profile

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&prof); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProfileInvalid, err)
	}

	if err := prof.Validate(); err != nil {
		return nil, err
	}

	return &prof, nil
}

// Get returns the profile for a device type.
func (r *Registry) Get(deviceType string) (*Profile, error) {
	prof, ok := r.profiles[deviceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeviceType, deviceType)
	}

	return prof, nil
}

// DeviceTypes lists the loaded device type keys in sorted order.
func (r *Registry) DeviceTypes() []string {
	types := make([]string, 0, len(r.profiles))
	for t := range r.profiles {
		types = append(types, t)
	}

	sort.Strings(types)

	return types
}

// CustomOID is one user-supplied name:oid addition.
type CustomOID struct {
	Name string `json:"name"`
	OID  string `json:"oid"`
}

// ParseCustomOIDs parses the "name:oid,name:oid" form users enter at setup.
func ParseCustomOIDs(s string) ([]CustomOID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	pairs := strings.Split(s, ",")
	if len(pairs) > MaxCustomOIDs {
		return nil, fmt.Errorf("%w: maximum %d", ErrTooManyCustomOIDs, MaxCustomOIDs)
	}

	out := make([]CustomOID, 0, len(pairs))

	for _, pair := range pairs {
		name, oid, found := strings.Cut(strings.TrimSpace(pair), ":")
		name = strings.TrimSpace(name)
		oid = strings.TrimPrefix(strings.TrimSpace(oid), ".")

		if !found || name == "" || oid == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCustomOIDs, pair)
		}

		if !validOID(oid) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOID, oid)
		}

		out = append(out, CustomOID{Name: name, OID: oid})
	}

	return out, nil
}

// Catalog is the merged, resolved OID catalog for one device: profile
// descriptors plus custom additions, ready for validation and polling.
type Catalog struct {
	DeviceType string
	Config     Config
	Attributes []*Descriptor
	Device     []*Descriptor
	Ports      []*Descriptor // per-port templates, one instance per discovered port
}

// Resolve merges the profile for deviceType with custom OID additions.
// Custom entries default to sensor/direct; a name collision with a profile
// descriptor is won by the custom entry and logged as a warning.
func (r *Registry) Resolve(deviceType string, custom []CustomOID) (*Catalog, error) {
	prof, err := r.Get(deviceType)
	if err != nil {
		return nil, err
	}

	cat := &Catalog{
		DeviceType: deviceType,
		Config:     prof.Config,
		Attributes: sortedExposed(prof.Attributes),
		Device:     sortedExposed(prof.Device),
		Ports:      sortedExposed(prof.Ports),
	}

	if len(custom) == 0 {
		return cat, nil
	}

	shadowed := make(map[string]bool, len(custom))
	for _, c := range custom {
		shadowed[c.Name] = true
	}

	// A custom entry wins a name collision in any section, not just device.
	cat.Attributes = dropShadowed(cat.Attributes, shadowed, deviceType, "attributes")
	cat.Ports = dropShadowed(cat.Ports, shadowed, deviceType, "ports")

	device := dropShadowed(cat.Device, shadowed, deviceType, "device")

	for _, c := range custom {
		desc := &Descriptor{OID: c.OID}
		if err := desc.normalize(c.Name, false); err != nil {
			return nil, err
		}

		device = append(device, desc)
	}

	sort.Slice(device, func(i, j int) bool { return device[i].Name < device[j].Name })
	cat.Device = device

	return cat, nil
}

func dropShadowed(descs []*Descriptor, shadowed map[string]bool, deviceType, section string) []*Descriptor {
	out := make([]*Descriptor, 0, len(descs))

	for _, d := range descs {
		if shadowed[d.Name] {
			log.Printf("Warning: custom OID %q overrides %s descriptor for %s", d.Name, section, deviceType)
			continue
		}

		out = append(out, d)
	}

	return out
}

// Find looks a descriptor up by name across the catalog's sections.
func (c *Catalog) Find(name string) (*Descriptor, bool) {
	for _, section := range [][]*Descriptor{c.Device, c.Ports, c.Attributes} {
		for _, d := range section {
			if d.Name == name {
				return d, true
			}
		}
	}

	return nil, false
}
