// Package coordinator pkg/coordinator/manager.go
//
// Package coordinator owns the per-device polling lifecycle: OID validation,
// the three read cadences, verified writes and snapshot publication.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/profile"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/snmp"
)

// ClientFactory builds the transport for one device. Swappable for tests.
type ClientFactory func(cfg DeviceConfig) (snmp.Client, error)

// DefaultClientFactory builds gosnmp-backed clients.
func DefaultClientFactory(cfg DeviceConfig) (snmp.Client, error) {
	return snmp.NewClient(snmp.ClientConfig{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Credentials: cfg.Credentials,
		Timeout:     time.Duration(cfg.Timeout),
		Retries:     cfg.Retries,
	})
}

// Recorder receives every published snapshot for persistence. A nil recorder
// disables history.
type Recorder interface {
	Record(device string, snap *Snapshot) error
}

// Manager runs one Instance per configured device.
type Manager struct {
	registry *profile.Registry
	factory  ClientFactory
	rec      Recorder

	mu      sync.RWMutex
	devices map[string]*Instance
}

// NewManager builds a manager over the given profile registry. factory may be
// nil to use the gosnmp default.
func NewManager(registry *profile.Registry, factory ClientFactory, rec Recorder) *Manager {
	if factory == nil {
		factory = DefaultClientFactory
	}

	return &Manager{
		registry: registry,
		factory:  factory,
		rec:      rec,
		devices:  make(map[string]*Instance),
	}
}

// AddDevice validates the config, resolves its OID catalog, runs the initial
// validation pass and starts the cadence loops. Failure leaves no trace of
// the device.
func (m *Manager) AddDevice(ctx context.Context, cfg DeviceConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.devices[cfg.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceExists, cfg.Name)
	}
	m.mu.Unlock()

	cat, err := m.resolveCatalog(cfg)
	if err != nil {
		return err
	}

	client, err := m.factory(cfg)
	if err != nil {
		return err
	}

	inst := newInstance(cfg, cat, client, m.rec)

	if err := inst.Start(ctx); err != nil {
		return fmt.Errorf("failed to start device %s: %w", cfg.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[cfg.Name]; exists {
		inst.Stop()
		return fmt.Errorf("%w: %s", ErrDeviceExists, cfg.Name)
	}

	m.devices[cfg.Name] = inst
	log.Printf("Device %s (%s at %s) added", cfg.Name, cfg.DeviceType, cfg.Host)

	return nil
}

// RemoveDevice stops a device's polling and drops its state.
func (m *Manager) RemoveDevice(name string) error {
	m.mu.Lock()
	inst, ok := m.devices[name]
	delete(m.devices, name)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}

	inst.Stop()
	log.Printf("Device %s removed", name)

	return nil
}

// Devices lists configured device names in sorted order.
func (m *Manager) Devices() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.devices))
	for name := range m.devices {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Snapshot returns a device's current published snapshot.
func (m *Manager) Snapshot(name string) (*Snapshot, error) {
	inst, err := m.instance(name)
	if err != nil {
		return nil, err
	}

	return inst.Snapshot(), nil
}

// Status returns a device's health summary.
func (m *Manager) Status(name string) (Status, error) {
	inst, err := m.instance(name)
	if err != nil {
		return Status{}, err
	}

	return inst.Status(), nil
}

// Report returns a device's supported/unsupported OID partition.
func (m *Manager) Report(name string) (*ValidationReport, error) {
	inst, err := m.instance(name)
	if err != nil {
		return nil, err
	}

	return inst.Report(), nil
}

// Write sets a writable entity on a device.
func (m *Manager) Write(ctx context.Context, name string, key Key, value interface{}) error {
	inst, err := m.instance(name)
	if err != nil {
		return err
	}

	return inst.Write(ctx, key, value)
}

// Probe runs the setup-flow discovery against a candidate device config
// without registering it. The temporary session is closed before returning.
func (m *Manager) Probe(ctx context.Context, cfg DeviceConfig) (*Discovery, error) {
	var disc *Discovery

	err := m.withCandidate(cfg, func(client snmp.Client, cat *profile.Catalog) error {
		var err error
		disc, err = Discover(ctx, client, cat)

		return err
	})

	return disc, err
}

// TestConnection checks reachability and read credentials for a candidate
// device config without registering it.
func (m *Manager) TestConnection(ctx context.Context, cfg DeviceConfig) error {
	return m.withCandidate(cfg, func(client snmp.Client, cat *profile.Catalog) error {
		return TestConnection(ctx, client, cat)
	})
}

// Validate runs the OID validation pass for a candidate device config and
// returns the supported/unsupported partition.
func (m *Manager) Validate(ctx context.Context, cfg DeviceConfig) (*ValidationReport, error) {
	var report *ValidationReport

	err := m.withCandidate(cfg, func(client snmp.Client, cat *profile.Catalog) error {
		v, err := validateOIDs(ctx, client, cat, nil)
		if err != nil {
			return err
		}

		report = v.report()

		return nil
	})

	return report, err
}

// withCandidate resolves and connects a throwaway session for setup-time
// operations against a device that is not registered yet.
func (m *Manager) withCandidate(cfg DeviceConfig, fn func(snmp.Client, *profile.Catalog) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	cat, err := m.resolveCatalog(cfg)
	if err != nil {
		return err
	}

	client, err := m.factory(cfg)
	if err != nil {
		return err
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnreachable, err)
	}
	defer client.Close()

	return fn(client, cat)
}

// Stop shuts every device down.
func (m *Manager) Stop() {
	m.mu.Lock()
	devices := m.devices
	m.devices = make(map[string]*Instance)
	m.mu.Unlock()

	for name, inst := range devices {
		inst.Stop()
		log.Printf("Device %s stopped", name)
	}
}

func (m *Manager) instance(name string) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.devices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}

	return inst, nil
}

func (m *Manager) resolveCatalog(cfg DeviceConfig) (*profile.Catalog, error) {
	custom, err := profile.ParseCustomOIDs(cfg.CustomOIDs)
	if err != nil {
		return nil, err
	}

	return m.registry.Resolve(cfg.DeviceType, custom)
}
