// Package coordinator pkg/coordinator/instance.go
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/profile"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/snmp"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/transform"
)

// Instance is the polling engine for one device. Three cadences share a
// single transport session:
//
//	fast   every PollInterval        device-wide and per-port dynamic values
//	medium PollInterval*MACMultiplier  MAC forwarding table refresh
//	slow   SlowInterval              static attributes + port count recheck
//
// ioMu single-flights the transport: cadence cycles and writes never overlap
// on the wire. Each cadence additionally holds a busy flag so a cycle that
// outlives its own interval makes the next tick skip instead of queue.
type Instance struct {
	cfg     DeviceConfig
	catalog *profile.Catalog
	client  snmp.Client
	rec     Recorder

	ioMu sync.Mutex

	mu       sync.RWMutex
	snapshot *Snapshot
	status   Status
	val      *validation

	// samples holds diff baselines per entity. Only cadence cycles touch
	// it, and those are serialized by ioMu.
	samples map[Key]*transform.Sample

	fastBusy atomic.Bool
	macBusy  atomic.Bool
	slowBusy atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newInstance(cfg DeviceConfig, cat *profile.Catalog, client snmp.Client, rec Recorder) *Instance {
	return &Instance{
		cfg:     cfg,
		catalog: cat,
		client:  client,
		rec:     rec,
		snapshot: &Snapshot{
			Device:  cfg.Name,
			Entries: make(map[Key]Entry),
		},
		status: Status{
			Device:     cfg.Name,
			DeviceType: cfg.DeviceType,
		},
		samples: make(map[Key]*transform.Sample),
	}
}

// Start connects, runs the initial validation pass and first cycles, then
// launches the cadence loops. A validation abort fails the start; the device
// is not left half-registered.
func (in *Instance) Start(ctx context.Context) error {
	if err := in.client.Connect(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDeviceUnreachable, in.cfg.Name, err)
	}

	ctx, in.cancel = context.WithCancel(ctx)

	in.ioMu.Lock()
	v, err := validateOIDs(ctx, in.client, in.catalog, nil)
	in.ioMu.Unlock()

	if err != nil {
		in.cancel()
		return err
	}

	in.commitValidation(v)
	log.Printf("Device %s: %d supported OIDs, %d unsupported, %d ports",
		in.cfg.Name, len(v.supported), len(v.unsupported), v.portCount)

	in.pollSlow(ctx)
	in.pollFast(ctx)
	in.pollMAC(ctx)

	in.wg.Add(3)
	go in.loop(ctx, time.Duration(in.cfg.PollInterval), in.pollFast)
	go in.loop(ctx, in.cfg.macInterval(), in.pollMAC)
	go in.loop(ctx, time.Duration(in.cfg.SlowInterval), in.pollSlow)

	return nil
}

// Stop tears down the cadence loops and closes the transport session.
func (in *Instance) Stop() {
	if in.cancel != nil {
		in.cancel()
	}

	in.wg.Wait()

	if err := in.client.Close(); err != nil {
		log.Printf("Device %s: error closing session: %v", in.cfg.Name, err)
	}
}

func (in *Instance) loop(ctx context.Context, interval time.Duration, cycle func(context.Context)) {
	defer in.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle(ctx)
		}
	}
}

// Snapshot returns the current published snapshot.
func (in *Instance) Snapshot() *Snapshot {
	in.mu.RLock()
	defer in.mu.RUnlock()

	return in.snapshot
}

// Status returns a copy of the device health summary.
func (in *Instance) Status() Status {
	in.mu.RLock()
	defer in.mu.RUnlock()

	return in.status
}

// Report returns the current supported/unsupported partition.
func (in *Instance) Report() *ValidationReport {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if in.val == nil {
		return &ValidationReport{}
	}

	return in.val.report()
}

func (in *Instance) pollFast(ctx context.Context) {
	if !in.fastBusy.CompareAndSwap(false, true) {
		log.Printf("Device %s: fast cycle still running, skipping tick", in.cfg.Name)
		return
	}
	defer in.fastBusy.Store(false)

	in.pollScope(ctx, scopeFast)
}

func (in *Instance) pollSlow(ctx context.Context) {
	if !in.slowBusy.CompareAndSwap(false, true) {
		log.Printf("Device %s: slow cycle still running, skipping tick", in.cfg.Name)
		return
	}
	defer in.slowBusy.Store(false)

	in.recheckPortCount(ctx)
	in.pollScope(ctx, scopeSlow)
}

// pollMAC refreshes the forwarding table for devices whose profile declares
// one. The rest of the snapshot is carried over untouched.
func (in *Instance) pollMAC(ctx context.Context) {
	if !in.catalog.Config.HasMACTable || in.catalog.Config.MACPortOID == "" {
		return
	}

	if !in.macBusy.CompareAndSwap(false, true) {
		log.Printf("Device %s: MAC cycle still running, skipping tick", in.cfg.Name)
		return
	}
	defer in.macBusy.Store(false)

	in.ioMu.Lock()
	defer in.ioMu.Unlock()

	pdus, err := in.client.Walk(ctx, in.catalog.Config.MACPortOID)

	now := time.Now()
	if err != nil {
		in.recordFailure(now, fmt.Errorf("MAC table walk: %w", err))
		return
	}

	table := buildMACTable(pdus, in.cfg.MACCollectionPorts, now)
	in.publish(nil, table, now)
	in.recordSuccess(now)
}

// pollScope runs one read cycle for every supported OID of the given cadence
// scope and publishes a successor snapshot with exactly those entries
// replaced.
func (in *Instance) pollScope(ctx context.Context, sc scope) {
	in.ioMu.Lock()
	defer in.ioMu.Unlock()

	in.mu.RLock()
	val := in.val
	in.mu.RUnlock()

	if val == nil {
		return
	}

	var bound []boundOID

	for _, b := range val.supported {
		if b.scope == sc {
			bound = append(bound, b)
		}
	}

	if len(bound) == 0 {
		return
	}

	oids := make([]string, len(bound))
	for i, b := range bound {
		oids[i] = b.oid
	}

	results, err := in.client.Get(ctx, oids)

	now := time.Now()
	if err != nil {
		in.recordFailure(now, err)
		return
	}

	replace := make(map[Key]Entry, len(bound))

	for _, b := range bound {
		entry := Entry{
			Key:      b.key,
			Kind:     b.desc.Kind,
			Writable: b.desc.Writable,
			Updated:  now,
		}

		res, ok := results[b.oid]

		if !ok || res.Err != nil {
			entry.Outcome = transform.Outcome{State: transform.StateUnavailable}
		} else {
			outcome, next := transform.Transform(res.Value, in.samples[b.key], &b.desc.Spec, b.desc.Kind, now)
			entry.Outcome = outcome

			if next != nil {
				in.samples[b.key] = next
			}
		}

		replace[b.key] = entry
	}

	in.publish(replace, nil, now)
	in.recordSuccess(now)
}

// recheckPortCount re-reads the port count and, if it moved, re-runs the full
// validation pass so new ports are picked up and vanished ones are dropped.
// Runs before the slow read so ioMu is taken once per helper.
func (in *Instance) recheckPortCount(ctx context.Context) {
	in.mu.RLock()
	val := in.val
	in.mu.RUnlock()

	if val == nil || in.catalog.Config.PortCountOID == "" || len(in.catalog.Ports) == 0 {
		return
	}

	in.ioMu.Lock()
	defer in.ioMu.Unlock()

	count, err := discoverPortCount(ctx, in.client, in.catalog)
	if err != nil {
		in.recordFailure(time.Now(), err)
		return
	}

	if count == val.portCount {
		return
	}

	log.Printf("Device %s: port count changed %d -> %d, revalidating", in.cfg.Name, val.portCount, count)

	next, err := validateOIDs(ctx, in.client, in.catalog, nil)
	if err != nil {
		// Keep the previous partition; a failed revalidation is a missed
		// cycle, not a teardown.
		in.recordFailure(time.Now(), err)
		return
	}

	in.commitValidation(next)
}

// commitValidation installs a validation result and prunes state belonging to
// entities that no longer exist.
func (in *Instance) commitValidation(v *validation) {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.val = v
	in.status.PortCount = v.portCount
	in.status.SupportedOIDs = len(v.supported)
	in.status.UnsupportedOIDs = v.report().Unsupported

	for k := range in.samples {
		if _, ok := v.supported[k]; !ok {
			delete(in.samples, k)
		}
	}

	if len(in.snapshot.Entries) == 0 {
		return
	}

	pruned := false

	for k := range in.snapshot.Entries {
		if _, ok := v.supported[k]; !ok {
			pruned = true
			break
		}
	}

	if !pruned {
		return
	}

	next := in.snapshot.next(nil, time.Now())
	for k := range next.Entries {
		if _, ok := v.supported[k]; !ok {
			delete(next.Entries, k)
		}
	}

	in.snapshot = next
}

// publish swaps in the successor snapshot and records it.
func (in *Instance) publish(replace map[Key]Entry, mac *MACTable, now time.Time) {
	in.mu.Lock()

	next := in.snapshot.next(replace, now)
	if mac != nil {
		next.MACTable = mac
	}

	in.snapshot = next
	in.mu.Unlock()

	if in.rec != nil && len(replace) > 0 {
		if err := in.rec.Record(in.cfg.Name, next); err != nil {
			log.Printf("Device %s: history write failed: %v", in.cfg.Name, err)
		}
	}
}

func (in *Instance) recordFailure(now time.Time, err error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.status.LastAttempt = now
	in.status.ConsecutiveFailures++

	log.Printf("Device %s: poll failed (%d consecutive): %v",
		in.cfg.Name, in.status.ConsecutiveFailures, err)

	if in.status.ConsecutiveFailures >= degradedThreshold && !in.status.Degraded {
		in.status.Degraded = true
		log.Printf("Device %s: marked degraded after %d consecutive failures",
			in.cfg.Name, in.status.ConsecutiveFailures)
	}
}

func (in *Instance) recordSuccess(now time.Time) {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.status.LastAttempt = now
	in.status.LastSuccess = now

	if in.status.Degraded {
		log.Printf("Device %s: recovered after %d consecutive failures",
			in.cfg.Name, in.status.ConsecutiveFailures)
	}

	in.status.ConsecutiveFailures = 0
	in.status.Degraded = false
}
