// Package coordinator pkg/coordinator/validator.go
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/profile"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/snmp"
)

const (
	// probeBatchSize bounds how many OIDs one validation GET carries.
	probeBatchSize = 16

	// maxPorts is a sanity cap on discovered port counts.
	maxPorts = 256
)

// defaultProbeLimiter paces validation probes so discovery cannot flood a
// small switch's management plane.
func defaultProbeLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(10), 1) // 10 probe batches/s
}

// validation is the committed outcome of one validation pass.
type validation struct {
	supported   map[Key]boundOID
	unsupported []Key
	portCount   int
	poePorts    map[int]bool
}

// ValidationReport is the supported/unsupported partition surfaced to the
// setup flow for user confirmation.
type ValidationReport struct {
	Supported   []string `json:"supported"`
	Unsupported []string `json:"unsupported"`
	PortCount   int      `json:"port_count"`
	PoEPorts    []int    `json:"poe_ports,omitempty"`
}

func (v *validation) report() *ValidationReport {
	rep := &ValidationReport{PortCount: v.portCount}

	for k := range v.supported {
		rep.Supported = append(rep.Supported, k.String())
	}

	for _, k := range v.unsupported {
		rep.Unsupported = append(rep.Unsupported, k.String())
	}

	sort.Strings(rep.Supported)
	sort.Strings(rep.Unsupported)

	for p := range v.poePorts {
		rep.PoEPorts = append(rep.PoEPorts, p)
	}

	sort.Ints(rep.PoEPorts)

	return rep
}

// validateOIDs probes every OID in the resolved catalog once and partitions
// the set. A device-level failure aborts the whole pass with
// ErrValidationAborted; nothing is partially committed.
func validateOIDs(ctx context.Context, client snmp.Client, cat *profile.Catalog, limiter *rate.Limiter) (*validation, error) {
	if limiter == nil {
		limiter = defaultProbeLimiter()
	}

	v := &validation{supported: make(map[Key]boundOID)}

	portCount, err := discoverPortCount(ctx, client, cat)
	if err != nil {
		return nil, err
	}

	v.portCount = portCount

	poePorts, err := discoverPoEPorts(ctx, client, cat)
	if err != nil {
		return nil, err
	}

	v.poePorts = poePorts

	candidates := expandCatalog(cat, portCount, poePorts)

	for start := 0; start < len(candidates); start += probeBatchSize {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		end := start + probeBatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		batch := candidates[start:end]

		oids := make([]string, len(batch))
		for i, b := range batch {
			oids[i] = b.oid
		}

		results, err := client.Get(ctx, oids)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidationAborted, err)
		}

		for _, b := range batch {
			res, ok := results[b.oid]

			switch {
			case !ok, errors.Is(res.Err, snmp.ErrNoSuchObject):
				v.unsupported = append(v.unsupported, b.key)
			case res.Err != nil:
				v.unsupported = append(v.unsupported, b.key)
				log.Printf("Validation: excluding %s (%s): %v", b.key, b.oid, res.Err)
			default:
				v.supported[b.key] = b
			}
		}
	}

	sort.Slice(v.unsupported, func(i, j int) bool {
		return v.unsupported[i].String() < v.unsupported[j].String()
	})

	return v, nil
}

// discoverPortCount reads the profile's port count OID once. Profiles
// without port capability skip port-scoped validation entirely.
func discoverPortCount(ctx context.Context, client snmp.Client, cat *profile.Catalog) (int, error) {
	if cat.Config.PortCountOID == "" || len(cat.Ports) == 0 {
		return 0, nil
	}

	results, err := client.Get(ctx, []string{cat.Config.PortCountOID})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrValidationAborted, err)
	}

	res := results[cat.Config.PortCountOID]
	if res.Err != nil {
		// The device does not expose a port count; treat as no ports
		// rather than failing the pass.
		return 0, nil
	}

	count, ok := rawInt(res.Value)
	if !ok || count < 0 {
		return 0, nil
	}

	if count > maxPorts {
		count = maxPorts
	}

	return count, nil
}

// discoverPoEPorts walks the PoE port list OID; the trailing index of each
// returned OID is a PoE-capable port.
func discoverPoEPorts(ctx context.Context, client snmp.Client, cat *profile.Catalog) (map[int]bool, error) {
	if !cat.Config.HasPoE || cat.Config.PoEPortListOID == "" {
		return nil, nil
	}

	pdus, err := client.Walk(ctx, cat.Config.PoEPortListOID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationAborted, err)
	}

	ports := make(map[int]bool, len(pdus))

	for _, pdu := range pdus {
		idx := strings.LastIndex(pdu.OID, ".")
		if idx < 0 {
			continue
		}

		port, err := strconv.Atoi(pdu.OID[idx+1:])
		if err != nil || port <= 0 || port > maxPorts {
			continue
		}

		ports[port] = true
	}

	return ports, nil
}

// expandCatalog turns the catalog into concrete probe candidates: static
// attributes, device-wide dynamics and one instance per (template, port).
func expandCatalog(cat *profile.Catalog, portCount int, poePorts map[int]bool) []boundOID {
	var out []boundOID

	for _, d := range cat.Attributes {
		out = append(out, boundOID{key: Key{Name: d.Name}, oid: d.OID, scope: scopeSlow, desc: d})
	}

	for _, d := range cat.Device {
		out = append(out, boundOID{key: Key{Name: d.Name}, oid: d.OID, scope: scopeFast, desc: d})
	}

	excluded := make(map[int]bool, len(cat.Config.PortExclude))
	for _, p := range cat.Config.PortExclude {
		excluded[p] = true
	}

	for port := 1; port <= portCount; port++ {
		if excluded[port] {
			continue
		}

		for _, tmpl := range cat.Ports {
			if tmpl.PoE && poePorts != nil && !poePorts[port] {
				continue
			}

			inst := tmpl.Instance(port)
			out = append(out, boundOID{
				key:   Key{Name: tmpl.Name, Port: port},
				oid:   inst.OID,
				scope: scopeFast,
				desc:  inst,
			})
		}
	}

	return out
}

func rawInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case uint32:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}
