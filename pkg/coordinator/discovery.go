// Package coordinator pkg/coordinator/discovery.go
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/profile"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/snmp"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/transform"
)

// TestConnection probes the profile's access test OID. It proves both
// reachability and that the read credentials work before a device is added.
func TestConnection(ctx context.Context, client snmp.Client, cat *profile.Catalog) error {
	oid := cat.Config.AccessTestOID

	results, err := client.Get(ctx, []string{oid})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnreachable, err)
	}

	res, ok := results[oid]
	if !ok || res.Err != nil {
		return fmt.Errorf("%w: access test OID %s: %v", ErrDeviceUnreachable, oid, res.Err)
	}

	return nil
}

// Discovery is what the setup flow learns about a device before committing
// it: identity attributes plus the full validation partition.
type Discovery struct {
	DeviceType string            `json:"device_type"`
	Attributes map[string]string `json:"attributes"`
	Report     *ValidationReport `json:"report"`
}

// Discover runs the setup-time pass: access test, OID validation and a first
// read of the static attributes.
func Discover(ctx context.Context, client snmp.Client, cat *profile.Catalog) (*Discovery, error) {
	if err := TestConnection(ctx, client, cat); err != nil {
		return nil, err
	}

	v, err := validateOIDs(ctx, client, cat, nil)
	if err != nil {
		return nil, err
	}

	disc := &Discovery{
		DeviceType: cat.DeviceType,
		Attributes: make(map[string]string),
		Report:     v.report(),
	}

	var oids []string

	bound := make([]boundOID, 0, len(v.supported))

	for _, b := range v.supported {
		if b.scope == scopeSlow {
			bound = append(bound, b)
			oids = append(oids, b.oid)
		}
	}

	if len(oids) == 0 {
		return disc, nil
	}

	results, err := client.Get(ctx, oids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnreachable, err)
	}

	now := time.Now()

	for _, b := range bound {
		res, ok := results[b.oid]
		if !ok || res.Err != nil {
			continue
		}

		outcome, _ := transform.Transform(res.Value, nil, &b.desc.Spec, b.desc.Kind, now)
		if outcome.State == transform.StateOK {
			disc.Attributes[b.key.Name] = fmt.Sprintf("%v", outcome.Value)
		}
	}

	return disc, nil
}
