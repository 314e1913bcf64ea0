// Package snmp pkg/snmp/interfaces.go
//
// Package snmp wraps gosnmp behind a narrow transport contract. The rest of
// the system never sees gosnmp types; it sees batched reads, single writes
// and subtree walks with a fixed error taxonomy.
package snmp

import "context"

//go:generate mockgen -destination=mock_snmp.go -package=snmp github.com/DucuSandu/ha-snmp-r1d1/pkg/snmp Client

// Client defines the transport contract against one device.
type Client interface {
	// Connect establishes the underlying SNMP session.
	Connect() error
	// Get reads a batch of OIDs. The returned map has one entry per
	// requested OID; per-OID failures (no such object) are reported in the
	// entry's Err, while a device-level failure fails the whole call.
	Get(ctx context.Context, oids []string) (map[string]Result, error)
	// Set writes a single OID value using the write credentials.
	Set(ctx context.Context, oid string, value interface{}) error
	// Walk returns every (oid, value) pair under baseOID in lexicographic
	// order.
	Walk(ctx context.Context, baseOID string) ([]PDU, error)
	// Close releases the session.
	Close() error
}
