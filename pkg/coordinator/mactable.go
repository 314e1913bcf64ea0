// Package coordinator pkg/coordinator/mactable.go
package coordinator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/snmp"
)

// MACTable is the learned-address table grouped by the port each address was
// seen on.
type MACTable struct {
	Updated time.Time        `json:"updated"`
	Ports   map[int][]string `json:"ports"`
}

// Total counts addresses across all ports.
func (t *MACTable) Total() int {
	if t == nil {
		return 0
	}

	n := 0
	for _, macs := range t.Ports {
		n += len(macs)
	}

	return n
}

// buildMACTable turns a dot1dTpFdbPort-style walk into a port-grouped table.
// Each returned OID ends in six sub-identifiers encoding the MAC address; the
// value is the bridge port the address was learned on. An empty ports filter
// keeps everything.
func buildMACTable(pdus []snmp.PDU, portFilter []int, now time.Time) *MACTable {
	keep := make(map[int]bool, len(portFilter))
	for _, p := range portFilter {
		keep[p] = true
	}

	out := &MACTable{Updated: now, Ports: make(map[int][]string)}

	for _, pdu := range pdus {
		mac, ok := macFromOID(pdu.OID)
		if !ok {
			continue
		}

		port, ok := rawInt(pdu.Value)
		if !ok || port <= 0 {
			continue
		}

		if len(keep) > 0 && !keep[port] {
			continue
		}

		out.Ports[port] = append(out.Ports[port], mac)
	}

	for port := range out.Ports {
		sort.Strings(out.Ports[port])
	}

	return out
}

// macFromOID decodes the trailing six sub-identifiers of a forwarding table
// OID into colon-separated hex form.
func macFromOID(oid string) (string, bool) {
	parts := strings.Split(oid, ".")
	if len(parts) < 6 {
		return "", false
	}

	octets := parts[len(parts)-6:]
	hex := make([]string, 6)

	for i, part := range octets {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return "", false
		}

		hex[i] = fmt.Sprintf("%02x", n)
	}

	return strings.Join(hex, ":"), true
}
