// Package snmp pkg/snmp/client.go
package snmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
)

const (
	defaultPort    = 161
	defaultTimeout = 5 * time.Second
	defaultRetries = 1
)

// ClientConfig describes how to reach one device.
type ClientConfig struct {
	Host        string
	Port        uint16
	Credentials Credentials
	Timeout     time.Duration
	Retries     int
}

// GoSNMPClient implements the Client interface using gosnmp. It keeps two
// underlying sessions: one with the read credentials and, when a distinct
// write community is configured, a second one for SET operations.
type GoSNMPClient struct {
	cfg       ClientConfig
	read      *gosnmp.GoSNMP
	write     *gosnmp.GoSNMP
	mu        sync.Mutex
	connected bool
}

// NewClient builds a client for the given device. The session is not opened
// until Connect (or the first operation).
func NewClient(cfg ClientConfig) (*GoSNMPClient, error) {
	if cfg.Host == "" {
		return nil, ErrTargetHostRequired
	}

	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	if cfg.Retries == 0 {
		cfg.Retries = defaultRetries
	}

	read, err := newGoSNMP(cfg, false)
	if err != nil {
		return nil, err
	}

	c := &GoSNMPClient{cfg: cfg, read: read, write: read}

	if creds := cfg.Credentials; creds.WriteCommunity != "" && creds.WriteCommunity != creds.ReadCommunity {
		write, err := newGoSNMP(cfg, true)
		if err != nil {
			return nil, err
		}

		c.write = write
	}

	return c, nil
}

func newGoSNMP(cfg ClientConfig, forWrite bool) (*gosnmp.GoSNMP, error) {
	g := &gosnmp.GoSNMP{
		Target:             cfg.Host,
		Port:               cfg.Port,
		Timeout:            cfg.Timeout,
		Retries:            cfg.Retries,
		ExponentialTimeout: true,
		MaxOids:            gosnmp.MaxOids,
	}

	creds := cfg.Credentials

	switch creds.Version {
	case Version1:
		g.Version = gosnmp.Version1
		g.Community = creds.ReadCommunity
	case Version2c:
		g.Version = gosnmp.Version2c
		g.Community = creds.ReadCommunity
	case Version3:
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = v3MsgFlags(creds)
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 creds.Username,
			AuthenticationProtocol:   v3AuthProtocol(creds.AuthProtocol),
			AuthenticationPassphrase: creds.AuthKey,
			PrivacyProtocol:          v3PrivProtocol(creds.PrivProtocol),
			PrivacyPassphrase:        creds.PrivKey,
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSNMPVersion, creds.Version)
	}

	if forWrite && creds.Version != Version3 {
		g.Community = creds.WriteCommunity
	}

	return g, nil
}

func v3MsgFlags(creds Credentials) gosnmp.SnmpV3MsgFlags {
	switch {
	case creds.AuthProtocol != "" && creds.PrivProtocol != "":
		return gosnmp.AuthPriv
	case creds.AuthProtocol != "":
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func v3AuthProtocol(name string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(name) {
	case "SHA":
		return gosnmp.SHA
	case "MD5":
		return gosnmp.MD5
	default:
		return gosnmp.NoAuth
	}
}

func v3PrivProtocol(name string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(name) {
	case "AES":
		return gosnmp.AES
	case "DES":
		return gosnmp.DES
	default:
		return gosnmp.NoPriv
	}
}

// Connect implements the Client interface.
func (c *GoSNMPClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

func (c *GoSNMPClient) connectLocked() error {
	if c.connected {
		return nil
	}

	if err := c.read.Connect(); err != nil {
		return fmt.Errorf("%w: %w", ErrSNMPConnect, classify(err))
	}

	if c.write != c.read {
		if err := c.write.Connect(); err != nil {
			return fmt.Errorf("%w: %w", ErrSNMPConnect, classify(err))
		}
	}

	c.connected = true

	return nil
}

// Get implements the Client interface. OIDs are read in chunks of
// gosnmp.MaxOids; the result map is keyed by the OIDs as requested.
func (c *GoSNMPClient) Get(ctx context.Context, oids []string) (map[string]Result, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	// Reply PDU names always carry a leading dot; requested OIDs may not.
	requested := make(map[string]string, len(oids))
	for _, oid := range oids {
		requested[strings.TrimPrefix(oid, ".")] = oid
	}

	results := make(map[string]Result, len(oids))

	for i := 0; i < len(oids); i += gosnmp.MaxOids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := i + gosnmp.MaxOids
		if end > len(oids) {
			end = len(oids)
		}

		packet, err := c.read.Get(oids[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSNMPGet, classify(err))
		}

		for _, variable := range packet.Variables {
			key, ok := requested[strings.TrimPrefix(variable.Name, ".")]
			if !ok {
				continue
			}

			results[key] = convertPDU(variable)
		}
	}

	return results, nil
}

// Set implements the Client interface. Integers are written as INTEGER,
// strings as OCTET STRING.
func (c *GoSNMPClient) Set(ctx context.Context, oid string, value interface{}) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	pdu := gosnmp.SnmpPDU{Name: oid}

	switch v := value.(type) {
	case int:
		pdu.Type = gosnmp.Integer
		pdu.Value = v
	case int64:
		pdu.Type = gosnmp.Integer
		pdu.Value = int(v)
	case string:
		pdu.Type = gosnmp.OctetString
		pdu.Value = v
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedSNMPType, value)
	}

	packet, err := c.write.Set([]gosnmp.SnmpPDU{pdu})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSNMPSet, classify(err))
	}

	if packet.Error != gosnmp.NoError {
		return fmt.Errorf("%w: %s", ErrSNMPSet, packet.Error)
	}

	return nil
}

// Walk implements the Client interface.
func (c *GoSNMPClient) Walk(ctx context.Context, baseOID string) ([]PDU, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		raw []gosnmp.SnmpPDU
		err error
	)

	// GETBULK is not available in SNMPv1.
	if c.cfg.Credentials.Version == Version1 {
		raw, err = c.read.WalkAll(baseOID)
	} else {
		raw, err = c.read.BulkWalkAll(baseOID)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSNMPWalk, classify(err))
	}

	pdus := make([]PDU, 0, len(raw))

	for _, variable := range raw {
		res := convertPDU(variable)
		if res.Err != nil {
			continue
		}

		pdus = append(pdus, PDU{OID: strings.TrimPrefix(variable.Name, "."), Value: res.Value})
	}

	return pdus, nil
}

// Close implements the Client interface.
func (c *GoSNMPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	c.connected = false

	if err := c.read.Conn.Close(); err != nil {
		return err
	}

	if c.write != c.read && c.write.Conn != nil {
		return c.write.Conn.Close()
	}

	return nil
}

func (c *GoSNMPClient) ensureConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

// convertPDU converts an SNMP variable to the appropriate Go type.
func convertPDU(variable gosnmp.SnmpPDU) Result {
	switch variable.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return Result{Err: ErrNoSuchObject}
	case gosnmp.OctetString:
		b, ok := variable.Value.([]byte)
		if !ok {
			return Result{Err: fmt.Errorf("%w: octet string is %T", ErrSNMPConvert, variable.Value)}
		}

		return Result{Value: string(b)}
	case gosnmp.Integer:
		return Result{Value: gosnmp.ToBigInt(variable.Value).Int64()}
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		return Result{Value: gosnmp.ToBigInt(variable.Value).Uint64()}
	case gosnmp.Counter64:
		return Result{Value: gosnmp.ToBigInt(variable.Value).Uint64()}
	case gosnmp.IPAddress, gosnmp.ObjectIdentifier:
		s, ok := variable.Value.(string)
		if !ok {
			return Result{Err: fmt.Errorf("%w: %v is %T", ErrSNMPConvert, variable.Type, variable.Value)}
		}

		return Result{Value: s}
	case gosnmp.Null:
		return Result{Value: nil}
	default:
		return Result{Err: fmt.Errorf("%w: %v", ErrUnsupportedSNMPType, variable.Type)}
	}
}

// classify maps a raw gosnmp/network error onto the transport taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case strings.Contains(msg, "authentication"),
		strings.Contains(msg, "unknown username"),
		strings.Contains(msg, "wrong digest"),
		strings.Contains(msg, "not authentic"):
		return fmt.Errorf("%w: %w", ErrAuthFailure, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
}
