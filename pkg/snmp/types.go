package snmp

// Version represents supported SNMP versions.
type Version string

const (
	Version1  Version = "v1"
	Version2c Version = "v2c"
	Version3  Version = "v3"
)

// Credentials carries everything needed to talk to one device. For v1/v2c
// only the community strings are used; for v3 the USM fields are used.
// WriteCommunity falls back to ReadCommunity when empty.
type Credentials struct {
	Version        Version `json:"version"`
	ReadCommunity  string  `json:"read_community,omitempty"`
	WriteCommunity string  `json:"write_community,omitempty"`
	Username       string  `json:"username,omitempty"`
	AuthProtocol   string  `json:"auth_protocol,omitempty"` // "SHA", "MD5" or empty
	AuthKey        string  `json:"auth_key,omitempty"`
	PrivProtocol   string  `json:"priv_protocol,omitempty"` // "AES", "DES" or empty
	PrivKey        string  `json:"priv_key,omitempty"`
}

// Validate checks that the credential set is coherent for its version.
func (c *Credentials) Validate() error {
	switch c.Version {
	case Version1, Version2c:
		if c.ReadCommunity == "" {
			return ErrInvalidCredentials
		}
	case Version3:
		if c.Username == "" {
			return ErrInvalidCredentials
		}
	default:
		return ErrUnsupportedSNMPVersion
	}

	return nil
}

// Result is the outcome of reading a single OID inside a batch. Exactly one
// of Value and Err is meaningful.
type Result struct {
	Value interface{}
	Err   error
}

// PDU is one (oid, value) pair returned by a subtree walk.
type PDU struct {
	OID   string
	Value interface{}
}
