package snmp

import "errors"

var (
	ErrInvalidCredentials     = errors.New("invalid SNMP credentials")
	ErrTargetHostRequired     = errors.New("target host is required")
	ErrUnsupportedSNMPVersion = errors.New("unsupported SNMP version")
	ErrSNMPConnect            = errors.New("SNMP connect failed")
	ErrSNMPGet                = errors.New("SNMP get failed")
	ErrSNMPSet                = errors.New("SNMP set failed")
	ErrSNMPWalk               = errors.New("SNMP walk failed")
	ErrSNMPConvert            = errors.New("SNMP convert failed")
	ErrUnsupportedSNMPType    = errors.New("unsupported SNMP type")

	// Error taxonomy surfaced to callers. Every transport failure is
	// classified as exactly one of these so the coordinator and the
	// validator can tell a dead OID from a dead device.
	ErrNoSuchObject = errors.New("no such object or instance")
	ErrTimeout      = errors.New("request timed out")
	ErrAuthFailure  = errors.New("authentication failure")
	ErrUnreachable  = errors.New("device unreachable")
)
