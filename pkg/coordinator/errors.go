package coordinator

import "errors"

var (
	ErrDeviceExists       = errors.New("device already configured")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceNameRequired = errors.New("device name is required")
	ErrHostRequired       = errors.New("device host is required")
	ErrTypeRequired       = errors.New("device type is required")
	ErrValidationAborted  = errors.New("OID validation aborted, device unreachable")
	ErrDeviceUnreachable  = errors.New("device unreachable")
	ErrControlsDisabled   = errors.New("controls are not enabled for this device")
	ErrUnknownOID         = errors.New("no such OID in this device's supported set")
	ErrNotWritable        = errors.New("OID is not writable")
	ErrWriteRejected      = errors.New("write rejected")
	ErrWriteUnverified    = errors.New("write not confirmed by read-back")
)
