package profile

import "errors"

var (
	ErrProfileInvalid     = errors.New("invalid device profile")
	ErrUnknownDeviceType  = errors.New("unknown device type")
	ErrEmptyName          = errors.New("descriptor name is empty")
	ErrInvalidOID         = errors.New("invalid OID format")
	ErrInvalidKind        = errors.New("invalid entity kind")
	ErrInvalidCustomOIDs  = errors.New("invalid custom OIDs, use name:oid[,name:oid...]")
	ErrTooManyCustomOIDs  = errors.New("too many custom OIDs")
	ErrMissingSection     = errors.New("missing required section")
	ErrMissingDeviceType  = errors.New("missing device_type")
	ErrMissingAccessTest  = errors.New("config requires access_test_oid")
)
