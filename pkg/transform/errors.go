package transform

import "errors"

var (
	ErrMalformedExpr     = errors.New("malformed math expression")
	ErrInvalidCalc       = errors.New("invalid calc type")
	ErrWidthRequired     = errors.New("diff calc requires explicit counter width (32 or 64)")
	ErrInvalidWidth      = errors.New("counter width must be 32 or 64")
	ErrInvalidVmap       = errors.New("invalid vmap")
	ErrVmapNotInvertible = errors.New("vmap has no raw value for desired state")
)
