// Package transform pkg/transform/spec.go
package transform

import "fmt"

// Calc selects the calc stage of the pipeline.
type Calc string

const (
	// CalcDirect passes the raw value through (the default).
	CalcDirect Calc = "direct"
	// CalcDiff turns a monotonically increasing counter into a per-second
	// rate between consecutive samples.
	CalcDiff Calc = "diff"
)

// Spec is the per-OID transformation description carried by a profile
// descriptor: calc → math → vmap, plus unit resolution.
type Spec struct {
	Calc        Calc   `yaml:"calc,omitempty" json:"calc,omitempty"`
	Width       int    `yaml:"width,omitempty" json:"width,omitempty"` // counter bits for diff wrap: 32 or 64
	Math        string `yaml:"math,omitempty" json:"math,omitempty"`
	Unit        string `yaml:"unit,omitempty" json:"unit,omitempty"`
	DeviceClass string `yaml:"device_class,omitempty" json:"device_class,omitempty"`
	VMap        *VMap  `yaml:"vmap,omitempty" json:"-"`

	expr *Expr
}

// deviceClassUnits maps a device class hint to its implied display unit,
// used only when no explicit unit is set.
var deviceClassUnits = map[string]string{
	"data_rate":   "Bps",
	"power":       "W",
	"temperature": "°C",
	"duration":    "s",
}

// Compile validates the spec for the given entity kind and pre-parses the
// math expression. All TransformError conditions surface here, at
// profile-validation time, never during a poll.
func (s *Spec) Compile(kind EntityKind) error {
	switch s.Calc {
	case "", CalcDirect:
		s.Calc = CalcDirect
	case CalcDiff:
		switch s.Width {
		case 0:
			return ErrWidthRequired
		case 32, 64:
		default:
			return fmt.Errorf("%w: got %d", ErrInvalidWidth, s.Width)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCalc, s.Calc)
	}

	if s.Math != "" {
		expr, err := ParseExpr(s.Math)
		if err != nil {
			return err
		}

		s.expr = expr
	}

	if err := s.VMap.validate(kind); err != nil {
		return err
	}

	return nil
}

// ResolveUnit returns the display unit: explicit unit wins, then the unit
// implied by device_class, then empty.
func (s *Spec) ResolveUnit() string {
	if s.Unit != "" {
		return s.Unit
	}

	return deviceClassUnits[s.DeviceClass]
}
