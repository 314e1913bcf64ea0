package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExprEval(t *testing.T) {
	tests := []struct {
		name string
		src  string
		x    float64
		want float64
	}{
		{name: "divide", src: "x/100", x: 250, want: 2.5},
		{name: "scale", src: "100*x", x: 0.42, want: 42},
		{name: "grouped", src: "(x/2)*10", x: 8, want: 40},
		{name: "negate", src: "-x", x: 3, want: -3},
		{name: "octets to megabits", src: "(x*8)/1000000", x: 2500000, want: 20},
		{name: "negated group", src: "-(x*8)/1000000", x: 2500000, want: -20},
		{name: "power right assoc", src: "2^3^2", x: 0, want: 512},
		{name: "sqrt", src: "sqrt(x)", x: 16, want: 4},
		{name: "two arg max", src: "max(x, 10)", x: 3, want: 10},
		{name: "precedence", src: "2+3*4", x: 0, want: 14},
		{name: "unary before power", src: "-2^2", x: 0, want: -4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseExpr(tt.src)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, expr.Eval(tt.x), 1e-9)
		})
	}
}

func TestParseExprRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "unknown variable", src: "y+1"},
		{name: "unknown function", src: "exec(x)"},
		{name: "attribute access", src: "x.bit_length()"},
		{name: "dangling operator", src: "x+"},
		{name: "unbalanced paren", src: "(x+1"},
		{name: "empty", src: ""},
		{name: "wrong arity", src: "sqrt(x, 2)"},
		{name: "statement", src: "x; x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpr(tt.src)
			assert.ErrorIs(t, err, ErrMalformedExpr)
		})
	}
}
