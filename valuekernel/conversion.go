package valuekernel

import (
	"math"

	"github.com/daqkit/daqrun/internal/daqerr"
)

// ConvertToInt converts v to an Int using C-style truncation toward zero for
// float sources, failing with ConversionFailed if the value does not fit in
// an int64 (§4.1).
func ConvertToInt(v Value) (*Int, error) {
	switch t := v.(type) {
	case *Int:
		return &Int{V: t.V}, nil
	case *Float:
		if math.IsNaN(t.V) || math.IsInf(t.V, 0) {
			return nil, daqerr.New(daqerr.ConversionFailed, "cannot convert NaN/Inf to int")
		}
		truncated := math.Trunc(t.V)
		if truncated > math.MaxInt64 || truncated < math.MinInt64 {
			return nil, daqerr.Newf(daqerr.ConversionFailed, "float %g out of int64 range", t.V)
		}
		return &Int{V: int64(truncated)}, nil
	case *Bool:
		if t.V {
			return &Int{V: 1}, nil
		}
		return &Int{V: 0}, nil
	default:
		return nil, daqerr.Newf(daqerr.ConversionFailed, "cannot convert %s to Int", v.CoreType())
	}
}

// ConvertToFloat converts v to a Float. Integer sources widen exactly.
func ConvertToFloat(v Value) (*Float, error) {
	switch t := v.(type) {
	case *Float:
		return &Float{V: t.V}, nil
	case *Int:
		return &Float{V: float64(t.V)}, nil
	case *Ratio:
		if t.Den == 0 {
			return nil, daqerr.New(daqerr.ConversionFailed, "ratio has zero denominator")
		}
		return &Float{V: float64(t.Num) / float64(t.Den)}, nil
	default:
		return nil, daqerr.Newf(daqerr.ConversionFailed, "cannot convert %s to Float", v.CoreType())
	}
}

// ConvertToComplex widens a real scalar into a Complex with a zero
// imaginary part, or returns an existing Complex unchanged.
func ConvertToComplex(v Value) (*Complex, error) {
	switch t := v.(type) {
	case *Complex:
		return &Complex{Re: t.Re, Im: t.Im}, nil
	default:
		f, err := ConvertToFloat(v)
		if err != nil {
			return nil, daqerr.Newf(daqerr.ConversionFailed, "cannot convert %s to Complex", v.CoreType())
		}
		return &Complex{Re: f.V}, nil
	}
}

// IsNumeric reports whether t is one of the numeric widening-eligible core
// types used by the property system's "documented numeric widenings" rule
// (§4.3 step 7).
func IsNumeric(t CoreType) bool {
	switch t {
	case CoreInt, CoreFloat, CoreRatio, CoreComplex:
		return true
	default:
		return false
	}
}

// CanWiden reports whether a value of core type "from" may be implicitly
// widened to core type "to" when writing a property (Int->Float->Complex).
func CanWiden(from, to CoreType) bool {
	if from == to {
		return true
	}
	switch to {
	case CoreFloat:
		return from == CoreInt
	case CoreComplex:
		return from == CoreInt || from == CoreFloat
	default:
		return false
	}
}
