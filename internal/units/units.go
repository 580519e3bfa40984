// Package units implements the fixed simple-units conversion table and the
// `/` and `^` composition rules spec.md §4.5 describes, grounded on
// original_source/agent/data_item.cpp's simpleFactor/computeConversionFactors.
package units

import (
	"math"
	"strconv"
	"strings"
)

// simpleFactor returns the multiplicative factor that converts one unit of
// name into the corresponding SI-ish base unit cppagent standardizes on.
// Units not listed (SECOND, MILLIMETER, DEGREE, COUNT, PERCENT, ...) are
// already in the target system and return 1.
func simpleFactor(name string) (factor, offset float64) {
	switch name {
	case "INCH":
		return 25.4, 0
	case "FOOT":
		return 304.8, 0
	case "CENTIMETER":
		return 10.0, 0
	case "DECIMETER":
		return 100.0, 0
	case "METER":
		return 1000.0, 0
	case "FAHRENHEIT":
		return 5.0 / 9.0, -32.0
	case "POUND":
		return 0.45359237, 0
	case "GRAM":
		return 1.0 / 1000.0, 0
	case "RADIAN":
		return 57.2957795, 0
	case "MINUTE":
		return 60.0, 0
	case "HOUR":
		return 3600.0, 0
	default:
		return 1.0, 0
	}
}

// Factor is a resolved conversion: apply as (x + offset) * Scale / nativeScale.
type Factor struct {
	Scale    float64
	Offset   float64
	Required bool
	ThreeD   bool
}

// Identity is the no-op conversion.
var Identity = Factor{Scale: 1, Required: false}

// Compute resolves the conversion factor for converting nativeUnits to
// units, given an optional native scale (hasNativeScale, nativeScale).
// Mirrors computeConversionFactors: a bare unit name, a `_3D` per-component
// suffix, or a `numerator/denominator[^power]` composition. REVOLUTION/MINUTE
// and REVOLUTION/SECOND are hard-coded per the source.
func Compute(nativeUnits, targetUnits string, hasNativeScale bool, nativeScale float64) Factor {
	name := nativeUnits
	threeD := false
	if idx := strings.Index(name, "_3D"); idx >= 0 {
		threeD = true
		name = name[:idx]
	}

	var f Factor
	f.ThreeD = threeD

	if slash := strings.Index(name, "/"); slash < 0 {
		scale, offset := simpleFactor(name)
		f.Scale = scale
		f.Offset = offset
		f.Required = true
		if scale == 1.0 {
			switch {
			case name == targetUnits:
				f.Required = false
			case strings.HasPrefix(name, "KILO") && name[4:] == targetUnits:
				f.Scale = 1000.0
			default:
				f.Required = false
			}
		}
	} else if name == "REVOLUTION/MINUTE" {
		f.Scale = 1.0
		f.Required = false
	} else {
		numerator := name[:slash]
		denominator := name[slash+1:]
		if numerator == "REVOLUTION" && denominator == "SECOND" {
			f.Scale = 60.0
			f.Required = true
		} else if caret := strings.Index(denominator, "^"); caret < 0 {
			num, _ := simpleFactor(numerator)
			den, _ := simpleFactor(denominator)
			f.Scale = num / den
			f.Required = true
		} else {
			unit := denominator[:caret]
			power, _ := strconv.ParseFloat(denominator[caret+1:], 64)
			den, _ := simpleFactor(unit)
			divisor := math.Pow(den, power)
			num, _ := simpleFactor(numerator)
			f.Scale = num / divisor
			f.Required = true
		}
	}

	if hasNativeScale {
		f.Required = true
		if nativeScale != 0 {
			f.Scale /= nativeScale
		}
	}
	return f
}

// Apply converts a single scalar value.
func (f Factor) Apply(x float64) float64 {
	return (x + f.Offset) * f.Scale
}

// ApplyTriple applies Apply to each component of a _3D value independently.
func (f Factor) ApplyTriple(x, y, z float64) (float64, float64, float64) {
	return f.Apply(x), f.Apply(y), f.Apply(z)
}
