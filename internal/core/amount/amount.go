// Package amount implements the fixed-point decimal used throughout the
// ledger: precision 16 significant digits, scale 6 fractional digits, with
// a distinguished +Inf value for "no limit" creditlines.
package amount

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scale is the number of fractional decimal digits an Amount carries.
// Units are value * 10^Scale, stored as an int64.
const Scale = 6

const scaleFactor = 1_000_000 // 10^Scale

// maxUnits bounds the int64 unit representation to 16 significant digits
// (spec.md §3 precision). Parse rejects values beyond it; the arithmetic
// methods do not check it.
const maxUnits = 9_999_999_999_999_999 // 16 nines

var (
	// ErrOverflow is returned by Parse when a value would exceed the
	// representable precision.
	ErrOverflow = errors.New("amount: overflow")
	// ErrParse is returned when a string cannot be parsed as an Amount.
	ErrParse = errors.New("amount: parse error")
)

// Amount is a signed fixed-point decimal, or the sentinel +Inf.
//
// Zero value is 0. Never mix Units from two Amounts without going through
// the arithmetic methods below; Inf must always be checked first.
type Amount struct {
	units int64
	inf   bool
}

// Zero is the additive identity.
var Zero = Amount{}

// Inf is the "no limit" sentinel. It is always positive; the domain never
// needs a negative infinity (creditline limits are bounded below by 0).
var Inf = Amount{inf: true}

// FromUnits constructs an Amount directly from its scaled integer
// representation (value * 10^Scale). Used at the router scale boundary
// (§4.C) to convert back from the integer flow solution.
func FromUnits(units int64) Amount {
	return Amount{units: units}
}

// FromInt constructs an Amount representing a whole number.
func FromInt(n int64) Amount {
	return Amount{units: n * scaleFactor}
}

// Parse converts a decimal string ("12.5", "-3", "inf") into an Amount.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrParse)
	}
	if s == "inf" || s == "+inf" || s == "Inf" {
		return Inf, nil
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if hasFrac {
		if len(fracPart) > Scale {
			fracPart = fracPart[:Scale]
		} else {
			fracPart = fracPart + strings.Repeat("0", Scale-len(fracPart))
		}
	} else {
		fracPart = strings.Repeat("0", Scale)
	}

	if intPart == "" {
		intPart = "0"
	}

	intVal, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	fracVal, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrParse, err)
	}

	units := intVal*scaleFactor + fracVal
	if units > maxUnits {
		return Amount{}, fmt.Errorf("%w: %s", ErrOverflow, s)
	}
	if neg {
		units = -units
	}
	return Amount{units: units}, nil
}

// IsInf reports whether a is the +Inf sentinel.
func (a Amount) IsInf() bool { return a.inf }

// IsZero reports whether a is exactly 0 (never true for Inf).
func (a Amount) IsZero() bool { return !a.inf && a.units == 0 }

// Sign returns -1, 0, or 1. Inf has sign +1.
func (a Amount) Sign() int {
	if a.inf {
		return 1
	}
	switch {
	case a.units < 0:
		return -1
	case a.units > 0:
		return 1
	default:
		return 0
	}
}

// Add returns a+b. Inf+x = Inf for any finite x; Inf+Inf = Inf.
// Adding Inf to a negative-infinite quantity is not representable and is
// not needed by this domain (see Amount doc comment).
func (a Amount) Add(b Amount) Amount {
	if a.inf || b.inf {
		return Inf
	}
	return Amount{units: a.units + b.units}
}

// Sub returns a-b. Subtracting from Inf yields Inf; Inf-Inf is undefined
// and not used by this domain (creditline arithmetic never subtracts a
// limit from itself).
func (a Amount) Sub(b Amount) Amount {
	if a.inf {
		return Inf
	}
	if b.inf {
		return Amount{units: -b.units + a.units} // never hit in practice; see above
	}
	return Amount{units: a.units - b.units}
}

// Neg returns -a. Negating Inf returns Inf (the domain has no -Inf).
func (a Amount) Neg() Amount {
	if a.inf {
		return Inf
	}
	return Amount{units: -a.units}
}

// MulInt returns a*n, used for applying bal_mult (+1/-1).
func (a Amount) MulInt(n int64) Amount {
	if a.inf {
		return Inf
	}
	return Amount{units: a.units * n}
}

// Cmp returns -1, 0, 1 for a<b, a==b, a>b. Inf compares greater than any
// finite value and equal only to Inf.
func (a Amount) Cmp(b Amount) int {
	if a.inf && b.inf {
		return 0
	}
	if a.inf {
		return 1
	}
	if b.inf {
		return -1
	}
	switch {
	case a.units < b.units:
		return -1
	case a.units > b.units:
		return 1
	default:
		return 0
	}
}

// LessThan, GreaterThan, Equal are readability wrappers over Cmp.
func (a Amount) LessThan(b Amount) bool    { return a.Cmp(b) < 0 }
func (a Amount) GreaterThan(b Amount) bool { return a.Cmp(b) > 0 }
func (a Amount) Equal(b Amount) bool       { return a.Cmp(b) == 0 }

// ScaleToInt converts a finite Amount into the router's integer capacity
// space (§4.C): multiplication by 10^Scale with truncation, which is a
// no-op here since Amount already stores scaled units. Calling this on
// Inf panics — callers must special-case Inf before crossing the scale
// boundary (the router treats Inf capacity as unbounded, never as a
// number).
func (a Amount) ScaleToInt() int64 {
	if a.inf {
		panic("amount: ScaleToInt called on Inf")
	}
	return a.units
}

// UnscaleFromInt converts a router-space integer flow value back to an
// exact Amount (§4.C boundary, exit side).
func UnscaleFromInt(units int64) Amount {
	return Amount{units: units}
}

// String renders the Amount as a decimal string, or "inf".
func (a Amount) String() string {
	if a.inf {
		return "inf"
	}
	neg := a.units < 0
	u := a.units
	if neg {
		u = -u
	}
	intPart := u / scaleFactor
	fracPart := u % scaleFactor
	s := fmt.Sprintf("%d.%0*d", intPart, Scale, fracPart)
	if neg {
		s = "-" + s
	}
	return s
}

// Float64 returns an approximate float64 view, used only for cost-ratio
// computation in the router (§4.C "exact division only for cost
// computation, which yields floats/ratios"). Never used for balance
// arithmetic.
func (a Amount) Float64() float64 {
	if a.inf {
		return math.Inf(1)
	}
	return float64(a.units) / float64(scaleFactor)
}
