// Package numeric implements the fixed-point decimal arithmetic the
// evaluator requires: no floating-point representation is
// permitted at any depth, so every Decimal and Money amount is an unscaled
// big.Int paired with a scale, and every arithmetic result is rounded
// half-to-even to its declared scale before a precision check.
package numeric

import (
	"fmt"
	"math/big"
	"strings"
)

// ErrOverflow is returned when a result does not fit in its declared
// (precision, scale), per the evaluator's NumericOverflow error kind.
type ErrOverflow struct {
	Precision, Scale int
	Value            string
}

func (e *ErrOverflow) Error() string {
	return fmt.Sprintf("value %s does not fit Decimal{precision:%d,scale:%d}", e.Value, e.Precision, e.Scale)
}

// Decimal is an arbitrary-precision fixed-point number: Unscaled * 10^-Scale.
type Decimal struct {
	Unscaled *big.Int
	Scale    int
}

var ten = big.NewInt(10)

func pow10(n int) *big.Int {
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// FromString parses a digit string such as "10.00" or "-3.5" at the given
// scale, zero-padding or rounding as needed. It never uses float64.
func FromString(s string, scale int) (Decimal, error) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	for len(fracPart) < scale {
		fracPart += "0"
	}
	extra := ""
	if len(fracPart) > scale {
		extra = fracPart[scale:]
		fracPart = fracPart[:scale]
	}
	digits := intPart + fracPart
	u, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, fmt.Errorf("numeric: malformed decimal literal %q", s)
	}
	if neg {
		u.Neg(u)
	}
	d := Decimal{Unscaled: u, Scale: scale}
	if extra != "" {
		// Round half-to-even on the truncated remainder.
		d = roundRemainder(d, extra, neg)
	}
	return d, nil
}

func roundRemainder(d Decimal, extra string, neg bool) Decimal {
	if extra == "" {
		return d
	}
	first := extra[0]
	roundUp := false
	switch {
	case first > '5':
		roundUp = true
	case first == '5':
		rest := strings.TrimRight(extra[1:], "0")
		if rest != "" {
			roundUp = true
		} else {
			// Half-to-even: round up only if unscaled is currently odd.
			roundUp = new(big.Int).And(d.Unscaled, big.NewInt(1)).Sign() != 0
		}
	}
	if roundUp {
		one := big.NewInt(1)
		if neg {
			one = big.NewInt(-1)
		}
		d.Unscaled = new(big.Int).Add(d.Unscaled, one)
	}
	return d
}

// String renders the decimal as a digit string with exactly Scale fractional
// digits (or as a bare integer when Scale is 0).
func (d Decimal) String() string {
	neg := d.Unscaled.Sign() < 0
	abs := new(big.Int).Abs(d.Unscaled)
	s := abs.String()
	if d.Scale == 0 {
		if neg {
			return "-" + s
		}
		return s
	}
	for len(s) <= d.Scale {
		s = "0" + s
	}
	intPart := s[:len(s)-d.Scale]
	fracPart := s[len(s)-d.Scale:]
	out := intPart + "." + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// Rescale converts d to scale newScale, rounding half-to-even.
func (d Decimal) Rescale(newScale int) Decimal {
	if newScale == d.Scale {
		return d
	}
	if newScale > d.Scale {
		factor := pow10(newScale - d.Scale)
		return Decimal{Unscaled: new(big.Int).Mul(d.Unscaled, factor), Scale: newScale}
	}
	factor := pow10(d.Scale - newScale)
	q, r := new(big.Int).QuoRem(d.Unscaled, factor, new(big.Int))
	result := Decimal{Unscaled: q, Scale: newScale}
	if r.Sign() == 0 {
		return result
	}
	twice := new(big.Int).Mul(r, big.NewInt(2))
	twice.Abs(twice)
	cmp := twice.Cmp(factor)
	roundUp := cmp > 0 || (cmp == 0 && q.Bit(0) == 1)
	if roundUp {
		if d.Unscaled.Sign() < 0 {
			result.Unscaled = new(big.Int).Sub(result.Unscaled, big.NewInt(1))
		} else {
			result.Unscaled = new(big.Int).Add(result.Unscaled, big.NewInt(1))
		}
	}
	return result
}

// Add returns a+b rescaled to the larger of the two scales.
func Add(a, b Decimal) Decimal {
	scale := a.Scale
	if b.Scale > scale {
		scale = b.Scale
	}
	a, b = a.Rescale(scale), b.Rescale(scale)
	return Decimal{Unscaled: new(big.Int).Add(a.Unscaled, b.Unscaled), Scale: scale}
}

// MulInt returns a*n at a's scale (the Mul node: fact * integer
// literal).
func MulInt(a Decimal, n int64) Decimal {
	return Decimal{Unscaled: new(big.Int).Mul(a.Unscaled, big.NewInt(n)), Scale: a.Scale}
}

// Cmp compares a and b after rescaling both to the larger scale.
func Cmp(a, b Decimal) int {
	scale := a.Scale
	if b.Scale > scale {
		scale = b.Scale
	}
	return a.Rescale(scale).Unscaled.Cmp(b.Rescale(scale).Unscaled)
}

// FitsPrecision reports whether d's unscaled magnitude has at most precision
// decimal digits once rescaled to d's own Scale.
func FitsPrecision(d Decimal, precision int) bool {
	max := pow10(precision)
	abs := new(big.Int).Abs(d.Unscaled)
	return abs.Cmp(max) < 0
}

// CheckOverflow rescales d to scale and verifies it fits precision, per the
// NumericOverflow error kind.
func CheckOverflow(d Decimal, precision, scale int) (Decimal, error) {
	out := d.Rescale(scale)
	if !FitsPrecision(out, precision) {
		return Decimal{}, &ErrOverflow{Precision: precision, Scale: scale, Value: out.String()}
	}
	return out, nil
}

// DivInt divides a by n using half-to-even rounding at a's own scale — the
// chosen rounding mode for Int/Int division.
func DivInt(a Decimal, n int64) (Decimal, error) {
	if n == 0 {
		return Decimal{}, fmt.Errorf("numeric: division by zero")
	}
	divisor := big.NewInt(n)
	q, r := new(big.Int).QuoRem(a.Unscaled, divisor, new(big.Int))
	if r.Sign() == 0 {
		return Decimal{Unscaled: q, Scale: a.Scale}, nil
	}
	twice := new(big.Int).Mul(r, big.NewInt(2))
	twice.Abs(twice)
	absDivisor := new(big.Int).Abs(divisor)
	cmp := twice.Cmp(absDivisor)
	roundUp := cmp > 0 || (cmp == 0 && q.Bit(0) == 1)
	if roundUp {
		if (a.Unscaled.Sign() < 0) != (n < 0) {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return Decimal{Unscaled: q, Scale: a.Scale}, nil
}

// PromotedScale applies the Int/Decimal promotion rule: an Int operand combined
// with a Decimal(p,s) is promoted to Decimal(max(p, digitsOf(intBound)+1+s), s).
func PromotedScale(intMin, intMax int64, decimalPrecision, decimalScale int) (precision, scale int) {
	bound := intMax
	if -intMin > bound {
		bound = -intMin
	}
	digits := 1
	for bound >= 10 {
		bound /= 10
		digits++
	}
	p := digits + 1 + decimalScale
	if decimalPrecision > p {
		p = decimalPrecision
	}
	return p, decimalScale
}
