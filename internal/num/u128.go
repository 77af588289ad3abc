// Package num provides the unsigned 128-bit amount type used for collateral,
// share pools and fee totals. Values are backed by a 256-bit word so that a
// single multiplication of two amounts never wraps; every result is checked
// back into the 128-bit range.
package num

import (
	"TrueMarket/internal/fault"
	"bytes"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// U128 is an immutable unsigned 128-bit integer. The zero value is 0.
type U128 struct {
	v uint256.Int
}

var (
	Zero = U128{}

	maxU128 = func() uint256.Int {
		var m uint256.Int
		m.Lsh(uint256.NewInt(1), 128)
		m.SubUint64(&m, 1)
		return m
	}()
)

// Max returns 2^128 - 1.
func Max() U128 {
	return U128{v: maxU128}
}

func FromUint64(x uint64) U128 {
	var u U128
	u.v.SetUint64(x)
	return u
}

// FromBig converts b, failing with an arithmetic fault when b is negative or
// does not fit in 128 bits.
func FromBig(b *big.Int) (U128, error) {
	if b.Sign() < 0 {
		return Zero, fault.Arithmetic("negative value %s", b.String())
	}
	if b.BitLen() > 128 {
		return Zero, fault.Arithmetic("value %s exceeds 128 bits", b.String())
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Zero, fault.Arithmetic("value %s exceeds 128 bits", b.String())
	}
	return U128{v: *v}, nil
}

// Parse reads a base-10 string.
func Parse(s string) (U128, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if v.Gt(&maxU128) {
		return Zero, fault.Arithmetic("amount %s exceeds 128 bits", s)
	}
	return U128{v: *v}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) U128 {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Add returns a+b or an arithmetic fault on overflow.
func (a U128) Add(b U128) (U128, error) {
	var sum U128
	sum.v.Add(&a.v, &b.v)
	if sum.v.Gt(&maxU128) {
		return Zero, fault.Arithmetic("overflow: %s + %s", a, b)
	}
	return sum, nil
}

// Sub returns a-b or an arithmetic fault on underflow.
func (a U128) Sub(b U128) (U128, error) {
	var diff U128
	if _, underflow := diff.v.SubOverflow(&a.v, &b.v); underflow {
		return Zero, fault.Arithmetic("underflow: %s - %s", a, b)
	}
	return diff, nil
}

// SaturatingAdd returns a+b clamped to Max.
func (a U128) SaturatingAdd(b U128) U128 {
	sum, err := a.Add(b)
	if err != nil {
		return Max()
	}
	return sum
}

// MulDiv returns floor(a * mul / div). The product is formed in 256 bits, and
// since mul is at most 64 bits it cannot wrap. The quotient is <= a whenever
// mul <= div.
func (a U128) MulDiv(mul, div uint64) U128 {
	if div == 0 {
		panic("num: MulDiv by zero")
	}
	var out U128
	out.v.Mul(&a.v, uint256.NewInt(mul))
	out.v.Div(&out.v, uint256.NewInt(div))
	return out
}

func (a U128) Cmp(b U128) int { return a.v.Cmp(&b.v) }
func (a U128) Lt(b U128) bool { return a.v.Lt(&b.v) }
func (a U128) IsZero() bool   { return a.v.IsZero() }

// Big returns a fresh big.Int holding a.
func (a U128) Big() *big.Int {
	return a.v.ToBig()
}

func (a U128) String() string {
	return a.v.Dec()
}

// MarshalJSON encodes the amount as a quoted decimal string; JSON numbers lose
// precision above 2^53 in most clients.
func (a U128) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.Dec() + `"`), nil
}

// UnmarshalJSON accepts both quoted and bare decimal numbers.
func (a *U128) UnmarshalJSON(data []byte) error {
	s := bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(s) == 0 || bytes.Equal(s, []byte("null")) {
		*a = Zero
		return nil
	}
	u, err := Parse(string(s))
	if err != nil {
		return err
	}
	*a = u
	return nil
}
