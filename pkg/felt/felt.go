// Package felt implements the 252-bit STARK field element used throughout
// chainforge as the atomic on-chain value type.
package felt

import (
	"fmt"
	"math/big"
	"strings"
)

// Prime is the STARK field modulus: 2**251 + 17*2**192 + 1.
var Prime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 251)
	aux := new(big.Int).Lsh(big.NewInt(17), 192)
	p.Add(p, aux)
	p.Add(p, big.NewInt(1))
	return p
}()

// Felt is a field element modulo Prime. The zero value is the felt zero.
type Felt struct {
	v big.Int
}

// Zero is the additive identity.
var Zero = Felt{}

func mod(v *big.Int) big.Int {
	var out big.Int
	out.Mod(v, Prime)
	return out
}

// FromUint64 builds a Felt from a uint64.
func FromUint64(n uint64) Felt {
	var f Felt
	f.v.SetUint64(n)
	return f
}

// FromBigInt reduces an arbitrary big.Int modulo Prime.
func FromBigInt(n *big.Int) Felt {
	return Felt{v: mod(n)}
}

// FromHex parses a "0x..." hex string (case-insensitive, optional prefix).
func FromHex(s string) (Felt, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return Zero, nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return Zero, fmt.Errorf("felt: invalid hex string %q", s)
	}
	if n.Sign() < 0 || n.Cmp(Prime) >= 0 {
		return Zero, fmt.Errorf("felt: value %q out of range", s)
	}
	return Felt{v: *n}, nil
}

// FromBytesBE interprets b as a big-endian integer, reduced modulo Prime.
func FromBytesBE(b []byte) Felt {
	return FromBigInt(new(big.Int).SetBytes(b))
}

// BigInt returns a copy of the underlying integer.
func (f Felt) BigInt() *big.Int {
	return new(big.Int).Set(&f.v)
}

// Hex renders the canonical lowercase "0x..." representation.
func (f Felt) Hex() string {
	return fmt.Sprintf("0x%x", &f.v)
}

// Hex64 renders a zero-padded 64-hex-digit string without the 0x prefix,
// the form pkg/schema persists wide primitives in for the projection store.
func (f Felt) Hex64() string {
	return fmt.Sprintf("%064x", &f.v)
}

// String implements fmt.Stringer.
func (f Felt) String() string { return f.Hex() }

// Bytes32 returns the big-endian 32-byte representation.
func (f Felt) Bytes32() [32]byte {
	var out [32]byte
	b := f.v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// Add returns f+g mod Prime.
func (f Felt) Add(g Felt) Felt {
	var r big.Int
	r.Add(&f.v, &g.v)
	return Felt{v: mod(&r)}
}

// Sub returns f-g mod Prime.
func (f Felt) Sub(g Felt) Felt {
	var r big.Int
	r.Sub(&f.v, &g.v)
	return Felt{v: mod(&r)}
}

// Mul returns f*g mod Prime.
func (f Felt) Mul(g Felt) Felt {
	var r big.Int
	r.Mul(&f.v, &g.v)
	return Felt{v: mod(&r)}
}

// Equal reports whether f and g represent the same value.
func (f Felt) Equal(g Felt) bool {
	return f.v.Cmp(&g.v) == 0
}

// IsZero reports whether f is the additive identity.
func (f Felt) IsZero() bool {
	return f.v.Sign() == 0
}

// Uint64 returns the value truncated/validated to fit a uint64, and whether
// it fit without loss.
func (f Felt) Uint64() (uint64, bool) {
	if !f.v.IsUint64() {
		return 0, false
	}
	return f.v.Uint64(), true
}

// Cmp compares f and g the way big.Int.Cmp does.
func (f Felt) Cmp(g Felt) int {
	return f.v.Cmp(&g.v)
}
