package schema

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"chainforge/pkg/felt"
)

// PrimitiveKind enumerates the Cairo primitive kinds.
type PrimitiveKind int

const (
	KBool PrimitiveKind = iota
	KI8
	KI16
	KI32
	KI64
	KI128
	KU8
	KU16
	KU32
	KU64
	KU128
	KU256
	KFelt252
	KClassHash
	KContractAddress
	KEthAddress
)

func (k PrimitiveKind) String() string {
	switch k {
	case KBool:
		return "bool"
	case KI8:
		return "i8"
	case KI16:
		return "i16"
	case KI32:
		return "i32"
	case KI64:
		return "i64"
	case KI128:
		return "i128"
	case KU8:
		return "u8"
	case KU16:
		return "u16"
	case KU32:
		return "u32"
	case KU64:
		return "u64"
	case KU128:
		return "u128"
	case KU256:
		return "u256"
	case KFelt252:
		return "felt252"
	case KClassHash:
		return "ClassHash"
	case KContractAddress:
		return "ContractAddress"
	case KEthAddress:
		return "EthAddress"
	default:
		return "unknown"
	}
}

// widerThanDouble reports whether the kind's full range cannot always be
// represented losslessly by an IEEE double.
func (k PrimitiveKind) widerThanDouble() bool {
	switch k {
	case KI64, KI128, KU64, KU128, KU256, KFelt252, KClassHash, KContractAddress, KEthAddress:
		return true
	default:
		return false
	}
}

// Primitive is a single scalar value (or an unpopulated template when
// set == false). Signed kinds store their value as a signed big.Int;
// unsigned/felt/hash/address kinds store a non-negative big.Int.
type Primitive struct {
	Kind    PrimitiveKind
	set     bool
	boolVal bool
	intVal  *big.Int
}

// Template returns an unpopulated Primitive of the given kind, the value a
// freshly-registered model schema carries before any event populates it.
func Template(kind PrimitiveKind) Primitive {
	return Primitive{Kind: kind}
}

func newInt(kind PrimitiveKind, v int64) Primitive {
	return Primitive{Kind: kind, set: true, intVal: big.NewInt(v)}
}

func newUint(kind PrimitiveKind, v uint64) Primitive {
	return Primitive{Kind: kind, set: true, intVal: new(big.Int).SetUint64(v)}
}

func NewBool(v bool) Primitive { return Primitive{Kind: KBool, set: true, boolVal: v} }
func NewI8(v int8) Primitive   { return newInt(KI8, int64(v)) }
func NewI16(v int16) Primitive { return newInt(KI16, int64(v)) }
func NewI32(v int32) Primitive { return newInt(KI32, int64(v)) }
func NewI64(v int64) Primitive { return newInt(KI64, v) }
func NewI128(v *big.Int) Primitive {
	return Primitive{Kind: KI128, set: true, intVal: new(big.Int).Set(v)}
}
func NewU8(v uint8) Primitive   { return newUint(KU8, uint64(v)) }
func NewU16(v uint16) Primitive { return newUint(KU16, uint64(v)) }
func NewU32(v uint32) Primitive { return newUint(KU32, uint64(v)) }
func NewU64(v uint64) Primitive { return newUint(KU64, v) }
func NewU128(v *big.Int) Primitive {
	return Primitive{Kind: KU128, set: true, intVal: new(big.Int).Set(v)}
}
func NewU256(v *big.Int) Primitive {
	return Primitive{Kind: KU256, set: true, intVal: new(big.Int).Set(v)}
}
func NewFelt252(f felt.Felt) Primitive {
	return Primitive{Kind: KFelt252, set: true, intVal: f.BigInt()}
}
func NewClassHash(f felt.Felt) Primitive {
	return Primitive{Kind: KClassHash, set: true, intVal: f.BigInt()}
}
func NewContractAddress(f felt.Felt) Primitive {
	return Primitive{Kind: KContractAddress, set: true, intVal: f.BigInt()}
}
func NewEthAddress(f felt.Felt) Primitive {
	return Primitive{Kind: KEthAddress, set: true, intVal: f.BigInt()}
}

// IsSet reports whether the primitive carries a concrete value.
func (p Primitive) IsSet() bool { return p.set }

// BoolValue returns the boolean value and whether it is set; only valid for
// KBool.
func (p Primitive) BoolValue() (bool, bool) { return p.boolVal, p.set }

// IntValue returns the underlying integer and whether it is set.
func (p Primitive) IntValue() (*big.Int, bool) {
	if !p.set || p.intVal == nil {
		return nil, false
	}
	return new(big.Int).Set(p.intVal), true
}

// Felt returns the value as a field element (reduced modulo the prime for
// signed negative values, matching Cairo's field representation).
func (p Primitive) Felt() felt.Felt {
	if p.Kind == KBool {
		if p.boolVal {
			return felt.FromUint64(1)
		}
		return felt.Zero
	}
	if p.intVal == nil {
		return felt.Zero
	}
	return felt.FromBigInt(p.intVal)
}

// Clone returns a deep copy (big.Int is mutable, so it must be copied).
func (p Primitive) Clone() Primitive {
	c := p
	if p.intVal != nil {
		c.intVal = new(big.Int).Set(p.intVal)
	}
	return c
}

// Equal reports structural equality including the set/unset state.
func (p Primitive) Equal(o Primitive) bool {
	if p.Kind != o.Kind || p.set != o.set {
		return false
	}
	if !p.set {
		return true
	}
	if p.Kind == KBool {
		return p.boolVal == o.boolVal
	}
	if p.intVal == nil || o.intVal == nil {
		return p.intVal == o.intVal
	}
	return p.intVal.Cmp(o.intVal) == 0
}

// Serialize emits the primitive's field-element representation. U256 emits
// two felts (low 128 bits, high 128 bits), matching Cairo's u256 ABI; every
// other kind emits exactly one felt.
func (p Primitive) Serialize() ([]felt.Felt, error) {
	if !p.set {
		return nil, fmt.Errorf("%w: %s", ErrMissingFieldElement, p.Kind)
	}
	if p.Kind == KU256 {
		mask := new(big.Int).Lsh(big.NewInt(1), 128)
		mask.Sub(mask, big.NewInt(1))
		low := new(big.Int).And(p.intVal, mask)
		high := new(big.Int).Rsh(p.intVal, 128)
		return []felt.Felt{felt.FromBigInt(low), felt.FromBigInt(high)}, nil
	}
	return []felt.Felt{p.Felt()}, nil
}

// Deserialize consumes one felt (two for U256) from the front of *felts.
func (p *Primitive) Deserialize(felts *[]felt.Felt) error {
	if p.Kind == KU256 {
		if len(*felts) < 2 {
			return ErrTruncatedInput
		}
		low := (*felts)[0].BigInt()
		high := (*felts)[1].BigInt()
		*felts = (*felts)[2:]
		high.Lsh(high, 128)
		high.Add(high, low)
		p.set = true
		p.intVal = high
		return nil
	}
	if len(*felts) < 1 {
		return ErrTruncatedInput
	}
	v := (*felts)[0]
	*felts = (*felts)[1:]

	if p.Kind == KBool {
		n, _ := v.Uint64()
		p.set = true
		p.boolVal = n != 0
		return nil
	}

	raw := v.BigInt()
	if isSigned(p.Kind) {
		// Cairo represents negative signed values as (Prime - |v|); fold
		// values in the upper half of the field back to a negative integer.
		half := new(big.Int).Rsh(felt.Prime, 1)
		if raw.Cmp(half) > 0 {
			raw.Sub(raw, felt.Prime)
		}
	}
	p.set = true
	p.intVal = raw
	return nil
}

func isSigned(k PrimitiveKind) bool {
	switch k {
	case KI8, KI16, KI32, KI64, KI128:
		return true
	default:
		return false
	}
}

// SQLType returns the column type the projection store uses for this
// kind.
func (k PrimitiveKind) SQLType() string {
	switch k {
	case KBool, KI8, KI16, KI32, KU8, KU16, KU32:
		return "INTEGER"
	case KI64, KI128, KU64, KU128:
		return "TEXT"
	case KU256, KFelt252, KClassHash, KContractAddress, KEthAddress:
		return "TEXT"
	default:
		return "TEXT"
	}
}

// ToSQLValue renders the value the way it is persisted: small integers as
// decimal text (SQLite stores INTEGER columns natively), wide integers and
// felts/addresses as zero-padded 64-hex-digit strings.
func (p Primitive) ToSQLValue() string {
	if !p.set {
		return ""
	}
	switch p.Kind {
	case KBool:
		if p.boolVal {
			return "1"
		}
		return "0"
	case KI8, KI16, KI32, KU8, KU16, KU32:
		return p.intVal.String()
	default:
		return felt.FromBigInt(new(big.Int).Abs(p.intVal)).Hex64()
	}
}

// ToJSONValue: values that always fit an IEEE double
// serialize as JSON numbers; 64-bit-and-wider integers, felts, and
// addresses serialize as hex strings.
func (p Primitive) ToJSONValue() (interface{}, error) {
	if !p.set {
		return nil, ErrMissingFieldElement
	}
	switch p.Kind {
	case KBool:
		return p.boolVal, nil
	case KI8, KI16, KI32, KU8, KU16, KU32:
		return float64(p.intVal.Int64()), nil
	default:
		if p.intVal.Sign() < 0 {
			return "-0x" + new(big.Int).Abs(p.intVal).Text(16), nil
		}
		return "0x" + p.intVal.Text(16), nil
	}
}

// FromJSONValue parses the JSON representation written by ToJSONValue.
func (p *Primitive) FromJSONValue(v interface{}) error {
	switch p.Kind {
	case KBool:
		b, ok := v.(bool)
		if !ok {
			return ErrTypeMismatch
		}
		p.set, p.boolVal = true, b
		return nil
	case KI8, KI16, KI32, KU8, KU16, KU32:
		n, ok := jsonNumberToBigInt(v)
		if !ok {
			return ErrTypeMismatch
		}
		p.set, p.intVal = true, n
		return nil
	default:
		s, ok := v.(string)
		if !ok {
			return ErrTypeMismatch
		}
		neg := strings.HasPrefix(s, "-")
		s = strings.TrimPrefix(s, "-")
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
		n, ok := new(big.Int).SetString(s, 16)
		if !ok {
			return ErrTypeMismatch
		}
		if neg {
			n.Neg(n)
		}
		p.set, p.intVal = true, n
		return nil
	}
}

func jsonNumberToBigInt(v interface{}) (*big.Int, bool) {
	switch n := v.(type) {
	case float64:
		return big.NewInt(int64(n)), true
	case int:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, false
		}
		return big.NewInt(i), true
	default:
		return nil, false
	}
}
