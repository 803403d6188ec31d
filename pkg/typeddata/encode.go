package typeddata

import (
	"fmt"
	"math/big"
	"strings"

	"chainforge/pkg/felt"
)

// encodePrimitiveValue converts a raw JSON-ish value for a leaf SNIP-12
// field type into its felt encoding.
func encodePrimitiveValue(fieldType string, raw interface{}) (felt.Felt, error) {
	switch fieldType {
	case "shortstring":
		s, ok := raw.(string)
		if !ok {
			return felt.Zero, fmt.Errorf("%w: expected string for shortstring", ErrInvalidValue)
		}
		return shortstring(s), nil

	case "string":
		s, ok := raw.(string)
		if !ok {
			return felt.Zero, fmt.Errorf("%w: expected string", ErrInvalidValue)
		}
		return byteArrayHash(s), nil

	case "selector":
		s, ok := raw.(string)
		if !ok {
			return felt.Zero, fmt.Errorf("%w: expected string for selector", ErrInvalidValue)
		}
		return felt.StarknetKeccak([]byte(s)), nil

	default:
		return toFeltValue(raw)
	}
}

// toFeltValue coerces a decoded JSON number/string/bool into a felt,
// accepting the same hex-string-or-number duality as pkg/schema.
func toFeltValue(raw interface{}) (felt.Felt, error) {
	switch v := raw.(type) {
	case felt.Felt:
		return v, nil
	case bool:
		if v {
			return felt.FromUint64(1), nil
		}
		return felt.FromUint64(0), nil
	case float64:
		return felt.FromUint64(uint64(v)), nil
	case int:
		return felt.FromUint64(uint64(v)), nil
	case int64:
		return felt.FromUint64(uint64(v)), nil
	case string:
		if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
			return felt.FromHex(v)
		}
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return felt.Zero, fmt.Errorf("%w: not a numeric string: %q", ErrInvalidValue, v)
		}
		return felt.FromBigInt(n), nil
	default:
		return felt.Zero, fmt.Errorf("%w: unsupported value type %T", ErrInvalidValue, raw)
	}
}

// byteArrayHash hashes a free-form "string" field as the Poseidon hash of
// its ByteArray encoding: [num_full_words, *full_words, pending_word,
// pending_word_len] over 31-byte words, the layout pkg/schema serializes
// byte-arrays with.
func byteArrayHash(s string) felt.Felt {
	b := []byte(s)
	full := len(b) / 31
	elems := make([]felt.Felt, 0, full+3)
	elems = append(elems, felt.FromUint64(uint64(full)))
	for i := 0; i < full; i++ {
		elems = append(elems, felt.FromBytesBE(b[i*31:(i+1)*31]))
	}
	elems = append(elems, felt.FromBytesBE(b[full*31:]), felt.FromUint64(uint64(len(b)-full*31)))
	return felt.PoseidonHashMany(elems)
}

// shortstring packs s (expected to be <= 31 ASCII bytes) into a single felt
// by treating its bytes as a big-endian integer, exactly as Cairo's
// shortstring literals do.
func shortstring(s string) felt.Felt {
	if len(s) > 31 {
		s = s[:31]
	}
	return felt.FromBytesBE([]byte(s))
}
