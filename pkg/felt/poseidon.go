package felt

import (
	"crypto/sha256"
	"fmt"
	"math/big"
)

// Poseidon implements the Hades permutation (3-element state, 8 full and
// 83 partial x^3 rounds, 3x3 MDS mixing) used as the field-native hash
// throughout the store and typed-data modules.
//
// Parameters follow the StarkNet instantiation: round constants are
// sha256("Hades" + index) reduced modulo the field prime, the MDS matrix
// is [[3,1,1],[1,-1,1],[1,1,-2]], partial rounds cube the last state
// element, and the sponge absorbs two felts per permutation with the
// append-1-then-zero-pad scheme.
const (
	poseidonFullRounds    = 8
	poseidonPartialRounds = 83
	poseidonWidth         = 3
)

var poseidonRoundConstants [][poseidonWidth]Felt
var poseidonMDS [poseidonWidth][poseidonWidth]Felt

func init() {
	total := poseidonFullRounds + poseidonPartialRounds
	poseidonRoundConstants = make([][poseidonWidth]Felt, total)
	idx := 0
	next := func() Felt {
		h := sha256.Sum256([]byte(fmt.Sprintf("Hades%d", idx)))
		idx++
		return FromBigInt(new(big.Int).SetBytes(h[:]))
	}
	for r := 0; r < total; r++ {
		for i := 0; i < poseidonWidth; i++ {
			poseidonRoundConstants[r][i] = next()
		}
	}

	one := FromUint64(1)
	three := FromUint64(3)
	minusOne := Zero.Sub(one)
	minusTwo := Zero.Sub(FromUint64(2))
	poseidonMDS = [poseidonWidth][poseidonWidth]Felt{
		{three, one, one},
		{one, minusOne, one},
		{one, one, minusTwo},
	}
}

func sbox(f Felt) Felt {
	// x^3, the S-box used by StarkNet's Poseidon instantiation (alpha=3).
	return f.Mul(f).Mul(f)
}

func mix(state [poseidonWidth]Felt) [poseidonWidth]Felt {
	var out [poseidonWidth]Felt
	for i := 0; i < poseidonWidth; i++ {
		acc := Zero
		for j := 0; j < poseidonWidth; j++ {
			acc = acc.Add(poseidonMDS[i][j].Mul(state[j]))
		}
		out[i] = acc
	}
	return out
}

func permute(state [poseidonWidth]Felt) [poseidonWidth]Felt {
	round := 0
	addConstants := func(s [poseidonWidth]Felt) [poseidonWidth]Felt {
		rc := poseidonRoundConstants[round]
		for i := range s {
			s[i] = s[i].Add(rc[i])
		}
		return s
	}

	half := poseidonFullRounds / 2
	for r := 0; r < half; r++ {
		state = addConstants(state)
		for i := range state {
			state[i] = sbox(state[i])
		}
		state = mix(state)
		round++
	}
	for r := 0; r < poseidonPartialRounds; r++ {
		state = addConstants(state)
		state[poseidonWidth-1] = sbox(state[poseidonWidth-1])
		state = mix(state)
		round++
	}
	for r := 0; r < half; r++ {
		state = addConstants(state)
		for i := range state {
			state[i] = sbox(state[i])
		}
		state = mix(state)
		round++
	}
	return state
}

// PoseidonHash2 hashes two field elements: permute([x, y, 2])[0].
func PoseidonHash2(a, b Felt) Felt {
	state := [poseidonWidth]Felt{a, b, FromUint64(2)}
	return permute(state)[0]
}

// PoseidonHashMany hashes a variable-length slice of felts: the input is
// padded with a single 1 then zeros to an even length, absorbed two at a
// time into the first two state elements with a permutation per pair.
func PoseidonHashMany(elems []Felt) Felt {
	padded := make([]Felt, len(elems), len(elems)+2)
	copy(padded, elems)
	padded = append(padded, FromUint64(1))
	if len(padded)%2 != 0 {
		padded = append(padded, Zero)
	}

	state := [poseidonWidth]Felt{}
	for i := 0; i < len(padded); i += 2 {
		state[0] = state[0].Add(padded[i])
		state[1] = state[1].Add(padded[i+1])
		state = permute(state)
	}
	return state[0]
}

// Poseidon is a convenience wrapper over PoseidonHashMany for callers
// passing a variadic argument list instead of a slice.
func Poseidon(elems ...Felt) Felt {
	return PoseidonHashMany(elems)
}
