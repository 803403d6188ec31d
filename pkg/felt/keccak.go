package felt

import (
	"math/big"

	"golang.org/x/crypto/sha3"
)

var mask250 = func() *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), 250)
	m.Sub(m, big.NewInt(1))
	return m
}()

// StarknetKeccak computes the "starknet_keccak" of data: a Keccak-256 digest
// masked to its low 250 bits, used for computing ASCII-name selectors
// (event keys, typed-data type selectors).
func StarknetKeccak(data []byte) Felt {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	digest := h.Sum(nil)

	n := new(big.Int).SetBytes(digest)
	n.And(n, mask250)
	return FromBigInt(n)
}
