package felt

import "testing"

func TestFromHexRoundTrip(t *testing.T) {
	f, err := FromHex("0x123abc")
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if got := f.Hex(); got != "0x123abc" {
		t.Errorf("Hex() = %q, want 0x123abc", got)
	}
}

func TestArithmetic(t *testing.T) {
	a := FromUint64(7)
	b := FromUint64(3)
	if got, _ := a.Add(b).Uint64(); got != 10 {
		t.Errorf("Add = %d, want 10", got)
	}
	if got, _ := a.Mul(b).Uint64(); got != 21 {
		t.Errorf("Mul = %d, want 21", got)
	}
	if got, _ := a.Sub(b).Uint64(); got != 4 {
		t.Errorf("Sub = %d, want 4", got)
	}
}

func TestOutOfRangeHexRejected(t *testing.T) {
	tooBig := Prime.String()
	if _, err := FromHex(tooBig); err == nil {
		t.Errorf("expected error for value >= Prime")
	}
}

func TestPoseidonDeterministic(t *testing.T) {
	a := FromUint64(1)
	b := FromUint64(2)
	h1 := PoseidonHash2(a, b)
	h2 := PoseidonHash2(a, b)
	if !h1.Equal(h2) {
		t.Errorf("PoseidonHash2 not deterministic")
	}
	h3 := PoseidonHash2(b, a)
	if h1.Equal(h3) {
		t.Errorf("PoseidonHash2 should not be commutative")
	}
}

func TestPoseidonHashManyVariesWithInput(t *testing.T) {
	h1 := PoseidonHashMany([]Felt{FromUint64(1), FromUint64(2), FromUint64(3)})
	h2 := PoseidonHashMany([]Felt{FromUint64(1), FromUint64(2), FromUint64(4)})
	if h1.Equal(h2) {
		t.Errorf("different inputs produced the same hash")
	}
	h3 := PoseidonHashMany([]Felt{FromUint64(1), FromUint64(2), FromUint64(3)})
	if !h1.Equal(h3) {
		t.Errorf("PoseidonHashMany not deterministic")
	}
}

func TestStarknetKeccakMasksTo250Bits(t *testing.T) {
	f := StarknetKeccak([]byte("Transfer"))
	if f.BigInt().BitLen() > 250 {
		t.Errorf("starknet_keccak result exceeds 250 bits")
	}
}
