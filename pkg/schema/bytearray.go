package schema

import (
	"chainforge/pkg/felt"
)

// wordSize is the number of bytes packed into each "full word" felt of a
// ByteArray, per Cairo's SNIP-12-compatible ByteArray ABI: 31 bytes leaves
// headroom below the 252-bit felt size.
const wordSize = 31

// encodeByteArray renders s as [num_full_words, *full_words, pending_word,
// pending_word_len], the canonical chunked ByteArray representation; the
// typed-data hasher encodes strings over the same layout.
func encodeByteArray(s string) []felt.Felt {
	b := []byte(s)
	full := len(b) / wordSize
	pendingLen := len(b) % wordSize

	out := make([]felt.Felt, 0, full+3)
	out = append(out, felt.FromUint64(uint64(full)))
	for i := 0; i < full; i++ {
		out = append(out, felt.FromBytesBE(b[i*wordSize:(i+1)*wordSize]))
	}
	pending := b[full*wordSize:]
	out = append(out, felt.FromBytesBE(pending))
	out = append(out, felt.FromUint64(uint64(pendingLen)))
	return out
}

// decodeByteArray parses the representation written by encodeByteArray from
// the front of felts, returning the decoded string and the number of felts
// consumed.
func decodeByteArray(felts []felt.Felt) (string, int, error) {
	if len(felts) < 2 {
		return "", 0, ErrTruncatedInput
	}
	n, ok := felts[0].Uint64()
	if !ok {
		return "", 0, ErrTruncatedInput
	}
	if uint64(len(felts)) < n+3 {
		return "", 0, ErrTruncatedInput
	}

	buf := make([]byte, 0, int(n)*wordSize+wordSize)
	for i := uint64(0); i < n; i++ {
		word := felts[1+i].Bytes32()
		buf = append(buf, word[32-wordSize:]...)
	}

	pendingWord := felts[1+n]
	pendingLen, ok := felts[2+n].Uint64()
	if !ok || pendingLen > wordSize {
		return "", 0, ErrTruncatedInput
	}
	pendingBytes := pendingWord.Bytes32()
	buf = append(buf, pendingBytes[32-int(pendingLen):]...)

	return string(buf), int(n) + 3, nil
}
