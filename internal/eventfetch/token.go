package eventfetch

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Token is the opaque continuation token handed to RPC clients: a local
// cursor or a nested forked token behind a discriminator. "F" wraps an
// upstream (forked) provider's own continuation token verbatim; "L" wraps
// the local provider's.
type Token struct {
	Forked bool
	Inner  string
}

// Encode renders t as the opaque string handed back to RPC clients.
func (t Token) Encode() string {
	disc := "L"
	if t.Forked {
		disc = "F"
	}
	return disc + ":" + base64.RawURLEncoding.EncodeToString([]byte(t.Inner))
}

// ParseToken decodes a token produced by Encode. An empty string parses as
// a fresh, non-forked token with an empty Inner value.
func ParseToken(s string) (Token, error) {
	if s == "" {
		return Token{}, nil
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Token{}, fmt.Errorf("eventfetch: malformed continuation token %q", s)
	}
	inner, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Token{}, fmt.Errorf("eventfetch: malformed continuation token %q: %w", s, err)
	}
	switch parts[0] {
	case "F":
		return Token{Forked: true, Inner: string(inner)}, nil
	case "L":
		return Token{Forked: false, Inner: string(inner)}, nil
	default:
		return Token{}, fmt.Errorf("eventfetch: unknown continuation discriminator %q", parts[0])
	}
}
