package schema

import (
	"fmt"

	"chainforge/pkg/felt"
)

// Layout tags for the self-describing schema encoding carried by world
// registration events. A registered model's template Ty is reconstructed
// from this encoding at index time, then cached by the projection store so
// record payloads can be decoded before the registration's write queue has
// flushed.
const (
	layoutPrimitive uint64 = iota
	layoutStruct
	layoutEnum
	layoutTuple
	layoutArray
	layoutFixedArray
	layoutByteArray
)

// EncodeLayout renders t's shape (not its values) as a flat felt sequence.
// Strings (type and member names) are emitted as shortstrings.
func EncodeLayout(t Ty) []felt.Felt {
	var out []felt.Felt
	encodeLayout(t, &out)
	return out
}

func encodeLayout(t Ty, out *[]felt.Felt) {
	switch t.Kind {
	case KindPrimitive:
		*out = append(*out, felt.FromUint64(layoutPrimitive), felt.FromUint64(uint64(t.Primitive.Kind)))
	case KindStruct:
		*out = append(*out, felt.FromUint64(layoutStruct), shortString(t.Struct.Name), felt.FromUint64(uint64(len(t.Struct.Children))))
		for _, m := range t.Struct.Children {
			key := uint64(0)
			if m.Key {
				key = 1
			}
			*out = append(*out, shortString(m.Name), felt.FromUint64(key))
			encodeLayout(m.Ty, out)
		}
	case KindEnum:
		*out = append(*out, felt.FromUint64(layoutEnum), shortString(t.Enum.Name), felt.FromUint64(uint64(len(t.Enum.Options))))
		for _, o := range t.Enum.Options {
			*out = append(*out, shortString(o.Name))
			encodeLayout(o.Ty, out)
		}
	case KindTuple:
		*out = append(*out, felt.FromUint64(layoutTuple), felt.FromUint64(uint64(len(t.Tuple))))
		for _, e := range t.Tuple {
			encodeLayout(e, out)
		}
	case KindArray:
		*out = append(*out, felt.FromUint64(layoutArray))
		encodeLayout(*t.Array.Template, out)
	case KindFixedSizeArray:
		*out = append(*out, felt.FromUint64(layoutFixedArray), felt.FromUint64(uint64(t.Fixed.Size)))
		encodeLayout(*t.Fixed.Template, out)
	case KindByteArray:
		*out = append(*out, felt.FromUint64(layoutByteArray))
	}
}

// DecodeLayout parses an EncodeLayout sequence back into an unpopulated
// template Ty, consuming felts from the front of *felts.
func DecodeLayout(felts *[]felt.Felt) (Ty, error) {
	tag, err := takeUint(felts, "layout tag")
	if err != nil {
		return Ty{}, err
	}
	switch tag {
	case layoutPrimitive:
		kind, err := takeUint(felts, "primitive kind")
		if err != nil {
			return Ty{}, err
		}
		if kind > uint64(KEthAddress) {
			return Ty{}, fmt.Errorf("schema: unknown primitive kind %d in layout", kind)
		}
		return NewPrimitive(Template(PrimitiveKind(kind))), nil
	case layoutStruct:
		name, err := takeShortString(felts, "struct name")
		if err != nil {
			return Ty{}, err
		}
		n, err := takeUint(felts, "struct member count")
		if err != nil {
			return Ty{}, err
		}
		members := make([]Member, 0, n)
		for i := uint64(0); i < n; i++ {
			mname, err := takeShortString(felts, "member name")
			if err != nil {
				return Ty{}, err
			}
			key, err := takeUint(felts, "member key flag")
			if err != nil {
				return Ty{}, err
			}
			mty, err := DecodeLayout(felts)
			if err != nil {
				return Ty{}, err
			}
			members = append(members, Member{Name: mname, Ty: mty, Key: key != 0})
		}
		return NewStruct(name, members), nil
	case layoutEnum:
		name, err := takeShortString(felts, "enum name")
		if err != nil {
			return Ty{}, err
		}
		n, err := takeUint(felts, "enum option count")
		if err != nil {
			return Ty{}, err
		}
		options := make([]EnumOption, 0, n)
		for i := uint64(0); i < n; i++ {
			oname, err := takeShortString(felts, "option name")
			if err != nil {
				return Ty{}, err
			}
			oty, err := DecodeLayout(felts)
			if err != nil {
				return Ty{}, err
			}
			options = append(options, EnumOption{Name: oname, Ty: oty})
		}
		return NewEnum(name, nil, options), nil
	case layoutTuple:
		n, err := takeUint(felts, "tuple arity")
		if err != nil {
			return Ty{}, err
		}
		items := make([]Ty, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := DecodeLayout(felts)
			if err != nil {
				return Ty{}, err
			}
			items = append(items, item)
		}
		return NewTuple(items), nil
	case layoutArray:
		template, err := DecodeLayout(felts)
		if err != nil {
			return Ty{}, err
		}
		return NewArray(template), nil
	case layoutFixedArray:
		size, err := takeUint(felts, "fixed array size")
		if err != nil {
			return Ty{}, err
		}
		template, err := DecodeLayout(felts)
		if err != nil {
			return Ty{}, err
		}
		return NewFixedSizeArray(template, uint32(size)), nil
	case layoutByteArray:
		return NewByteArray(""), nil
	default:
		return Ty{}, fmt.Errorf("schema: unknown layout tag %d", tag)
	}
}

func takeUint(felts *[]felt.Felt, what string) (uint64, error) {
	if len(*felts) == 0 {
		return 0, fmt.Errorf("%w: reading %s", ErrTruncatedInput, what)
	}
	f := (*felts)[0]
	*felts = (*felts)[1:]
	n, ok := f.Uint64()
	if !ok {
		return 0, fmt.Errorf("schema: %s does not fit a u64", what)
	}
	return n, nil
}

func takeShortString(felts *[]felt.Felt, what string) (string, error) {
	if len(*felts) == 0 {
		return "", fmt.Errorf("%w: reading %s", ErrTruncatedInput, what)
	}
	f := (*felts)[0]
	*felts = (*felts)[1:]
	return decodeShortString(f), nil
}

func shortString(s string) felt.Felt {
	if len(s) > 31 {
		s = s[:31]
	}
	return felt.FromBytesBE([]byte(s))
}

func decodeShortString(f felt.Felt) string {
	b := f.Bytes32()
	start := 0
	for start < len(b) && b[start] == 0 {
		start++
	}
	return string(b[start:])
}
