package schema

import (
	"chainforge/pkg/felt"
)

// Serialize recursively emits the flat field-element sequence for t:
// arrays prepend a u32 length, enums emit the variant index
// then its payload, byte-arrays emit their canonical chunked representation.
func (t Ty) Serialize() ([]felt.Felt, error) {
	var out []felt.Felt
	if err := t.serializeInto(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t Ty) serializeInto(out *[]felt.Felt) error {
	switch t.Kind {
	case KindPrimitive:
		fs, err := t.Primitive.Serialize()
		if err != nil {
			return err
		}
		*out = append(*out, fs...)
		return nil

	case KindStruct:
		for _, child := range t.Struct.Children {
			if err := child.Ty.serializeInto(out); err != nil {
				return err
			}
		}
		return nil

	case KindEnum:
		opt, err := t.Enum.ActiveOption()
		if err != nil {
			return ErrMissingFieldElement
		}
		*out = append(*out, felt.FromUint64(uint64(*t.Enum.Option)))
		return opt.Ty.serializeInto(out)

	case KindTuple:
		for _, e := range t.Tuple {
			if err := e.serializeInto(out); err != nil {
				return err
			}
		}
		return nil

	case KindArray:
		*out = append(*out, felt.FromUint64(uint64(len(t.Array.Elems))))
		for _, e := range t.Array.Elems {
			if err := e.serializeInto(out); err != nil {
				return err
			}
		}
		return nil

	case KindFixedSizeArray:
		for _, e := range t.Fixed.Elems {
			if err := e.serializeInto(out); err != nil {
				return err
			}
		}
		return nil

	case KindByteArray:
		fs := encodeByteArray(t.ByteArray)
		*out = append(*out, fs...)
		return nil

	default:
		return ErrKindMismatch
	}
}

// Deserialize consumes felts from the front of *felts and populates t in
// place. Array and fixed-size-array elements are built from clones of
// Array.Template / Fixed.Template, so those templates are never mutated;
// the selected enum option's payload is populated in place.
func (t *Ty) Deserialize(felts *[]felt.Felt) error {
	switch t.Kind {
	case KindPrimitive:
		return t.Primitive.Deserialize(felts)

	case KindStruct:
		for i := range t.Struct.Children {
			if err := t.Struct.Children[i].Ty.Deserialize(felts); err != nil {
				return err
			}
		}
		return nil

	case KindEnum:
		if len(*felts) < 1 {
			return ErrTruncatedInput
		}
		idxFelt := (*felts)[0]
		*felts = (*felts)[1:]
		n, ok := idxFelt.Uint64()
		if !ok || int(n) >= len(t.Enum.Options) {
			return ErrInvalidEnumOption
		}
		idx := uint8(n)
		t.Enum.Option = &idx

		opt := &t.Enum.Options[idx]
		if opt.Ty.Kind == KindTuple && len(opt.Ty.Tuple) == 0 {
			// Unit variant: nothing more to consume.
			return nil
		}
		return opt.Ty.Deserialize(felts)

	case KindTuple:
		for i := range t.Tuple {
			if err := t.Tuple[i].Deserialize(felts); err != nil {
				return err
			}
		}
		return nil

	case KindArray:
		if len(*felts) < 1 {
			return ErrTruncatedInput
		}
		lenFelt := (*felts)[0]
		*felts = (*felts)[1:]
		n, ok := lenFelt.Uint64()
		if !ok {
			return ErrTruncatedInput
		}
		elems := make([]Ty, 0, n)
		for i := uint64(0); i < n; i++ {
			elem := t.Array.Template.Clone()
			if err := elem.Deserialize(felts); err != nil {
				return err
			}
			elems = append(elems, elem)
		}
		t.Array.Elems = elems
		return nil

	case KindFixedSizeArray:
		elems := make([]Ty, 0, t.Fixed.Size)
		for i := uint32(0); i < t.Fixed.Size; i++ {
			elem := t.Fixed.Template.Clone()
			if err := elem.Deserialize(felts); err != nil {
				return err
			}
			elems = append(elems, elem)
		}
		t.Fixed.Elems = elems
		return nil

	case KindByteArray:
		s, consumed, err := decodeByteArray(*felts)
		if err != nil {
			return err
		}
		*felts = (*felts)[consumed:]
		t.ByteArray = s
		return nil

	default:
		return ErrKindMismatch
	}
}
