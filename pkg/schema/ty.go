// Package schema implements the Type-Schema Engine: a
// reflective value model over Cairo's primitive/struct/enum/tuple/array
// shapes, with serialize/deserialize to a flat field-element sequence,
// structural diff, and JSON round-trip.
package schema

import (
	"fmt"
	"strings"

	"chainforge/pkg/felt"
)

// Kind tags which variant a Ty holds.
type Kind int

const (
	KindPrimitive Kind = iota
	KindStruct
	KindEnum
	KindTuple
	KindArray
	KindFixedSizeArray
	KindByteArray
)

// Member is a single field of a Struct. Key marks columns that contribute
// to an entity's identity hash.
type Member struct {
	Name string
	Ty   Ty
	Key  bool
}

// Serialize forwards to the member's Ty, matching the source's
// Member::serialize convenience method.
func (m Member) Serialize() ([]felt.Felt, error) { return m.Ty.Serialize() }

// StructTy is a named, ordered collection of Members.
type StructTy struct {
	Name     string
	Children []Member
}

// Get returns the member's Ty by name, or false if absent.
func (s StructTy) Get(field string) (Ty, bool) {
	for _, m := range s.Children {
		if m.Name == field {
			return m.Ty, true
		}
	}
	return Ty{}, false
}

// Keys returns the members marked as identity keys.
func (s StructTy) Keys() []Member {
	var out []Member
	for _, m := range s.Children {
		if m.Key {
			out = append(out, m)
		}
	}
	return out
}

// EnumOption is a single named variant of an Enum, carrying its payload Ty
// (Ty{Kind: KindTuple, Tuple: nil} for a unit variant).
type EnumOption struct {
	Name string
	Ty   Ty
}

// EnumTy is a tagged union. Option is the active variant index, nil when
// the enum is an unpopulated template.
type EnumTy struct {
	Name    string
	Option  *uint8
	Options []EnumOption
}

// ActiveOption returns the currently selected option, or
// ErrInvalidEnumOption if Option is unset or out of range.
func (e EnumTy) ActiveOption() (EnumOption, error) {
	if e.Option == nil {
		return EnumOption{}, fmt.Errorf("%w: no option selected", ErrInvalidEnumOption)
	}
	idx := int(*e.Option)
	if idx < 0 || idx >= len(e.Options) {
		return EnumOption{}, fmt.Errorf("%w: index %d", ErrInvalidEnumOption, idx)
	}
	return e.Options[idx], nil
}

// SetOption selects the variant by name.
func (e *EnumTy) SetOption(name string) error {
	for i, o := range e.Options {
		if o.Name == name {
			idx := uint8(i)
			e.Option = &idx
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidEnumOption, name)
}

// ArrayTy is a homogeneous, dynamically-sized array. Template is cloned to
// produce each element on deserialize, kept as its own field (rather than
// "element 0 is the template"), keeping templates immutable.
type ArrayTy struct {
	Template *Ty
	Elems    []Ty
}

// FixedArrayTy is a homogeneous array with a compile-time-fixed length.
type FixedArrayTy struct {
	Template *Ty
	Size     uint32
	Elems    []Ty
}

// Ty is the recursive schema tree.
type Ty struct {
	Kind Kind

	Primitive Primitive
	Struct    StructTy
	Enum      EnumTy
	Tuple     []Ty
	Array     ArrayTy
	Fixed     FixedArrayTy
	ByteArray string
}

func NewPrimitive(p Primitive) Ty { return Ty{Kind: KindPrimitive, Primitive: p} }
func NewStruct(name string, children []Member) Ty {
	return Ty{Kind: KindStruct, Struct: StructTy{Name: name, Children: children}}
}
func NewEnum(name string, option *uint8, options []EnumOption) Ty {
	return Ty{Kind: KindEnum, Enum: EnumTy{Name: name, Option: option, Options: options}}
}
func NewTuple(items []Ty) Ty { return Ty{Kind: KindTuple, Tuple: items} }
func NewArray(template Ty, elems ...Ty) Ty {
	return Ty{Kind: KindArray, Array: ArrayTy{Template: &template, Elems: elems}}
}
func NewFixedSizeArray(template Ty, size uint32, elems ...Ty) Ty {
	return Ty{Kind: KindFixedSizeArray, Fixed: FixedArrayTy{Template: &template, Size: size, Elems: elems}}
}
func NewByteArray(s string) Ty { return Ty{Kind: KindByteArray, ByteArray: s} }

// Name renders a Cairo-ish type name, used in error messages and schema
// dumps the way the source's Display impl does.
func (t Ty) Name() string {
	switch t.Kind {
	case KindPrimitive:
		return t.Primitive.Kind.String()
	case KindStruct:
		return t.Struct.Name
	case KindEnum:
		return t.Enum.Name
	case KindTuple:
		names := make([]string, len(t.Tuple))
		for i, e := range t.Tuple {
			names[i] = e.Name()
		}
		return "(" + strings.Join(names, ", ") + ")"
	case KindArray:
		return fmt.Sprintf("Array<%s>", t.Array.Template.Name())
	case KindFixedSizeArray:
		return fmt.Sprintf("[%s; %d]", t.Fixed.Template.Name(), t.Fixed.Size)
	case KindByteArray:
		return "ByteArray"
	default:
		return "unknown"
	}
}

func (t Ty) String() string { return t.Name() }
