package schema

// Clone returns a deep copy of t. Callers receive by-value deep clones
// wherever multiple namespaces share a class, so the engine never leaks its
// in-memory graph into the projection store.
func (t Ty) Clone() Ty {
	c := Ty{Kind: t.Kind, ByteArray: t.ByteArray}
	switch t.Kind {
	case KindPrimitive:
		c.Primitive = t.Primitive.Clone()

	case KindStruct:
		c.Struct.Name = t.Struct.Name
		c.Struct.Children = make([]Member, len(t.Struct.Children))
		for i, m := range t.Struct.Children {
			c.Struct.Children[i] = Member{Name: m.Name, Key: m.Key, Ty: m.Ty.Clone()}
		}

	case KindEnum:
		c.Enum.Name = t.Enum.Name
		if t.Enum.Option != nil {
			v := *t.Enum.Option
			c.Enum.Option = &v
		}
		c.Enum.Options = make([]EnumOption, len(t.Enum.Options))
		for i, o := range t.Enum.Options {
			c.Enum.Options[i] = EnumOption{Name: o.Name, Ty: o.Ty.Clone()}
		}

	case KindTuple:
		c.Tuple = make([]Ty, len(t.Tuple))
		for i, e := range t.Tuple {
			c.Tuple[i] = e.Clone()
		}

	case KindArray:
		tmpl := t.Array.Template.Clone()
		c.Array.Template = &tmpl
		c.Array.Elems = make([]Ty, len(t.Array.Elems))
		for i, e := range t.Array.Elems {
			c.Array.Elems[i] = e.Clone()
		}

	case KindFixedSizeArray:
		tmpl := t.Fixed.Template.Clone()
		c.Fixed.Template = &tmpl
		c.Fixed.Size = t.Fixed.Size
		c.Fixed.Elems = make([]Ty, len(t.Fixed.Elems))
		for i, e := range t.Fixed.Elems {
			c.Fixed.Elems[i] = e.Clone()
		}
	}
	return c
}

// Equal reports deep structural equality, including populated values.
func (t Ty) Equal(o Ty) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindPrimitive:
		return t.Primitive.Equal(o.Primitive)

	case KindStruct:
		if t.Struct.Name != o.Struct.Name || len(t.Struct.Children) != len(o.Struct.Children) {
			return false
		}
		for i := range t.Struct.Children {
			a, b := t.Struct.Children[i], o.Struct.Children[i]
			if a.Name != b.Name || a.Key != b.Key || !a.Ty.Equal(b.Ty) {
				return false
			}
		}
		return true

	case KindEnum:
		if t.Enum.Name != o.Enum.Name || len(t.Enum.Options) != len(o.Enum.Options) {
			return false
		}
		if (t.Enum.Option == nil) != (o.Enum.Option == nil) {
			return false
		}
		if t.Enum.Option != nil && *t.Enum.Option != *o.Enum.Option {
			return false
		}
		for i := range t.Enum.Options {
			a, b := t.Enum.Options[i], o.Enum.Options[i]
			if a.Name != b.Name || !a.Ty.Equal(b.Ty) {
				return false
			}
		}
		return true

	case KindTuple:
		if len(t.Tuple) != len(o.Tuple) {
			return false
		}
		for i := range t.Tuple {
			if !t.Tuple[i].Equal(o.Tuple[i]) {
				return false
			}
		}
		return true

	case KindArray:
		if len(t.Array.Elems) != len(o.Array.Elems) {
			return false
		}
		for i := range t.Array.Elems {
			if !t.Array.Elems[i].Equal(o.Array.Elems[i]) {
				return false
			}
		}
		return true

	case KindFixedSizeArray:
		if t.Fixed.Size != o.Fixed.Size || len(t.Fixed.Elems) != len(o.Fixed.Elems) {
			return false
		}
		for i := range t.Fixed.Elems {
			if !t.Fixed.Elems[i].Equal(o.Fixed.Elems[i]) {
				return false
			}
		}
		return true

	case KindByteArray:
		return t.ByteArray == o.ByteArray

	default:
		return false
	}
}
