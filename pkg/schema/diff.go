package schema

// Diff returns a Ty containing only the members/variants present (or
// differing) in t vs other, preserving structural shape, and a bool
// reporting whether any difference was found; ok is false iff the two
// schemas are structurally identical for the compared subtree.
//
// Diffing two Ty values of different kinds is a programmer error:
// callers that hit ErrKindMismatch should treat it as fatal, not attempt
// to recover a shape from it.
func (t Ty) Diff(other Ty) (Ty, bool, error) {
	if t.Kind != other.Kind {
		return Ty{}, false, ErrKindMismatch
	}

	switch t.Kind {
	case KindStruct:
		var diffChildren []Member
		for _, m1 := range t.Struct.Children {
			m2, ok := findMember(other.Struct.Children, m1.Name)
			if !ok {
				diffChildren = append(diffChildren, m1)
				continue
			}
			d, changed, err := m1.Ty.Diff(m2.Ty)
			if err != nil {
				return Ty{}, false, err
			}
			if changed {
				diffChildren = append(diffChildren, Member{Name: m1.Name, Ty: d, Key: m1.Key})
			}
		}
		if len(diffChildren) == 0 {
			return Ty{}, false, nil
		}
		return NewStruct(t.Struct.Name, diffChildren), true, nil

	case KindEnum:
		var diffOptions []EnumOption
		for _, o1 := range t.Enum.Options {
			o2, ok := findOption(other.Enum.Options, o1.Name)
			if !ok {
				diffOptions = append(diffOptions, o1)
				continue
			}
			d, changed, err := o1.Ty.Diff(o2.Ty)
			if err != nil {
				return Ty{}, false, err
			}
			if changed {
				diffOptions = append(diffOptions, EnumOption{Name: o1.Name, Ty: d})
			}
		}
		if len(diffOptions) == 0 {
			return Ty{}, false, nil
		}
		return NewEnum(t.Enum.Name, t.Enum.Option, diffOptions), true, nil

	case KindTuple:
		if len(t.Tuple) != len(other.Tuple) {
			var extra []Ty
			for _, ty := range t.Tuple {
				if !containsTy(other.Tuple, ty) {
					extra = append(extra, ty)
				}
			}
			return NewTuple(extra), true, nil
		}
		var diffs []Ty
		for i := range t.Tuple {
			d, changed, err := t.Tuple[i].Diff(other.Tuple[i])
			if err != nil {
				return Ty{}, false, err
			}
			if changed {
				diffs = append(diffs, d)
			}
		}
		if len(diffs) == 0 {
			return Ty{}, false, nil
		}
		return NewTuple(diffs), true, nil

	case KindArray:
		if t.Equal(other) {
			return Ty{}, false, nil
		}
		return t, true, nil

	case KindFixedSizeArray:
		if t.Equal(other) {
			return Ty{}, false, nil
		}
		return t, true, nil

	case KindByteArray:
		if t.ByteArray == other.ByteArray {
			return Ty{}, false, nil
		}
		return t, true, nil

	case KindPrimitive:
		if t.Primitive.Equal(other.Primitive) {
			return Ty{}, false, nil
		}
		return t, true, nil

	default:
		return Ty{}, false, ErrKindMismatch
	}
}

func findMember(members []Member, name string) (Member, bool) {
	for _, m := range members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

func findOption(options []EnumOption, name string) (EnumOption, bool) {
	for _, o := range options {
		if o.Name == name {
			return o, true
		}
	}
	return EnumOption{}, false
}

func containsTy(list []Ty, t Ty) bool {
	for _, e := range list {
		if e.Equal(t) {
			return true
		}
	}
	return false
}
