package schema

// ToJSONValue renders t as a JSON-compatible Go value (map[string]any,
// []any, string, float64, bool, or nil): enums serialize
// as a single-key {variant_name: payload} object.
func (t Ty) ToJSONValue() (interface{}, error) {
	switch t.Kind {
	case KindPrimitive:
		return t.Primitive.ToJSONValue()

	case KindStruct:
		obj := make(map[string]interface{}, len(t.Struct.Children))
		for _, m := range t.Struct.Children {
			v, err := m.Ty.ToJSONValue()
			if err != nil {
				return nil, err
			}
			obj[m.Name] = v
		}
		return obj, nil

	case KindEnum:
		opt, err := t.Enum.ActiveOption()
		if err != nil {
			return nil, ErrMissingFieldElement
		}
		v, err := opt.Ty.ToJSONValue()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{opt.Name: v}, nil

	case KindArray:
		out := make([]interface{}, len(t.Array.Elems))
		for i, e := range t.Array.Elems {
			v, err := e.ToJSONValue()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case KindFixedSizeArray:
		out := make([]interface{}, len(t.Fixed.Elems))
		for i, e := range t.Fixed.Elems {
			v, err := e.ToJSONValue()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case KindTuple:
		out := make([]interface{}, len(t.Tuple))
		for i, e := range t.Tuple {
			v, err := e.ToJSONValue()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case KindByteArray:
		return t.ByteArray, nil

	default:
		return nil, ErrTypeMismatch
	}
}

// FromJSONValue parses value (as produced by encoding/json.Unmarshal into
// interface{}) into t in place.
func (t *Ty) FromJSONValue(value interface{}) error {
	switch t.Kind {
	case KindPrimitive:
		return t.Primitive.FromJSONValue(value)

	case KindStruct:
		obj, ok := value.(map[string]interface{})
		if !ok {
			return ErrTypeMismatch
		}
		for i := range t.Struct.Children {
			m := &t.Struct.Children[i]
			if v, ok := obj[m.Name]; ok {
				if err := m.Ty.FromJSONValue(v); err != nil {
					return err
				}
			}
		}
		return nil

	case KindEnum:
		obj, ok := value.(map[string]interface{})
		if !ok || len(obj) != 1 {
			return ErrTypeMismatch
		}
		for name, v := range obj {
			if err := t.Enum.SetOption(name); err != nil {
				return ErrTypeMismatch
			}
			idx := int(*t.Enum.Option)
			if err := t.Enum.Options[idx].Ty.FromJSONValue(v); err != nil {
				return err
			}
		}
		return nil

	case KindArray:
		values, ok := value.([]interface{})
		if !ok {
			return ErrTypeMismatch
		}
		elems := make([]Ty, 0, len(values))
		for _, v := range values {
			elem := t.Array.Template.Clone()
			if err := elem.FromJSONValue(v); err != nil {
				return err
			}
			elems = append(elems, elem)
		}
		t.Array.Elems = elems
		return nil

	case KindFixedSizeArray:
		values, ok := value.([]interface{})
		if !ok {
			return ErrTypeMismatch
		}
		elems := make([]Ty, 0, len(values))
		for _, v := range values {
			elem := t.Fixed.Template.Clone()
			if err := elem.FromJSONValue(v); err != nil {
				return err
			}
			elems = append(elems, elem)
		}
		t.Fixed.Elems = elems
		return nil

	case KindTuple:
		values, ok := value.([]interface{})
		if !ok || len(values) != len(t.Tuple) {
			return ErrTypeMismatch
		}
		for i, v := range values {
			if err := t.Tuple[i].FromJSONValue(v); err != nil {
				return err
			}
		}
		return nil

	case KindByteArray:
		s, ok := value.(string)
		if !ok {
			return ErrTypeMismatch
		}
		t.ByteArray = s
		return nil

	default:
		return ErrTypeMismatch
	}
}
