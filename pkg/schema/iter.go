package schema

// Walk performs a depth-first traversal of t (and, for Struct/Enum, its
// children), invoking fn for every node. Tuple, array and byte-array
// nodes are visited but not descended into.
func (t *Ty) Walk(fn func(path string, t *Ty)) {
	t.walk("", fn)
}

func (t *Ty) walk(path string, fn func(path string, t *Ty)) {
	fn(path, t)
	switch t.Kind {
	case KindStruct:
		for i := range t.Struct.Children {
			child := &t.Struct.Children[i]
			childPath := child.Name
			if path != "" {
				childPath = path + "." + child.Name
			}
			child.Ty.walk(childPath, fn)
		}
	case KindEnum:
		for i := range t.Enum.Options {
			opt := &t.Enum.Options[i]
			optPath := path + "." + opt.Name
			opt.Ty.walk(optPath, fn)
		}
	}
}
