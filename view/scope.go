package view

// scope is one frame of the scope stack. Frames are immutable; pushing
// returns a new frame linked to its parent, and popping is returning from
// the recursive call that pushed it.
type scope struct {
	dict   Map
	root   Map
	parent *scope
	depth  int
}

func newScope(root Map) *scope {
	return &scope{dict: root, root: root, depth: 1}
}

func (s *scope) push(dict Map) *scope {
	return &scope{dict: dict, root: s.root, parent: s, depth: s.depth + 1}
}

// lookup resolves index against the current scope, or the root dictionary
// when global is set.
func (s *scope) lookup(index string, global bool) Value {
	dict := s.dict
	if global {
		dict = s.root
	}

	v, _ := dict.Lookup(index)

	return v
}
