package compiler

// scopeTable tracks lexical scopes during compilation. Every variable
// binding owns an 8-byte cell in the module data region; cells are
// handed out sequentially and never reused, and the high-water mark
// becomes the module's data size.
//
// Lookup deliberately consults only the innermost scope. Outer bindings
// are invisible, which keeps resolution trivial and rules out implicit
// capture.
type scopeTable struct {
	scopes   []map[string]uint32
	nextAddr uint32
}

func newScopeTable() *scopeTable {
	return &scopeTable{}
}

// push enters a new innermost scope.
func (s *scopeTable) push() {
	s.scopes = append(s.scopes, make(map[string]uint32))
}

// pop leaves the innermost scope. Cells owned by the popped scope stay
// allocated; addresses are never reissued.
func (s *scopeTable) pop() {
	s.scopes = s.scopes[:len(s.scopes)-1]
}

// define binds name to a fresh cell in the innermost scope and returns
// its data region address. Redefining a name shadows the old cell.
func (s *scopeTable) define(name string) uint32 {
	addr := s.nextAddr
	s.nextAddr += 8
	s.scopes[len(s.scopes)-1][name] = addr
	return addr
}

// reserve allocates count contiguous cells without binding a name, for
// array storage, and returns the address of the first cell.
func (s *scopeTable) reserve(count uint32) uint32 {
	addr := s.nextAddr
	s.nextAddr += count * 8
	return addr
}

// lookup resolves name in the innermost scope only.
func (s *scopeTable) lookup(name string) (uint32, bool) {
	if len(s.scopes) == 0 {
		return 0, false
	}
	addr, ok := s.scopes[len(s.scopes)-1][name]
	return addr, ok
}

// dataSize reports the total data region size in bytes.
func (s *scopeTable) dataSize() uint32 {
	return s.nextAddr
}
