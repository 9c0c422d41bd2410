package compiler

// LocalScope holds the variables declared in one block.
type LocalScope struct {
	Members     []*LocalVariable
	SizeInBytes int
}

// ScopeStack is the stack of open local scopes, innermost last.
type ScopeStack struct {
	scopes []*LocalScope
}

// Push opens a new innermost scope and returns it.
func (s *ScopeStack) Push() *LocalScope {
	sc := &LocalScope{}
	s.scopes = append(s.scopes, sc)
	return sc
}

// Pop closes the innermost scope. Popping an empty stack is an internal
// error.
func (s *ScopeStack) Pop() (*LocalScope, error) {
	if len(s.scopes) == 0 {
		return nil, internalError("scope stack underflow")
	}
	sc := s.scopes[len(s.scopes)-1]
	s.scopes = s.scopes[:len(s.scopes)-1]
	return sc, nil
}

// Current returns the innermost scope, or nil at global level.
func (s *ScopeStack) Current() *LocalScope {
	if len(s.scopes) == 0 {
		return nil
	}
	return s.scopes[len(s.scopes)-1]
}

func (s *ScopeStack) Depth() int { return len(s.scopes) }

// Above returns the scopes opened after the first depth scopes, outermost
// first.
func (s *ScopeStack) Above(depth int) []*LocalScope {
	if depth >= len(s.scopes) {
		return nil
	}
	return s.scopes[depth:]
}

// All flattens every open scope into one list, outermost first.
func (s *ScopeStack) All() []*LocalVariable {
	var out []*LocalVariable
	for _, sc := range s.scopes {
		out = append(out, sc.Members...)
	}
	return out
}

// Reset drops every open scope.
func (s *ScopeStack) Reset() {
	s.scopes = nil
}

// CompilerState is the mutable state shared by the declaration and
// statement parsers of one unit.
type CompilerState struct {
	NextTokenModifiers Modifiers
	Scopes             ScopeStack
}

// IsModifierPresent reports whether sym is among the pending modifiers.
func (s *CompilerState) IsModifierPresent(sym PredefinedSymbol) bool {
	return s.NextTokenModifiers.Has(sym)
}

// TakeModifiers returns the pending modifiers and clears them.
func (s *CompilerState) TakeModifiers() Modifiers {
	m := s.NextTokenModifiers.Clone()
	s.NextTokenModifiers = Modifiers{}
	return m
}
