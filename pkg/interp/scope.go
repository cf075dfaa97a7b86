package interp

import "strings"

// Scope is a chain of variable bindings. Lookups walk up through the
// parent; new bindings always land in the scope written to. Only one
// non-global scope exists at a time (a function call's local scope).
type Scope struct {
	vars   map[string]*Variable
	parent *Scope
}

// NewScope creates a scope chained to parent (nil for the global one).
func NewScope(parent *Scope) *Scope {
	return &Scope{vars: make(map[string]*Variable), parent: parent}
}

// cleanName strips the % sigil callers often leave on.
func cleanName(name string) string {
	return strings.TrimPrefix(name, "%")
}

// Lookup finds a variable in this scope or any ancestor.
func (s *Scope) Lookup(name string) *Variable {
	name = cleanName(name)
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v
		}
	}
	return nil
}

// Get returns the string form of a variable, or "" when absent or not
// string-kind.
func (s *Scope) Get(name string) (string, bool) {
	v := s.Lookup(name)
	if v == nil || v.Val.Kind != KindString {
		return "", false
	}
	return v.Val.Str, true
}

// Set binds name to val. An existing binding anywhere in the chain is
// updated in place; const bindings refuse the update and report false.
func (s *Scope) Set(name string, val Value, isConst bool) bool {
	name = cleanName(name)
	if v := s.Lookup(name); v != nil {
		if v.Const {
			return false
		}
		v.Val = val
		return true
	}
	s.vars[name] = &Variable{Name: name, Val: val, Const: isConst}
	return true
}

// SetLocal binds name in this scope specifically, shadowing any parent
// binding. Used for the __return__ sentinel so a function's return never
// leaks into the global scope.
func (s *Scope) SetLocal(name string, val Value) {
	name = cleanName(name)
	if v, ok := s.vars[name]; ok {
		if v.Const {
			return
		}
		v.Val = val
		return
	}
	s.vars[name] = &Variable{Name: name, Val: val}
}

// Delete removes a binding from this scope only.
func (s *Scope) Delete(name string) {
	delete(s.vars, cleanName(name))
}

// Each visits bindings local to this scope.
func (s *Scope) Each(fn func(*Variable)) {
	for _, v := range s.vars {
		fn(v)
	}
}
