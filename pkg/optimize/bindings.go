package optimize

import (
	"fmt"
)

// Bindings is the scoped name environment threaded through one walk.
// Names are bound and unbound in strict LIFO order; a name bound as
// undefined hides outer bindings of the same name and evaluates to a
// residual reference.
type Bindings struct {
	entries []binding
}

type binding struct {
	name  string
	value Result
	undef bool
}

func NewBindings() *Bindings {
	return &Bindings{}
}

// Scope undoes the bindings introduced by one Let call.
type Scope struct {
	b     *Bindings
	depth int
	n     int
}

// Let binds name to value until the returned scope is released.
func (b *Bindings) Let(name string, value Result) Scope {
	b.entries = append(b.entries, binding{name: name, value: value})
	return Scope{b: b, depth: len(b.entries) - 1, n: 1}
}

// LetUndef binds name to a runtime-dependent value.
func (b *Bindings) LetUndef(name string) Scope {
	b.entries = append(b.entries, binding{name: name, undef: true})
	return Scope{b: b, depth: len(b.entries) - 1, n: 1}
}

// LetAll binds several names at once; they are released together.
func (b *Bindings) LetAll(names []string, vals []Result) Scope {
	if len(names) != len(vals) {
		panic(fmt.Sprintf("binding %d names to %d values", len(names), len(vals)))
	}
	depth := len(b.entries)
	for i, name := range names {
		if name == "" {
			continue
		}
		b.entries = append(b.entries, binding{name: name, value: vals[i]})
	}
	return Scope{b: b, depth: depth, n: len(b.entries) - depth}
}

// Release pops the scope's bindings. Releasing out of order panics.
func (s Scope) Release() {
	if len(s.b.entries) != s.depth+s.n {
		panic(fmt.Sprintf("unbalanced bindings: releasing %d at depth %d, have %d", s.n, s.depth, len(s.b.entries)))
	}
	s.b.UnletN(s.n)
}

// Unlet removes the innermost binding, which must be for name.
func (b *Bindings) Unlet(name string) {
	if len(b.entries) == 0 {
		panic(fmt.Sprintf("unlet %s: no bindings", name))
	}
	top := b.entries[len(b.entries)-1]
	if top.name != name {
		panic(fmt.Sprintf("unlet %s: innermost binding is %s", name, top.name))
	}
	b.entries = b.entries[:len(b.entries)-1]
}

// UnletN removes the n innermost bindings.
func (b *Bindings) UnletN(n int) {
	if n > len(b.entries) {
		panic(fmt.Sprintf("unlet %d bindings: only %d bound", n, len(b.entries)))
	}
	clear(b.entries[len(b.entries)-n:])
	b.entries = b.entries[:len(b.entries)-n]
}

// Lookup returns the innermost binding of name. The boolean is false when
// the name is bound as undefined. An unbound name is a malformed tree and
// panics.
func (b *Bindings) Lookup(name string) (Result, bool) {
	for i := len(b.entries) - 1; i >= 0; i-- {
		e := b.entries[i]
		if e.name == name {
			return e.value, !e.undef
		}
	}
	panic(fmt.Sprintf("name not bound: %s", name))
}

// Depth is the number of live bindings.
func (b *Bindings) Depth() int {
	return len(b.entries)
}
