package anyopt

import (
	"sync"

	"github.com/unixpickle/anyvec"
)

// A CommitFunc writes a new value into a variable.
//
// The name identifies the variable: a Param's name for
// parameters, or a slot name for optimizer state.
// The dst vector is the variable's storage and still
// holds the old value when the function is called.
// The val vector belongs to the caller of the CommitFunc
// and is not used after the call returns.
//
// Every write an optimizer makes during an update goes
// through the CommitFunc it was given.
// Layers which modify writes wrap the CommitFunc they
// receive and hand the wrapped function to the optimizer
// they contain, so the innermost modification runs first
// and its result flows outward to the final commit.
type CommitFunc func(name string, dst, val anyvec.Vector)

// Assign is the CommitFunc which copies val into dst.
func Assign(name string, dst, val anyvec.Vector) {
	dst.Set(val)
}

// A RewriteFunc computes the value to commit to a
// parameter given its old value and the proposed value.
//
// It may return val itself, or a new vector.
type RewriteFunc func(p *Param, old, val anyvec.Vector) anyvec.Vector

// Intercept wraps commit so that writes to the given
// parameters are passed through f before they continue
// down the chain.
// A write targets a parameter only if dst is that
// parameter's vector, so a slot whose name happens to
// equal a parameter name is still forwarded unchanged.
func Intercept(commit CommitFunc, params []*Param, f RewriteFunc) CommitFunc {
	byName := make(map[string]*Param, len(params))
	for _, p := range params {
		byName[p.Name] = p
	}
	return func(name string, dst, val anyvec.Vector) {
		if p, ok := byName[name]; ok && p.Vector() == dst {
			val = f(p, dst, val)
		}
		commit(name, dst, val)
	}
}

// Gate wraps commit so that writes only happen when cond
// is true.
// When cond is false, every variable keeps its old value.
func Gate(commit CommitFunc, cond bool) CommitFunc {
	return func(name string, dst, val anyvec.Vector) {
		if cond {
			commit(name, dst, val)
		}
	}
}

// updateGuard rejects overlapping updates on a single
// optimizer instance.
type updateGuard struct {
	lock sync.Mutex
}

func (u *updateGuard) enter(op string) error {
	if !u.lock.TryLock() {
		return stateErr(op, "update already in progress")
	}
	return nil
}

func (u *updateGuard) exit() {
	u.lock.Unlock()
}
