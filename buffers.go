package anyopt

import (
	"fmt"

	"github.com/dlclark/regexp2"
	"github.com/unixpickle/anyvec"
)

// A bufferStore decides where an extension keeps its
// per-parameter vectors.
type bufferStore interface {
	// key returns the name of the buffer for the i-th
	// parameter of an update.
	key(p *Param, i int) string

	// slots returns the store holding the buffers.
	slots() *Slots
}

// positionalBuffers keeps buffers in a store owned by the
// extension, keyed by the position of the parameter in
// the update.
type positionalBuffers struct {
	prefix string
	store  *Slots
}

func newPositionalBuffers(prefix string) *positionalBuffers {
	return &positionalBuffers{prefix: prefix, store: NewSlots()}
}

func (p *positionalBuffers) key(_ *Param, i int) string {
	return fmt.Sprintf("%s_%d", p.prefix, i)
}

func (p *positionalBuffers) slots() *Slots {
	return p.store
}

// slotBuffers keeps buffers as named slots of the base
// optimizer, keyed by parameter name.
type slotBuffers struct {
	slot  string
	owner Optimizer
}

func (s *slotBuffers) key(p *Param, _ int) string {
	return SlotName(p, s.slot)
}

func (s *slotBuffers) slots() *Slots {
	return s.owner.Slots()
}

// makeBuffers creates (or checks) the buffer of every
// parameter and returns them in order.
func makeBuffers(b bufferStore, params []*Param, copyParams bool) ([]anyvec.Vector, error) {
	slots := b.slots()
	res := make([]anyvec.Vector, len(params))
	for i, p := range params {
		var err error
		if copyParams {
			res[i], err = slots.Copy(b.key(p, i), p.Vector())
		} else {
			res[i], err = slots.Zeros(b.key(p, i), p.Vector())
		}
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// compilePatterns compiles exclusion patterns.
// Patterns use the same syntax as Python's re module.
func compilePatterns(key string, exprs []string) ([]*regexp2.Regexp, error) {
	res := make([]*regexp2.Regexp, len(exprs))
	for i, expr := range exprs {
		re, err := regexp2.Compile(expr, regexp2.None)
		if err != nil {
			return nil, configErr(key, expr, "bad pattern: %v", err)
		}
		res[i] = re
	}
	return res, nil
}

// A patternCache keeps the compiled form of a list of
// exclusion patterns until the list changes.
type patternCache struct {
	exprs    []string
	compiled []*regexp2.Regexp
}

func (p *patternCache) get(key string, exprs []string) ([]*regexp2.Regexp, error) {
	if p.compiled != nil && stringsEqual(p.exprs, exprs) {
		return p.compiled, nil
	}
	res, err := compilePatterns(key, exprs)
	if err != nil {
		return nil, err
	}
	p.exprs = append([]string{}, exprs...)
	p.compiled = res
	return res, nil
}

// excludedParams finds the parameters whose names match
// any of the patterns anywhere in the name.
func excludedParams(key string, patterns []*regexp2.Regexp,
	params []*Param) (map[string]bool, error) {
	res := map[string]bool{}
	for _, p := range params {
		for _, re := range patterns {
			match, err := re.MatchString(p.Name)
			if err != nil {
				return nil, configErr(key, re.String(), "match %q: %v", p.Name, err)
			}
			if match {
				res[p.Name] = true
				break
			}
		}
	}
	return res, nil
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i, x := range a {
		if b[i] != x {
			return false
		}
	}
	return true
}
