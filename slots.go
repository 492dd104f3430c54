package anyopt

import (
	"sort"

	"github.com/unixpickle/anyvec"
)

// SlotName returns the name of a parameter's slot.
func SlotName(p *Param, slot string) string {
	return p.Name + "/" + slot
}

// Slots stores named vectors owned by an optimizer, such
// as moment estimates or accumulators.
//
// A slot is created once and then lives as long as the
// Slots object.
type Slots struct {
	vecs map[string]anyvec.Vector
}

// NewSlots creates an empty slot store.
func NewSlots() *Slots {
	return &Slots{vecs: map[string]anyvec.Vector{}}
}

// Zeros returns the slot with the given name, creating it
// filled with zeros if it does not exist yet.
//
// An existing slot must have the same length and creator
// as like.
func (s *Slots) Zeros(name string, like anyvec.Vector) (anyvec.Vector, error) {
	return s.create(name, like, func() anyvec.Vector {
		return like.Creator().MakeVector(like.Len())
	})
}

// Copy is like Zeros, but a new slot starts as a copy of
// like.
func (s *Slots) Copy(name string, like anyvec.Vector) (anyvec.Vector, error) {
	return s.create(name, like, like.Copy)
}

func (s *Slots) create(name string, like anyvec.Vector,
	init func() anyvec.Vector) (anyvec.Vector, error) {
	if vec, ok := s.vecs[name]; ok {
		if vec.Len() != like.Len() {
			return nil, shapeErr(name, like.Len(), vec.Len())
		} else if vec.Creator() != like.Creator() {
			return nil, shapeMsgErr(name, "slot creator does not match variable")
		}
		return vec, nil
	}
	vec := init()
	s.vecs[name] = vec
	return vec, nil
}

// Get returns an existing slot.
func (s *Slots) Get(name string) (anyvec.Vector, error) {
	vec, ok := s.vecs[name]
	if !ok {
		return nil, stateErr("get slot", "slot %q does not exist", name)
	}
	return vec, nil
}

// Has checks if a slot exists.
func (s *Slots) Has(name string) bool {
	_, ok := s.vecs[name]
	return ok
}

// Names returns the sorted slot names.
func (s *Slots) Names() []string {
	res := make([]string, 0, len(s.vecs))
	for name := range s.vecs {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// Len returns the number of slots.
func (s *Slots) Len() int {
	return len(s.vecs)
}
