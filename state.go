package anyopt

import (
	"fmt"

	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvecsave"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
)

// MarshalState encodes the iteration count and every slot
// and buffer of an optimizer.
//
// State is created for params first, so the result can be
// restored with UnmarshalState on a fresh optimizer built
// from the same config.
// Together with the config, this is enough to resume
// training exactly where it left off.
func MarshalState(o Optimizer, params []*Param) ([]byte, error) {
	if err := o.Prepare(params); err != nil {
		return nil, err
	}
	slice := []serializer.Serializer{serializer.Int(o.Iterations())}
	for _, vec := range stateVectors(o) {
		slice = append(slice, &anyvecsave.S{Vector: vec})
	}
	return serializer.SerializeSlice(slice)
}

// UnmarshalState restores state saved by MarshalState.
func UnmarshalState(o Optimizer, params []*Param, data []byte) error {
	if err := o.Prepare(params); err != nil {
		return err
	}
	slice, err := serializer.DeserializeSlice(data)
	if err != nil {
		return essentials.AddCtx("unmarshal state", err)
	}
	vecs := stateVectors(o)
	if len(slice) != len(vecs)+1 {
		return stateErr("unmarshal state", "expected %d vectors but got %d",
			len(vecs), len(slice)-1)
	}
	iter, err := stateInt(slice[0])
	if err != nil {
		return err
	}
	for i, vec := range vecs {
		saved, ok := slice[i+1].(*anyvecsave.S)
		if !ok {
			return stateErr("unmarshal state", "entry %d is not a vector: %T", i+1, slice[i+1])
		}
		if saved.Vector.Len() != vec.Len() {
			return shapeErr(fmt.Sprintf("state entry %d", i+1), vec.Len(), saved.Vector.Len())
		}
		if saved.Vector.Creator() != vec.Creator() {
			return shapeMsgErr(fmt.Sprintf("state entry %d", i+1), "bad vector creator")
		}
	}
	for i, vec := range vecs {
		vec.Set(slice[i+1].(*anyvecsave.S).Vector)
	}
	o.SetIterations(iter)
	return nil
}

// stateVectors lists the buffers of every layer, from the
// outside in, followed by the base optimizer's slots.
// Each group is sorted by name.
func stateVectors(o Optimizer) []anyvec.Vector {
	var res []anyvec.Vector
	add := func(s *Slots) {
		for _, name := range s.Names() {
			vec, _ := s.Get(name)
			res = append(res, vec)
		}
	}
	layers := Layers(o)
	for _, layer := range layers {
		if b, ok := layer.(BufferOwner); ok {
			add(b.Buffers())
		}
	}
	add(layers[len(layers)-1].Slots())
	return res
}

func stateInt(x interface{}) (int, error) {
	switch x := x.(type) {
	case serializer.Int:
		return int(x), nil
	case *serializer.Int:
		return int(*x), nil
	default:
		return 0, stateErr("unmarshal state", "iteration count has type %T", x)
	}
}
