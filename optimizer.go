// Package anyopt provides Adam-style optimizers and a set
// of extensions which can be stacked on top of any of them
// without modifying the optimizer being extended.
//
// Optimizers never write to variables directly.
// Instead, every write goes through a CommitFunc, which
// extensions wrap in order to rewrite or suppress the
// values their inner optimizers produce.
package anyopt

import (
	"math"

	"github.com/unixpickle/anyvec"
)

// DefaultEpsilon is the small constant used when an
// epsilon is left unset, and as the threshold below which
// norms are treated as zero.
const DefaultEpsilon = 1e-7

// An Optimizer applies gradient updates to parameters.
//
// An Optimizer is not safe for concurrent use.
// Overlapping calls to Update on the same instance fail
// with a *StateError.
type Optimizer interface {
	// Prepare creates any state needed for the given
	// parameters.
	// It is called automatically by Update, and may be
	// called ahead of time, e.g. before restoring a
	// checkpoint.
	// State for a parameter is only created once.
	Prepare(params []*Param) error

	// Update performs one optimization step.
	// Every write, to parameters and to optimizer state,
	// goes through commit.
	//
	// Gradients are validated before anything is written.
	Update(grads []*Gradient, commit CommitFunc) error

	// Iterations returns the number of completed updates.
	Iterations() int

	// SetIterations overwrites the update counter.
	SetIterations(n int)

	// LearningRate returns the base learning rate.
	LearningRate() float64

	// Slots returns the named per-parameter state owned by
	// the base optimizer.
	Slots() *Slots

	// Config returns the hyperparameters needed to rebuild
	// the optimizer.
	Config() (Config, error)
}

// A Wrapper is an Optimizer which extends another one.
type Wrapper interface {
	Optimizer
	Unwrap() Optimizer
}

// A BufferOwner is an Optimizer with state of its own
// besides the slots of the base optimizer.
type BufferOwner interface {
	Buffers() *Slots
}

// Step runs one update and commits the results directly
// to the variables.
func Step(o Optimizer, grads []*Gradient) error {
	return o.Update(grads, Assign)
}

// Layers returns o followed by every optimizer it wraps,
// from the outside in.
func Layers(o Optimizer) []Optimizer {
	var res []Optimizer
	for o != nil {
		res = append(res, o)
		if w, ok := o.(Wrapper); ok {
			o = w.Unwrap()
		} else {
			o = nil
		}
	}
	return res
}

func numericFloat(n anyvec.Numeric) float64 {
	switch n := n.(type) {
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		panic("unsupported numeric type")
	}
}

func norm(v anyvec.Vector) float64 {
	return math.Sqrt(numericFloat(v.Dot(v)))
}
