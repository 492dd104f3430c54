package anyopt

import "github.com/unixpickle/anyvec"

// GradientAccumulation averages gradients over Steps
// consecutive updates before applying them.
//
// Every call to Update counts as an iteration, but only
// every Steps-th call changes the parameters or the state
// of the wrapped optimizer, using the mean of the
// gradients seen since the last real update.
// On the other calls, every write of the wrapped
// optimizer is dropped.
//
// Accumulators are kept in Buffers, keyed by the position
// of each gradient in the update, so the gradient list
// must keep the same order across calls.
// See SlotGradientAccumulation for a version keyed by
// parameter name.
type GradientAccumulation struct {
	Optimizer

	Steps int

	buffers *positionalBuffers
	guard   updateGuard
}

// NewGradientAccumulation wraps an optimizer with
// gradient accumulation.
func NewGradientAccumulation(inner Optimizer, steps int) *GradientAccumulation {
	return &GradientAccumulation{Optimizer: inner, Steps: steps}
}

// GradientAccumulationFromConfig wraps inner using the keys
// reported by Config.
func GradientAccumulationFromConfig(inner Optimizer, c Config) (*GradientAccumulation, error) {
	steps, err := c.RequireInt("steps_per_update")
	if err != nil {
		return nil, err
	}
	res := NewGradientAccumulation(inner, steps)
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Unwrap returns the wrapped optimizer.
func (g *GradientAccumulation) Unwrap() Optimizer {
	return g.Optimizer
}

// Buffers returns the accumulators.
func (g *GradientAccumulation) Buffers() *Slots {
	return g.store().slots()
}

// Validate checks the hyperparameters.
func (g *GradientAccumulation) Validate() error {
	return validateAccumSteps(g.Steps)
}

// Prepare prepares the wrapped optimizer and creates the
// accumulators.
func (g *GradientAccumulation) Prepare(params []*Param) error {
	if err := g.Optimizer.Prepare(params); err != nil {
		return err
	}
	_, err := makeBuffers(g.store(), params, false)
	return err
}

// Update accumulates the gradients and runs the wrapped
// update, which only takes effect on every Steps-th call.
func (g *GradientAccumulation) Update(grads []*Gradient, commit CommitFunc) error {
	if err := g.guard.enter("GradientAccumulation update"); err != nil {
		return err
	}
	defer g.guard.exit()
	if err := g.Validate(); err != nil {
		return err
	}
	return accumulate(g.Optimizer, g.store(), g.Steps, grads, commit)
}

// Config returns the wrapped optimizer's config plus the
// accumulation keys.
func (g *GradientAccumulation) Config() (Config, error) {
	return accumConfig(g.Optimizer, g.Steps)
}

func (g *GradientAccumulation) store() *positionalBuffers {
	if g.buffers == nil {
		g.buffers = newPositionalBuffers("accum_grad")
	}
	return g.buffers
}

// SlotGradientAccumulation behaves like
// GradientAccumulation, but keeps the accumulators as
// slots of the wrapped optimizer, named after each
// parameter with the suffix "/ag".
type SlotGradientAccumulation struct {
	Optimizer

	Steps int

	guard updateGuard
}

// NewSlotGradientAccumulation wraps an optimizer with
// slot-based gradient accumulation.
func NewSlotGradientAccumulation(inner Optimizer, steps int) *SlotGradientAccumulation {
	return &SlotGradientAccumulation{Optimizer: inner, Steps: steps}
}

// SlotGradientAccumulationFromConfig wraps inner using the
// keys reported by Config.
func SlotGradientAccumulationFromConfig(inner Optimizer,
	c Config) (*SlotGradientAccumulation, error) {
	steps, err := c.RequireInt("steps_per_update")
	if err != nil {
		return nil, err
	}
	res := NewSlotGradientAccumulation(inner, steps)
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Unwrap returns the wrapped optimizer.
func (s *SlotGradientAccumulation) Unwrap() Optimizer {
	return s.Optimizer
}

// Validate checks the hyperparameters.
func (s *SlotGradientAccumulation) Validate() error {
	return validateAccumSteps(s.Steps)
}

// Prepare prepares the wrapped optimizer and creates the
// accumulator slots.
func (s *SlotGradientAccumulation) Prepare(params []*Param) error {
	if err := s.Optimizer.Prepare(params); err != nil {
		return err
	}
	_, err := makeBuffers(s.store(), params, false)
	return err
}

// Update is like GradientAccumulation.Update.
func (s *SlotGradientAccumulation) Update(grads []*Gradient, commit CommitFunc) error {
	if err := s.guard.enter("SlotGradientAccumulation update"); err != nil {
		return err
	}
	defer s.guard.exit()
	if err := s.Validate(); err != nil {
		return err
	}
	return accumulate(s.Optimizer, s.store(), s.Steps, grads, commit)
}

// Config returns the wrapped optimizer's config plus the
// accumulation keys.
func (s *SlotGradientAccumulation) Config() (Config, error) {
	return accumConfig(s.Optimizer, s.Steps)
}

func (s *SlotGradientAccumulation) store() *slotBuffers {
	return &slotBuffers{slot: "ag", owner: s.Optimizer}
}

func validateAccumSteps(steps int) error {
	if steps <= 0 {
		return configErr("steps_per_update", steps, "must be positive")
	}
	return nil
}

func accumConfig(inner Optimizer, steps int) (Config, error) {
	c, err := inner.Config()
	if err != nil {
		return nil, err
	}
	return MergeConfig(c, Config{"steps_per_update": steps})
}

func accumulate(inner Optimizer, store bufferStore, steps int, grads []*Gradient,
	commit CommitFunc) error {
	if err := checkGradients(grads); err != nil {
		return err
	}
	bufs, err := makeBuffers(store, Params(grads), false)
	if err != nil {
		return err
	}

	iter := inner.Iterations()
	reset := iter%steps == 0
	apply := (iter+1)%steps == 0

	scale := 1 / float64(steps)
	sums := make([]anyvec.Vector, len(grads))
	means := make([]*Gradient, len(grads))
	for i, g := range grads {
		sum := g.Dense()
		if !reset {
			sum.Add(bufs[i])
		}
		sums[i] = sum

		mean := sum.Copy()
		mean.Scale(mean.Creator().MakeNumeric(scale))
		means[i] = &Gradient{Param: g.Param, Vector: mean}
	}
	if err := inner.Update(means, Gate(commit, apply)); err != nil {
		return err
	}
	for i, g := range grads {
		commit(store.key(g.Param, i), bufs[i], sums[i])
	}
	return nil
}
