package anyopt

import "math"

const (
	lookaheadDefaultSteps    = 5
	lookaheadDefaultStepSize = 0.5
)

// Lookahead keeps a slow copy of every parameter, as
// described in https://arxiv.org/abs/1907.08610.
//
// The wrapped optimizer updates the (fast) parameters on
// every call.
// After every Steps-th call, the slow copy moves towards
// the fast parameters and the fast parameters are reset
// to it:
//
//	slow := slow + stepSize*(fast-slow)
//	fast := slow
//
// On the other calls, the slow copies are not written.
//
// Slow copies start out equal to the parameters at the
// time they are first prepared, which is before the first
// update that sees them.
// They are kept in Buffers, keyed by the position of each
// gradient in the update.
// See SlotLookahead for a version keyed by parameter name.
type Lookahead struct {
	Optimizer

	Steps    int
	StepSize float64

	buffers *positionalBuffers
	guard   updateGuard
}

// NewLookahead wraps an optimizer with lookahead.
func NewLookahead(inner Optimizer, steps int, stepSize float64) *Lookahead {
	return &Lookahead{Optimizer: inner, Steps: steps, StepSize: stepSize}
}

// LookaheadFromConfig wraps inner using the keys reported
// by Config.
func LookaheadFromConfig(inner Optimizer, c Config) (*Lookahead, error) {
	steps, stepSize, err := lookaheadParams(c)
	if err != nil {
		return nil, err
	}
	res := NewLookahead(inner, steps, stepSize)
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Unwrap returns the wrapped optimizer.
func (l *Lookahead) Unwrap() Optimizer {
	return l.Optimizer
}

// Buffers returns the slow copies.
func (l *Lookahead) Buffers() *Slots {
	return l.store().slots()
}

// Validate checks the hyperparameters.
func (l *Lookahead) Validate() error {
	return validateLookahead(l.Steps, l.StepSize)
}

// Prepare prepares the wrapped optimizer and creates the
// slow copies.
func (l *Lookahead) Prepare(params []*Param) error {
	if err := l.Optimizer.Prepare(params); err != nil {
		return err
	}
	_, err := makeBuffers(l.store(), params, true)
	return err
}

// Update runs the wrapped update, then synchronizes the
// slow and fast weights if a period has ended.
func (l *Lookahead) Update(grads []*Gradient, commit CommitFunc) error {
	if err := l.guard.enter("Lookahead update"); err != nil {
		return err
	}
	defer l.guard.exit()
	if err := l.Validate(); err != nil {
		return err
	}
	return lookahead(l.Optimizer, l.store(), l.Steps, l.StepSize, grads, commit)
}

// Config returns the wrapped optimizer's config plus the
// lookahead keys.
func (l *Lookahead) Config() (Config, error) {
	return lookaheadConfig(l.Optimizer, l.Steps, l.StepSize)
}

func (l *Lookahead) store() *positionalBuffers {
	if l.buffers == nil {
		l.buffers = newPositionalBuffers("slow_var")
	}
	return l.buffers
}

// SlotLookahead behaves like Lookahead, but keeps the
// slow copies as slots of the wrapped optimizer, named
// after each parameter with the suffix "/slow_var".
type SlotLookahead struct {
	Optimizer

	Steps    int
	StepSize float64

	guard updateGuard
}

// NewSlotLookahead wraps an optimizer with slot-based
// lookahead.
func NewSlotLookahead(inner Optimizer, steps int, stepSize float64) *SlotLookahead {
	return &SlotLookahead{Optimizer: inner, Steps: steps, StepSize: stepSize}
}

// SlotLookaheadFromConfig wraps inner using the keys
// reported by Config.
func SlotLookaheadFromConfig(inner Optimizer, c Config) (*SlotLookahead, error) {
	steps, stepSize, err := lookaheadParams(c)
	if err != nil {
		return nil, err
	}
	res := NewSlotLookahead(inner, steps, stepSize)
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Unwrap returns the wrapped optimizer.
func (s *SlotLookahead) Unwrap() Optimizer {
	return s.Optimizer
}

// Validate checks the hyperparameters.
func (s *SlotLookahead) Validate() error {
	return validateLookahead(s.Steps, s.StepSize)
}

// Prepare prepares the wrapped optimizer and creates the
// slow copies.
func (s *SlotLookahead) Prepare(params []*Param) error {
	if err := s.Optimizer.Prepare(params); err != nil {
		return err
	}
	_, err := makeBuffers(s.store(), params, true)
	return err
}

// Update is like Lookahead.Update.
func (s *SlotLookahead) Update(grads []*Gradient, commit CommitFunc) error {
	if err := s.guard.enter("SlotLookahead update"); err != nil {
		return err
	}
	defer s.guard.exit()
	if err := s.Validate(); err != nil {
		return err
	}
	return lookahead(s.Optimizer, s.store(), s.Steps, s.StepSize, grads, commit)
}

// Config returns the wrapped optimizer's config plus the
// lookahead keys.
func (s *SlotLookahead) Config() (Config, error) {
	return lookaheadConfig(s.Optimizer, s.Steps, s.StepSize)
}

func (s *SlotLookahead) store() *slotBuffers {
	return &slotBuffers{slot: "slow_var", owner: s.Optimizer}
}

func lookaheadParams(c Config) (steps int, stepSize float64, err error) {
	if steps, err = c.Int("steps_per_slow_update", lookaheadDefaultSteps); err != nil {
		return
	}
	stepSize, err = c.Float("slow_step_size", lookaheadDefaultStepSize)
	return
}

func validateLookahead(steps int, stepSize float64) error {
	if steps <= 0 {
		return configErr("steps_per_slow_update", steps, "must be positive")
	}
	if !(stepSize >= 0 && stepSize <= 1) || math.IsNaN(stepSize) {
		return configErr("slow_step_size", stepSize, "must be in [0, 1]")
	}
	return nil
}

func lookaheadConfig(inner Optimizer, steps int, stepSize float64) (Config, error) {
	c, err := inner.Config()
	if err != nil {
		return nil, err
	}
	return MergeConfig(c, Config{
		"steps_per_slow_update": steps,
		"slow_step_size":        stepSize,
	})
}

func lookahead(inner Optimizer, store bufferStore, steps int, stepSize float64,
	grads []*Gradient, commit CommitFunc) error {
	if err := checkGradients(grads); err != nil {
		return err
	}
	params := Params(grads)
	slows, err := makeBuffers(store, params, true)
	if err != nil {
		return err
	}

	iter := inner.Iterations()
	if err := inner.Update(grads, commit); err != nil {
		return err
	}
	if (iter+1)%steps != 0 {
		return nil
	}

	for i, p := range params {
		slow, fast := slows[i], p.Vector()
		newSlow := fast.Copy()
		newSlow.Sub(slow)
		newSlow.Scale(newSlow.Creator().MakeNumeric(stepSize))
		newSlow.Add(slow)
		commit(store.key(p, i), slow, newSlow)
		commit(p.Name, fast, slow.Copy())
	}
	return nil
}
