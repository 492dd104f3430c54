package anyopt

// baseState is the bookkeeping shared by the base
// optimizers: named slots, the update counter, and the
// re-entrancy guard.
type baseState struct {
	slots      *Slots
	iterations int
	guard      updateGuard
}

// Iterations returns the number of completed updates.
func (b *baseState) Iterations() int {
	return b.iterations
}

// SetIterations sets the update counter.
func (b *baseState) SetIterations(n int) {
	b.iterations = n
}

// Slots returns the optimizer's per-parameter state.
func (b *baseState) Slots() *Slots {
	if b.slots == nil {
		b.slots = NewSlots()
	}
	return b.slots
}

func (b *baseState) prepare(params []*Param, slotNames ...string) error {
	slots := b.Slots()
	for _, p := range params {
		for _, name := range slotNames {
			if _, err := slots.Zeros(SlotName(p, name), p.Vector()); err != nil {
				return err
			}
		}
	}
	return nil
}

// begin enters the guard and checks everything that can
// fail before the first write.
// If it succeeds, the caller must call b.guard.exit().
func (b *baseState) begin(op string, grads []*Gradient, validate func() error,
	slotNames ...string) error {
	if err := b.guard.enter(op); err != nil {
		return err
	}
	err := validate()
	if err == nil {
		err = checkGradients(grads)
	}
	if err == nil {
		err = b.prepare(Params(grads), slotNames...)
	}
	if err != nil {
		b.guard.exit()
		return err
	}
	return nil
}
