package anyopt

import "math"

const momentumDefaultLearningRate = 0.01

// Momentum implements SGD with momentum.
//
// The velocity v and the parameter p are updated as
//
//	v := momentum*v + grad
//	p := p - lr*v
//
// For sparse gradients, all of v decays and the gradient
// is only added to the indexed rows.
type Momentum struct {
	// Name is reported in the config.
	// If it is empty, "Momentum" is used.
	Name string

	LR       float64
	Momentum float64

	baseState
}

// MomentumFromConfig creates a Momentum optimizer from
// the keys reported by Config.
func MomentumFromConfig(c Config) (*Momentum, error) {
	res := &Momentum{}
	var err error
	if res.Name, err = c.String("name", "Momentum"); err != nil {
		return nil, err
	}
	if res.LR, err = c.Float("learning_rate", momentumDefaultLearningRate); err != nil {
		return nil, err
	}
	if res.Momentum, err = c.Float("momentum", 0); err != nil {
		return nil, err
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Validate checks the hyperparameters.
func (m *Momentum) Validate() error {
	if m.LR < 0 || math.IsNaN(m.LR) {
		return configErr("learning_rate", m.LR, "must be non-negative")
	}
	if !(m.Momentum >= 0 && m.Momentum < 1) {
		return configErr("momentum", m.Momentum, "must be in [0, 1)")
	}
	return nil
}

// Prepare creates the velocity slots.
func (m *Momentum) Prepare(params []*Param) error {
	return m.prepare(params, "momentum")
}

// Update performs one step.
func (m *Momentum) Update(grads []*Gradient, commit CommitFunc) error {
	if err := m.begin("Momentum update", grads, m.Validate, "momentum"); err != nil {
		return err
	}
	defer m.guard.exit()

	for _, g := range grads {
		p := g.Param
		name := SlotName(p, "momentum")
		velocity, _ := m.slots.Get(name)
		c := velocity.Creator()

		newVelocity := velocity.Copy()
		newVelocity.Scale(c.MakeNumeric(m.Momentum))
		if g.Sparse() {
			scatterAdd(newVelocity, g.Indices, g.Vector)
		} else {
			newVelocity.Add(g.Vector)
		}
		commit(name, velocity, newVelocity)

		step := velocity.Copy()
		step.Scale(c.MakeNumeric(-m.LR))
		newParam := p.Vector().Copy()
		newParam.Add(step)
		commit(p.Name, p.Vector(), newParam)
	}

	m.iterations++
	return nil
}

// LearningRate returns the step size.
func (m *Momentum) LearningRate() float64 {
	return m.LR
}

// Config returns the hyperparameters.
func (m *Momentum) Config() (Config, error) {
	name := m.Name
	if name == "" {
		name = "Momentum"
	}
	return Config{
		"name":          name,
		"learning_rate": m.LR,
		"momentum":      m.Momentum,
	}, nil
}
