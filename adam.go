package anyopt

import (
	"math"

	"github.com/unixpickle/anyvec"
)

const (
	adamDefaultLearningRate = 0.001
	adamDefaultBeta1        = 0.9
	adamDefaultBeta2        = 0.999
	adamDefaultEpsilon      = 1e-6
)

// Adam implements adaptive moment estimation, as described
// in https://arxiv.org/abs/1412.6980, without the bias
// correction step.
//
// The update for a parameter p with gradient g is
//
//	m := beta1*m + (1-beta1)*g
//	v := beta2*v + (1-beta2)*g^2
//	p := p - lr*m/(sqrt(v)+epsilon)
//
// Unlike textbook Adam, m and v are not divided by
// (1-beta1^t) and (1-beta2^t) before use.
// This is intentional and changes how early steps behave.
//
// Sparse gradients decay all of m and v, then add the
// gradient terms only to the indexed rows.
type Adam struct {
	// Name is reported in the config.
	// If it is empty, "Adam" is used.
	Name string

	LR    float64
	Beta1 float64
	Beta2 float64

	// Epsilon is used to prevent divisions by zero.
	// If it is 0, DefaultEpsilon is used.
	Epsilon float64

	baseState
}

// NewAdam creates an Adam optimizer with the default
// hyperparameters.
func NewAdam() *Adam {
	return &Adam{
		LR:      adamDefaultLearningRate,
		Beta1:   adamDefaultBeta1,
		Beta2:   adamDefaultBeta2,
		Epsilon: adamDefaultEpsilon,
	}
}

// AdamFromConfig creates an Adam optimizer from the keys
// reported by Config.
// Missing keys take their default values.
func AdamFromConfig(c Config) (*Adam, error) {
	res := &Adam{}
	var err error
	if res.Name, err = c.String("name", "Adam"); err != nil {
		return nil, err
	}
	if res.LR, err = c.Float("learning_rate", adamDefaultLearningRate); err != nil {
		return nil, err
	}
	if res.Beta1, err = c.Float("beta_1", adamDefaultBeta1); err != nil {
		return nil, err
	}
	if res.Beta2, err = c.Float("beta_2", adamDefaultBeta2); err != nil {
		return nil, err
	}
	if res.Epsilon, err = c.Float("epsilon", adamDefaultEpsilon); err != nil {
		return nil, err
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Validate checks the hyperparameters.
func (a *Adam) Validate() error {
	if a.LR < 0 || math.IsNaN(a.LR) {
		return configErr("learning_rate", a.LR, "must be non-negative")
	}
	for _, b := range []struct {
		name string
		val  float64
	}{{"beta_1", a.Beta1}, {"beta_2", a.Beta2}} {
		if !(b.val >= 0 && b.val < 1) {
			return configErr(b.name, b.val, "must be in [0, 1)")
		}
	}
	if !(a.Epsilon >= 0) || math.IsInf(a.Epsilon, 1) {
		return configErr("epsilon", a.Epsilon, "must be a positive number or 0 for the default")
	}
	return nil
}

// Prepare creates the m and v slots.
func (a *Adam) Prepare(params []*Param) error {
	return a.prepare(params, "m", "v")
}

// Update performs one Adam step.
func (a *Adam) Update(grads []*Gradient, commit CommitFunc) error {
	if err := a.begin("Adam update", grads, a.Validate, "m", "v"); err != nil {
		return err
	}
	defer a.guard.exit()

	beta1, beta2 := a.Beta1, a.Beta2
	lr, eps := a.LR, a.epsilon()
	for _, g := range grads {
		p := g.Param
		mName, vName := SlotName(p, "m"), SlotName(p, "v")
		m, _ := a.slots.Get(mName)
		v, _ := a.slots.Get(vName)
		c := m.Creator()

		newM := m.Copy()
		newM.Scale(c.MakeNumeric(beta1))
		newV := v.Copy()
		newV.Scale(c.MakeNumeric(beta2))

		firstTerm := g.Vector.Copy()
		firstTerm.Scale(c.MakeNumeric(1 - beta1))
		secondTerm := g.Vector.Copy()
		anyvec.Pow(secondTerm, c.MakeNumeric(2))
		secondTerm.Scale(c.MakeNumeric(1 - beta2))

		if g.Sparse() {
			scatterAdd(newM, g.Indices, firstTerm)
			scatterAdd(newV, g.Indices, secondTerm)
		} else {
			newM.Add(firstTerm)
			newV.Add(secondTerm)
		}

		commit(mName, m, newM)
		commit(vName, v, newV)

		// Use the moments that were actually committed.
		divisor := v.Copy()
		anyvec.Pow(divisor, c.MakeNumeric(0.5))
		divisor.AddScalar(c.MakeNumeric(eps))
		step := m.Copy()
		step.Scale(c.MakeNumeric(lr))
		step.Div(divisor)

		newParam := p.Vector().Copy()
		newParam.Sub(step)
		commit(p.Name, p.Vector(), newParam)
	}

	a.iterations++
	return nil
}

// LearningRate returns the step size.
func (a *Adam) LearningRate() float64 {
	return a.LR
}

// Config returns the hyperparameters.
func (a *Adam) Config() (Config, error) {
	name := a.Name
	if name == "" {
		name = "Adam"
	}
	return Config{
		"name":          name,
		"learning_rate": a.LR,
		"beta_1":        a.Beta1,
		"beta_2":        a.Beta2,
		"epsilon":       a.epsilon(),
	}, nil
}

func (a *Adam) epsilon() float64 {
	if a.Epsilon == 0 {
		return DefaultEpsilon
	}
	return a.Epsilon
}
