package anyopt

import (
	"math"

	"github.com/unixpickle/anyvec"
)

const (
	rmspropDefaultLearningRate = 0.001
	rmspropDefaultRho          = 0.9
)

// RMSProp implements the RMSProp regularizer; see:
// http://www.cs.toronto.edu/~tijmen/csc321/slides/lecture_slides_lec6.pdf.
//
// The running average s and the parameter p are updated as
//
//	s := rho*s + (1-rho)*grad^2
//	p := p - lr*grad/sqrt(s+epsilon)
type RMSProp struct {
	// Name is reported in the config.
	// If it is empty, "RMSProp" is used.
	Name string

	LR float64

	// Rho is the decay rate for the running average.
	Rho float64

	// Epsilon is used to prevent divisions by zero.
	// If it is 0, DefaultEpsilon is used.
	Epsilon float64

	baseState
}

// RMSPropFromConfig creates an RMSProp optimizer from the
// keys reported by Config.
func RMSPropFromConfig(c Config) (*RMSProp, error) {
	res := &RMSProp{}
	var err error
	if res.Name, err = c.String("name", "RMSProp"); err != nil {
		return nil, err
	}
	if res.LR, err = c.Float("learning_rate", rmspropDefaultLearningRate); err != nil {
		return nil, err
	}
	if res.Rho, err = c.Float("rho", rmspropDefaultRho); err != nil {
		return nil, err
	}
	if res.Epsilon, err = c.Float("epsilon", DefaultEpsilon); err != nil {
		return nil, err
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Validate checks the hyperparameters.
func (r *RMSProp) Validate() error {
	if r.LR < 0 || math.IsNaN(r.LR) {
		return configErr("learning_rate", r.LR, "must be non-negative")
	}
	if !(r.Rho >= 0 && r.Rho < 1) {
		return configErr("rho", r.Rho, "must be in [0, 1)")
	}
	if !(r.Epsilon >= 0) || math.IsInf(r.Epsilon, 1) {
		return configErr("epsilon", r.Epsilon, "must be a positive number or 0 for the default")
	}
	return nil
}

// Prepare creates the running average slots.
func (r *RMSProp) Prepare(params []*Param) error {
	return r.prepare(params, "rms")
}

// Update performs one step.
//
// Rows missing from a sparse gradient are treated as
// having a zero gradient.
func (r *RMSProp) Update(grads []*Gradient, commit CommitFunc) error {
	if err := r.begin("RMSProp update", grads, r.Validate, "rms"); err != nil {
		return err
	}
	defer r.guard.exit()

	eps := r.Epsilon
	if eps == 0 {
		eps = DefaultEpsilon
	}
	for _, g := range grads {
		p := g.Param
		name := SlotName(p, "rms")
		avg, _ := r.slots.Get(name)
		c := avg.Creator()
		grad := g.Dense()

		sq := grad.Copy()
		anyvec.Pow(sq, c.MakeNumeric(2))
		sq.Scale(c.MakeNumeric(1 - r.Rho))
		newAvg := avg.Copy()
		newAvg.Scale(c.MakeNumeric(r.Rho))
		newAvg.Add(sq)
		commit(name, avg, newAvg)

		div := avg.Copy()
		div.AddScalar(c.MakeNumeric(eps))
		anyvec.Pow(div, c.MakeNumeric(-0.5))
		grad.Mul(div)
		grad.Scale(c.MakeNumeric(-r.LR))
		newParam := p.Vector().Copy()
		newParam.Add(grad)
		commit(p.Name, p.Vector(), newParam)
	}

	r.iterations++
	return nil
}

// LearningRate returns the step size.
func (r *RMSProp) LearningRate() float64 {
	return r.LR
}

// Config returns the hyperparameters.
func (r *RMSProp) Config() (Config, error) {
	name := r.Name
	if name == "" {
		name = "RMSProp"
	}
	eps := r.Epsilon
	if eps == 0 {
		eps = DefaultEpsilon
	}
	return Config{
		"name":          name,
		"learning_rate": r.LR,
		"rho":           r.Rho,
		"epsilon":       eps,
	}, nil
}
