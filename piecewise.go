package anyopt

import (
	"math"
	"sort"
	"strconv"

	"github.com/unixpickle/anyvec"
	"gonum.org/v1/gonum/interp"
)

// A Schedule maps an iteration count to a learning rate
// multiplier by interpolating linearly between
// breakpoints.
//
// The multiplier is 0 at step 0 unless step 0 is given
// explicitly, and the last multiplier holds for every step
// past the last breakpoint.
type Schedule struct {
	fit      interp.PiecewiseLinear
	constant bool
	value    float64
}

// NewSchedule creates a Schedule from step/multiplier
// breakpoints.
func NewSchedule(points map[int]float64) (*Schedule, error) {
	if len(points) == 0 {
		return nil, configErr("lr_schedule", nil, "schedule is empty")
	}
	steps := make([]int, 0, len(points))
	for step, mult := range points {
		if step < 0 {
			return nil, configErr("lr_schedule", step, "negative schedule step")
		}
		if math.IsNaN(mult) || math.IsInf(mult, 0) {
			return nil, configErr("lr_schedule", mult, "multiplier must be finite")
		}
		steps = append(steps, step)
	}
	sort.Ints(steps)

	var xs, ys []float64
	if steps[0] != 0 {
		xs, ys = append(xs, 0), append(ys, 0)
	}
	for _, step := range steps {
		xs = append(xs, float64(step))
		ys = append(ys, points[step])
	}
	res := &Schedule{}
	if len(xs) == 1 {
		res.constant = true
		res.value = ys[0]
		return res, nil
	}
	if err := res.fit.Fit(xs, ys); err != nil {
		return nil, configErr("lr_schedule", nil, "%v", err)
	}
	return res, nil
}

// Multiplier evaluates the schedule at a step.
func (s *Schedule) Multiplier(step int) float64 {
	if s.constant {
		return s.value
	}
	return s.fit.Predict(float64(step))
}

// PiecewiseLinearLR scales every parameter step by a
// Schedule evaluated at the wrapped optimizer's iteration
// count:
//
//	new := old + multiplier*(new-old)
type PiecewiseLinearLR struct {
	Optimizer

	// Points maps steps to multipliers.
	Points map[int]float64

	sched       *Schedule
	schedPoints map[int]float64
	guard       updateGuard
}

// NewPiecewiseLinearLR wraps an optimizer with a learning
// rate schedule.
func NewPiecewiseLinearLR(inner Optimizer, points map[int]float64) *PiecewiseLinearLR {
	return &PiecewiseLinearLR{Optimizer: inner, Points: points}
}

// PiecewiseLinearLRFromConfig wraps inner using the keys
// reported by Config.
func PiecewiseLinearLRFromConfig(inner Optimizer, c Config) (*PiecewiseLinearLR, error) {
	points, err := c.Schedule("lr_schedule")
	if err != nil {
		return nil, err
	}
	res := NewPiecewiseLinearLR(inner, points)
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Unwrap returns the wrapped optimizer.
func (p *PiecewiseLinearLR) Unwrap() Optimizer {
	return p.Optimizer
}

// Validate checks the schedule.
func (p *PiecewiseLinearLR) Validate() error {
	_, err := p.schedule()
	return err
}

// Multiplier returns the multiplier for the next update.
func (p *PiecewiseLinearLR) Multiplier() (float64, error) {
	sched, err := p.schedule()
	if err != nil {
		return 0, err
	}
	return sched.Multiplier(p.Optimizer.Iterations()), nil
}

// schedule returns the fitted Schedule, refitting it only
// when Points has changed.
func (p *PiecewiseLinearLR) schedule() (*Schedule, error) {
	if p.sched != nil && pointsEqual(p.schedPoints, p.Points) {
		return p.sched, nil
	}
	sched, err := NewSchedule(p.Points)
	if err != nil {
		return nil, err
	}
	p.sched = sched
	p.schedPoints = make(map[int]float64, len(p.Points))
	for k, v := range p.Points {
		p.schedPoints[k] = v
	}
	return sched, nil
}

// Update runs the wrapped update with scaled parameter
// steps.
func (p *PiecewiseLinearLR) Update(grads []*Gradient, commit CommitFunc) error {
	if err := p.guard.enter("PiecewiseLinearLR update"); err != nil {
		return err
	}
	defer p.guard.exit()

	if err := checkGradients(grads); err != nil {
		return err
	}
	mult, err := p.Multiplier()
	if err != nil {
		return err
	}
	scaled := Intercept(commit, Params(grads), func(_ *Param, old, val anyvec.Vector) anyvec.Vector {
		step := val.Copy()
		step.Sub(old)
		step.Scale(step.Creator().MakeNumeric(mult))
		step.Add(old)
		return step
	})
	return p.Optimizer.Update(grads, scaled)
}

// Config returns the wrapped optimizer's config plus the
// schedule, keyed by decimal step strings.
func (p *PiecewiseLinearLR) Config() (Config, error) {
	inner, err := p.Optimizer.Config()
	if err != nil {
		return nil, err
	}
	sched := make(map[string]float64, len(p.Points))
	for step, mult := range p.Points {
		sched[strconv.Itoa(step)] = mult
	}
	return MergeConfig(inner, Config{"lr_schedule": sched})
}

func pointsEqual(a, b map[int]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if x, ok := b[k]; !ok || x != v {
			return false
		}
	}
	return true
}
