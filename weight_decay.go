package anyopt

import (
	"math"

	"github.com/unixpickle/anyvec"
)

// WeightDecay adds decoupled weight decay to an
// optimizer.
//
// Every parameter write becomes
//
//	new := new - lr*rate*old
//
// where lr is the learning rate of the wrapped optimizer.
// Parameters whose names match one of the Exclude
// patterns are not decayed.
type WeightDecay struct {
	Optimizer

	Rate float64

	// Exclude lists regular expressions which are searched
	// for anywhere in a parameter's name.
	Exclude []string

	patterns patternCache
	guard    updateGuard
}

// NewWeightDecay wraps an optimizer with weight decay.
func NewWeightDecay(inner Optimizer, rate float64, exclude ...string) *WeightDecay {
	return &WeightDecay{Optimizer: inner, Rate: rate, Exclude: exclude}
}

// WeightDecayFromConfig wraps inner using the keys
// reported by Config.
func WeightDecayFromConfig(inner Optimizer, c Config) (*WeightDecay, error) {
	rate, err := c.RequireFloat("weight_decay_rate")
	if err != nil {
		return nil, err
	}
	exclude, err := c.Strings("exclude_from_weight_decay")
	if err != nil {
		return nil, err
	}
	res := NewWeightDecay(inner, rate, exclude...)
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Unwrap returns the wrapped optimizer.
func (w *WeightDecay) Unwrap() Optimizer {
	return w.Optimizer
}

// Validate checks the hyperparameters.
func (w *WeightDecay) Validate() error {
	if math.IsNaN(w.Rate) || math.IsInf(w.Rate, 0) {
		return configErr("weight_decay_rate", w.Rate, "must be finite")
	}
	_, err := w.patterns.get("exclude_from_weight_decay", w.Exclude)
	return err
}

// Update runs the wrapped update with decayed parameter
// writes.
func (w *WeightDecay) Update(grads []*Gradient, commit CommitFunc) error {
	if err := w.guard.enter("WeightDecay update"); err != nil {
		return err
	}
	defer w.guard.exit()

	if err := checkGradients(grads); err != nil {
		return err
	}
	if err := w.Validate(); err != nil {
		return err
	}
	patterns, err := w.patterns.get("exclude_from_weight_decay", w.Exclude)
	if err != nil {
		return err
	}
	params := Params(grads)
	excluded, err := excludedParams("exclude_from_weight_decay", patterns, params)
	if err != nil {
		return err
	}
	scale := -w.Optimizer.LearningRate() * w.Rate
	decayed := Intercept(commit, params, func(p *Param, old, val anyvec.Vector) anyvec.Vector {
		if excluded[p.Name] {
			return val
		}
		decay := old.Copy()
		decay.Scale(decay.Creator().MakeNumeric(scale))
		res := val.Copy()
		res.Add(decay)
		return res
	})
	return w.Optimizer.Update(grads, decayed)
}

// Config returns the wrapped optimizer's config plus the
// weight decay keys.
func (w *WeightDecay) Config() (Config, error) {
	inner, err := w.Optimizer.Config()
	if err != nil {
		return nil, err
	}
	return MergeConfig(inner, Config{
		"weight_decay_rate":         w.Rate,
		"exclude_from_weight_decay": append([]string{}, w.Exclude...),
	})
}
