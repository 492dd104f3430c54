package anyopt

import "github.com/unixpickle/anyvec"

// LayerAdaptation rescales each parameter's step by the
// ratio of the parameter norm to the update norm, as in
// LAMB (https://arxiv.org/abs/1904.00962).
//
// For a write of new over old, with dx = new-old,
//
//	ratio := |old| / |dx/lr|
//	new := old + ratio*dx
//
// The ratio is 1 when |old| is zero or |dx/lr| is not
// above DefaultEpsilon.
type LayerAdaptation struct {
	Optimizer

	// Exclude lists regular expressions which are searched
	// for anywhere in a parameter's name.
	Exclude []string

	patterns patternCache
	guard    updateGuard
}

// NewLayerAdaptation wraps an optimizer with layer-wise
// step adaptation.
func NewLayerAdaptation(inner Optimizer, exclude ...string) *LayerAdaptation {
	return &LayerAdaptation{Optimizer: inner, Exclude: exclude}
}

// LayerAdaptationFromConfig wraps inner using the keys
// reported by Config.
func LayerAdaptationFromConfig(inner Optimizer, c Config) (*LayerAdaptation, error) {
	exclude, err := c.Strings("exclude_from_layer_adaptation")
	if err != nil {
		return nil, err
	}
	res := NewLayerAdaptation(inner, exclude...)
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// Unwrap returns the wrapped optimizer.
func (l *LayerAdaptation) Unwrap() Optimizer {
	return l.Optimizer
}

// Validate checks the exclusion patterns.
func (l *LayerAdaptation) Validate() error {
	_, err := l.patterns.get("exclude_from_layer_adaptation", l.Exclude)
	return err
}

// Update runs the wrapped update with rescaled parameter
// writes.
func (l *LayerAdaptation) Update(grads []*Gradient, commit CommitFunc) error {
	if err := l.guard.enter("LayerAdaptation update"); err != nil {
		return err
	}
	defer l.guard.exit()

	if err := checkGradients(grads); err != nil {
		return err
	}
	patterns, err := l.patterns.get("exclude_from_layer_adaptation", l.Exclude)
	if err != nil {
		return err
	}
	params := Params(grads)
	excluded, err := excludedParams("exclude_from_layer_adaptation", patterns, params)
	if err != nil {
		return err
	}
	lr := l.Optimizer.LearningRate()
	adapted := Intercept(commit, params, func(p *Param, old, val anyvec.Vector) anyvec.Vector {
		if excluded[p.Name] {
			return val
		}
		dx := val.Copy()
		dx.Sub(old)
		ratio := adaptationRatio(norm(old), norm(dx), lr)
		if ratio == 1 {
			return val
		}
		dx.Scale(dx.Creator().MakeNumeric(ratio))
		dx.Add(old)
		return dx
	})
	return l.Optimizer.Update(grads, adapted)
}

// Config returns the wrapped optimizer's config plus the
// layer adaptation keys.
func (l *LayerAdaptation) Config() (Config, error) {
	inner, err := l.Optimizer.Config()
	if err != nil {
		return nil, err
	}
	return MergeConfig(inner, Config{
		"exclude_from_layer_adaptation": append([]string{}, l.Exclude...),
	})
}

func adaptationRatio(xNorm, dxNorm, lr float64) float64 {
	if lr == 0 {
		return 1
	}
	if lr < 0 {
		lr = -lr
	}
	gNorm := dxNorm / lr
	if xNorm > 0 && gNorm > DefaultEpsilon {
		return xNorm / gNorm
	}
	return 1
}
