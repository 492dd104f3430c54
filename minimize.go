package anyopt

import "github.com/unixpickle/anydiff"

// Minimize computes the gradient of cost with respect to
// params and takes one step.
//
// If cost has more than one component, the gradient of
// their sum is used.
func Minimize(o Optimizer, params []*Param, cost anydiff.Res) error {
	grad := anydiff.Grad{}
	for _, p := range params {
		if p == nil || p.Var == nil {
			return configErr("parameter", nil, "missing parameter")
		}
		grad[p.Var] = p.Vector().Creator().MakeVector(p.Vector().Len())
	}

	out := cost.Output()
	upstream := out.Creator().MakeVector(out.Len())
	upstream.AddScalar(out.Creator().MakeNumeric(1))
	cost.Propagate(upstream, grad)

	grads, err := GradientsFromGrad(params, grad)
	if err != nil {
		return err
	}
	return Step(o, grads)
}
