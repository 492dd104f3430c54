package anyopt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
)

var testCreator = anyvec64.DefaultCreator{}

func testVec(data ...float64) anyvec.Vector {
	return testCreator.MakeVectorData(testCreator.MakeNumericList(data))
}

func vecData(v anyvec.Vector) []float64 {
	return append([]float64{}, v.Data().([]float64)...)
}

func testParam(name string, data ...float64) *Param {
	return NewParam(name, testVec(data...))
}

func cloneParam(p *Param) *Param {
	return NewParam(p.Name, p.Vector().Copy())
}

func denseGrad(p *Param, data ...float64) *Gradient {
	return &Gradient{Param: p, Vector: testVec(data...)}
}

// adamReference applies one step of the update rule to
// plain slices.
func adamReference(p, m, v, g []float64, lr, beta1, beta2, eps float64) (newP, newM, newV []float64) {
	newP = make([]float64, len(p))
	newM = make([]float64, len(p))
	newV = make([]float64, len(p))
	for i := range p {
		newM[i] = beta1*m[i] + (1-beta1)*g[i]
		newV[i] = beta2*v[i] + (1-beta2)*g[i]*g[i]
		newP[i] = p[i] - lr*newM[i]/(math.Sqrt(newV[i])+eps)
	}
	return
}

func requireSlot(t *testing.T, s *Slots, name string, expected []float64) {
	vec, err := s.Get(name)
	require.NoError(t, err)
	require.InDeltaSlice(t, expected, vecData(vec), 1e-12, name)
}

// hookLayer is an extension which applies an arbitrary
// function to every parameter write.
type hookLayer struct {
	Optimizer
	f     func(x float64) float64
	guard updateGuard
}

func (h *hookLayer) Unwrap() Optimizer {
	return h.Optimizer
}

func (h *hookLayer) Update(grads []*Gradient, commit CommitFunc) error {
	if err := h.guard.enter("hook update"); err != nil {
		return err
	}
	defer h.guard.exit()
	return h.Optimizer.Update(grads, Intercept(commit, Params(grads),
		func(_ *Param, _, val anyvec.Vector) anyvec.Vector {
			data := vecData(val)
			for i, x := range data {
				data[i] = h.f(x)
			}
			return testVec(data...)
		}))
}
