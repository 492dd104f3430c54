package anyopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unixpickle/anydiff"
)

func TestMinimize(t *testing.T) {
	x := testParam("x", 1, -2)
	y := testParam("y", 3)
	opt := &Momentum{LR: 0.1}

	// cost = sum(x^2) + 2*sum(y)
	cost := anydiff.Add(
		anydiff.Sum(anydiff.Square(x.Var)),
		anydiff.Scale(anydiff.Sum(y.Var), testCreator.MakeNumeric(2)),
	)
	require.NoError(t, Minimize(opt, []*Param{x, y}, cost))
	assert.InDeltaSlice(t, []float64{0.8, -1.6}, vecData(x.Vector()), 1e-12)
	assert.InDeltaSlice(t, []float64{2.8}, vecData(y.Vector()), 1e-12)
	assert.Equal(t, 1, opt.Iterations())
}

func TestGradientsFromGrad(t *testing.T) {
	x := testParam("x", 1)
	y := testParam("y", 2)
	grad := anydiff.Grad{x.Var: testVec(5)}
	_, err := GradientsFromGrad([]*Param{x, y}, grad)
	assert.Error(t, err)

	grad[y.Var] = testVec(6)
	grads, err := GradientsFromGrad([]*Param{y, x}, grad)
	require.NoError(t, err)
	assert.Equal(t, []*Param{y, x}, Params(grads))
}
