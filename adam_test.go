package anyopt

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestAdamDense(t *testing.T) {
	p := testParam("w", 1, -2, 0.5, 3)
	adam := &Adam{LR: 0.01, Beta1: 0.8, Beta2: 0.95, Epsilon: 1e-6}

	expectedP := vecData(p.Vector())
	expectedM := make([]float64, 4)
	expectedV := make([]float64, 4)
	for _, g := range [][]float64{{0.5, -1, 2, 0}, {-0.25, 3, 1, 0.1}} {
		require.NoError(t, Step(adam, []*Gradient{denseGrad(p, g...)}))
		expectedP, expectedM, expectedV = adamReference(expectedP, expectedM, expectedV, g,
			0.01, 0.8, 0.95, 1e-6)
		if !floats.EqualApprox(expectedP, vecData(p.Vector()), 1e-12) {
			t.Fatalf("expected %v but got %v", expectedP, vecData(p.Vector()))
		}
		requireSlot(t, adam.Slots(), "w/m", expectedM)
		requireSlot(t, adam.Slots(), "w/v", expectedV)
	}
	assert.Equal(t, 2, adam.Iterations())
}

func TestAdamDeterministic(t *testing.T) {
	var results [][]float64
	for i := 0; i < 3; i++ {
		p := testParam("w", 0.3, -0.7)
		adam := NewAdam()
		for _, g := range [][]float64{{1, 2}, {-3, 0.5}, {0.1, 0.1}} {
			require.NoError(t, Step(adam, []*Gradient{denseGrad(p, g...)}))
		}
		results = append(results, vecData(p.Vector()))
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

func TestAdamNoBiasCorrection(t *testing.T) {
	p := testParam("w", 0)
	adam := &Adam{LR: 1, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-6}
	require.NoError(t, Step(adam, []*Gradient{denseGrad(p, 1)}))

	// m = 0.1 and v = 0.001, so the step is 0.1/sqrt(0.001)
	// rather than the bias corrected value of 1.
	assert.InDelta(t, -0.1/(0.0316227766016838+1e-6), vecData(p.Vector())[0], 1e-9)
}

func TestAdamSparse(t *testing.T) {
	// A 3x2 matrix.
	p := testParam("emb", 1, 2, 3, 4, 5, 6)
	adam := &Adam{LR: 0.1, Beta1: 0.5, Beta2: 0.75, Epsilon: 1e-6}

	require.NoError(t, Step(adam, []*Gradient{denseGrad(p, 1, 1, 1, 1, 1, 1)}))
	before := vecData(p.Vector())
	m, _ := adam.Slots().Get("emb/m")
	v, _ := adam.Slots().Get("emb/v")
	oldM, oldV := vecData(m), vecData(v)

	grad := &Gradient{
		Param:   p,
		Vector:  testVec(1, 2, 3, 4, -1, 0),
		Indices: []int{2, 0, 2},
	}
	require.NoError(t, Step(adam, []*Gradient{grad}))

	expectedM := make([]float64, 6)
	expectedV := make([]float64, 6)
	for i := range expectedM {
		expectedM[i] = 0.5 * oldM[i]
		expectedV[i] = 0.75 * oldV[i]
	}
	rows := [][]float64{{1, 2}, {3, 4}, {-1, 0}}
	for i, idx := range grad.Indices {
		for j, x := range rows[i] {
			expectedM[idx*2+j] += 0.5 * x
			expectedV[idx*2+j] += 0.25 * x * x
		}
	}
	expectedP := make([]float64, 6)
	for i := range expectedP {
		expectedP[i] = before[i] - 0.1*expectedM[i]/(math.Sqrt(expectedV[i])+1e-6)
	}
	requireSlot(t, adam.Slots(), "emb/m", expectedM)
	requireSlot(t, adam.Slots(), "emb/v", expectedV)
	require.InDeltaSlice(t, expectedP, vecData(p.Vector()), 1e-12)
}

func TestAdamConfig(t *testing.T) {
	adam, err := AdamFromConfig(Config{"learning_rate": 0.5, "beta_2": 0.9})
	require.NoError(t, err)
	assert.Equal(t, 0.5, adam.LR)
	assert.Equal(t, 0.9, adam.Beta1)
	assert.Equal(t, 0.9, adam.Beta2)
	assert.Equal(t, 1e-6, adam.Epsilon)

	c, err := adam.Config()
	require.NoError(t, err)
	assert.Equal(t, []string{"beta_1", "beta_2", "epsilon", "learning_rate", "name"}, c.Keys())

	adam, err = AdamFromConfig(Config{"epsilon": 0})
	require.NoError(t, err)
	c, _ = adam.Config()
	assert.Equal(t, DefaultEpsilon, c["epsilon"])

	for _, bad := range []Config{
		{"epsilon": -1.0},
		{"epsilon": "small"},
		{"beta_1": 1.0},
		{"learning_rate": -0.1},
	} {
		_, err := AdamFromConfig(bad)
		var configErr *ConfigError
		assert.True(t, errors.As(err, &configErr), "config %v: %v", bad, err)
	}
}

func TestAdamShapeMismatch(t *testing.T) {
	p := testParam("w", 1, 2, 3)
	adam := NewAdam()
	err := Step(adam, []*Gradient{denseGrad(p, 1, 2)})
	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "w", shapeErr.Name)

	// Nothing is written on failure.
	assert.Equal(t, []float64{1, 2, 3}, vecData(p.Vector()))
	assert.Equal(t, 0, adam.Iterations())

	err = Step(adam, []*Gradient{{Param: p, Vector: testVec(1, 2), Indices: []int{3}}})
	assert.True(t, errors.As(err, &shapeErr))

	require.NoError(t, Step(adam, []*Gradient{denseGrad(p, 1, 2, 3)}))
}

func TestAdamDuplicateNames(t *testing.T) {
	p1 := testParam("w", 1)
	p2 := testParam("w", 2)
	err := Step(NewAdam(), []*Gradient{denseGrad(p1, 1), denseGrad(p2, 1)})
	var configErr *ConfigError
	assert.True(t, errors.As(err, &configErr))
}
