package anyopt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lookaheadConstructors = map[string]func(inner Optimizer, k int, alpha float64) Optimizer{
	"buffers": func(inner Optimizer, k int, alpha float64) Optimizer {
		return NewLookahead(inner, k, alpha)
	},
	"slots": func(inner Optimizer, k int, alpha float64) Optimizer {
		return NewSlotLookahead(inner, k, alpha)
	},
}

func TestLookaheadPeriod(t *testing.T) {
	grads := [][]float64{{1, 2}, {-1, 0.5}, {3, -2}, {0.25, 0.25}, {2, 1}}
	for name, construct := range lookaheadConstructors {
		t.Run(name, func(t *testing.T) {
			p := testParam("w", 1, -1)
			ref := cloneParam(p)
			initial := vecData(p.Vector())
			opt := construct(NewAdam(), 5, 0.5)
			refAdam := NewAdam()

			for i, g := range grads {
				require.NoError(t, Step(opt, []*Gradient{denseGrad(p, g...)}))
				require.NoError(t, Step(refAdam, []*Gradient{denseGrad(ref, g...)}))
				if i < 4 {
					assert.Equal(t, vecData(ref.Vector()), vecData(p.Vector()), "step %d", i)
				}
			}

			fast := vecData(ref.Vector())
			expected := make([]float64, 2)
			for i := range expected {
				expected[i] = initial[i] + 0.5*(fast[i]-initial[i])
			}
			assert.InDeltaSlice(t, expected, vecData(p.Vector()), 1e-12)
		})
	}
}

func TestLookaheadSlowCopies(t *testing.T) {
	p := testParam("w", 2, 4)
	adam := NewAdam()
	slotOpt := NewSlotLookahead(adam, 2, 0.5)
	require.NoError(t, slotOpt.Prepare([]*Param{p}))
	requireSlot(t, adam.Slots(), "w/slow_var", []float64{2, 4})

	require.NoError(t, Step(slotOpt, []*Gradient{denseGrad(p, 1, 1)}))
	requireSlot(t, adam.Slots(), "w/slow_var", []float64{2, 4})
	require.NoError(t, Step(slotOpt, []*Gradient{denseGrad(p, 1, 1)}))
	requireSlot(t, adam.Slots(), "w/slow_var", vecData(p.Vector()))
	assert.NotEqual(t, []float64{2, 4}, vecData(p.Vector()))

	q := testParam("w", 2, 4)
	bufOpt := NewLookahead(NewAdam(), 2, 0.5)
	require.NoError(t, Step(bufOpt, []*Gradient{denseGrad(q, 1, 1)}))
	require.NoError(t, Step(bufOpt, []*Gradient{denseGrad(q, 1, 1)}))
	requireSlot(t, bufOpt.Buffers(), "slow_var_0", vecData(q.Vector()))
	assert.Equal(t, vecData(p.Vector()), vecData(q.Vector()))
}

func TestLookaheadStepSize(t *testing.T) {
	// A step size of 1 makes lookahead a no-op.
	p := testParam("w", 1, 2)
	ref := cloneParam(p)
	opt := NewLookahead(&Momentum{LR: 0.1, Momentum: 0.5}, 2, 1)
	refOpt := &Momentum{LR: 0.1, Momentum: 0.5}
	for i := 0; i < 4; i++ {
		require.NoError(t, Step(opt, []*Gradient{denseGrad(p, 1, -1)}))
		require.NoError(t, Step(refOpt, []*Gradient{denseGrad(ref, 1, -1)}))
	}
	assert.InDeltaSlice(t, vecData(ref.Vector()), vecData(p.Vector()), 1e-12)

	// A step size of 0 snaps back to the start.
	p = testParam("w", 1, 2)
	opt = NewLookahead(&Momentum{LR: 0.1}, 3, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, Step(opt, []*Gradient{denseGrad(p, 1, -1)}))
	}
	assert.Equal(t, []float64{1, 2}, vecData(p.Vector()))
}

func TestLookaheadConfig(t *testing.T) {
	opt, err := LookaheadFromConfig(NewAdam(), Config{})
	require.NoError(t, err)
	assert.Equal(t, 5, opt.Steps)
	assert.Equal(t, 0.5, opt.StepSize)

	out, err := opt.Config()
	require.NoError(t, err)
	assert.Equal(t, 5, out["steps_per_slow_update"])
	assert.Equal(t, 0.5, out["slow_step_size"])

	var configErr *ConfigError
	for _, c := range []Config{
		{"steps_per_slow_update": 0},
		{"steps_per_slow_update": -3},
		{"slow_step_size": 1.5},
		{"slow_step_size": -0.1},
	} {
		_, err := LookaheadFromConfig(NewAdam(), c)
		assert.True(t, errors.As(err, &configErr), "%v", c)
		_, err = SlotLookaheadFromConfig(NewAdam(), c)
		assert.True(t, errors.As(err, &configErr), "%v", c)
	}
}
