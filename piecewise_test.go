package anyopt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleMultiplier(t *testing.T) {
	sched, err := NewSchedule(map[int]float64{1000: 1.0, 2000: 0.1})
	require.NoError(t, err)
	for _, c := range []struct {
		step     int
		expected float64
	}{
		{0, 0},
		{500, 0.5},
		{1000, 1.0},
		{1500, 0.55},
		{2000, 0.1},
		{3000, 0.1},
	} {
		assert.InDelta(t, c.expected, sched.Multiplier(c.step), 1e-12, "step %d", c.step)
	}
}

func TestScheduleExplicitStart(t *testing.T) {
	sched, err := NewSchedule(map[int]float64{0: 1, 10: 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, sched.Multiplier(0))
	assert.InDelta(t, 0.7, sched.Multiplier(3), 1e-12)
	assert.Equal(t, 0.0, sched.Multiplier(20))

	sched, err = NewSchedule(map[int]float64{0: 0.25})
	require.NoError(t, err)
	assert.Equal(t, 0.25, sched.Multiplier(0))
	assert.Equal(t, 0.25, sched.Multiplier(100))
}

func TestScheduleErrors(t *testing.T) {
	var configErr *ConfigError
	_, err := NewSchedule(map[int]float64{})
	assert.True(t, errors.As(err, &configErr))
	_, err = NewSchedule(map[int]float64{-1: 1})
	assert.True(t, errors.As(err, &configErr))

	for _, raw := range []interface{}{
		map[string]interface{}{"ten": 1.0},
		map[string]interface{}{"10": "fast"},
		[]interface{}{1, 2},
	} {
		_, err := PiecewiseLinearLRFromConfig(NewAdam(), Config{"lr_schedule": raw})
		assert.True(t, errors.As(err, &configErr), "%v", raw)
	}
	_, err = PiecewiseLinearLRFromConfig(NewAdam(), Config{})
	assert.True(t, errors.As(err, &configErr))
}

func TestPiecewiseLinearLR(t *testing.T) {
	p := testParam("w", 1, 2)
	base := &Momentum{LR: 0.1}
	opt := NewPiecewiseLinearLR(base, map[int]float64{4: 1})

	// The multiplier is 0 on the first step.
	require.NoError(t, Step(opt, []*Gradient{denseGrad(p, 1, 1)}))
	assert.Equal(t, []float64{1, 2}, vecData(p.Vector()))

	opt.SetIterations(2)
	mult, err := opt.Multiplier()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mult, 1e-12)
	require.NoError(t, Step(opt, []*Gradient{denseGrad(p, 1, 1)}))
	assert.InDeltaSlice(t, []float64{0.95, 1.95}, vecData(p.Vector()), 1e-12)
	assert.Equal(t, 3, opt.Iterations())

	// Slots are not scaled.
	requireSlot(t, base.Slots(), "w/momentum", []float64{1, 1})
}

func TestPiecewiseLinearLRConfig(t *testing.T) {
	c, err := ParseConfig([]byte("lr_schedule:\n  1000: 1.0\n  \"2000\": 0.1\n"))
	require.NoError(t, err)
	opt, err := PiecewiseLinearLRFromConfig(NewAdam(), c)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{1000: 1, 2000: 0.1}, opt.Points)

	out, err := opt.Config()
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"1000": 1, "2000": 0.1}, out["lr_schedule"])
}

func TestPiecewiseLinearLRScheduleCache(t *testing.T) {
	opt := NewPiecewiseLinearLR(NewAdam(), map[int]float64{0: 1, 10: 0})
	require.NoError(t, opt.Validate())
	sched := opt.sched
	require.NotNil(t, sched)

	p := testParam("w", 1)
	require.NoError(t, Step(opt, []*Gradient{denseGrad(p, 1)}))
	assert.Same(t, sched, opt.sched)

	opt.Points[10] = 0.5
	mult, err := opt.Multiplier()
	require.NoError(t, err)
	assert.NotSame(t, sched, opt.sched)
	assert.InDelta(t, 0.95, mult, 1e-12)
}
