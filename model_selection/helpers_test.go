package model_selection

import (
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/dataset"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// meanLearner は訓練ターゲットの平均 + shift を常に予測する
type meanLearner struct {
	shift   float64
	panicOn bool
	fits    *atomic.Int32

	mean  float64
	state *model.StateManager
}

func newMeanLearner() *meanLearner {
	return &meanLearner{fits: &atomic.Int32{}, state: model.NewStateManager()}
}

func (m *meanLearner) Fit(ds *dataset.Dataset) error {
	if m.panicOn {
		panic("boom")
	}
	y := ds.TargetValues()
	m.mean = stat.Mean(y, nil)
	m.fits.Add(1)
	m.state.SetFitted(ds.NFeatures(), ds.NRows())
	return nil
}

func (m *meanLearner) Predict(ds *dataset.Dataset) (mat.Matrix, error) {
	if err := m.state.RequireFitted("meanLearner", "Predict"); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(ds.NRows(), nil)
	for i := 0; i < ds.NRows(); i++ {
		out.SetVec(i, m.mean+m.shift)
	}
	return out, nil
}

func (m *meanLearner) Score(ds *dataset.Dataset) (float64, error) {
	pred, err := m.Predict(ds)
	if err != nil {
		return 0, err
	}
	y := ds.TargetValues()
	var sse float64
	for i, v := range y {
		d := v - pred.At(i, 0)
		sse += d * d
	}
	return -sse / float64(len(y)), nil
}

func (m *meanLearner) GetParams() map[string]interface{} {
	return map[string]interface{}{"shift": m.shift, "panic": m.panicOn}
}

func (m *meanLearner) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "shift":
			f, ok := v.(float64)
			if !ok {
				return errors.NewValidationError(k, "must be float64", v)
			}
			m.shift = f
		case "panic":
			m.panicOn = v.(bool)
		default:
			return errors.NewValidationError(k, "unknown parameter", v)
		}
	}
	m.state.Reset()
	return nil
}

func (m *meanLearner) Clone() model.Learner {
	return &meanLearner{shift: m.shift, panicOn: m.panicOn, fits: m.fits, state: model.NewStateManager()}
}

// numbered は x = 0..n-1、y = i%classes の Dataset を作る
func numbered(n, classes int) *dataset.Dataset {
	x := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
		y.SetVec(i, float64(i%classes))
	}
	ds, err := dataset.FromMatrix(x, y, []string{"x"})
	if err != nil {
		panic(err)
	}
	return ds
}

// numberedRegression は x = 0..n-1、y = 2x の Dataset を作る
func numberedRegression(n int) *dataset.Dataset {
	x := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
		y.SetVec(i, 2*float64(i))
	}
	ds, err := dataset.FromMatrix(x, y, []string{"x"})
	if err != nil {
		panic(err)
	}
	return ds
}
