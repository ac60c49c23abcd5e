package dummy

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/metrics"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// RegressorStrategy は DummyRegressor の予測方法
type RegressorStrategy string

const (
	// Mean は訓練ターゲットの平均を予測する
	Mean RegressorStrategy = "mean"
	// Median は訓練ターゲットの中央値を予測する
	Median RegressorStrategy = "median"
	// Constant はユーザーが指定した定数を予測する
	Constant RegressorStrategy = "constant"
)

// RegressorOption configures Regressor
type RegressorOption func(*Regressor)

// WithRegressorStrategy sets the prediction strategy
func WithRegressorStrategy(s RegressorStrategy) RegressorOption {
	return func(r *Regressor) { r.strategy = s }
}

// WithConstant sets the value predicted by the constant strategy
func WithConstant(v float64) RegressorOption {
	return func(r *Regressor) {
		r.strategy = Constant
		r.constant = v
	}
}

// Regressor は特徴量を見ずに定数を予測するベースライン回帰器
type Regressor struct {
	strategy RegressorStrategy
	constant float64

	value float64
	state *model.StateManager
}

// NewRegressor は DummyRegressor を作成する。既定の戦略は mean。
func NewRegressor(opts ...RegressorOption) *Regressor {
	r := &Regressor{
		strategy: Mean,
		state:    model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fit は予測する定数を計算する
func (r *Regressor) Fit(X, y mat.Matrix) error {
	n, nFeatures, err := checkXY("Regressor.Fit", X, y)
	if err != nil {
		return err
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = y.At(i, 0)
	}

	switch r.strategy {
	case Mean:
		r.value = stat.Mean(values, nil)
	case Median:
		r.value = median(values)
	case Constant:
		r.value = r.constant
	default:
		return errors.NewValidationError("strategy", "must be one of mean, median, constant", string(r.strategy))
	}
	r.state.SetFitted(nFeatures, n)
	return nil
}

// Predict は全行に同じ定数を返す
func (r *Regressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := r.state.RequireFitted("dummy.Regressor", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if err := r.state.RequireFeatures("dummy.Regressor.Predict", cols); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		out.SetVec(i, r.value)
	}
	return out, nil
}

// Score は決定係数 R² を返す
func (r *Regressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := r.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, pred)
}

// Value は学習した予測値を返す
func (r *Regressor) Value() float64 { return r.value }

// IsFitted は学習済みかどうかを返す
func (r *Regressor) IsFitted() bool { return r.state.IsFitted() }

// GetParams はハイパーパラメータを返す
func (r *Regressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"strategy": string(r.strategy),
		"constant": r.constant,
	}
}

// SetParams はハイパーパラメータを設定し、学習状態をリセットする
func (r *Regressor) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "strategy":
			var s RegressorStrategy
			switch x := v.(type) {
			case string:
				s = RegressorStrategy(x)
			case RegressorStrategy:
				s = x
			default:
				return errors.NewValidationError("strategy", "must be a string", v)
			}
			if s != Mean && s != Median && s != Constant {
				return errors.NewValidationError("strategy", "must be one of mean, median, constant", v)
			}
			r.strategy = s
		case "constant":
			f, ok := v.(float64)
			if !ok {
				i, isInt := toInt64(v)
				if !isInt {
					return errors.NewValidationError("constant", "must be a number", v)
				}
				f = float64(i)
			}
			r.constant = f
		default:
			return errors.NewValidationError(k, "unknown parameter for dummy.Regressor", v)
		}
	}
	r.state.Reset()
	return nil
}

// Clone は同じハイパーパラメータを持つ未学習のコピーを返す
func (r *Regressor) Clone() model.Estimator {
	return &Regressor{strategy: r.strategy, constant: r.constant, state: model.NewStateManager()}
}

func (r *Regressor) String() string {
	return fmt.Sprintf("dummy.Regressor(strategy=%s)", r.strategy)
}

// median は偶数個なら中央2値の平均を返す
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
