// Package linear は線形回帰とロジスティック回帰のベースライン推定器を提供します。
package linear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/core/parallel"
	"github.com/YuminosukeSato/skflow/metrics"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// 特異値の打ち切り閾値（numpy.linalg.lstsq と同じく max(n, p)·eps 倍）
const rankEpsilon = 2.220446049250313e-16

// Regression は最小二乗法による線形回帰。alpha > 0 のときはリッジ回帰になる。
// 切片には正則化をかけない。
type Regression struct {
	alpha        float64
	fitIntercept bool

	weights   *mat.VecDense
	intercept float64
	state     *model.StateManager
}

// NewRegression は新しい線形回帰モデルを作成する
func NewRegression(opts ...Option) *Regression {
	lr := &Regression{
		fitIntercept: true,
		state:        model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習させる。
// 切片ありの場合は X と y を中心化し、min ‖Xw - y‖² + α‖w‖² を
// 特異値分解による最小ノルム解で解く。
func (lr *Regression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("Regression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("Regression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("Regression.Fit", "y must be a column vector")
	}
	if lr.alpha < 0 {
		return errors.NewValidationError("alpha", "must be non-negative", lr.alpha)
	}

	xMean := make([]float64, c)
	var yMean float64
	if lr.fitIntercept {
		for j := 0; j < c; j++ {
			var s float64
			for i := 0; i < r; i++ {
				s += X.At(i, j)
			}
			xMean[j] = s / float64(r)
		}
		for i := 0; i < r; i++ {
			yMean += y.At(i, 0)
		}
		yMean /= float64(r)
	}

	xc := mat.NewDense(r, c, nil)
	yc := mat.NewVecDense(r, nil)
	parallel.ParallelizeWithThreshold(r, parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				xc.Set(i, j, X.At(i, j)-xMean[j])
			}
			yc.SetVec(i, y.At(i, 0)-yMean)
		}
	})

	// リッジは [Xc; √α I] w = [yc; 0] の最小二乗として解く
	a, b := mat.Matrix(xc), mat.Vector(yc)
	if lr.alpha > 0 {
		aug := mat.NewDense(r+c, c, nil)
		aug.Slice(0, r, 0, c).(*mat.Dense).Copy(xc)
		for j := 0; j < c; j++ {
			aug.Set(r+j, j, math.Sqrt(lr.alpha))
		}
		augY := mat.NewVecDense(r+c, nil)
		augY.SliceVec(0, r).(*mat.VecDense).CopyVec(yc)
		a, b = aug, augY
	}

	// ランク落ち（one-hot の全カテゴリ + 切片など）でも最小ノルム解を返す
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return errors.NewModelError("Regression.Fit", "singular value decomposition failed", errors.ErrSingularMatrix)
	}
	ar, ac := a.Dims()
	weights := mat.NewVecDense(c, nil)
	if rank := svd.Rank(float64(max(ar, ac)) * rankEpsilon); rank > 0 {
		svd.SolveVecTo(weights, b, rank)
	}
	if err := errors.CheckNumericalStability("Regression.Fit", weights.RawVector().Data, 0); err != nil {
		return err
	}

	intercept := 0.0
	if lr.fitIntercept {
		intercept = yMean
		for j := 0; j < c; j++ {
			intercept -= xMean[j] * weights.AtVec(j)
		}
	}

	lr.weights = weights
	lr.intercept = intercept
	lr.state.SetFitted(c, r)
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *Regression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("Regression", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := lr.state.RequireFeatures("Regression.Predict", c); err != nil {
		return nil, err
	}

	// 予測: y = X * weights + intercept
	predictions := mat.NewVecDense(r, nil)
	parallel.ParallelizeWithThreshold(r, parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			pred := lr.intercept
			for j := 0; j < c; j++ {
				pred += X.At(i, j) * lr.weights.AtVec(j)
			}
			predictions.SetVec(i, pred)
		}
	})
	return predictions, nil
}

// Score はモデルの決定係数（R²）を計算する
func (lr *Regression) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2ScoreMatrix(y, yPred)
}

// GetWeights は学習された重み（係数）を返す
func (lr *Regression) GetWeights() []float64 {
	if lr.weights == nil {
		return nil
	}
	return append([]float64(nil), lr.weights.RawVector().Data...)
}

// GetIntercept は学習された切片を返す
func (lr *Regression) GetIntercept() float64 {
	if !lr.state.IsFitted() {
		return 0
	}
	return lr.intercept
}

// IsFitted は学習済みかどうかを返す
func (lr *Regression) IsFitted() bool { return lr.state.IsFitted() }

// GetParams はハイパーパラメータを返す
func (lr *Regression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"alpha":         lr.alpha,
		"fit_intercept": lr.fitIntercept,
	}
}

// SetParams はハイパーパラメータを設定し、学習状態をリセットする
func (lr *Regression) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "alpha":
			alpha, ok := toFloat(v)
			if !ok || alpha < 0 {
				return errors.NewValidationError("alpha", "must be a non-negative number", v)
			}
			lr.alpha = alpha
		case "fit_intercept":
			b, ok := v.(bool)
			if !ok {
				return errors.NewValidationError("fit_intercept", "must be a bool", v)
			}
			lr.fitIntercept = b
		default:
			return errors.NewValidationError(k, "unknown parameter for Regression", v)
		}
	}
	lr.state.Reset()
	lr.weights = nil
	return nil
}

// Clone は同じハイパーパラメータを持つ未学習のコピーを返す
func (lr *Regression) Clone() model.Estimator {
	return NewRegression(WithAlpha(lr.alpha), WithFitIntercept(lr.fitIntercept))
}

// String はモデルの文字列表現を返す
func (lr *Regression) String() string {
	if !lr.state.IsFitted() {
		return fmt.Sprintf("Regression(alpha=%g, fit_intercept=%t)", lr.alpha, lr.fitIntercept)
	}
	return fmt.Sprintf("Regression(alpha=%g, fit_intercept=%t, n_features=%d)",
		lr.alpha, lr.fitIntercept, lr.weights.Len())
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
