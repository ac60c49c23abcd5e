package linear

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/core/parallel"
	"github.com/YuminosukeSato/skflow/metrics"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// LogisticOption configures LogisticRegression
type LogisticOption func(*LogisticRegression)

// WithC sets the inverse of the L2 regularization strength. Smaller values regularize more.
func WithC(c float64) LogisticOption {
	return func(lr *LogisticRegression) { lr.c = c }
}

// WithMaxIter sets the maximum number of gradient descent iterations
func WithMaxIter(n int) LogisticOption {
	return func(lr *LogisticRegression) { lr.maxIter = n }
}

// WithTol sets the stopping tolerance on the largest gradient component
func WithTol(tol float64) LogisticOption {
	return func(lr *LogisticRegression) { lr.tol = tol }
}

// WithLogisticIntercept sets whether to fit an intercept
func WithLogisticIntercept(fit bool) LogisticOption {
	return func(lr *LogisticRegression) { lr.fitIntercept = fit }
}

// LogisticRegression は L2 正則化付きロジスティック回帰。
// 2 クラスでは単一の重みベクトル、3 クラス以上では one-vs-rest で学習する。
//
// 目的関数は C·Σ logloss + ½‖w‖² で、切片には正則化をかけない。
type LogisticRegression struct {
	c            float64
	maxIter      int
	tol          float64
	fitIntercept bool

	classes   []float64
	coef      [][]float64
	intercept []float64
	nIter     []int
	state     *model.StateManager
}

// NewLogisticRegression は既定値 C=1, max_iter=1000, tol=1e-4 でモデルを作成する
func NewLogisticRegression(opts ...LogisticOption) *LogisticRegression {
	lr := &LogisticRegression{
		c:            1.0,
		maxIter:      1000,
		tol:          1e-4,
		fitIntercept: true,
		state:        model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを学習する。y はクラスラベルの列ベクトル。
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	n, nFeatures := X.Dims()
	ry, cy := y.Dims()
	if n == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != n {
		return errors.NewDimensionError("LogisticRegression.Fit", n, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LogisticRegression.Fit", "y must be a column vector")
	}
	if lr.c <= 0 || math.IsNaN(lr.c) {
		return errors.NewValidationError("C", "must be positive", lr.c)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be at least 1", lr.maxIter)
	}

	classes := uniqueLabels(y, n)
	if len(classes) < 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("needs samples of at least 2 classes, got %d", len(classes)))
	}

	xd := mat.DenseCopyOf(X)
	targets := classes[1:]
	if len(classes) > 2 {
		targets = classes
	}

	coef := make([][]float64, len(targets))
	intercept := make([]float64, len(targets))
	nIter := make([]int, len(targets))
	for k, positive := range targets {
		yb := make([]float64, n)
		for i := 0; i < n; i++ {
			if y.At(i, 0) == positive {
				yb[i] = 1
			}
		}
		w, b, it, converged := lr.fitBinary(xd, yb)
		if !converged {
			errors.Warn(errors.NewConvergenceWarning("LogisticRegression", it,
				fmt.Sprintf("class %g did not reach tol=%g", positive, lr.tol)))
		}
		if err := errors.CheckNumericalStability("LogisticRegression.Fit", w, it); err != nil {
			return err
		}
		coef[k], intercept[k], nIter[k] = w, b, it
	}

	lr.classes = classes
	lr.coef = coef
	lr.intercept = intercept
	lr.nIter = nIter
	lr.state.SetFitted(nFeatures, n)
	return nil
}

// fitBinary は固定ステップ 1/L の勾配降下法で 1 つの 2 値問題を解く。
// L は平均ロジスティック損失の勾配のリプシッツ定数の上界。
func (lr *LogisticRegression) fitBinary(X *mat.Dense, y []float64) ([]float64, float64, int, bool) {
	n, nFeatures := X.Dims()
	w := mat.NewVecDense(nFeatures, nil)
	var b float64

	lambda := 1.0 / (lr.c * float64(n))
	frob := mat.Norm(X, 2)
	lipschitz := 0.25*frob*frob/float64(n) + lambda
	if lr.fitIntercept {
		lipschitz += 0.25
	}
	step := 1 / lipschitz

	z := mat.NewVecDense(n, nil)
	residual := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(nFeatures, nil)

	for iter := 0; iter < lr.maxIter; iter++ {
		z.MulVec(X, w)
		var gradB float64
		for i := 0; i < n; i++ {
			r := sigmoid(z.AtVec(i)+b) - y[i]
			residual.SetVec(i, r)
			gradB += r
		}
		gradB /= float64(n)

		grad.MulVec(X.T(), residual)
		grad.ScaleVec(1/float64(n), grad)
		grad.AddScaledVec(grad, lambda, w)

		maxGrad := floats.Norm(grad.RawVector().Data, math.Inf(1))
		if lr.fitIntercept {
			maxGrad = math.Max(maxGrad, math.Abs(gradB))
		}
		if maxGrad < lr.tol {
			return w.RawVector().Data, b, iter, true
		}

		w.AddScaledVec(w, -step, grad)
		if lr.fitIntercept {
			b -= step * gradB
		}
	}
	return w.RawVector().Data, b, lr.maxIter, false
}

// Predict は確率が最大のクラスを返す
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, k := proba.Dims()
	predictions := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		predictions.SetVec(i, lr.classes[best])
	}
	return predictions, nil
}

// PredictProba は n×len(Classes()) の確率行列を返す。
// one-vs-rest では各クラスのシグモイド出力を行ごとに正規化する。
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := lr.state.RequireFeatures("LogisticRegression.PredictProba", c); err != nil {
		return nil, err
	}

	k := len(lr.classes)
	proba := mat.NewDense(r, k, nil)
	parallel.ParallelizeWithThreshold(r, parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			if k == 2 {
				p := sigmoid(lr.decision(X, i, 0))
				proba.Set(i, 0, 1-p)
				proba.Set(i, 1, p)
				continue
			}
			var sum float64
			for j := 0; j < k; j++ {
				p := sigmoid(lr.decision(X, i, j))
				proba.Set(i, j, p)
				sum += p
			}
			for j := 0; j < k; j++ {
				proba.Set(i, j, errors.SafeDivide(proba.At(i, j), sum))
			}
		}
	})
	return proba, nil
}

func (lr *LogisticRegression) decision(X mat.Matrix, row, k int) float64 {
	z := lr.intercept[k]
	for j, w := range lr.coef[k] {
		z += X.At(row, j) * w
	}
	return z
}

// Score は正解率を返す
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, yPred)
}

// Classes は学習時に観測したクラスを昇順で返す
func (lr *LogisticRegression) Classes() []float64 {
	return append([]float64(nil), lr.classes...)
}

// Coef は学習された係数を返す。2 クラスでは 1 行、それ以外はクラスごとに 1 行。
func (lr *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(lr.coef))
	for i, w := range lr.coef {
		out[i] = append([]float64(nil), w...)
	}
	return out
}

// Intercept は学習された切片を返す
func (lr *LogisticRegression) Intercept() []float64 {
	return append([]float64(nil), lr.intercept...)
}

// NIter は各 2 値問題で実行した反復回数を返す
func (lr *LogisticRegression) NIter() []int {
	return append([]int(nil), lr.nIter...)
}

// IsFitted は学習済みかどうかを返す
func (lr *LogisticRegression) IsFitted() bool { return lr.state.IsFitted() }

// GetParams はハイパーパラメータを返す
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"C":             lr.c,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
		"fit_intercept": lr.fitIntercept,
	}
}

// SetParams はハイパーパラメータを設定し、学習状態をリセットする
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "C":
			c, ok := toFloat(v)
			if !ok || c <= 0 {
				return errors.NewValidationError("C", "must be a positive number", v)
			}
			lr.c = c
		case "max_iter":
			f, ok := toFloat(v)
			if !ok || f < 1 || f != math.Trunc(f) {
				return errors.NewValidationError("max_iter", "must be a positive integer", v)
			}
			lr.maxIter = int(f)
		case "tol":
			tol, ok := toFloat(v)
			if !ok || tol < 0 {
				return errors.NewValidationError("tol", "must be a non-negative number", v)
			}
			lr.tol = tol
		case "fit_intercept":
			b, ok := v.(bool)
			if !ok {
				return errors.NewValidationError("fit_intercept", "must be a bool", v)
			}
			lr.fitIntercept = b
		default:
			return errors.NewValidationError(k, "unknown parameter for LogisticRegression", v)
		}
	}
	lr.state.Reset()
	lr.coef, lr.intercept, lr.classes, lr.nIter = nil, nil, nil, nil
	return nil
}

// Clone は同じハイパーパラメータを持つ未学習のコピーを返す
func (lr *LogisticRegression) Clone() model.Estimator {
	return NewLogisticRegression(
		WithC(lr.c),
		WithMaxIter(lr.maxIter),
		WithTol(lr.tol),
		WithLogisticIntercept(lr.fitIntercept),
	)
}

// String はモデルの文字列表現を返す
func (lr *LogisticRegression) String() string {
	return fmt.Sprintf("LogisticRegression(C=%g, max_iter=%d, tol=%g, fit_intercept=%t)",
		lr.c, lr.maxIter, lr.tol, lr.fitIntercept)
}

func uniqueLabels(y mat.Matrix, n int) []float64 {
	seen := make(map[float64]struct{})
	for i := 0; i < n; i++ {
		seen[y.At(i, 0)] = struct{}{}
	}
	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// sigmoid は数値的に安定なロジスティック関数
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
