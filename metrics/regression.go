package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("mean_squared_error", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// MSEMatrix は n×1 行列形式の入力に対してMSEを計算する
func MSEMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("MSEMatrix", "nil matrix")
	}
	_, cTrue := yTrue.Dims()
	_, cPred := yPred.Dims()
	if cTrue > 1 || cPred > 1 {
		return 0, errors.NewValueError("MSEMatrix", "must be a column vector (n×1 matrix)")
	}
	t, p, err := matrixPair("MSEMatrix", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return MSE(t, p)
}

// R2ScoreMatrix は行列形式の入力に対して R² を計算する（第1列を使用）
func R2ScoreMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := matrixPair("r2_score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return R2Score(t, p)
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("mean_absolute_error", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score は決定係数（R²）を計算する。
// y_true の分散が0の場合は定義できないため ValueError を返す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("r2_score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	yMean := stat.Mean(mat.Col(nil, 0, yTrue), nil)

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i), yPred.AtVec(i)
		tss += (t - yMean) * (t - yMean)
		rss += (t - p) * (t - p)
	}
	if tss == 0 {
		return 0, errors.NewValueError("r2_score", "total sum of squares is zero (no variance in y_true)")
	}
	return 1 - rss/tss, nil
}

// MAPE は平均絶対パーセンテージ誤差を計算する。y_true が0の要素は除外する。
func MAPE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("mean_absolute_percentage_error", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	validCount := 0
	for i := 0; i < n; i++ {
		t := yTrue.AtVec(i)
		if t == 0 {
			continue
		}
		sum += math.Abs(t-yPred.AtVec(i)) / math.Abs(t)
		validCount++
	}
	if validCount == 0 {
		return 0, errors.NewValueError("mean_absolute_percentage_error", "all y_true values are zero")
	}
	return (sum / float64(validCount)) * 100, nil
}

// ExplainedVarianceScore は説明分散スコアを計算する
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	if _, err := checkPair("explained_variance_score", yTrue, yPred); err != nil {
		return 0, err
	}
	t := mat.Col(nil, 0, yTrue)
	diff := mat.Col(nil, 0, yPred)
	floats.SubTo(diff, t, diff)

	_, varTrue := stat.PopMeanVariance(t, nil)
	_, varDiff := stat.PopMeanVariance(diff, nil)
	if varTrue == 0 {
		return 0, errors.NewValueError("explained_variance_score", "no variance in y_true")
	}
	return 1 - varDiff/varTrue, nil
}
