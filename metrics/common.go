// Package metrics は分類・回帰の評価指標と、名前で引けるスコアラーを提供します。
//
// 全ての関数は y_true と y_pred の長さが異なる場合に LengthMismatchError を、
// 空の入力に対して ValueError を返します。
package metrics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// checkPair は入力ベクトルを検証し、長さを返す
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 || yPred.Len() == 0 {
		if yTrue != nil && yPred != nil && yTrue.Len() != yPred.Len() {
			return 0, errors.NewLengthMismatchError(op, yTrue.Len(), yPred.Len())
		}
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yTrue.Len() != yPred.Len() {
		return 0, errors.NewLengthMismatchError(op, yTrue.Len(), yPred.Len())
	}
	return yTrue.Len(), nil
}

// firstColumn は行列の第1列をベクトルとしてコピーする
func firstColumn(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError(op, "nil matrix")
	}
	if v, ok := m.(*mat.VecDense); ok {
		if v.Len() == 0 {
			return nil, errors.NewValueError(op, "empty matrix")
		}
		return v, nil
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v, nil
}

// matrixPair は2つの n×k 行列の第1列を取り出す
func matrixPair(op string, yTrue, yPred mat.Matrix) (*mat.VecDense, *mat.VecDense, error) {
	t, err := firstColumn(op, yTrue)
	if err != nil {
		return nil, nil, err
	}
	p, err := firstColumn(op, yPred)
	if err != nil {
		return nil, nil, err
	}
	return t, p, nil
}

func isBinaryLabel(v float64) bool {
	return v == 0 || v == 1
}
