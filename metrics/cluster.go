package metrics

import (
	"gonum.org/v1/gonum/mat"
)

// AdjustedRandScore は2つのクラスタ割り当ての一致度を偶然の一致で補正して返す。
// ラベルの値そのものではなく分割の形だけを比較するので、ラベルの付け替えに対して不変。
// 完全一致で 1、ランダムな割り当てでほぼ 0 になり、負の値も取りうる。
//
//	ari, _ := metrics.AdjustedRandScore(mat.NewVecDense(4, []float64{0, 0, 1, 1}), mat.NewVecDense(4, []float64{1, 1, 0, 0}))
//	// ari == 1
func AdjustedRandScore(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("adjusted_rand_score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	type cell struct{ t, p float64 }
	contingency := make(map[cell]int)
	rows := make(map[float64]int)
	cols := make(map[float64]int)
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i), yPred.AtVec(i)
		contingency[cell{t, p}]++
		rows[t]++
		cols[p]++
	}

	var index, sumRows, sumCols float64
	for _, c := range contingency {
		index += comb2(c)
	}
	for _, c := range rows {
		sumRows += comb2(c)
	}
	for _, c := range cols {
		sumCols += comb2(c)
	}

	expected := sumRows * sumCols / comb2(n)
	maxIndex := (sumRows + sumCols) / 2
	// 両方が1クラスタ、または両方が全て単独クラスタの場合は完全一致とみなす
	if maxIndex == expected {
		return 1, nil
	}
	return (index - expected) / (maxIndex - expected), nil
}

// AdjustedRandScoreMatrix は行列形式の入力に対して AdjustedRandScore を計算する（第1列を使用）
func AdjustedRandScoreMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := matrixPair("adjusted_rand_score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return AdjustedRandScore(t, p)
}

// comb2 は nC2 を返す
func comb2(n int) float64 {
	return float64(n) * float64(n-1) / 2
}
