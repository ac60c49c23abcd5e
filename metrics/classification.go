package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// Accuracy は正解率を計算する。ラベルは完全一致で比較する。
//
//	acc, _ := metrics.Accuracy(mat.NewVecDense(4, []float64{1, 0, 1, 1}), mat.NewVecDense(4, []float64{1, 0, 0, 1}))
//	// acc == 0.75
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AccuracyMatrix は行列形式の入力に対して正解率を計算する（第1列を使用）
func AccuracyMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	t, p, err := matrixPair("accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return Accuracy(t, p)
}

// ClassificationError は誤分類率 (1 - accuracy) を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// ConfusionMatrix は混同行列。行が正解ラベル、列が予測ラベル。
type ConfusionMatrix struct {
	Labels []float64
	Counts *mat.Dense
}

// At は正解 trueLabel を predLabel と予測した件数を返す
func (cm *ConfusionMatrix) At(trueLabel, predLabel float64) int {
	i, j := cm.index(trueLabel), cm.index(predLabel)
	if i < 0 || j < 0 {
		return 0
	}
	return int(cm.Counts.At(i, j))
}

func (cm *ConfusionMatrix) index(label float64) int {
	k := sort.SearchFloat64s(cm.Labels, label)
	if k < len(cm.Labels) && cm.Labels[k] == label {
		return k
	}
	return -1
}

// NewConfusionMatrix は混同行列を計算する。
// labels が nil の場合は y_true と y_pred に現れるラベルのソート済み和集合を使う。
func NewConfusionMatrix(yTrue, yPred *mat.VecDense, labels []float64) (*ConfusionMatrix, error) {
	n, err := checkPair("confusion_matrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		seen := map[float64]struct{}{}
		for i := 0; i < n; i++ {
			seen[yTrue.AtVec(i)] = struct{}{}
			seen[yPred.AtVec(i)] = struct{}{}
		}
		for l := range seen {
			labels = append(labels, l)
		}
	} else {
		labels = append([]float64(nil), labels...)
	}
	sort.Float64s(labels)

	cm := &ConfusionMatrix{Labels: labels, Counts: mat.NewDense(len(labels), len(labels), nil)}
	for i := 0; i < n; i++ {
		r, c := cm.index(yTrue.AtVec(i)), cm.index(yPred.AtVec(i))
		if r < 0 || c < 0 {
			continue
		}
		cm.Counts.Set(r, c, cm.Counts.At(r, c)+1)
	}
	return cm, nil
}

// PrecisionRecallF1 は positive を陽性クラスとした適合率・再現率・F1 を計算する。
// 分母が0になる指標は 0 とし、UndefinedMetricWarning を出す。
func PrecisionRecallF1(yTrue, yPred *mat.VecDense, positive float64) (precision, recall, f1 float64, err error) {
	n, err := checkPair("precision_recall_f1", yTrue, yPred)
	if err != nil {
		return 0, 0, 0, err
	}
	var tp, fp, fn float64
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i) == positive, yPred.AtVec(i) == positive
		switch {
		case t && p:
			tp++
		case !t && p:
			fp++
		case t && !p:
			fn++
		}
	}
	if tp+fp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples", 0))
	} else {
		precision = tp / (tp + fp)
	}
	if tp+fn == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true samples", 0))
	} else {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1, nil
}

// AUC は二値分類の ROC 曲線下面積を順位統計量（Mann-Whitney U）で計算する。
// 同順位のスコアは平均順位を用いる。y_true が片方のクラスしか含まない場合は
// 0.5 を返し UndefinedMetricWarning を出す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("roc_auc", yTrue, yScore)
	if err != nil {
		return 0, err
	}

	type scored struct {
		score float64
		pos   bool
	}
	items := make([]scored, n)
	var nPos float64
	for i := 0; i < n; i++ {
		label := yTrue.AtVec(i)
		if !isBinaryLabel(label) {
			return 0, errors.NewValueError("roc_auc", "y_true must contain only 0 and 1")
		}
		items[i] = scored{score: yScore.AtVec(i), pos: label == 1}
		if label == 1 {
			nPos++
		}
	}
	nNeg := float64(n) - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	sort.Slice(items, func(a, b int) bool { return items[a].score < items[b].score })

	// sum of positive ranks with ties averaged
	var rankSum float64
	for i := 0; i < n; {
		j := i
		for j < n && items[j].score == items[i].score {
			j++
		}
		avgRank := float64(i+j+1) / 2 // ranks are 1-based: (i+1 + j) / 2
		for k := i; k < j; k++ {
			if items[k].pos {
				rankSum += avgRank
			}
		}
		i = j
	}
	u := rankSum - nPos*(nPos+1)/2
	return u / (nPos * nNeg), nil
}

// AUCMatrix は行列形式の入力に対して AUC を計算する（第1列を使用）
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	t, s, err := matrixPair("roc_auc", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	return AUC(t, s)
}

// BinaryLogLoss は二値クロスエントロピーを計算する。
// 予測確率は log(0) を避けるため [eps, 1-eps] にクリップされる。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("log_loss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	const eps = 1e-15
	var sum float64
	for i := 0; i < n; i++ {
		label := yTrue.AtVec(i)
		if !isBinaryLabel(label) {
			return 0, errors.NewValueError("log_loss", "y_true must contain only 0 and 1")
		}
		p := errors.ClipValue(yProb.AtVec(i), eps, 1-eps)
		sum += label*math.Log(p) + (1-label)*math.Log(1-p)
	}
	return -sum / float64(n), nil
}
