package metrics

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// Scorer は予測結果を1つのスコアに要約する。値が大きいほど良い。
// 損失系の指標は符号を反転した neg_* として登録されている。
type Scorer func(yTrue, yPred mat.Matrix) (float64, error)

var scorers = map[string]Scorer{
	"accuracy":                    vectorScorer("accuracy", Accuracy, 1),
	"r2":                          vectorScorer("r2_score", R2Score, 1),
	"explained_variance":          vectorScorer("explained_variance_score", ExplainedVarianceScore, 1),
	"neg_mean_squared_error":      vectorScorer("mean_squared_error", MSE, -1),
	"neg_root_mean_squared_error": vectorScorer("root_mean_squared_error", RMSE, -1),
	"neg_mean_absolute_error":     vectorScorer("mean_absolute_error", MAE, -1),
	"neg_log_loss":                vectorScorer("log_loss", BinaryLogLoss, -1),
	"roc_auc":                     AUCMatrix,
	"adjusted_rand_score":         AdjustedRandScoreMatrix,
}

func vectorScorer(op string, metric func(yTrue, yPred *mat.VecDense) (float64, error), sign float64) Scorer {
	return func(yTrue, yPred mat.Matrix) (float64, error) {
		t, p, err := matrixPair(op, yTrue, yPred)
		if err != nil {
			return 0, err
		}
		v, err := metric(t, p)
		if err != nil {
			return 0, err
		}
		return sign * v, nil
	}
}

// GetScorer は名前からスコアラーを返す。
// 未知の名前に対しては ValidationError を返す。
func GetScorer(name string) (Scorer, error) {
	s, ok := scorers[name]
	if !ok {
		return nil, errors.NewValidationError("scoring", "unknown scorer, expected one of "+strings.Join(ScorerNames(), ", "), name)
	}
	return s, nil
}

// ScorerNames は登録済みのスコアラー名をソートして返す
func ScorerNames() []string {
	names := make([]string, 0, len(scorers))
	for name := range scorers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
