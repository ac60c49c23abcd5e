// Package dummy は入力特徴量を無視する単純なベースライン推定器を提供します。
// 他の推定器のスコアを比較する基準として使います。
package dummy

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/metrics"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// ClassifierStrategy は DummyClassifier の予測方法
type ClassifierStrategy string

const (
	// MostFrequent は常に最頻クラスを予測する
	MostFrequent ClassifierStrategy = "most_frequent"
	// Prior は最頻クラスを予測し、確率として事前分布を返す
	Prior ClassifierStrategy = "prior"
	// Stratified は事前分布に従ってランダムにクラスを選ぶ
	Stratified ClassifierStrategy = "stratified"
	// Uniform は一様にランダムなクラスを選ぶ
	Uniform ClassifierStrategy = "uniform"
)

// ClassifierOption configures Classifier
type ClassifierOption func(*Classifier)

// WithStrategy sets the prediction strategy
func WithStrategy(s ClassifierStrategy) ClassifierOption {
	return func(c *Classifier) { c.strategy = s }
}

// WithRandomState sets the seed used by the stratified and uniform strategies
func WithRandomState(seed int64) ClassifierOption {
	return func(c *Classifier) { c.randomState = seed }
}

// Classifier は特徴量を見ずにクラスを予測するベースライン分類器
type Classifier struct {
	strategy    ClassifierStrategy
	randomState int64

	classes []float64
	priors  []float64
	state   *model.StateManager
}

// NewClassifier は DummyClassifier を作成する。既定の戦略は most_frequent。
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		strategy: MostFrequent,
		state:    model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fit はクラスとその出現比率を学習する
func (c *Classifier) Fit(X, y mat.Matrix) error {
	if err := validateStrategy(c.strategy); err != nil {
		return err
	}
	n, nFeatures, err := checkXY("Classifier.Fit", X, y)
	if err != nil {
		return err
	}

	counts := make(map[float64]int)
	for i := 0; i < n; i++ {
		counts[y.At(i, 0)]++
	}
	classes := make([]float64, 0, len(counts))
	for k := range counts {
		classes = append(classes, k)
	}
	sort.Float64s(classes)

	priors := make([]float64, len(classes))
	for i, k := range classes {
		priors[i] = float64(counts[k]) / float64(n)
	}

	c.classes = classes
	c.priors = priors
	c.state.SetFitted(nFeatures, n)
	return nil
}

// Predict はクラスラベルを n×1 で返す。
// ランダムな戦略でも同じ randomState なら呼び出しごとに同じ結果になる。
func (c *Classifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, err := c.checkPredict("Predict", X)
	if err != nil {
		return nil, err
	}
	out := mat.NewVecDense(r, nil)
	rng := c.newRand()
	mode := c.classes[argmax(c.priors)]
	for i := 0; i < r; i++ {
		switch c.strategy {
		case Stratified:
			out.SetVec(i, c.classes[sample(rng, c.priors)])
		case Uniform:
			out.SetVec(i, c.classes[rng.IntN(len(c.classes))])
		default:
			out.SetVec(i, mode)
		}
	}
	return out, nil
}

// PredictProba は n×len(Classes()) のクラス確率を返す
func (c *Classifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	r, err := c.checkPredict("PredictProba", X)
	if err != nil {
		return nil, err
	}
	k := len(c.classes)
	out := mat.NewDense(r, k, nil)
	rng := c.newRand()
	mode := argmax(c.priors)
	for i := 0; i < r; i++ {
		switch c.strategy {
		case Prior:
			out.SetRow(i, c.priors)
		case Stratified:
			out.Set(i, sample(rng, c.priors), 1)
		case Uniform:
			for j := 0; j < k; j++ {
				out.Set(i, j, 1/float64(k))
			}
		default:
			out.Set(i, mode, 1)
		}
	}
	return out, nil
}

// Score は正解率を返す
func (c *Classifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyMatrix(y, pred)
}

// Classes は学習時に観測したクラスをソートして返す
func (c *Classifier) Classes() []float64 {
	return append([]float64(nil), c.classes...)
}

// Priors は各クラスの出現比率を Classes と同じ順で返す
func (c *Classifier) Priors() []float64 {
	return append([]float64(nil), c.priors...)
}

// IsFitted は学習済みかどうかを返す
func (c *Classifier) IsFitted() bool { return c.state.IsFitted() }

// GetParams はハイパーパラメータを返す
func (c *Classifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"strategy":     string(c.strategy),
		"random_state": c.randomState,
	}
}

// SetParams はハイパーパラメータを設定し、学習状態をリセットする
func (c *Classifier) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "strategy":
			s, err := toStrategy(v)
			if err != nil {
				return err
			}
			c.strategy = s
		case "random_state":
			seed, ok := toInt64(v)
			if !ok {
				return errors.NewValidationError("random_state", "must be an integer", v)
			}
			c.randomState = seed
		default:
			return errors.NewValidationError(k, "unknown parameter for dummy.Classifier", v)
		}
	}
	c.state.Reset()
	return nil
}

// Clone は同じハイパーパラメータを持つ未学習のコピーを返す
func (c *Classifier) Clone() model.Estimator {
	return NewClassifier(WithStrategy(c.strategy), WithRandomState(c.randomState))
}

func (c *Classifier) String() string {
	return fmt.Sprintf("dummy.Classifier(strategy=%s)", c.strategy)
}

func (c *Classifier) checkPredict(method string, X mat.Matrix) (int, error) {
	if err := c.state.RequireFitted("dummy.Classifier", method); err != nil {
		return 0, err
	}
	r, cols := X.Dims()
	if err := c.state.RequireFeatures("dummy.Classifier."+method, cols); err != nil {
		return 0, err
	}
	return r, nil
}

func (c *Classifier) newRand() *rand.Rand {
	seed := uint64(c.randomState)
	return rand.New(rand.NewPCG(seed, seed))
}

// argmax は最大値の位置を返す。同値なら先頭を選ぶ。
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// sample は確率 p に従ってインデックスを1つ選ぶ
func sample(rng *rand.Rand, p []float64) int {
	u := rng.Float64()
	var cum float64
	for i, pi := range p {
		cum += pi
		if u < cum {
			return i
		}
	}
	return len(p) - 1
}

func validateStrategy(s ClassifierStrategy) error {
	switch s {
	case MostFrequent, Prior, Stratified, Uniform:
		return nil
	}
	return errors.NewValidationError("strategy", "must be one of most_frequent, prior, stratified, uniform", string(s))
}

func toStrategy(v interface{}) (ClassifierStrategy, error) {
	var s ClassifierStrategy
	switch x := v.(type) {
	case string:
		s = ClassifierStrategy(x)
	case ClassifierStrategy:
		s = x
	default:
		return "", errors.NewValidationError("strategy", "must be a string", v)
	}
	return s, validateStrategy(s)
}

func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
	}
	return 0, false
}

// checkXY は学習データの形を検証し、行数と特徴量数を返す
func checkXY(op string, X, y mat.Matrix) (int, int, error) {
	if X == nil || y == nil {
		return 0, 0, errors.NewValueError(op, "X and y are required")
	}
	r, c := X.Dims()
	if r == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	ry, cy := y.Dims()
	if ry != r {
		return 0, 0, errors.NewDimensionError(op, r, ry, 0)
	}
	if cy != 1 {
		return 0, 0, errors.NewValueError(op, "y must be a column vector")
	}
	return r, c, nil
}
