// Package cluster は教師なしクラスタリング推定器を提供します。
//
// 推定器は model.Estimator を満たすので Pipeline や交差検証にそのまま渡せます。
// Fit に渡したターゲットは無視されます。
package cluster

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/core/parallel"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// 初期化方法
const (
	InitKMeansPlusPlus = "k-means++"
	InitRandom         = "random"
)

// Option configures KMeans
type Option func(*KMeans)

// WithNClusters sets the number of clusters
func WithNClusters(n int) Option {
	return func(km *KMeans) { km.nClusters = n }
}

// WithInit sets the center initialization method: "k-means++" or "random"
func WithInit(init string) Option {
	return func(km *KMeans) { km.init = init }
}

// WithMaxIter sets the maximum number of Lloyd iterations per run
func WithMaxIter(n int) Option {
	return func(km *KMeans) { km.maxIter = n }
}

// WithTol sets the relative tolerance on center movement.
// It is scaled by the mean feature variance of the training data.
func WithTol(tol float64) Option {
	return func(km *KMeans) { km.tol = tol }
}

// WithNInit sets how many initializations to run; the lowest inertia wins
func WithNInit(n int) Option {
	return func(km *KMeans) { km.nInit = n }
}

// WithRandomState sets the seed used for initialization
func WithRandomState(seed int64) Option {
	return func(km *KMeans) { km.randomState = seed }
}

// KMeans は Lloyd 法による K-means クラスタリング。
// 同じ randomState なら Fit の結果は常に同じになる。
type KMeans struct {
	nClusters   int
	init        string
	maxIter     int
	tol         float64
	nInit       int
	randomState int64

	centers [][]float64
	labels  []int
	inertia float64
	nIter   int
	state   *model.StateManager
}

// NewKMeans は既定値 n_clusters=8, init=k-means++, max_iter=300, tol=1e-4, n_init=10 でモデルを作成する
func NewKMeans(opts ...Option) *KMeans {
	km := &KMeans{
		nClusters: 8,
		init:      InitKMeansPlusPlus,
		maxIter:   300,
		tol:       1e-4,
		nInit:     10,
		state:     model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(km)
	}
	return km
}

// Fit は X のクラスタ中心を学習する。y は無視され、nil でもよい。
func (km *KMeans) Fit(X, y mat.Matrix) error {
	if err := km.validate(); err != nil {
		return err
	}
	if X == nil {
		return errors.NewValueError("KMeans.Fit", "X is required")
	}
	n, d := X.Dims()
	if n == 0 {
		return errors.NewModelError("KMeans.Fit", "empty data", errors.ErrEmptyData)
	}
	if n < km.nClusters {
		return errors.NewValueError("KMeans.Fit",
			fmt.Sprintf("n_samples=%d should be >= n_clusters=%d", n, km.nClusters))
	}

	if err := errors.CheckMatrix("KMeans.Fit", X, n, d, 0); err != nil {
		return err
	}

	rows := denseRows(X)
	tol := km.tol * meanVariance(rows, d)
	rng := rand.New(rand.NewPCG(uint64(km.randomState), uint64(km.randomState)))

	best := math.Inf(1)
	for run := 0; run < km.nInit; run++ {
		var centers [][]float64
		if km.init == InitRandom {
			centers = initRandom(rows, km.nClusters, rng)
		} else {
			centers = initKMeansPlusPlus(rows, km.nClusters, rng)
		}
		centers, labels, inertia, nIter := lloyd(rows, centers, km.maxIter, tol)
		if inertia < best {
			best = inertia
			km.centers, km.labels, km.inertia, km.nIter = centers, labels, inertia, nIter
		}
	}

	if err := errors.CheckNumericalStability("KMeans.Fit", flatten(km.centers), km.nIter); err != nil {
		return err
	}
	km.state.SetFitted(d, n)
	return nil
}

// Predict は各行に最も近いクラスタ番号を n×1 で返す
func (km *KMeans) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := km.checkPredict("Predict", X)
	if err != nil {
		return nil, err
	}
	labels, _ := assign(rows, km.centers)
	out := mat.NewVecDense(len(rows), nil)
	for i, l := range labels {
		out.SetVec(i, float64(l))
	}
	return out, nil
}

// Transform は各行から各クラスタ中心までのユークリッド距離を n×n_clusters で返す
func (km *KMeans) Transform(X mat.Matrix) (mat.Matrix, error) {
	rows, err := km.checkPredict("Transform", X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(rows), len(km.centers), nil)
	parallel.ParallelizeWithThreshold(len(rows), parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for c, center := range km.centers {
				out.Set(i, c, math.Sqrt(sqDist(rows[i], center)))
			}
		}
	})
	return out, nil
}

// FitPredict は学習後に訓練データのクラスタ番号を返す
func (km *KMeans) FitPredict(X mat.Matrix) (mat.Matrix, error) {
	if err := km.Fit(X, nil); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(len(km.labels), nil)
	for i, l := range km.labels {
		out.SetVec(i, float64(l))
	}
	return out, nil
}

// Score は X の慣性（クラスタ内平方和）の符号を反転した値を返す。大きいほど良い。y は無視される。
func (km *KMeans) Score(X, _ mat.Matrix) (float64, error) {
	rows, err := km.checkPredict("Score", X)
	if err != nil {
		return 0, err
	}
	_, d2 := assign(rows, km.centers)
	var inertia float64
	for _, v := range d2 {
		inertia += v
	}
	return -inertia, nil
}

// ClusterCenters は n_clusters×n_features のクラスタ中心を返す
func (km *KMeans) ClusterCenters() *mat.Dense {
	if len(km.centers) == 0 {
		return nil
	}
	return mat.NewDense(len(km.centers), len(km.centers[0]), flatten(km.centers))
}

// Labels は訓練データの各行のクラスタ番号を返す
func (km *KMeans) Labels() []int { return append([]int(nil), km.labels...) }

// Inertia は訓練データのクラスタ内平方和を返す
func (km *KMeans) Inertia() float64 { return km.inertia }

// NIter は採用した初期化での反復回数を返す
func (km *KMeans) NIter() int { return km.nIter }

// IsFitted は学習済みかどうかを返す
func (km *KMeans) IsFitted() bool { return km.state.IsFitted() }

// GetParams はハイパーパラメータを返す
func (km *KMeans) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_clusters":   km.nClusters,
		"init":         km.init,
		"max_iter":     km.maxIter,
		"tol":          km.tol,
		"n_init":       km.nInit,
		"random_state": km.randomState,
	}
}

// SetParams はハイパーパラメータを設定し、学習状態をリセットする
func (km *KMeans) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "n_clusters", "max_iter", "n_init":
			n, ok := toInt(v)
			if !ok || n < 1 {
				return errors.NewValidationError(k, "must be a positive integer", v)
			}
			switch k {
			case "n_clusters":
				km.nClusters = n
			case "max_iter":
				km.maxIter = n
			default:
				km.nInit = n
			}
		case "init":
			s, ok := v.(string)
			if !ok || (s != InitKMeansPlusPlus && s != InitRandom) {
				return errors.NewValidationError("init", "must be k-means++ or random", v)
			}
			km.init = s
		case "tol":
			tol, ok := toFloat(v)
			if !ok || tol < 0 {
				return errors.NewValidationError("tol", "must be a non-negative number", v)
			}
			km.tol = tol
		case "random_state":
			n, ok := toInt(v)
			if !ok {
				return errors.NewValidationError("random_state", "must be an integer", v)
			}
			km.randomState = int64(n)
		default:
			return errors.NewValidationError(k, "unknown parameter for KMeans", v)
		}
	}
	km.state.Reset()
	km.centers, km.labels = nil, nil
	return nil
}

// Clone は同じハイパーパラメータを持つ未学習のコピーを返す
func (km *KMeans) Clone() model.Estimator {
	return NewKMeans(
		WithNClusters(km.nClusters),
		WithInit(km.init),
		WithMaxIter(km.maxIter),
		WithTol(km.tol),
		WithNInit(km.nInit),
		WithRandomState(km.randomState),
	)
}

func (km *KMeans) String() string {
	return fmt.Sprintf("KMeans(n_clusters=%d, init=%s, n_init=%d)", km.nClusters, km.init, km.nInit)
}

func (km *KMeans) validate() error {
	switch {
	case km.nClusters < 1:
		return errors.NewValidationError("n_clusters", "must be a positive integer", km.nClusters)
	case km.maxIter < 1:
		return errors.NewValidationError("max_iter", "must be a positive integer", km.maxIter)
	case km.nInit < 1:
		return errors.NewValidationError("n_init", "must be a positive integer", km.nInit)
	case km.tol < 0:
		return errors.NewValidationError("tol", "must be a non-negative number", km.tol)
	case km.init != InitKMeansPlusPlus && km.init != InitRandom:
		return errors.NewValidationError("init", "must be k-means++ or random", km.init)
	}
	return nil
}

func (km *KMeans) checkPredict(method string, X mat.Matrix) ([][]float64, error) {
	if err := km.state.RequireFitted("KMeans", method); err != nil {
		return nil, err
	}
	if X == nil {
		return nil, errors.NewValueError("KMeans."+method, "X is required")
	}
	_, cols := X.Dims()
	if err := km.state.RequireFeatures("KMeans."+method, cols); err != nil {
		return nil, err
	}
	return denseRows(X), nil
}

// lloyd は割り当てと中心の更新を、中心の移動量の二乗和が tol 以下になるまで繰り返す
func lloyd(rows, centers [][]float64, maxIter int, tol float64) ([][]float64, []int, float64, int) {
	k, d := len(centers), len(rows[0])
	var nIter int
	for nIter = 1; nIter <= maxIter; nIter++ {
		labels, d2 := assign(rows, centers)

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, d)
		}
		for i, l := range labels {
			counts[l]++
			for j, v := range rows[i] {
				next[l][j] += v
			}
		}
		for c := range next {
			if counts[c] == 0 {
				// 空のクラスタは現在の中心から最も遠い点に移す
				far := farthest(d2)
				copy(next[c], rows[far])
				d2[far] = 0
				continue
			}
			for j := range next[c] {
				next[c][j] /= float64(counts[c])
			}
		}

		var shift float64
		for c := range centers {
			shift += sqDist(centers[c], next[c])
		}
		centers = next
		if shift <= tol {
			break
		}
	}
	if nIter > maxIter {
		nIter = maxIter
	}

	labels, d2 := assign(rows, centers)
	var inertia float64
	for _, v := range d2 {
		inertia += v
	}
	return centers, labels, inertia, nIter
}

// assign は各行の最近傍中心とその二乗距離を返す。距離が等しい場合は番号の小さい中心を選ぶ。
func assign(rows, centers [][]float64) ([]int, []float64) {
	labels := make([]int, len(rows))
	d2 := make([]float64, len(rows))
	parallel.ParallelizeWithThreshold(len(rows), parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			labels[i], d2[i] = nearest(rows[i], centers)
		}
	})
	return labels, d2
}

func nearest(x []float64, centers [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		if dist := sqDist(x, center); dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best, bestDist
}

// initKMeansPlusPlus は既存の中心からの二乗距離に比例した確率で次の中心を選ぶ
func initKMeansPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), rows[rng.IntN(n)]...))

	d2 := make([]float64, n)
	for i := range rows {
		d2[i] = sqDist(rows[i], centers[0])
	}
	for len(centers) < k {
		var total float64
		for _, v := range d2 {
			total += v
		}
		idx := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			var cum float64
			for i, v := range d2 {
				cum += v
				if cum > target {
					idx = i
					break
				}
			}
		}
		center := append([]float64(nil), rows[idx]...)
		centers = append(centers, center)
		for i := range rows {
			if dist := sqDist(rows[i], center); dist < d2[i] {
				d2[i] = dist
			}
		}
	}
	return centers
}

// initRandom は重複なしに選んだ k 行を初期中心にする
func initRandom(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	perm := rng.Perm(len(rows))
	centers := make([][]float64, k)
	for c := range centers {
		centers[c] = append([]float64(nil), rows[perm[c]]...)
	}
	return centers
}

func farthest(d2 []float64) int {
	best := 0
	for i, v := range d2 {
		if v > d2[best] {
			best = i
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// meanVariance は各特徴量の母分散の平均を返す
func meanVariance(rows [][]float64, d int) float64 {
	col := make([]float64, len(rows))
	var sum float64
	for j := 0; j < d; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		sum += stat.PopVariance(col, nil)
	}
	if d == 0 {
		return 0
	}
	return sum / float64(d)
}

func denseRows(X mat.Matrix) [][]float64 {
	r, _ := X.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}
	return rows
}

func flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if x == math.Trunc(x) {
			return int(x), true
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
