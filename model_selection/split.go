// Package model_selection はデータ分割、交差検証、ハイパーパラメータ探索を提供します。
//
// 分割はすべて明示的なシードを持つ独自の乱数源で行われ、同じ設定に対して
// 常に同じ分割を返します。グローバルな乱数状態には依存しません。
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/skflow/dataset"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// DefaultTestSize は TrainSize と TestSize が共に未指定のときのテスト比率
const DefaultTestSize = 0.25

// 浮動小数点の丸め誤差で 0.3*10 が 3.0000000000000004 になる場合などを吸収する
const countEpsilon = 1e-9

// SplitConfig は TrainTestSplit の設定
type SplitConfig struct {
	// TrainSize は訓練データの比率。0 は未指定（TestSize の補数）
	TrainSize float64
	// TestSize はテストデータの比率。0 は未指定
	TestSize float64
	// Seed は Shuffle 時の乱数シード
	Seed int64
	// Shuffle が true の場合、分割前に行をシャッフルする
	Shuffle bool
	// Stratify が true の場合、ターゲットのクラス比率を保って分割する
	Stratify bool
	// StratifyColumn を指定すると、ターゲットの代わりにこの列の値で層化する
	StratifyColumn string
}

// Split は TrainTestSplit の結果。Train と Test は元の Dataset から Subset で作られる。
type Split struct {
	Train    *dataset.Dataset
	Test     *dataset.Dataset
	TrainIdx []int
	TestIdx  []int
}

// TrainTestSplit はデータセットを訓練用とテスト用に分割する。
//
//	split, err := model_selection.TrainTestSplit(ds, model_selection.SplitConfig{
//	    TestSize: 0.2, Seed: 42, Shuffle: true, Stratify: true,
//	})
func TrainTestSplit(ds *dataset.Dataset, cfg SplitConfig) (*Split, error) {
	if ds == nil || ds.NRows() == 0 {
		return nil, errors.NewValueError("TrainTestSplit", "empty dataset")
	}
	n := ds.NRows()
	nTrain, nTest, err := splitCounts(n, cfg.TrainSize, cfg.TestSize)
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if cfg.Shuffle {
		rng = newRand(cfg.Seed)
	}

	var trainIdx, testIdx []int
	if cfg.Stratify || cfg.StratifyColumn != "" {
		keys, err := stratifyKeys(ds, cfg.StratifyColumn)
		if err != nil {
			return nil, err
		}
		trainIdx, testIdx = stratifiedIndices(keys, nTrain, nTest, rng)
	} else {
		perm := identity(n)
		if rng != nil {
			rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		}
		testIdx = perm[:nTest]
		trainIdx = perm[nTest : nTest+nTrain]
	}

	train, err := ds.Subset(trainIdx)
	if err != nil {
		return nil, err
	}
	test, err := ds.Subset(testIdx)
	if err != nil {
		return nil, err
	}
	return &Split{Train: train, Test: test, TrainIdx: trainIdx, TestIdx: testIdx}, nil
}

// splitCounts は比率から訓練・テストの件数を決める。
// テストは切り上げ、TrainSize 指定時の訓練は切り捨て。
func splitCounts(n int, trainSize, testSize float64) (nTrain, nTest int, err error) {
	for _, p := range []struct {
		name string
		v    float64
	}{{"train_size", trainSize}, {"test_size", testSize}} {
		if math.IsNaN(p.v) || p.v < 0 || p.v >= 1 {
			return 0, 0, errors.NewInvalidFractionError(p.name, p.v, n, "must be in (0, 1)")
		}
	}

	switch {
	case trainSize == 0 && testSize == 0:
		testSize = DefaultTestSize
	case testSize == 0:
		testSize = 1 - trainSize
	}
	if trainSize+testSize > 1+countEpsilon {
		return 0, 0, errors.NewInvalidFractionError("train_size", trainSize, n,
			"train_size + test_size = "+strconv.FormatFloat(trainSize+testSize, 'g', -1, 64)+" exceeds 1")
	}

	nTest = int(math.Ceil(testSize*float64(n) - countEpsilon))
	if trainSize == 0 {
		nTrain = n - nTest
	} else {
		nTrain = int(math.Floor(trainSize*float64(n) + countEpsilon))
	}
	if nTrain+nTest > n {
		nTrain = n - nTest
	}
	if nTrain+nTest < n {
		return 0, 0, errors.NewInvalidFractionError("train_size", trainSize, n,
			"train_size + test_size leaves "+strconv.Itoa(n-nTrain-nTest)+" rows unassigned")
	}

	if nTest == 0 {
		return 0, 0, errors.NewInvalidFractionError("test_size", testSize, n, "test partition would be empty")
	}
	if nTrain <= 0 {
		return 0, 0, errors.NewInvalidFractionError("train_size", 1-testSize, n, "train partition would be empty")
	}
	return nTrain, nTest, nil
}

// stratifyKeys は層化に使う各行のキーを返す
func stratifyKeys(ds *dataset.Dataset, column string) ([]string, error) {
	if column == "" {
		if !ds.HasTarget() {
			return nil, errors.NewValueError("TrainTestSplit", "stratify requires a target column")
		}
		y := ds.TargetValues()
		keys := make([]string, len(y))
		for i, v := range y {
			keys[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return keys, nil
	}

	idx := ds.Schema().Index(column)
	if idx < 0 {
		return nil, errors.NewValueError("TrainTestSplit", "stratify column "+strconv.Quote(column)+" not found")
	}
	if ds.Schema()[idx].Kind == dataset.Categorical {
		return ds.CategoricalColumn(column)
	}
	vals, err := ds.NumericColumn(column)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(vals))
	for i, v := range vals {
		keys[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return keys, nil
}

// stratifiedIndices はクラスごとの件数を最大剰余法で配分して分割する
func stratifiedIndices(keys []string, nTrain, nTest int, rng *rand.Rand) (trainIdx, testIdx []int) {
	groups, order := groupBy(keys)
	if rng != nil {
		for _, k := range order {
			g := groups[k]
			rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
		}
	}

	counts := make([]int, len(order))
	for i, k := range order {
		counts[i] = len(groups[k])
	}
	testAlloc := allocate(nTest, counts, counts)
	caps := make([]int, len(counts))
	for i := range counts {
		caps[i] = counts[i] - testAlloc[i]
	}
	trainAlloc := allocate(nTrain, counts, caps)

	for i, k := range order {
		g := groups[k]
		testIdx = append(testIdx, g[:testAlloc[i]]...)
		trainIdx = append(trainIdx, g[testAlloc[i]:testAlloc[i]+trainAlloc[i]]...)
	}

	if rng != nil {
		rng.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })
		rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	} else {
		sort.Ints(testIdx)
		sort.Ints(trainIdx)
	}
	return trainIdx, testIdx
}

// allocate は total を counts に比例して配分する（最大剰余法）。
// 各要素は caps を超えない。同じ剰余ならクラス順で先のものを優先する。
func allocate(total int, counts, caps []int) []int {
	n := 0
	for _, c := range counts {
		n += c
	}
	out := make([]int, len(counts))
	rem := make([]float64, len(counts))
	assigned := 0
	for i, c := range counts {
		exact := float64(total) * float64(c) / float64(n)
		out[i] = min(int(math.Floor(exact+countEpsilon)), caps[i])
		rem[i] = exact - float64(out[i])
		assigned += out[i]
	}

	order := identity(len(counts))
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })
	for assigned < total {
		progressed := false
		for _, i := range order {
			if assigned == total {
				break
			}
			if out[i] < caps[i] {
				out[i]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

// groupBy は行インデックスをキーごとにまとめ、キーをソートして返す
func groupBy(keys []string) (map[string][]int, []string) {
	groups := make(map[string][]int)
	for i, k := range keys {
		groups[k] = append(groups[k], i)
	}
	order := make([]string, 0, len(groups))
	for k := range groups {
		order = append(order, k)
	}
	sort.Strings(order)
	return groups, order
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}
