package model_selection

import (
	"strconv"

	"github.com/YuminosukeSato/skflow/dataset"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// Fold は交差検証の1分割分の行インデックス
type Fold struct {
	TrainIdx []int
	TestIdx  []int
}

// Splitter は交差検証用の分割器
type Splitter interface {
	Split(ds *dataset.Dataset) ([]Fold, error)
	NSplits() int
}

// KFold は k 分割交差検証の分割器
type KFold struct {
	K       int
	Shuffle bool
	Seed    int64
}

// NewKFold は k 分割の分割器を作成する。nSplits < 2 の場合は 5 を使う。
func NewKFold(nSplits int, shuffle bool, seed int64) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{K: nSplits, Shuffle: shuffle, Seed: seed}
}

// NSplits は分割数を返す
func (kf *KFold) NSplits() int { return kf.K }

// Split は各フォールドの訓練・テストインデックスを生成する。
// 先頭の n%k 個のフォールドが1件ずつ多くなる。
func (kf *KFold) Split(ds *dataset.Dataset) ([]Fold, error) {
	n, err := checkSplits("KFold", ds, kf.K)
	if err != nil {
		return nil, err
	}

	indices := identity(n)
	if kf.Shuffle {
		r := newRand(kf.Seed)
		r.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	}

	assignment := make([]int, n)
	foldSize, remainder := n/kf.K, n%kf.K
	current := 0
	for f := 0; f < kf.K; f++ {
		size := foldSize
		if f < remainder {
			size++
		}
		for _, i := range indices[current : current+size] {
			assignment[i] = f
		}
		current += size
	}
	return foldsFromAssignment(indices, assignment, kf.K), nil
}

// StratifiedKFold はターゲットのクラス比率を各フォールドで保つ k 分割器
type StratifiedKFold struct {
	K       int
	Shuffle bool
	Seed    int64
}

// NewStratifiedKFold は層化 k 分割の分割器を作成する
func NewStratifiedKFold(nSplits int, shuffle bool, seed int64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{K: nSplits, Shuffle: shuffle, Seed: seed}
}

// NSplits は分割数を返す
func (skf *StratifiedKFold) NSplits() int { return skf.K }

// Split はクラスごとの行を順番にフォールドへ配る。
// 各クラスのフォールド間の件数差は高々1、フォールドサイズの差も高々1になる。
func (skf *StratifiedKFold) Split(ds *dataset.Dataset) ([]Fold, error) {
	n, err := checkSplits("StratifiedKFold", ds, skf.K)
	if err != nil {
		return nil, err
	}
	if !ds.HasTarget() {
		return nil, errors.NewValueError("StratifiedKFold", "stratification requires a target column")
	}

	keys, err := stratifyKeys(ds, "")
	if err != nil {
		return nil, err
	}
	groups, order := groupBy(keys)
	if skf.Shuffle {
		r := newRand(skf.Seed)
		for _, k := range order {
			g := groups[k]
			r.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
		}
	}

	assignment := make([]int, n)
	indices := make([]int, 0, n)
	next := 0
	for _, k := range order {
		for _, i := range groups[k] {
			assignment[i] = next
			next = (next + 1) % skf.K
			indices = append(indices, i)
		}
	}
	return foldsFromAssignment(indices, assignment, skf.K), nil
}

// ShuffleSplit は独立したランダム分割を NSplits 回生成する
type ShuffleSplit struct {
	K         int
	TestSize  float64
	TrainSize float64
	Seed      int64
}

// NewShuffleSplit はランダム分割器を作成する。testSize が 0 の場合は 0.1 を使う。
func NewShuffleSplit(nSplits int, testSize float64, seed int64) *ShuffleSplit {
	if nSplits < 1 {
		nSplits = 10
	}
	if testSize == 0 {
		testSize = 0.1
	}
	return &ShuffleSplit{K: nSplits, TestSize: testSize, Seed: seed}
}

// NSplits は分割数を返す
func (ss *ShuffleSplit) NSplits() int { return ss.K }

// Split は1つの乱数源から NSplits 個の置換を順に生成する
func (ss *ShuffleSplit) Split(ds *dataset.Dataset) ([]Fold, error) {
	if ds == nil || ds.NRows() == 0 {
		return nil, errors.NewValueError("ShuffleSplit", "empty dataset")
	}
	n := ds.NRows()
	nTrain, nTest, err := splitCounts(n, ss.TrainSize, ss.TestSize)
	if err != nil {
		return nil, err
	}

	r := newRand(ss.Seed)
	folds := make([]Fold, ss.K)
	for f := range folds {
		perm := r.Perm(n)
		folds[f] = Fold{
			TestIdx:  perm[:nTest],
			TrainIdx: perm[nTest : nTest+nTrain],
		}
	}
	return folds, nil
}

func checkSplits(op string, ds *dataset.Dataset, k int) (int, error) {
	if ds == nil || ds.NRows() == 0 {
		return 0, errors.NewValueError(op, "empty dataset")
	}
	if k < 2 {
		return 0, errors.NewValidationError("n_splits", "must be at least 2", k)
	}
	n := ds.NRows()
	if n < k {
		return 0, errors.NewValueError(op, "cannot have n_splits="+strconv.Itoa(k)+
			" greater than the number of samples "+strconv.Itoa(n))
	}
	return n, nil
}

// foldsFromAssignment は行ごとのフォールド番号から Fold を組み立てる。
// テストインデックスは indices の順、訓練インデックスは昇順。
func foldsFromAssignment(indices, assignment []int, k int) []Fold {
	folds := make([]Fold, k)
	for _, i := range indices {
		f := assignment[i]
		folds[f].TestIdx = append(folds[f].TestIdx, i)
	}
	for f := range folds {
		train := make([]int, 0, len(indices)-len(folds[f].TestIdx))
		for i, a := range assignment {
			if a != f {
				train = append(train, i)
			}
		}
		folds[f].TrainIdx = train
	}
	return folds
}
