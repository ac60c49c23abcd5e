package model_selection

import (
	"slices"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/dataset"
)

func TestKFold_Split(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		k         int
		shuffle   bool
		wantSizes []int
	}{
		{name: "even", n: 10, k: 5, wantSizes: []int{2, 2, 2, 2, 2}},
		{name: "remainder goes first", n: 11, k: 3, wantSizes: []int{4, 4, 3}},
		{name: "shuffled", n: 7, k: 2, shuffle: true, wantSizes: []int{4, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kf := NewKFold(tt.k, tt.shuffle, 42)
			folds, err := kf.Split(numberedRegression(tt.n))
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if len(folds) != kf.NSplits() {
				t.Fatalf("got %d folds, want %d", len(folds), kf.NSplits())
			}

			var allTest []int
			for i, f := range folds {
				if len(f.TestIdx) != tt.wantSizes[i] {
					t.Errorf("fold %d test size = %d, want %d", i, len(f.TestIdx), tt.wantSizes[i])
				}
				assertDisjoint(t, f.TrainIdx, f.TestIdx)
				assertCovers(t, tt.n, f.TrainIdx, f.TestIdx)
				allTest = append(allTest, f.TestIdx...)
			}
			// test folds partition the rows
			assertCovers(t, tt.n, allTest)
		})
	}
}

func TestKFold_UnshuffledIsContiguous(t *testing.T) {
	folds, err := NewKFold(3, false, 0).Split(numberedRegression(6))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(folds[1].TestIdx, []int{2, 3}) {
		t.Errorf("fold 1 test = %v, want [2 3]", folds[1].TestIdx)
	}
	if !slices.Equal(folds[1].TrainIdx, []int{0, 1, 4, 5}) {
		t.Errorf("fold 1 train = %v, want [0 1 4 5]", folds[1].TrainIdx)
	}
}

func TestKFold_Deterministic(t *testing.T) {
	a, _ := NewKFold(4, true, 3).Split(numberedRegression(20))
	b, _ := NewKFold(4, true, 3).Split(numberedRegression(20))
	for i := range a {
		if !slices.Equal(a[i].TestIdx, b[i].TestIdx) {
			t.Fatalf("fold %d differs between runs", i)
		}
	}
}

func TestKFold_Errors(t *testing.T) {
	if _, err := NewKFold(5, false, 0).Split(numberedRegression(3)); err == nil {
		t.Error("expected error when n_splits exceeds samples")
	}
	if _, err := (&KFold{K: 1}).Split(numberedRegression(3)); err == nil {
		t.Error("expected error for a single split")
	}
	if NewKFold(0, false, 0).NSplits() != 5 {
		t.Error("expected default of 5 splits")
	}
}

func TestStratifiedKFold_Split(t *testing.T) {
	// classes 0,1,2 with 9, 6 and 3 rows
	labels := []float64{}
	for i := 0; i < 9; i++ {
		labels = append(labels, 0)
	}
	for i := 0; i < 6; i++ {
		labels = append(labels, 1)
	}
	for i := 0; i < 3; i++ {
		labels = append(labels, 2)
	}
	n := len(labels)
	x := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
	}
	ds, err := dataset.FromMatrix(x, mat.NewVecDense(n, labels), nil)
	if err != nil {
		t.Fatal(err)
	}

	folds, err := NewStratifiedKFold(3, true, 11).Split(ds)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	var allTest []int
	for i, f := range folds {
		assertDisjoint(t, f.TrainIdx, f.TestIdx)
		assertCovers(t, n, f.TrainIdx, f.TestIdx)
		allTest = append(allTest, f.TestIdx...)

		counts := map[float64]int{}
		for _, idx := range f.TestIdx {
			counts[labels[idx]]++
		}
		want := map[float64]int{0: 3, 1: 2, 2: 1}
		for label, c := range want {
			if counts[label] != c {
				t.Errorf("fold %d class %v count = %d, want %d", i, label, counts[label], c)
			}
		}
	}
	assertCovers(t, n, allTest)
}

func TestStratifiedKFold_UnevenClasses(t *testing.T) {
	ds := numbered(17, 3)
	folds, err := NewStratifiedKFold(4, false, 0).Split(ds)
	if err != nil {
		t.Fatal(err)
	}
	y := ds.TargetValues()
	minSize, maxSize := 17, 0
	for _, f := range folds {
		minSize = min(minSize, len(f.TestIdx))
		maxSize = max(maxSize, len(f.TestIdx))
	}
	if maxSize-minSize > 1 {
		t.Errorf("fold sizes differ by %d", maxSize-minSize)
	}
	for class := 0.0; class < 3; class++ {
		lo, hi := 17, 0
		for _, f := range folds {
			c := 0
			for _, i := range f.TestIdx {
				if y[i] == class {
					c++
				}
			}
			lo, hi = min(lo, c), max(hi, c)
		}
		if hi-lo > 1 {
			t.Errorf("class %v counts per fold differ by %d", class, hi-lo)
		}
	}
}

func TestStratifiedKFold_RequiresTarget(t *testing.T) {
	ds, _ := dataset.FromMatrix(mat.NewDense(4, 1, []float64{1, 2, 3, 4}), nil, nil)
	if _, err := NewStratifiedKFold(2, false, 0).Split(ds); err == nil {
		t.Fatal("expected error without target")
	}
}

func TestShuffleSplit(t *testing.T) {
	ss := NewShuffleSplit(3, 0.2, 5)
	folds, err := ss.Split(numberedRegression(10))
	if err != nil {
		t.Fatal(err)
	}
	if len(folds) != 3 {
		t.Fatalf("got %d folds", len(folds))
	}
	for _, f := range folds {
		if len(f.TestIdx) != 2 || len(f.TrainIdx) != 8 {
			t.Errorf("sizes = %d/%d, want 8/2", len(f.TrainIdx), len(f.TestIdx))
		}
		assertDisjoint(t, f.TrainIdx, f.TestIdx)
	}
	if slices.Equal(folds[0].TestIdx, folds[1].TestIdx) && slices.Equal(folds[1].TestIdx, folds[2].TestIdx) {
		t.Error("all shuffle splits are identical")
	}

	again, _ := NewShuffleSplit(3, 0.2, 5).Split(numberedRegression(10))
	for i := range folds {
		if !slices.Equal(folds[i].TestIdx, again[i].TestIdx) {
			t.Errorf("split %d not reproducible", i)
		}
	}
}
