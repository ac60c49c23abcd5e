package model_selection

import (
	"slices"
	"sort"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/dataset"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

func TestTrainTestSplit_HalfOfTen(t *testing.T) {
	ds := numberedRegression(10)
	cfg := SplitConfig{TrainSize: 0.5, Seed: 7, Shuffle: true}

	first, err := TrainTestSplit(ds, cfg)
	if err != nil {
		t.Fatalf("TrainTestSplit() error = %v", err)
	}
	if first.Train.NRows() != 5 || first.Test.NRows() != 5 {
		t.Fatalf("sizes = %d/%d, want 5/5", first.Train.NRows(), first.Test.NRows())
	}

	second, err := TrainTestSplit(ds, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(first.TrainIdx, second.TrainIdx) || !slices.Equal(first.TestIdx, second.TestIdx) {
		t.Errorf("same seed gave different partitions: %v/%v vs %v/%v",
			first.TrainIdx, first.TestIdx, second.TrainIdx, second.TestIdx)
	}
}

func TestTrainTestSplit_Partition(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		cfg       SplitConfig
		wantTrain int
		wantTest  int
	}{
		{name: "default test size", n: 8, cfg: SplitConfig{}, wantTrain: 6, wantTest: 2},
		{name: "test size rounds up", n: 10, cfg: SplitConfig{TestSize: 0.25, Shuffle: true, Seed: 1}, wantTrain: 7, wantTest: 3},
		{name: "train size rounds down", n: 10, cfg: SplitConfig{TrainSize: 0.75, Shuffle: true, Seed: 1}, wantTrain: 7, wantTest: 3},
		{name: "float noise", n: 10, cfg: SplitConfig{TestSize: 0.3}, wantTrain: 7, wantTest: 3},
		{name: "both sizes cover every row", n: 10, cfg: SplitConfig{TrainSize: 0.7, TestSize: 0.3, Shuffle: true, Seed: 3}, wantTrain: 7, wantTest: 3},
		{name: "both sizes with rounding", n: 10, cfg: SplitConfig{TrainSize: 0.7, TestSize: 0.25, Seed: 3}, wantTrain: 7, wantTest: 3},
		{name: "tiny test fraction", n: 10, cfg: SplitConfig{TestSize: 0.01}, wantTrain: 9, wantTest: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := TrainTestSplit(numberedRegression(tt.n), tt.cfg)
			if err != nil {
				t.Fatalf("TrainTestSplit() error = %v", err)
			}
			if len(split.TrainIdx) != tt.wantTrain || len(split.TestIdx) != tt.wantTest {
				t.Fatalf("sizes = %d/%d, want %d/%d", len(split.TrainIdx), len(split.TestIdx), tt.wantTrain, tt.wantTest)
			}
			assertDisjoint(t, split.TrainIdx, split.TestIdx)
			assertCovers(t, tt.n, split.TrainIdx, split.TestIdx)
		})
	}
}

func TestTrainTestSplit_SubsetsMatchIndices(t *testing.T) {
	ds := numberedRegression(12)
	split, err := TrainTestSplit(ds, SplitConfig{TestSize: 0.25, Shuffle: true, Seed: 99})
	if err != nil {
		t.Fatal(err)
	}
	x, err := split.Test.NumericColumn("x")
	if err != nil {
		t.Fatal(err)
	}
	for k, i := range split.TestIdx {
		if x[k] != float64(i) {
			t.Errorf("test row %d: x = %v, want %v", k, x[k], float64(i))
		}
	}
	y := split.Test.TargetValues()
	for k := range y {
		if y[k] != 2*x[k] {
			t.Errorf("target not aligned with features at row %d", k)
		}
	}
}

func TestTrainTestSplit_InvalidFraction(t *testing.T) {
	tests := []struct {
		name string
		n    int
		cfg  SplitConfig
	}{
		{name: "test size one", n: 10, cfg: SplitConfig{TestSize: 1}},
		{name: "negative", n: 10, cfg: SplitConfig{TestSize: -0.1}},
		{name: "sum above one", n: 10, cfg: SplitConfig{TrainSize: 0.8, TestSize: 0.5}},
		{name: "rows left unassigned", n: 10, cfg: SplitConfig{TrainSize: 0.3, TestSize: 0.3}},
		{name: "stratified rows left unassigned", n: 10, cfg: SplitConfig{TrainSize: 0.5, TestSize: 0.2, Stratify: true}},
		{name: "empty train", n: 10, cfg: SplitConfig{TrainSize: 0.05}},
		{name: "empty train from rounding", n: 2, cfg: SplitConfig{TestSize: 0.6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TrainTestSplit(numberedRegression(tt.n), tt.cfg)
			var fe *errors.InvalidFractionError
			if !errors.As(err, &fe) {
				t.Fatalf("expected InvalidFractionError, got %v", err)
			}
			if fe.NSamples != tt.n {
				t.Errorf("NSamples = %d, want %d", fe.NSamples, tt.n)
			}
		})
	}
}

func TestTrainTestSplit_Stratified(t *testing.T) {
	// 14 rows of class 0, 6 rows of class 1
	n := 20
	x := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
		if i%10 >= 7 {
			y.SetVec(i, 1)
		}
	}
	ds, err := dataset.FromMatrix(x, y, nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, testSize := range []float64{0.25, 0.3, 0.5, 0.15} {
		for seed := int64(0); seed < 5; seed++ {
			split, err := TrainTestSplit(ds, SplitConfig{TestSize: testSize, Seed: seed, Shuffle: true, Stratify: true})
			if err != nil {
				t.Fatalf("TrainTestSplit(test=%v) error = %v", testSize, err)
			}
			assertDisjoint(t, split.TrainIdx, split.TestIdx)
			assertCovers(t, n, split.TrainIdx, split.TestIdx)
			assertProportion(t, split.Train.TargetValues(), 1, 6.0/20.0)
			assertProportion(t, split.Test.TargetValues(), 1, 6.0/20.0)
		}
	}
}

func TestTrainTestSplit_StratifyColumn(t *testing.T) {
	ds, err := dataset.ReadCSV(strings.NewReader("color,v\nred,1\nred,2\nred,3\nred,4\nblue,5\nblue,6\nblue,7\nblue,8\n"))
	if err != nil {
		t.Fatal(err)
	}
	split, err := TrainTestSplit(ds, SplitConfig{TestSize: 0.5, StratifyColumn: "color", Shuffle: true, Seed: 4})
	if err != nil {
		t.Fatal(err)
	}
	colors, err := split.Test.CategoricalColumn("color")
	if err != nil {
		t.Fatal(err)
	}
	red := 0
	for _, c := range colors {
		if c == "red" {
			red++
		}
	}
	if red != 2 || len(colors) != 4 {
		t.Errorf("test colors = %v, want 2 red of 4", colors)
	}
}

func TestTrainTestSplit_StratifyWithoutTarget(t *testing.T) {
	ds, err := dataset.FromMatrix(mat.NewDense(4, 1, []float64{1, 2, 3, 4}), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := TrainTestSplit(ds, SplitConfig{Stratify: true}); err == nil {
		t.Fatal("expected error when stratifying without a target")
	}
}

func TestAllocate(t *testing.T) {
	got := allocate(5, []int{14, 6}, []int{14, 6})
	if !slices.Equal(got, []int{4, 1}) {
		t.Errorf("allocate = %v, want [4 1]", got)
	}
	got = allocate(3, []int{1, 1, 1}, []int{1, 0, 1})
	if !slices.Equal(got, []int{1, 0, 1}) {
		t.Errorf("allocate with caps = %v, want [1 0 1]", got)
	}
}

func assertDisjoint(t *testing.T, a, b []int) {
	t.Helper()
	seen := make(map[int]bool, len(a))
	for _, i := range a {
		seen[i] = true
	}
	for _, i := range b {
		if seen[i] {
			t.Fatalf("index %d is in both partitions", i)
		}
	}
}

func assertCovers(t *testing.T, n int, parts ...[]int) {
	t.Helper()
	var all []int
	for _, p := range parts {
		all = append(all, p...)
	}
	sort.Ints(all)
	if len(all) != n {
		t.Fatalf("partitions cover %d rows, want %d", len(all), n)
	}
	for i, v := range all {
		if v != i {
			t.Fatalf("partitions do not cover row %d", i)
		}
	}
}

// assertProportion checks the share of label differs from want by at most one record
func assertProportion(t *testing.T, y []float64, label, want float64) {
	t.Helper()
	count := 0
	for _, v := range y {
		if v == label {
			count++
		}
	}
	got := float64(count) / float64(len(y))
	if diff := got - want; diff > 1/float64(len(y)) || -diff > 1/float64(len(y)) {
		t.Errorf("proportion of %v = %v, want %v within one record", label, got, want)
	}
}
