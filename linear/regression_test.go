package linear

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

var _ model.Regressor = (*Regression)(nil)

func TestRegression_Basic(t *testing.T) {
	// y = 2x + 1
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})

	lr := NewRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}

	if w := lr.GetWeights()[0]; math.Abs(w-2) > 1e-9 {
		t.Errorf("Expected coefficient 2.0, got %f", w)
	}
	if b := lr.GetIntercept(); math.Abs(b-1) > 1e-9 {
		t.Errorf("Expected intercept 1.0, got %f", b)
	}

	pred, err := lr.Predict(mat.NewDense(2, 1, []float64{5, 6}))
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}
	expected := []float64{11, 13}
	for i := range expected {
		if math.Abs(pred.At(i, 0)-expected[i]) > 1e-9 {
			t.Errorf("Expected prediction %f, got %f", expected[i], pred.At(i, 0))
		}
	}
}

func TestRegression_NoIntercept(t *testing.T) {
	// y = 2x
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{2, 4, 6, 8})

	lr := NewRegression(WithFitIntercept(false))
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}
	if w := lr.GetWeights()[0]; math.Abs(w-2) > 1e-9 {
		t.Errorf("Expected coefficient 2.0, got %f", w)
	}
	if lr.GetIntercept() != 0 {
		t.Errorf("Expected intercept 0, got %f", lr.GetIntercept())
	}
}

func TestRegression_MultipleFeatures(t *testing.T) {
	// y = 2*x1 + 3*x2 + 1
	X := mat.NewDense(5, 2, []float64{
		1, 1,
		2, 1,
		3, 2,
		4, 2,
		5, 3,
	})
	y := mat.NewDense(5, 1, []float64{6, 8, 13, 15, 20})

	lr := NewRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}
	w := lr.GetWeights()
	if math.Abs(w[0]-2) > 1e-6 || math.Abs(w[1]-3) > 1e-6 {
		t.Errorf("Expected coefficients [2 3], got %v", w)
	}
	if math.Abs(lr.GetIntercept()-1) > 1e-6 {
		t.Errorf("Expected intercept 1, got %f", lr.GetIntercept())
	}

	score, err := lr.Score(X, y)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(score-1) > 1e-9 {
		t.Errorf("Expected R² 1.0 for a perfect fit, got %f", score)
	}
}

func TestRegression_RidgeShrinks(t *testing.T) {
	X, y := createBenchmarkData(200, 3)

	ols := NewRegression()
	ridge := NewRegression(WithAlpha(50))
	if err := ols.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := ridge.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	norm := func(w []float64) float64 {
		var s float64
		for _, v := range w {
			s += v * v
		}
		return s
	}
	if norm(ridge.GetWeights()) >= norm(ols.GetWeights()) {
		t.Errorf("ridge weights %v not smaller than OLS %v", ridge.GetWeights(), ols.GetWeights())
	}

	// true weights are 0.5, 1.0, 1.5
	for j, w := range ols.GetWeights() {
		if math.Abs(w-0.5*float64(j+1)) > 0.05 {
			t.Errorf("OLS weight %d = %f", j, w)
		}
	}
}

func TestRegression_ParallelMatchesSequential(t *testing.T) {
	// 並列閾値を超えるサイズ
	X, y := createBenchmarkData(2500, 4)
	lr := NewRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pred, err := lr.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	w := lr.GetWeights()
	for _, i := range []int{0, 999, 1000, 2499} {
		want := lr.GetIntercept()
		for j := range w {
			want += X.At(i, j) * w[j]
		}
		if math.Abs(pred.At(i, 0)-want) > 1e-12 {
			t.Errorf("row %d: got %f, want %f", i, pred.At(i, 0), want)
		}
	}
}

func TestRegression_Errors(t *testing.T) {
	lr := NewRegression()

	t.Run("not fitted", func(t *testing.T) {
		_, err := lr.Predict(mat.NewDense(1, 1, []float64{1}))
		var nf *errors.NotFittedError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFittedError, got %v", err)
		}
	})

	t.Run("row mismatch", func(t *testing.T) {
		err := lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(2, 1, []float64{1, 2}))
		var de *errors.DimensionError
		if !errors.As(err, &de) {
			t.Fatalf("expected DimensionError, got %v", err)
		}
	})

	t.Run("feature mismatch", func(t *testing.T) {
		if err := lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(3, 1, []float64{1, 2, 3})); err != nil {
			t.Fatal(err)
		}
		_, err := lr.Predict(mat.NewDense(1, 2, []float64{1, 2}))
		var de *errors.DimensionError
		if !errors.As(err, &de) {
			t.Fatalf("expected DimensionError, got %v", err)
		}
	})
}

func TestRegression_RankDeficient(t *testing.T) {
	t.Run("collinear columns give the minimum-norm solution", func(t *testing.T) {
		// 2列目が1列目の定数倍
		X := mat.NewDense(3, 2, []float64{1, 2, 2, 4, 3, 6})
		lr := NewRegression()
		if err := lr.Fit(X, mat.NewDense(3, 1, []float64{1, 2, 3})); err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		// w1 + 2·w2 = 1 の最小ノルム解
		want := []float64{0.2, 0.4}
		for j, w := range lr.GetWeights() {
			if math.Abs(w-want[j]) > 1e-9 {
				t.Errorf("weight %d: got %v, want %v", j, w, want[j])
			}
		}
		if math.Abs(lr.GetIntercept()) > 1e-9 {
			t.Errorf("Expected intercept 0, got %v", lr.GetIntercept())
		}
	})

	t.Run("full one-hot block with intercept", func(t *testing.T) {
		// male, female, age; y = 10 + 5·male + 2·age
		X := mat.NewDense(6, 3, []float64{
			1, 0, 20,
			0, 1, 25,
			1, 0, 30,
			0, 1, 35,
			1, 0, 40,
			0, 1, 45,
		})
		y := mat.NewVecDense(6, nil)
		for i := 0; i < 6; i++ {
			y.SetVec(i, 10+5*X.At(i, 0)+2*X.At(i, 2))
		}
		for _, alpha := range []float64{0, 1e-6} {
			lr := NewRegression(WithAlpha(alpha))
			if err := lr.Fit(X, y); err != nil {
				t.Fatalf("alpha=%g: Fit failed: %v", alpha, err)
			}
			pred, err := lr.Predict(X)
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 6; i++ {
				if math.Abs(pred.At(i, 0)-y.AtVec(i)) > 1e-4 {
					t.Errorf("alpha=%g row %d: got %v, want %v", alpha, i, pred.At(i, 0), y.AtVec(i))
				}
			}
			w := lr.GetWeights()
			if math.Abs((w[0]-w[1])-5) > 1e-4 {
				t.Errorf("alpha=%g: male-female gap %v, want 5", alpha, w[0]-w[1])
			}
		}
	})

	t.Run("constant feature", func(t *testing.T) {
		lr := NewRegression()
		if err := lr.Fit(mat.NewDense(3, 1, []float64{4, 4, 4}), mat.NewVecDense(3, []float64{1, 2, 3})); err != nil {
			t.Fatalf("Fit failed: %v", err)
		}
		if lr.GetWeights()[0] != 0 || lr.GetIntercept() != 2 {
			t.Errorf("got weight %v intercept %v, want 0 and 2", lr.GetWeights()[0], lr.GetIntercept())
		}
	})
}

func TestRegression_ParamsAndClone(t *testing.T) {
	lr := NewRegression(WithAlpha(0.5))
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})
	if err := lr.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	clone := lr.Clone()
	if clone.IsFitted() {
		t.Error("clone must be unfitted")
	}
	if clone.GetParams()["alpha"] != 0.5 {
		t.Errorf("clone alpha = %v", clone.GetParams()["alpha"])
	}

	if err := lr.SetParams(map[string]interface{}{"alpha": 2, "fit_intercept": false}); err != nil {
		t.Fatal(err)
	}
	if lr.IsFitted() {
		t.Error("SetParams must reset the fitted state")
	}
	params := lr.GetParams()
	if params["alpha"] != 2.0 || params["fit_intercept"] != false {
		t.Errorf("params = %v", params)
	}

	for _, bad := range []map[string]interface{}{
		{"alpha": -1.0},
		{"alpha": "big"},
		{"fit_intercept": 1},
		{"positive": true},
	} {
		var ve *errors.ValidationError
		if err := lr.SetParams(bad); !errors.As(err, &ve) {
			t.Errorf("SetParams(%v) = %v, want ValidationError", bad, err)
		}
	}
}
