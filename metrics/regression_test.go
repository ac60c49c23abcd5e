package metrics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/pkg/errors"
)

type regressionCase struct {
	name    string
	yTrue   *mat.VecDense
	yPred   *mat.VecDense
	want    float64
	wantErr bool
}

func runRegressionCases(t *testing.T, fn func(yTrue, yPred *mat.VecDense) (float64, error), tests []regressionCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fn(tt.yTrue, tt.yPred)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func vec(v ...float64) *mat.VecDense { return mat.NewVecDense(len(v), v) }

func TestMSE(t *testing.T) {
	runRegressionCases(t, MSE, []regressionCase{
		{name: "perfect prediction", yTrue: vec(1, 2, 3, 4, 5), yPred: vec(1, 2, 3, 4, 5), want: 0},
		{name: "simple case", yTrue: vec(1, 2, 3, 4), yPred: vec(1.5, 2.5, 2.5, 3.5), want: 0.25},
		{name: "larger errors", yTrue: vec(10, 20, 30), yPred: vec(12, 18, 33), want: 17.0 / 3.0},
		{name: "length mismatch", yTrue: vec(1, 2, 3), yPred: vec(1, 2), wantErr: true},
		{name: "empty vectors", yTrue: &mat.VecDense{}, yPred: &mat.VecDense{}, wantErr: true},
		{name: "nil", yTrue: nil, yPred: vec(1), wantErr: true},
	})
}

func TestRMSEAndMAE(t *testing.T) {
	runRegressionCases(t, RMSE, []regressionCase{
		{name: "rmse", yTrue: vec(10, 20, 30), yPred: vec(12, 18, 33), want: math.Sqrt(17.0 / 3.0)},
	})
	runRegressionCases(t, MAE, []regressionCase{
		{name: "mae", yTrue: vec(10, 20, 30), yPred: vec(12, 18, 33), want: 7.0 / 3.0},
		{name: "length mismatch", yTrue: vec(1), yPred: vec(1, 2), wantErr: true},
	})
}

func TestR2Score(t *testing.T) {
	runRegressionCases(t, R2Score, []regressionCase{
		{name: "perfect prediction", yTrue: vec(1, 2, 3, 4, 5), yPred: vec(1, 2, 3, 4, 5), want: 1},
		{name: "mean baseline", yTrue: vec(1, 2, 3, 4), yPred: vec(2.5, 2.5, 2.5, 2.5), want: 0},
		{name: "worse than mean baseline", yTrue: vec(1, 2, 3, 4), yPred: vec(4, 3, 2, 1), want: -3},
		{name: "no variance in y_true", yTrue: vec(3, 3, 3), yPred: vec(2, 3, 4), wantErr: true},
		{name: "length mismatch", yTrue: vec(1, 2, 3), yPred: vec(1, 2), wantErr: true},
	})
}

func TestMAPEAndExplainedVariance(t *testing.T) {
	runRegressionCases(t, MAPE, []regressionCase{
		{name: "ten percent", yTrue: vec(100, 200), yPred: vec(110, 180), want: 10},
		{name: "zeros skipped", yTrue: vec(0, 100), yPred: vec(5, 150), want: 50},
		{name: "all zero", yTrue: vec(0, 0), yPred: vec(1, 1), wantErr: true},
	})
	runRegressionCases(t, ExplainedVarianceScore, []regressionCase{
		// a constant offset is fully explained
		{name: "offset", yTrue: vec(1, 2, 3, 4), yPred: vec(2, 3, 4, 5), want: 1},
		{name: "no variance", yTrue: vec(2, 2), yPred: vec(1, 3), wantErr: true},
	})
}

func TestRegression_LengthMismatchKind(t *testing.T) {
	_, err := MSE(vec(1, 2, 3), vec(1, 2))
	var lenErr *errors.LengthMismatchError
	if !errors.As(err, &lenErr) {
		t.Fatalf("expected LengthMismatchError, got %T", err)
	}
	if lenErr.Metric != "mean_squared_error" || lenErr.True != 3 || lenErr.Pred != 2 {
		t.Errorf("unexpected fields %+v", lenErr)
	}

	_, err = R2Score(&mat.VecDense{}, &mat.VecDense{})
	var valErr *errors.ValueError
	if !errors.As(err, &valErr) {
		t.Errorf("empty input should be a ValueError, got %T", err)
	}
}

func TestMSEMatrix(t *testing.T) {
	got, err := MSEMatrix(mat.NewDense(3, 1, []float64{10, 20, 30}), mat.NewDense(3, 1, []float64{12, 18, 33}))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-17.0/3.0) > 1e-9 {
		t.Errorf("MSEMatrix() = %v", got)
	}
	if _, err := MSEMatrix(mat.NewDense(2, 2, nil), mat.NewDense(2, 2, nil)); err == nil {
		t.Error("expected error for multi-column input")
	}
}

func BenchmarkMSE(b *testing.B) {
	size := 10000
	yTrue := mat.NewVecDense(size, nil)
	yPred := mat.NewVecDense(size, nil)
	for i := 0; i < size; i++ {
		yTrue.SetVec(i, float64(i))
		yPred.SetVec(i, float64(i)+0.1*float64(i%10))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = MSE(yTrue, yPred)
	}
}
