package cluster

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/metrics"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

var _ model.Estimator = (*KMeans)(nil)

// (0,0), (10,10), (-10,10) の周りに 4 点ずつ
func threeBlobs() (*mat.Dense, *mat.VecDense) {
	offsets := [][2]float64{{0.5, 0.5}, {-0.5, 0.5}, {0.5, -0.5}, {-0.5, -0.5}}
	centers := [][2]float64{{0, 0}, {10, 10}, {-10, 10}}
	X := mat.NewDense(12, 2, nil)
	y := mat.NewVecDense(12, nil)
	for c, center := range centers {
		for j, off := range offsets {
			i := c*len(offsets) + j
			X.Set(i, 0, center[0]+off[0])
			X.Set(i, 1, center[1]+off[1])
			y.SetVec(i, float64(c))
		}
	}
	return X, y
}

func TestKMeans_FitRecoversBlobs(t *testing.T) {
	X, y := threeBlobs()
	km := NewKMeans(WithNClusters(3), WithRandomState(7))
	if err := km.Fit(X, y); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	pred, err := km.Predict(X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	ari, err := metrics.AdjustedRandScoreMatrix(y, pred)
	if err != nil {
		t.Fatal(err)
	}
	if ari != 1 {
		t.Errorf("Expected ARI 1, got %f", ari)
	}

	// 各点は中心から √0.5 離れている
	if math.Abs(km.Inertia()-6) > 1e-9 {
		t.Errorf("Expected inertia 6, got %f", km.Inertia())
	}
	for i, l := range km.Labels() {
		if float64(l) != pred.At(i, 0) {
			t.Fatalf("row %d: Labels %d != Predict %v", i, l, pred.At(i, 0))
		}
	}

	centers := km.ClusterCenters()
	for c := 0; c < 3; c++ {
		label := km.Labels()[c*4]
		want := []float64{X.At(c*4, 0) - 0.5, X.At(c*4, 1) - 0.5}
		if math.Abs(centers.At(label, 0)-want[0]) > 1e-9 || math.Abs(centers.At(label, 1)-want[1]) > 1e-9 {
			t.Errorf("cluster %d: center (%v, %v), want %v", c, centers.At(label, 0), centers.At(label, 1), want)
		}
	}

	score, err := km.Score(X, nil)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if math.Abs(score+km.Inertia()) > 1e-9 {
		t.Errorf("Expected score %f, got %f", -km.Inertia(), score)
	}
}

func TestKMeans_RandomInit(t *testing.T) {
	X, y := threeBlobs()
	km := NewKMeans(WithNClusters(3), WithInit(InitRandom), WithNInit(20), WithRandomState(1))
	pred, err := km.FitPredict(X)
	if err != nil {
		t.Fatalf("FitPredict failed: %v", err)
	}
	ari, err := metrics.AdjustedRandScoreMatrix(y, pred)
	if err != nil {
		t.Fatal(err)
	}
	if ari != 1 {
		t.Errorf("Expected ARI 1 with 20 random restarts, got %f", ari)
	}
}

func TestKMeans_PredictAndTransform(t *testing.T) {
	X, _ := threeBlobs()
	km := NewKMeans(WithNClusters(3), WithRandomState(3))
	if err := km.Fit(X, nil); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	newX := mat.NewDense(2, 2, []float64{0.2, -0.1, 9, 11})
	pred, err := km.Predict(newX)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	labels := km.Labels()
	if pred.At(0, 0) != float64(labels[0]) || pred.At(1, 0) != float64(labels[4]) {
		t.Errorf("Expected labels %d and %d, got %v and %v", labels[0], labels[4], pred.At(0, 0), pred.At(1, 0))
	}

	dist, err := km.Transform(km.ClusterCenters())
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	r, c := dist.Dims()
	if r != 3 || c != 3 {
		t.Fatalf("Expected 3x3 distances, got %dx%d", r, c)
	}
	for i := 0; i < 3; i++ {
		if dist.At(i, i) != 0 {
			t.Errorf("center %d: distance to itself %f", i, dist.At(i, i))
		}
	}
	// (0,0) と (10,10) の距離
	d := dist.At(labels[0], labels[4])
	if math.Abs(d-10*math.Sqrt2) > 1e-9 {
		t.Errorf("Expected distance %f, got %f", 10*math.Sqrt2, d)
	}
}

func TestKMeans_Reproducible(t *testing.T) {
	X, _ := threeBlobs()
	a := NewKMeans(WithNClusters(3), WithNInit(1), WithRandomState(42))
	b := NewKMeans(WithNClusters(3), WithNInit(1), WithRandomState(42))
	if err := a.Fit(X, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(X, nil); err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(a.ClusterCenters(), b.ClusterCenters()) {
		t.Errorf("Expected identical centers for the same seed")
	}
}

func TestKMeans_DuplicatePoints(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 1, 1, 1, 1, 1})
	km := NewKMeans(WithNClusters(2), WithNInit(1))
	if err := km.Fit(X, nil); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if km.Inertia() != 0 {
		t.Errorf("Expected inertia 0, got %f", km.Inertia())
	}
	centers := km.ClusterCenters()
	for i := 0; i < 2; i++ {
		if centers.At(i, 0) != 1 || centers.At(i, 1) != 1 {
			t.Errorf("center %d: got (%v, %v)", i, centers.At(i, 0), centers.At(i, 1))
		}
	}
}

func TestKMeans_Errors(t *testing.T) {
	X, _ := threeBlobs()

	t.Run("not fitted", func(t *testing.T) {
		_, err := NewKMeans().Predict(X)
		var nf *errors.NotFittedError
		if !errors.As(err, &nf) {
			t.Errorf("Expected NotFittedError, got %v", err)
		}
	})

	t.Run("fewer samples than clusters", func(t *testing.T) {
		err := NewKMeans(WithNClusters(20)).Fit(X, nil)
		var ve *errors.ValueError
		if !errors.As(err, &ve) {
			t.Errorf("Expected ValueError, got %v", err)
		}
	})

	t.Run("invalid init", func(t *testing.T) {
		err := NewKMeans(WithInit("spectral")).Fit(X, nil)
		var ve *errors.ValidationError
		if !errors.As(err, &ve) || ve.ParamName != "init" {
			t.Errorf("Expected ValidationError for init, got %v", err)
		}
	})

	t.Run("non-finite input", func(t *testing.T) {
		for _, v := range []float64{math.NaN(), math.Inf(1)} {
			km := NewKMeans(WithNClusters(2))
			err := km.Fit(mat.NewDense(4, 1, []float64{1, 2, v, 4}), nil)
			var ne *errors.NumericalInstabilityError
			if !errors.As(err, &ne) {
				t.Errorf("value %v: expected NumericalInstabilityError, got %v", v, err)
			}
			if km.IsFitted() {
				t.Errorf("value %v: model marked fitted after failed Fit", v)
			}
		}
	})

	t.Run("feature mismatch", func(t *testing.T) {
		km := NewKMeans(WithNClusters(3))
		if err := km.Fit(X, nil); err != nil {
			t.Fatal(err)
		}
		_, err := km.Transform(mat.NewDense(1, 3, []float64{0, 0, 0}))
		var de *errors.DimensionError
		if !errors.As(err, &de) {
			t.Errorf("Expected DimensionError, got %v", err)
		}
	})
}

func TestKMeans_Params(t *testing.T) {
	km := NewKMeans()
	if err := km.SetParams(map[string]interface{}{
		"n_clusters":   int64(4),
		"init":         InitRandom,
		"max_iter":     50.0,
		"tol":          0,
		"n_init":       2,
		"random_state": int64(9),
	}); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}

	params := km.Clone().GetParams()
	want := map[string]interface{}{
		"n_clusters":   4,
		"init":         InitRandom,
		"max_iter":     50,
		"tol":          0.0,
		"n_init":       2,
		"random_state": int64(9),
	}
	for k, v := range want {
		if params[k] != v {
			t.Errorf("%s: got %v (%T), want %v (%T)", k, params[k], params[k], v, v)
		}
	}

	for _, bad := range []map[string]interface{}{
		{"n_clusters": 0},
		{"max_iter": 1.5},
		{"tol": -1.0},
		{"init": 3},
		{"alpha": 1.0},
	} {
		var ve *errors.ValidationError
		if err := km.SetParams(bad); !errors.As(err, &ve) {
			t.Errorf("SetParams(%v): expected ValidationError, got %v", bad, err)
		}
	}
}
