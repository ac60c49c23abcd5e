package dataset

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ulikunitz/xz"
	"gonum.org/v1/gonum/mat"
	"gotest.tools/v3/assert"

	"github.com/YuminosukeSato/skflow/pkg/errors"
)

const wagesCSV = `EDUCATION,SOUTH,SEX,EXPERIENCE,UNION,WAGE,AGE,RACE,OCCUPATION,SECTOR,MARR
8,no,female,21,not_member,5.1,35,Hispanic,Other,Manufacturing,Married
9,no,female,42,not_member,4.95,57,White,Other,Manufacturing,Married
12,no,male,1,not_member,6.67,19,White,Other,Manufacturing,Unmarried
12,no,male,4,not_member,4,22,White,Other,Other,Unmarried
12,no,male,17,not_member,7.5,35,White,Other,Other,Married
13,no,male,9,member,13.07,28,White,Other,Other,Unmarried
`

func TestReadCSV_InfersKinds(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(wagesCSV), WithTarget("WAGE"))
	assert.NilError(t, err)

	assert.Equal(t, ds.NRows(), 6)
	assert.Equal(t, ds.NFeatures(), 10)
	assert.Equal(t, ds.TargetName(), "WAGE")
	assert.Assert(t, !ds.IsClassification())
	assert.DeepEqual(t, ds.ColumnsOfKind(Numeric), []string{"EDUCATION", "EXPERIENCE", "AGE"})
	assert.DeepEqual(t, ds.ColumnsOfKind(Categorical),
		[]string{"SOUTH", "SEX", "UNION", "RACE", "OCCUPATION", "SECTOR", "MARR"})

	y, err := ds.Target()
	assert.NilError(t, err)
	assert.Equal(t, y.AtVec(2), 6.67)
}

func TestReadCSV_ForcedCategoricalAndClassTarget(t *testing.T) {
	src := "zip;size;label\n10115;1.5;cat\n20095;2.0;dog\n10115;0.5;cat\n"
	ds, err := ReadCSV(strings.NewReader(src),
		WithDelimiter(';'), WithTarget("label"), WithCategorical("zip"))
	assert.NilError(t, err)

	assert.DeepEqual(t, ds.ColumnsOfKind(Categorical), []string{"zip"})
	assert.Assert(t, ds.IsClassification())
	assert.DeepEqual(t, ds.TargetClasses(), []string{"cat", "dog"})
	assert.DeepEqual(t, ds.TargetValues(), []float64{0, 1, 0})
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		opts    []LoadOption
		wantMsg string
	}{
		{"empty file", "", nil, "empty file"},
		{"header only", "a,b\n", nil, "no records"},
		{"ragged row", "a,b\n1,2\n3\n", nil, "line 3"},
		{"unknown target", "a,b\n1,2\n", []LoadOption{WithTarget("c")}, `target column "c" not found`},
		{"duplicate column", "a,a\n1,2\n", nil, "duplicate column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.src), tt.opts...)
			assert.ErrorContains(t, err, tt.wantMsg)
			var loadErr *errors.LoadError
			assert.Assert(t, errors.As(err, &loadErr))
		})
	}
}

func TestLoadCSV_MissingPath(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	var loadErr *errors.LoadError
	assert.Assert(t, errors.As(err, &loadErr))
}

func TestLoadCSV_XZ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wages.csv.xz")
	f, err := os.Create(path)
	assert.NilError(t, err)
	w, err := xz.NewWriter(f)
	assert.NilError(t, err)
	_, err = w.Write([]byte(wagesCSV))
	assert.NilError(t, err)
	assert.NilError(t, w.Close())
	assert.NilError(t, f.Close())

	ds, err := LoadCSV(path, WithTarget("WAGE"))
	assert.NilError(t, err)
	assert.Equal(t, ds.NRows(), 6)
}

func TestLoadSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iris.db")
	db, err := sql.Open("sqlite3", path)
	assert.NilError(t, err)
	_, err = db.Exec(`CREATE TABLE flowers (sepal REAL, petal REAL, species TEXT)`)
	assert.NilError(t, err)
	_, err = db.Exec(`INSERT INTO flowers VALUES (5.1, 1.4, 'setosa'), (7.0, 4.7, 'versicolor'), (6.3, 6.0, 'virginica')`)
	assert.NilError(t, err)
	assert.NilError(t, db.Close())

	ds, err := LoadSQLite(path, "flowers", WithTarget("species"))
	assert.NilError(t, err)
	assert.Equal(t, ds.NRows(), 3)
	assert.DeepEqual(t, ds.FeatureNames(), []string{"sepal", "petal"})
	assert.DeepEqual(t, ds.TargetClasses(), []string{"setosa", "versicolor", "virginica"})

	_, err = LoadSQLite(path, "missing")
	assert.ErrorContains(t, err, "cannot query table")
}

func TestSubset_DoesNotAlias(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(wagesCSV), WithTarget("WAGE"))
	assert.NilError(t, err)

	sub, err := ds.Subset([]int{5, 0})
	assert.NilError(t, err)
	assert.Equal(t, sub.NRows(), 2)

	edu, err := sub.NumericColumn("EDUCATION")
	assert.NilError(t, err)
	assert.DeepEqual(t, edu, []float64{13, 8})

	edu[0] = -1
	again, _ := sub.NumericColumn("EDUCATION")
	assert.Equal(t, again[0], 13.0)

	_, err = ds.Subset([]int{6})
	assert.ErrorContains(t, err, "out of range")
}

func TestNumericMatrix_RejectsCategorical(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(wagesCSV), WithTarget("WAGE"))
	assert.NilError(t, err)

	_, err = ds.NumericMatrix()
	assert.ErrorContains(t, err, "categorical")

	X, err := ds.NumericMatrix("AGE", "EDUCATION")
	assert.NilError(t, err)
	r, c := X.Dims()
	assert.Equal(t, r, 6)
	assert.Equal(t, c, 2)
	assert.Equal(t, X.At(0, 0), 35.0)

	rows, err := ds.CategoricalMatrix("SEX", "UNION")
	assert.NilError(t, err)
	assert.DeepEqual(t, rows[5], []string{"male", "member"})
}

func TestFromMatrix(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	y := mat.NewVecDense(3, []float64{2, 0, 2})

	ds, err := FromMatrix(X, y, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, ds.FeatureNames(), []string{"x0", "x1"})

	cls, err := ds.AsClassification()
	assert.NilError(t, err)
	assert.DeepEqual(t, cls.TargetClasses(), []string{"0", "2"})
	assert.DeepEqual(t, cls.TargetValues(), []float64{1, 0, 1})

	_, err = FromMatrix(X, mat.NewVecDense(2, nil), nil)
	var dimErr *errors.DimensionError
	assert.Assert(t, errors.As(err, &dimErr))
}

func TestMakeBlobs_Deterministic(t *testing.T) {
	cfg := BlobsConfig{NSamples: 30, NFeatures: 2, Centers: 3, Seed: 42, Shuffle: true}
	a, err := MakeBlobs(cfg)
	assert.NilError(t, err)
	b, err := MakeBlobs(cfg)
	assert.NilError(t, err)

	xa, _ := a.NumericMatrix()
	xb, _ := b.NumericMatrix()
	assert.Assert(t, mat.Equal(xa, xb))
	assert.DeepEqual(t, a.TargetValues(), b.TargetValues())
	assert.DeepEqual(t, a.TargetClasses(), []string{"0", "1", "2"})

	counts := map[float64]int{}
	for _, v := range a.TargetValues() {
		counts[v]++
	}
	assert.DeepEqual(t, counts, map[float64]int{0: 10, 1: 10, 2: 10})
}

func TestMakeRegression_NoiselessIsLinear(t *testing.T) {
	ds, coef, err := MakeRegression(RegressionConfig{NSamples: 20, NFeatures: 3, NInformative: 2, Bias: 1.5, Seed: 7})
	assert.NilError(t, err)
	assert.Equal(t, coef[2], 0.0)

	X, _ := ds.NumericMatrix()
	y := ds.TargetValues()
	for i := 0; i < ds.NRows(); i++ {
		want := 1.5
		for j := 0; j < 3; j++ {
			want += coef[j] * X.At(i, j)
		}
		assert.Assert(t, abs(y[i]-want) < 1e-9)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
