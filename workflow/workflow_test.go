package workflow

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/YuminosukeSato/skflow/internal/config"
	"github.com/YuminosukeSato/skflow/internal/runstore"
	ms "github.com/YuminosukeSato/skflow/model_selection"
	"github.com/YuminosukeSato/skflow/pkg/errors"
	"github.com/YuminosukeSato/skflow/pkg/log"
)

// WAGE = 0.5*EDUCATION + 2*(SEX=male) + 1
const wagesCSV = `EDUCATION,SEX,AGE,WAGE
8,female,35,5
9,female,57,5.5
12,male,19,9
13,male,28,9.5
10,female,41,6
14,female,33,8
16,male,45,11
11,male,30,8.5
18,female,50,10
7,male,23,6.5
19,female,29,10.5
20,male,61,13
`

func regressionConfig() config.Config {
	cfg := config.Default()
	cfg.Seed = 3
	cfg.Data.Generate = config.GenerateRegression
	cfg.Data.NSamples = 60
	cfg.Data.NFeatures = 3
	cfg.Model.Kind = config.ModelLinearRegression
	return cfg
}

func TestRun_Regression(t *testing.T) {
	cfg := regressionConfig()
	cfg.CV.Folds = 5

	report, err := Run(cfg)
	assert.NilError(t, err)

	assert.Equal(t, report.Model, config.ModelLinearRegression)
	assert.Equal(t, report.Scoring, "default")
	assert.Equal(t, report.NTrain+report.NTest, 60)
	assert.Equal(t, report.NTest, 15)
	assert.Equal(t, report.CVFolds, 5)
	assert.Check(t, math.Abs(report.TestScore-1) < 1e-9, "noiseless R² = %v", report.TestScore)
	assert.Check(t, math.Abs(report.CVMean-1) < 1e-9, "cv mean = %v", report.CVMean)
	assert.Check(t, report.RunID != "")
	assert.Check(t, report.Duration > 0)
}

func TestRun_ReproducibleForSeed(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = 11
	cfg.Data.Generate = config.GenerateBlobs
	cfg.Model.Kind = config.ModelDummyClassifier
	cfg.Model.Params = map[string]interface{}{"strategy": "stratified"}

	first, err := Run(cfg)
	assert.NilError(t, err)
	second, err := Run(cfg)
	assert.NilError(t, err)

	assert.Equal(t, first.TestScore, second.TestScore)
	assert.Check(t, first.RunID != second.RunID)
}

func TestRun_ClassifierBeatsBaseline(t *testing.T) {
	base := config.Default()
	base.Seed = 5
	base.Data.Generate = config.GenerateBlobs
	base.Data.NSamples = 200
	base.Data.Centers = 2
	base.Split.Stratify = true
	base.Preprocess.Scaler = config.ScalerStandard
	base.CV.Folds = 3
	base.CV.Stratified = true
	base.Scoring = "accuracy"

	baseline := base
	baseline.Model.Kind = config.ModelDummyClassifier
	dummyReport, err := Run(baseline)
	assert.NilError(t, err)

	logistic := base
	logistic.Model.Kind = config.ModelLogisticRegression
	report, err := Run(logistic)
	assert.NilError(t, err)

	assert.Equal(t, report.Scoring, "accuracy")
	assert.DeepEqual(t, report.FeatureNames, []string{"scale__x0", "scale__x1"})
	assert.Check(t, report.TestScore > dummyReport.TestScore,
		"logistic %v vs most_frequent %v", report.TestScore, dummyReport.TestScore)
	assert.Check(t, math.Abs(dummyReport.TestScore-0.5) < 1e-9, "stratified test set is balanced")
}

func TestRun_KMeans(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = 8
	cfg.Data.Generate = config.GenerateBlobs
	cfg.Data.NSamples = 90
	cfg.Data.Noise = 0.1
	cfg.Model.Kind = config.ModelKMeans
	cfg.Model.Params = map[string]interface{}{"n_clusters": int64(3)}

	report, err := Run(cfg)
	assert.NilError(t, err)
	assert.Equal(t, report.Scoring, "default")
	assert.Check(t, report.TestScore < 0, "negative inertia = %v", report.TestScore)

	cfg.Scoring = "adjusted_rand_score"
	cfg.CV.Folds = 3
	report, err = Run(cfg)
	assert.NilError(t, err)
	assert.Check(t, report.TestScore > 0.9, "ARI = %v", report.TestScore)
	assert.Check(t, report.CVMean > 0.9, "cv ARI = %v", report.CVMean)
}

func TestRun_GridSearch(t *testing.T) {
	cfg := regressionConfig()
	cfg.Scoring = "neg_mean_squared_error"
	cfg.CV.Folds = 3
	cfg.Search.Grid = map[string][]interface{}{"alpha": {0.0, 1000.0}}

	report, err := Run(cfg)
	assert.NilError(t, err)

	assert.Equal(t, report.Candidates, 2)
	assert.Equal(t, report.CVFolds, 3)
	assert.DeepEqual(t, report.BestParams, map[string]interface{}{"regression__alpha": 0.0})
	assert.Check(t, report.CVMean > -1e-9 && report.CVMean <= 0, "best neg MSE = %v", report.CVMean)
	assert.Check(t, report.TestScore > -1e-9, "test neg MSE = %v", report.TestScore)
}

func TestRun_RandomizedSearch(t *testing.T) {
	cfg := regressionConfig()
	cfg.Scoring = "neg_mean_squared_error"
	cfg.CV.Folds = 3
	cfg.Search.Grid = map[string][]interface{}{"alpha": {0.0, 10.0, 100.0, 1000.0}}
	cfg.Search.NIter = 2

	first, err := Run(cfg)
	assert.NilError(t, err)
	assert.Equal(t, first.Candidates, 2)
	assert.Equal(t, first.CVFolds, 3)

	second, err := Run(cfg)
	assert.NilError(t, err)
	assert.DeepEqual(t, first.BestParams, second.BestParams)

	// n_iter がグリッド以上なら全候補を評価する
	cfg.Search.NIter = 10
	all, err := Run(cfg)
	assert.NilError(t, err)
	assert.Equal(t, all.Candidates, 4)
	assert.DeepEqual(t, all.BestParams, map[string]interface{}{"regression__alpha": 0.0})
}

func TestRun_GridSearchDefaultsFolds(t *testing.T) {
	cfg := regressionConfig()
	cfg.Search.Grid = map[string][]interface{}{"regression__fit_intercept": {true, false}}

	report, err := Run(cfg)
	assert.NilError(t, err)
	assert.Equal(t, report.CVFolds, DefaultSearchFolds)
	assert.Equal(t, report.Candidates, 2)
}

func TestRun_CSVWithPreprocessing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wages.csv")
	assert.NilError(t, os.WriteFile(path, []byte(wagesCSV), 0o600))

	cfg := config.Default()
	cfg.Seed = 42
	cfg.Data.Path = path
	cfg.Data.Target = "WAGE"
	cfg.Split.StratifyColumn = "SEX"
	cfg.Preprocess.Scaler = config.ScalerStandard
	cfg.Preprocess.Scale = []string{"EDUCATION", "AGE"}
	cfg.Preprocess.Ordinal = []string{"SEX"}
	cfg.Model.Kind = config.ModelLinearRegression

	report, err := Run(cfg)
	assert.NilError(t, err)

	assert.Equal(t, report.Source, path)
	assert.Equal(t, report.NTest, 3)
	assert.DeepEqual(t, report.FeatureNames, []string{"scale__EDUCATION", "scale__AGE", "ordinal__SEX"})
	assert.Check(t, math.Abs(report.TestScore-1) < 1e-9, "R² = %v", report.TestScore)
}

func TestRun_Store(t *testing.T) {
	t.Run("explicit store", func(t *testing.T) {
		store, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"))
		assert.NilError(t, err)
		defer store.Close()

		report, err := Run(regressionConfig(), WithStore(store))
		assert.NilError(t, err)

		var saved Report
		assert.NilError(t, store.Get(report.RunID, &saved))
		assert.Equal(t, saved.TestScore, report.TestScore)
		assert.Equal(t, saved.Model, report.Model)
		assert.Equal(t, saved.NTrain, report.NTrain)
	})

	t.Run("store path", func(t *testing.T) {
		cfg := regressionConfig()
		cfg.StorePath = filepath.Join(t.TempDir(), "runs.db")

		first, err := Run(cfg)
		assert.NilError(t, err)
		second, err := Run(cfg)
		assert.NilError(t, err)

		store, err := runstore.Open(cfg.StorePath)
		assert.NilError(t, err)
		defer store.Close()
		ids, err := store.List()
		assert.NilError(t, err)
		assert.DeepEqual(t, ids, []string{first.RunID, second.RunID})
	})
}

func TestRun_Logs(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)

	cfg := regressionConfig()
	cfg.CV.Folds = 2
	report, err := Run(cfg, WithLogger(logger))
	assert.NilError(t, err)

	assert.Check(t, logger.ContainsMessage("dataset loaded"))
	assert.Check(t, logger.ContainsMessage("cross-validation completed"))
	assert.Check(t, logger.ContainsMessage("run completed"))
	assert.Check(t, logger.ContainsField(log.RunIDKey, report.RunID))
	assert.Check(t, logger.ContainsField(log.OperationKey, log.OperationLoad))
}

func TestRun_Errors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := regressionConfig()
		cfg.Model.Kind = ""
		_, err := Run(cfg)
		var ve *errors.ValidationError
		assert.Check(t, errors.As(err, &ve), "got %v", err)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := config.Default()
		cfg.Data.Path = filepath.Join(t.TempDir(), "nope.csv")
		cfg.Data.Target = "y"
		cfg.Model.Kind = config.ModelDummyRegressor
		_, err := Run(cfg)
		var le *errors.LoadError
		assert.Check(t, errors.As(err, &le), "got %v", err)
	})

	t.Run("bad model param", func(t *testing.T) {
		cfg := regressionConfig()
		cfg.Model.Params = map[string]interface{}{"gamma": 1.0}
		_, err := Run(cfg)
		var ve *errors.ValidationError
		assert.Check(t, errors.As(err, &ve), "got %v", err)
	})

	t.Run("categorical features without encoder", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "wages.csv")
		assert.NilError(t, os.WriteFile(path, []byte(wagesCSV), 0o600))
		cfg := config.Default()
		cfg.Data.Path = path
		cfg.Data.Target = "WAGE"
		cfg.Model.Kind = config.ModelLinearRegression
		_, err := Run(cfg)
		assert.Check(t, err != nil)
	})
}

func TestSearchGrid(t *testing.T) {
	grid := searchGrid("regression", map[string][]interface{}{
		"alpha":                 {0.1},
		"preprocessor__x":       {1},
		"regression__intercept": {true},
	})
	assert.DeepEqual(t, grid, ms.ParamGrid{
		"regression__alpha":     {0.1},
		"preprocessor__x":       {1},
		"regression__intercept": {true},
	})
}
