// Package workflow は設定ファイル 1 つからデータ読み込み、分割、前処理、
// 交差検証またはグリッドサーチ、テスト評価までを一通り実行します。
//
//	cfg, err := config.Load("skflow.toml")
//	report, err := workflow.Run(cfg)
//	fmt.Println(report.TestScore)
package workflow

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/skflow/cluster"
	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/dataset"
	"github.com/YuminosukeSato/skflow/dummy"
	"github.com/YuminosukeSato/skflow/internal/config"
	"github.com/YuminosukeSato/skflow/internal/runstore"
	"github.com/YuminosukeSato/skflow/linear"
	"github.com/YuminosukeSato/skflow/metrics"
	ms "github.com/YuminosukeSato/skflow/model_selection"
	"github.com/YuminosukeSato/skflow/pipeline"
	"github.com/YuminosukeSato/skflow/pkg/errors"
	"github.com/YuminosukeSato/skflow/pkg/log"
	"github.com/YuminosukeSato/skflow/preprocessing"
)

// DefaultSearchFolds はグリッドサーチで cv.folds が未指定のときのフォールド数
const DefaultSearchFolds = 5

// Report は 1 回の実行結果
type Report struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Source       string   `json:"source"`
	Model        string   `json:"model"`
	NTrain       int      `json:"n_train"`
	NTest        int      `json:"n_test"`
	FeatureNames []string `json:"feature_names"`

	// Scoring は使用したスコア名。推定器の既定スコアなら "default"。
	Scoring   string  `json:"scoring"`
	TestScore float64 `json:"test_score"`

	CVFolds    int                    `json:"cv_folds,omitempty"`
	CVMean     float64                `json:"cv_mean,omitempty"`
	CVStd      float64                `json:"cv_std,omitempty"`
	Candidates int                    `json:"candidates,omitempty"`
	BestParams map[string]interface{} `json:"best_params,omitempty"`
}

// Option は Run の実行オプション
type Option func(*runOptions)

type runOptions struct {
	store  *runstore.Store
	logger log.Logger
}

// WithStore は結果を保存するストアを指定する。指定しない場合は cfg.StorePath を開く。
func WithStore(s *runstore.Store) Option {
	return func(o *runOptions) { o.store = s }
}

// WithLogger は進捗を出力するロガーを指定する
func WithLogger(l log.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// Run は cfg に従ってワークフローを実行し、結果を返す
func Run(cfg config.Config, opts ...Option) (*Report, error) {
	o := &runOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "generate run id")
	}
	report := &Report{
		RunID:     id.String(),
		StartedAt: time.Now(),
		Model:     cfg.Model.Kind,
		Scoring:   "default",
	}
	logger := o.logger.With(log.RunIDKey, report.RunID)

	ds, source, err := loadDataset(cfg.Data, cfg.Seed)
	if err != nil {
		return nil, err
	}
	report.Source = source
	if cfg.Model.IsClassifier() {
		if ds, err = ds.AsClassification(); err != nil {
			return nil, err
		}
	}
	logger.Info("dataset loaded",
		log.OperationKey, log.OperationLoad,
		log.SourceKey, source,
		log.SamplesKey, ds.NRows(),
		log.FeaturesKey, ds.NFeatures(),
	)

	split, err := ms.TrainTestSplit(ds, ms.SplitConfig{
		TrainSize:      cfg.Split.TrainSize,
		TestSize:       cfg.Split.TestSize,
		Seed:           int64(cfg.Seed),
		Shuffle:        cfg.Split.Shuffle,
		Stratify:       cfg.Split.Stratify,
		StratifyColumn: cfg.Split.StratifyColumn,
	})
	if err != nil {
		return nil, err
	}
	report.NTrain, report.NTest = split.Train.NRows(), split.Test.NRows()

	pipe, err := buildPipeline(cfg, split.Train, logger)
	if err != nil {
		return nil, err
	}

	var scorer metrics.Scorer
	if cfg.Scoring != "" {
		if scorer, err = metrics.GetScorer(cfg.Scoring); err != nil {
			return nil, err
		}
		report.Scoring = cfg.Scoring
	}

	cvOpts := []ms.Option{ms.WithNJobs(cfg.CV.NJobs), ms.WithLogger(logger)}
	var learner model.Learner = pipe
	switch {
	case len(cfg.Search.Grid) > 0:
		folds := cfg.CV.Folds
		if folds == 0 {
			folds = DefaultSearchFolds
		}
		s := newSearcher(cfg, pipe, newSplitter(cfg.CV, folds, cfg.Seed), scorer, cvOpts)
		if err := s.Fit(split.Train); err != nil {
			return nil, err
		}
		learner = s.BestEstimator()
		results := s.Results()
		for _, r := range results {
			if r.Rank == 1 {
				report.CVStd = r.StdScore
				break
			}
		}
		report.CVFolds = folds
		report.CVMean = s.BestScore()
		report.Candidates = len(results)
		report.BestParams = s.BestParams()

	case cfg.CV.Folds >= 2:
		res, err := ms.CrossValScore(pipe, split.Train, newSplitter(cfg.CV, cfg.CV.Folds, cfg.Seed), scorer, cvOpts...)
		if err != nil {
			return nil, err
		}
		report.CVFolds = cfg.CV.Folds
		report.CVMean, report.CVStd = res.Mean(), res.Std()
		if err := pipe.Fit(split.Train); err != nil {
			return nil, err
		}

	default:
		if err := pipe.Fit(split.Train); err != nil {
			return nil, err
		}
	}

	if p, ok := learner.(*pipeline.Pipeline); ok {
		report.FeatureNames = p.FeatureNames()
	}
	if report.TestScore, err = score(learner, split.Test, scorer); err != nil {
		return nil, err
	}
	report.Duration = time.Since(report.StartedAt)

	if err := save(cfg, o.store, report); err != nil {
		return nil, err
	}

	logger.Info("run completed",
		log.ModelNameKey, report.Model,
		log.MetricKey, report.Scoring,
		log.ScoreKey, report.TestScore,
		log.SamplesKey, report.NTest,
		log.DurationMsKey, report.Duration.Milliseconds(),
	)
	return report, nil
}

// loadDataset は設定に従ってデータを読み込み、ログ用の取得元の説明を返す
func loadDataset(cfg config.DataConfig, seed uint64) (*dataset.Dataset, string, error) {
	switch cfg.Generate {
	case config.GenerateBlobs:
		ds, err := dataset.MakeBlobs(dataset.BlobsConfig{
			NSamples:   cfg.NSamples,
			NFeatures:  cfg.NFeatures,
			Centers:    cfg.Centers,
			ClusterStd: cfg.Noise,
			Seed:       seed,
		})
		return ds, fmt.Sprintf("make_blobs(n_samples=%d)", cfg.NSamples), err
	case config.GenerateRegression:
		ds, _, err := dataset.MakeRegression(dataset.RegressionConfig{
			NSamples:  cfg.NSamples,
			NFeatures: cfg.NFeatures,
			Noise:     cfg.Noise,
			Seed:      seed,
		})
		return ds, fmt.Sprintf("make_regression(n_samples=%d)", cfg.NSamples), err
	}

	loadOpts := []dataset.LoadOption{dataset.WithTarget(cfg.Target)}
	if len(cfg.Categorical) > 0 {
		loadOpts = append(loadOpts, dataset.WithCategorical(cfg.Categorical...))
	}
	if r := cfg.DelimiterRune(); r != 0 {
		loadOpts = append(loadOpts, dataset.WithDelimiter(r))
	}
	if cfg.IsSQLite() {
		table := cfg.Table
		if table == "" {
			table = strings.TrimSuffix(filepath.Base(cfg.Path), filepath.Ext(cfg.Path))
		}
		ds, err := dataset.LoadSQLite(cfg.Path, table, loadOpts...)
		return ds, cfg.Path + "#" + table, err
	}
	ds, err := dataset.LoadCSV(cfg.Path, loadOpts...)
	return ds, cfg.Path, err
}

// newEstimator は種類に応じた未学習の推定器を作成し、初期パラメータを設定する
func newEstimator(cfg config.ModelConfig, seed uint64) (model.Estimator, error) {
	var est model.Estimator
	switch cfg.Kind {
	case config.ModelLinearRegression:
		est = linear.NewRegression()
	case config.ModelLogisticRegression:
		est = linear.NewLogisticRegression()
	case config.ModelDummyClassifier:
		est = dummy.NewClassifier(dummy.WithRandomState(int64(seed)))
	case config.ModelDummyRegressor:
		est = dummy.NewRegressor()
	case config.ModelKMeans:
		est = cluster.NewKMeans(cluster.WithRandomState(int64(seed)))
	default:
		return nil, errors.NewValidationError("model.kind", "unknown model kind", cfg.Kind)
	}
	if len(cfg.Params) > 0 {
		if err := est.SetParams(cfg.Params); err != nil {
			return nil, err
		}
	}
	return est, nil
}

// buildPipeline は推定器と前処理をまとめた Pipeline を作成する。
// 前処理ステップの対象列は訓練データのスキーマから決める。
func buildPipeline(cfg config.Config, train *dataset.Dataset, logger log.Logger) (*pipeline.Pipeline, error) {
	est, err := newEstimator(cfg.Model, cfg.Seed)
	if err != nil {
		return nil, err
	}
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Preprocess.Enabled() {
		opts = append(opts, pipeline.WithPreprocessor(newColumnTransformer(cfg.Preprocess, train)))
	}
	return pipeline.New(est, opts...), nil
}

func newColumnTransformer(cfg config.PreprocessConfig, train *dataset.Dataset) *preprocessing.ColumnTransformer {
	var opts []preprocessing.ColumnTransformerOption

	if cfg.Scaler != "" && cfg.Scaler != config.ScalerNone {
		cols := cfg.Scale
		if len(cols) == 0 {
			cols = train.ColumnsOfKind(dataset.Numeric)
		}
		var scaler model.Transformer = preprocessing.NewStandardScaler()
		if cfg.Scaler == config.ScalerMinMax {
			scaler = preprocessing.NewMinMaxScalerDefault()
		}
		if len(cols) > 0 {
			opts = append(opts, preprocessing.WithNumericStep("scale", scaler, cols...))
		}
	}
	if len(cfg.OneHot) > 0 {
		handle := preprocessing.HandleUnknownError
		if cfg.HandleUnknown == string(preprocessing.HandleUnknownIgnore) {
			handle = preprocessing.HandleUnknownIgnore
		}
		opts = append(opts, preprocessing.WithCategoricalStep("onehot",
			preprocessing.NewOneHotEncoder(handle), cfg.OneHot...))
	}
	if len(cfg.Ordinal) > 0 {
		var encOpts []preprocessing.OrdinalEncoderOption
		if cfg.HandleUnknown == string(preprocessing.HandleUnknownUseEncodedValue) {
			encOpts = append(encOpts, preprocessing.WithUnknownValue(-1))
		}
		opts = append(opts, preprocessing.WithCategoricalStep("ordinal",
			preprocessing.NewOrdinalEncoder(encOpts...), cfg.Ordinal...))
	}

	remainder := preprocessing.RemainderPassthrough
	if cfg.Remainder == string(preprocessing.RemainderDrop) {
		remainder = preprocessing.RemainderDrop
	}
	opts = append(opts, preprocessing.WithRemainder(remainder))
	return preprocessing.NewColumnTransformer(opts...)
}

// searcher は GridSearchCV と RandomizedSearchCV の共通部分
type searcher interface {
	Fit(ds *dataset.Dataset) error
	BestEstimator() model.Learner
	BestScore() float64
	BestParams() map[string]interface{}
	Results() []ms.CandidateResult
}

// newSearcher は search.n_iter が正ならランダムサーチ、そうでなければグリッドサーチを返す
func newSearcher(cfg config.Config, pipe *pipeline.Pipeline, splitter ms.Splitter, scorer metrics.Scorer, opts []ms.Option) searcher {
	grid := searchGrid(pipe.StepName(), cfg.Search.Grid)
	if cfg.Search.NIter == 0 {
		return ms.NewGridSearchCV(pipe, grid, splitter, scorer, opts...)
	}
	dists := make(ms.ParamDistributions, len(grid))
	for k, vs := range grid {
		dists[k] = ms.Choice(vs)
	}
	return ms.NewRandomizedSearchCV(pipe, dists, cfg.Search.NIter, int64(cfg.Seed), splitter, scorer, opts...)
}

// searchGrid は推定器のパラメータ名に Pipeline のステップ名を付ける。
// すでに "__" を含むキーはそのまま使う。
func searchGrid(step string, grid map[string][]interface{}) ms.ParamGrid {
	out := make(ms.ParamGrid, len(grid))
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if !strings.Contains(k, "__") {
			name = step + "__" + k
		}
		out[name] = grid[k]
	}
	return out
}

func newSplitter(cfg config.CVConfig, folds int, seed uint64) ms.Splitter {
	if cfg.Stratified {
		return ms.NewStratifiedKFold(folds, cfg.Shuffle, int64(seed))
	}
	return ms.NewKFold(folds, cfg.Shuffle, int64(seed))
}

func score(learner model.Learner, ds *dataset.Dataset, scorer metrics.Scorer) (float64, error) {
	if scorer == nil {
		return learner.Score(ds)
	}
	yTrue, err := ds.Target()
	if err != nil {
		return 0, err
	}
	yPred, err := learner.Predict(ds)
	if err != nil {
		return 0, err
	}
	return scorer(yTrue, yPred)
}

// save は report をストアに保存する。ストアがなく StorePath も空なら何もしない。
func save(cfg config.Config, store *runstore.Store, report *Report) error {
	if store == nil {
		if cfg.StorePath == "" {
			return nil
		}
		s, err := runstore.Open(cfg.StorePath)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}
	return store.Put(report.RunID, report)
}
