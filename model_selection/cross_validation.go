package model_selection

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/dataset"
	"github.com/YuminosukeSato/skflow/metrics"
	"github.com/YuminosukeSato/skflow/pkg/errors"
	"github.com/YuminosukeSato/skflow/pkg/log"
)

// Option は交差検証・探索の実行オプション
type Option func(*options)

type options struct {
	nJobs      int
	logger     log.Logger
	trainScore bool
	refit      bool
}

func newOptions(opts []Option) *options {
	o := &options{nJobs: 1, refit: true}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = log.GetLogger()
	}
	return o
}

// WithNJobs はフォールドを並行に評価するゴルーチン数を設定する。
// 1 以下は逐次実行。結果の順序はフォールド順のまま。
func WithNJobs(n int) Option {
	return func(o *options) { o.nJobs = n }
}

// WithLogger は進捗を出力するロガーを設定する
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTrainScore は訓練フォールドのスコアも計算する
func WithTrainScore() Option {
	return func(o *options) { o.trainScore = true }
}

// WithoutRefit は GridSearchCV が最良パラメータで全データを再学習しないようにする
func WithoutRefit() Option {
	return func(o *options) { o.refit = false }
}

// CVResult は交差検証の結果
type CVResult struct {
	TestScores  []float64
	TrainScores []float64
	FitTimes    []time.Duration
}

// Mean はテストスコアの平均
func (r *CVResult) Mean() float64 {
	if len(r.TestScores) == 0 {
		return 0
	}
	return stat.Mean(r.TestScores, nil)
}

// Std はテストスコアの標準偏差（母標準偏差）
func (r *CVResult) Std() float64 {
	if len(r.TestScores) <= 1 {
		return 0
	}
	_, std := stat.PopMeanStdDev(r.TestScores, nil)
	return std
}

// CrossValScore は splitter の各フォールドで learner の複製を学習し、テストフォールドを採点する。
// scorer が nil の場合は learner.Score を使う。
// 学習器のパニックは PanicError としてフォールド番号付きで返される。
func CrossValScore(learner model.Learner, ds *dataset.Dataset, splitter Splitter, scorer metrics.Scorer, opts ...Option) (*CVResult, error) {
	if learner == nil {
		return nil, errors.NewValueError("CrossValScore", "learner is nil")
	}
	if splitter == nil {
		return nil, errors.NewValueError("CrossValScore", "splitter is nil")
	}
	o := newOptions(opts)
	return crossValidate(learner, ds, splitter, scorer, o)
}

func crossValidate(learner model.Learner, ds *dataset.Dataset, splitter Splitter, scorer metrics.Scorer, o *options) (*CVResult, error) {
	folds, err := splitter.Split(ds)
	if err != nil {
		return nil, err
	}

	nFolds := len(folds)
	result := &CVResult{
		TestScores: make([]float64, nFolds),
		FitTimes:   make([]time.Duration, nFolds),
	}
	if o.trainScore {
		result.TrainScores = make([]float64, nFolds)
	}

	runFold := func(idx int) error {
		op := fmt.Sprintf("CrossValScore.fold[%d]", idx)
		return errors.SafeExecute(op, func() error {
			fold := folds[idx]
			train, err := ds.Subset(fold.TrainIdx)
			if err != nil {
				return err
			}
			test, err := ds.Subset(fold.TestIdx)
			if err != nil {
				return err
			}

			est := learner.Clone()
			start := time.Now()
			if err := est.Fit(train); err != nil {
				return errors.Wrapf(err, "fold %d", idx)
			}
			result.FitTimes[idx] = time.Since(start)

			testScore, err := scoreLearner(est, test, scorer)
			if err != nil {
				return errors.Wrapf(err, "fold %d", idx)
			}
			result.TestScores[idx] = testScore

			if o.trainScore {
				trainScore, err := scoreLearner(est, train, scorer)
				if err != nil {
					return errors.Wrapf(err, "fold %d", idx)
				}
				result.TrainScores[idx] = trainScore
			}

			o.logger.Debug("fold evaluated",
				log.FoldKey, idx,
				log.SamplesKey, len(fold.TrainIdx),
				log.ScoreKey, testScore,
				log.DurationMsKey, result.FitTimes[idx].Milliseconds(),
			)
			return nil
		})
	}

	if o.nJobs <= 1 {
		for i := range folds {
			if err := runFold(i); err != nil {
				return nil, err
			}
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.nJobs)
		for i := range folds {
			g.Go(func() error { return runFold(i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	o.logger.Info("cross-validation completed",
		log.OperationKey, log.OperationScore,
		log.NSplitsKey, nFolds,
		log.ScoreKey, result.Mean(),
		log.StdKey, result.Std(),
	)
	return result, nil
}

// scoreLearner は学習済みの learner で ds を予測し、scorer で採点する
func scoreLearner(est model.Learner, ds *dataset.Dataset, scorer metrics.Scorer) (float64, error) {
	if scorer == nil {
		return est.Score(ds)
	}
	yTrue, err := ds.Target()
	if err != nil {
		return 0, err
	}
	yPred, err := est.Predict(ds)
	if err != nil {
		return 0, err
	}
	return scorer(yTrue, yPred)
}

// ValidationCurveResult はパラメータ値ごとの交差検証スコア。
// TrainScores[i][f] は Values[i] のフォールド f の訓練スコア。
type ValidationCurveResult struct {
	Param       string
	Values      []interface{}
	TrainScores [][]float64
	TestScores  [][]float64
}

// MeanTestScores は各パラメータ値のテストスコア平均を返す
func (r *ValidationCurveResult) MeanTestScores() []float64 {
	return rowMeans(r.TestScores)
}

// MeanTrainScores は各パラメータ値の訓練スコア平均を返す
func (r *ValidationCurveResult) MeanTrainScores() []float64 {
	return rowMeans(r.TrainScores)
}

// ValidationCurve は param を values の各値に設定して交差検証し、訓練・テストスコアを返す
func ValidationCurve(learner model.Learner, ds *dataset.Dataset, param string, values []interface{},
	splitter Splitter, scorer metrics.Scorer, opts ...Option) (*ValidationCurveResult, error) {
	if learner == nil || splitter == nil {
		return nil, errors.NewValueError("ValidationCurve", "learner and splitter are required")
	}
	if len(values) == 0 {
		return nil, errors.NewValidationError("values", "at least one value is required", param)
	}

	o := newOptions(opts)
	o.trainScore = true

	result := &ValidationCurveResult{
		Param:       param,
		Values:      append([]interface{}(nil), values...),
		TrainScores: make([][]float64, len(values)),
		TestScores:  make([][]float64, len(values)),
	}
	for i, v := range values {
		est := learner.Clone()
		if err := est.SetParams(map[string]interface{}{param: v}); err != nil {
			return nil, err
		}
		cv, err := crossValidate(est, ds, splitter, scorer, o)
		if err != nil {
			return nil, errors.Wrapf(err, "%s=%v", param, v)
		}
		result.TrainScores[i] = cv.TrainScores
		result.TestScores[i] = cv.TestScores
	}
	return result, nil
}

func rowMeans(scores [][]float64) []float64 {
	out := make([]float64, len(scores))
	for i, row := range scores {
		if len(row) > 0 {
			out[i] = stat.Mean(row, nil)
		}
	}
	return out
}
