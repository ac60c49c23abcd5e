package model_selection

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/dataset"
	"github.com/YuminosukeSato/skflow/metrics"
	"github.com/YuminosukeSato/skflow/pkg/errors"
	"github.com/YuminosukeSato/skflow/pkg/log"
)

// ParamGrid はパラメータ名から候補値へのマップ。
// 候補はキーのソート順に展開され、最後のキーが最も速く変化する。
type ParamGrid map[string][]interface{}

// Candidates はグリッドの全組み合わせを決定的な順序で返す。
// 空のグリッドはパラメータなしの候補を1つ返す。
func (g ParamGrid) Candidates() ([]map[string]interface{}, error) {
	keys := make([]string, 0, len(g))
	for k, vs := range g {
		if len(vs) == 0 {
			return nil, errors.NewValidationError(k, "parameter grid needs at least one value", vs)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	candidates := []map[string]interface{}{{}}
	for _, k := range keys {
		next := make([]map[string]interface{}, 0, len(candidates)*len(g[k]))
		for _, base := range candidates {
			for _, v := range g[k] {
				c := make(map[string]interface{}, len(base)+1)
				for bk, bv := range base {
					c[bk] = bv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		candidates = next
	}
	return candidates, nil
}

// CandidateResult は1つのパラメータ組み合わせの交差検証結果
type CandidateResult struct {
	Params    map[string]interface{}
	MeanScore float64
	StdScore  float64
	Scores    []float64
	Rank      int
}

// search は候補リストを交差検証して最良を選ぶ共通部分。
// GridSearchCV と RandomizedSearchCV が埋め込んで使う。
type search struct {
	name      string
	estimator model.Learner
	splitter  Splitter
	scorer    metrics.Scorer
	opts      *options

	results   []CandidateResult
	bestIndex int
	best      model.Learner
	state     *model.StateManager
}

func newSearch(name string, learner model.Learner, splitter Splitter, scorer metrics.Scorer, opts []Option) search {
	return search{
		name:      name,
		estimator: learner,
		splitter:  splitter,
		scorer:    scorer,
		opts:      newOptions(opts),
		bestIndex: -1,
		state:     model.NewStateManager(),
	}
}

func (s *search) check() error {
	if s.estimator == nil || s.splitter == nil {
		return errors.NewValueError(s.name+".Fit", "learner and splitter are required")
	}
	return nil
}

// run は全候補を評価し、refit が有効なら最良パラメータで全データを学習する。
// 平均スコアが同点の場合は先の候補を選ぶ。
func (s *search) run(ds *dataset.Dataset, candidates []map[string]interface{}) error {
	start := time.Now()
	logger := s.opts.logger.With(log.OperationKey, log.OperationSearch, log.ComponentKey, s.name)
	logger.Info("search started", log.CandidatesKey, len(candidates), log.NSplitsKey, s.splitter.NSplits())

	s.state.Reset()
	results := make([]CandidateResult, len(candidates))
	bestIndex := -1
	for i, params := range candidates {
		est := s.estimator.Clone()
		if err := est.SetParams(params); err != nil {
			return err
		}
		cv, err := crossValidate(est, ds, s.splitter, s.scorer, s.opts)
		if err != nil {
			return errors.Wrapf(err, "candidate %d", i)
		}
		results[i] = CandidateResult{
			Params:    params,
			MeanScore: cv.Mean(),
			StdScore:  cv.Std(),
			Scores:    cv.TestScores,
		}
		if bestIndex < 0 || results[i].MeanScore > results[bestIndex].MeanScore {
			bestIndex = i
		}
		logger.Debug("candidate evaluated", log.HyperParamsKey, params, log.ScoreKey, results[i].MeanScore)
	}
	rankResults(results)

	s.results = results
	s.bestIndex = bestIndex
	s.best = nil

	if s.opts.refit {
		best := s.estimator.Clone()
		if err := best.SetParams(results[bestIndex].Params); err != nil {
			return err
		}
		if err := best.Fit(ds); err != nil {
			return errors.Wrap(err, "refit best candidate")
		}
		s.best = best
	}
	s.state.SetFitted(ds.NFeatures(), ds.NRows())

	logger.Info("search completed",
		log.HyperParamsKey, results[bestIndex].Params,
		log.ScoreKey, results[bestIndex].MeanScore,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// GridSearchCV はパラメータグリッドを総当たりで交差検証し、最良の組み合わせを選ぶ。
//
//	gs := model_selection.NewGridSearchCV(p, model_selection.ParamGrid{
//	    "regression__alpha": {0.0, 0.1, 1.0},
//	}, model_selection.NewKFold(5, true, 42), nil)
//	err := gs.Fit(ds)
type GridSearchCV struct {
	search
	grid ParamGrid
}

// NewGridSearchCV はグリッドサーチを作成する。scorer が nil の場合は learner.Score を使う。
func NewGridSearchCV(learner model.Learner, grid ParamGrid, splitter Splitter, scorer metrics.Scorer, opts ...Option) *GridSearchCV {
	return &GridSearchCV{
		search: newSearch("GridSearchCV", learner, splitter, scorer, opts),
		grid:   grid,
	}
}

// Fit は全候補を展開順に評価し、refit が有効なら最良パラメータで全データを学習する。
// 平均スコアが同点の場合は先に展開された候補を選ぶ。
func (gs *GridSearchCV) Fit(ds *dataset.Dataset) error {
	if err := gs.check(); err != nil {
		return err
	}
	candidates, err := gs.grid.Candidates()
	if err != nil {
		return err
	}
	return gs.run(ds, candidates)
}

// rankResults は平均スコアの降順で 1 始まりの順位を付ける。同点は同順位。
func rankResults(results []CandidateResult) {
	order := identity(len(results))
	sort.SliceStable(order, func(a, b int) bool {
		return results[order[a]].MeanScore > results[order[b]].MeanScore
	})
	for pos, i := range order {
		if pos > 0 && results[i].MeanScore == results[order[pos-1]].MeanScore {
			results[i].Rank = results[order[pos-1]].Rank
			continue
		}
		results[i].Rank = pos + 1
	}
}

// Predict は再学習済みの最良モデルで予測する
func (s *search) Predict(ds *dataset.Dataset) (mat.Matrix, error) {
	best, err := s.refitted("Predict")
	if err != nil {
		return nil, err
	}
	return best.Predict(ds)
}

// Score は再学習済みの最良モデルで採点する。scorer が設定されていればそれを使う。
func (s *search) Score(ds *dataset.Dataset) (float64, error) {
	best, err := s.refitted("Score")
	if err != nil {
		return 0, err
	}
	return scoreLearner(best, ds, s.scorer)
}

func (s *search) refitted(method string) (model.Learner, error) {
	if err := s.state.RequireFitted(s.name, method); err != nil {
		return nil, err
	}
	if s.best == nil {
		return nil, errors.NewValueError(s.name+"."+method, "refit is disabled")
	}
	return s.best, nil
}

// IsFitted は Fit が完了しているかどうか
func (s *search) IsFitted() bool { return s.state.IsFitted() }

// BestParams は最良の候補のパラメータを返す
func (s *search) BestParams() map[string]interface{} {
	if s.bestIndex < 0 {
		return nil
	}
	out := make(map[string]interface{}, len(s.results[s.bestIndex].Params))
	for k, v := range s.results[s.bestIndex].Params {
		out[k] = v
	}
	return out
}

// BestScore は最良の候補の平均テストスコアを返す
func (s *search) BestScore() float64 {
	if s.bestIndex < 0 {
		return 0
	}
	return s.results[s.bestIndex].MeanScore
}

// BestEstimator は再学習済みの最良モデルを返す。refit しなかった場合は nil。
func (s *search) BestEstimator() model.Learner { return s.best }

// Results は全候補の結果を展開順で返す
func (s *search) Results() []CandidateResult {
	return append([]CandidateResult(nil), s.results...)
}
