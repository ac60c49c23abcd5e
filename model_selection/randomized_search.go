package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/dataset"
	"github.com/YuminosukeSato/skflow/metrics"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// Distribution は1つのハイパーパラメータの候補値を乱数から生成する
type Distribution interface {
	Sample(rng *rand.Rand) interface{}
}

// Uniform は [Loc, Loc+Scale) の一様分布 (scipy.stats.uniform と同じ引数)
type Uniform struct {
	Loc, Scale float64
}

// Sample は float64 を返す
func (u Uniform) Sample(rng *rand.Rand) interface{} {
	return u.Loc + u.Scale*rng.Float64()
}

// LogUniform は [Low, High) の対数一様分布。正則化の強さなど桁を探す場合に使う。
type LogUniform struct {
	Low, High float64
}

// Sample は float64 を返す
func (u LogUniform) Sample(rng *rand.Rand) interface{} {
	lo, hi := math.Log(u.Low), math.Log(u.High)
	return math.Exp(lo + (hi-lo)*rng.Float64())
}

// IntUniform は [Low, High) の整数一様分布
type IntUniform struct {
	Low, High int
}

// Sample は int を返す
func (u IntUniform) Sample(rng *rand.Rand) interface{} {
	return u.Low + rng.IntN(u.High-u.Low)
}

// Choice は候補値から等確率で1つ選ぶ
type Choice []interface{}

// Sample は候補値のいずれかを返す
func (c Choice) Sample(rng *rand.Rand) interface{} {
	return c[rng.IntN(len(c))]
}

// ParamDistributions はパラメータ名から分布へのマップ
type ParamDistributions map[string]Distribution

// validate は各分布の範囲を検証する
func (d ParamDistributions) validate() error {
	for _, k := range d.keys() {
		switch dist := d[k].(type) {
		case nil:
			return errors.NewValidationError(k, "distribution is nil", dist)
		case Uniform:
			if dist.Scale < 0 || math.IsNaN(dist.Loc) || math.IsNaN(dist.Scale) {
				return errors.NewValidationError(k, "uniform scale must be non-negative", dist)
			}
		case LogUniform:
			if !(dist.Low > 0) || !(dist.High > dist.Low) {
				return errors.NewValidationError(k, "log-uniform needs 0 < low < high", dist)
			}
		case IntUniform:
			if dist.High <= dist.Low {
				return errors.NewValidationError(k, "int-uniform needs low < high", dist)
			}
		case Choice:
			if len(dist) == 0 {
				return errors.NewValidationError(k, "choice needs at least one value", dist)
			}
		}
	}
	return nil
}

func (d ParamDistributions) keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// grid は全ての分布が Choice のとき同値の ParamGrid を返す
func (d ParamDistributions) grid() (ParamGrid, bool) {
	g := make(ParamGrid, len(d))
	for k, dist := range d {
		c, ok := dist.(Choice)
		if !ok {
			return nil, false
		}
		g[k] = c
	}
	return g, true
}

// Sample は nIter 個の候補を seed から決定的に生成する。
// 全ての分布が Choice の場合はグリッドから重複なしで選び、
// グリッドが nIter 以下ならグリッド全体をその順序で返す。
// それ以外はキーのソート順に各分布から独立に引く。
func (d ParamDistributions) Sample(nIter int, seed int64) ([]map[string]interface{}, error) {
	if nIter < 1 {
		return nil, errors.NewValidationError("n_iter", "must be a positive integer", nIter)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	rng := newRand(seed)

	if g, ok := d.grid(); ok {
		all, err := g.Candidates()
		if err != nil {
			return nil, err
		}
		if len(all) <= nIter {
			return all, nil
		}
		perm := rng.Perm(len(all))[:nIter]
		out := make([]map[string]interface{}, nIter)
		for i, j := range perm {
			out[i] = all[j]
		}
		return out, nil
	}

	keys := d.keys()
	out := make([]map[string]interface{}, nIter)
	for i := range out {
		c := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			c[k] = d[k].Sample(rng)
		}
		out[i] = c
	}
	return out, nil
}

// RandomizedSearchCV は分布から nIter 個の候補を引いて交差検証し、最良を選ぶ。
// 評価・refit・結果の扱いは GridSearchCV と同じ。
//
//	rs := model_selection.NewRandomizedSearchCV(p, model_selection.ParamDistributions{
//	    "regression__alpha": model_selection.Uniform{Loc: 50, Scale: 100},
//	}, 20, 42, model_selection.NewKFold(5, true, 42), nil)
//	err := rs.Fit(ds)
type RandomizedSearchCV struct {
	search
	distributions ParamDistributions
	nIter         int
	seed          int64
}

// NewRandomizedSearchCV はランダムサーチを作成する。scorer が nil の場合は learner.Score を使う。
func NewRandomizedSearchCV(learner model.Learner, distributions ParamDistributions, nIter int, seed int64,
	splitter Splitter, scorer metrics.Scorer, opts ...Option) *RandomizedSearchCV {
	return &RandomizedSearchCV{
		search:        newSearch("RandomizedSearchCV", learner, splitter, scorer, opts),
		distributions: distributions,
		nIter:         nIter,
		seed:          seed,
	}
}

// Fit は候補を引いて評価し、refit が有効なら最良パラメータで全データを学習する
func (rs *RandomizedSearchCV) Fit(ds *dataset.Dataset) error {
	if err := rs.check(); err != nil {
		return err
	}
	candidates, err := rs.distributions.Sample(rs.nIter, rs.seed)
	if err != nil {
		return err
	}
	return rs.run(ds, candidates)
}
