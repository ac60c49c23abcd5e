// Package pipeline は列ごとの前処理と推定器を1つの学習器にまとめます。
//
// 前処理は Fit に渡された Dataset でだけ学習され、Predict や Score では
// 学習済みのパラメータで変換されるだけです。そのため交差検証の各フォールドで
// テスト行の情報が前処理に漏れることはありません。
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/dataset"
	"github.com/YuminosukeSato/skflow/pkg/errors"
	"github.com/YuminosukeSato/skflow/pkg/log"
	"github.com/YuminosukeSato/skflow/preprocessing"
)

// PreprocessorStep はパラメータキーで前処理を指す名前
const PreprocessorStep = "preprocessor"

// Option は Pipeline の設定関数
type Option func(*Pipeline)

// WithPreprocessor は推定器の前に適用する ColumnTransformer を設定する
func WithPreprocessor(ct *preprocessing.ColumnTransformer) Option {
	return func(p *Pipeline) { p.preprocessor = ct }
}

// WithStepName は推定器ステップの名前を設定する。
// パラメータは "<name>__<param>" で推定器に渡される。
func WithStepName(name string) Option {
	return func(p *Pipeline) { p.stepName = name }
}

// WithLogger は学習の進捗を出力するロガーを設定する
func WithLogger(l log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline は ColumnTransformer と推定器を連結した model.Learner
type Pipeline struct {
	preprocessor *preprocessing.ColumnTransformer
	estimator    model.Estimator
	stepName     string
	logger       log.Logger
	buildErr     error

	state *model.StateManager
}

// New は推定器を包む Pipeline を作成する。
// ステップ名の既定値は型名の小文字（*linear.Regression なら "regression"）。
func New(estimator model.Estimator, opts ...Option) *Pipeline {
	p := &Pipeline{
		estimator: estimator,
		stepName:  defaultStepName(estimator),
		state:     model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.GetLogger()
	}
	switch {
	case estimator == nil:
		p.buildErr = errors.NewValidationError("estimator", "must not be nil", nil)
	case p.stepName == "" || strings.Contains(p.stepName, "__") || p.stepName == PreprocessorStep:
		p.buildErr = errors.NewValidationError("step name", `must be non-empty, must not contain "__" and must not be "preprocessor"`, p.stepName)
	}
	return p
}

func defaultStepName(est model.Estimator) string {
	name := fmt.Sprintf("%T", est)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(strings.TrimPrefix(name, "*"))
}

// Fit は前処理を ds で学習・変換し、その結果で推定器を学習する
func (p *Pipeline) Fit(ds *dataset.Dataset) (err error) {
	defer errors.Recover(&err, "Pipeline.Fit")
	if p.buildErr != nil {
		return p.buildErr
	}
	if ds == nil {
		return errors.NewValueError("Pipeline.Fit", "dataset is nil")
	}
	start := time.Now()
	p.state.Reset()

	var X mat.Matrix
	if p.preprocessor != nil {
		X, err = p.preprocessor.FitTransform(ds)
	} else {
		X, err = ds.NumericMatrix()
	}
	if err != nil {
		return err
	}
	y, err := ds.Target()
	if err != nil {
		return err
	}
	if err := p.estimator.Fit(X, y); err != nil {
		return err
	}

	_, nFeatures := X.Dims()
	p.state.SetFitted(nFeatures, ds.NRows())
	p.logger.Debug("pipeline fitted",
		log.ModelNameKey, p.stepName,
		log.OperationKey, log.OperationFit,
		log.SamplesKey, ds.NRows(),
		log.FeaturesKey, nFeatures,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// transform は学習済みの前処理で ds を推定器の入力に変換する
func (p *Pipeline) transform(method string, ds *dataset.Dataset) (mat.Matrix, error) {
	if err := p.state.RequireFitted("Pipeline", method); err != nil {
		return nil, err
	}
	if ds == nil {
		return nil, errors.NewValueError("Pipeline."+method, "dataset is nil")
	}
	if p.preprocessor != nil {
		return p.preprocessor.Transform(ds)
	}
	return ds.NumericMatrix()
}

// Predict は ds を変換して推定器の予測を返す
func (p *Pipeline) Predict(ds *dataset.Dataset) (mat.Matrix, error) {
	X, err := p.transform("Predict", ds)
	if err != nil {
		return nil, err
	}
	return p.estimator.Predict(X)
}

// PredictProba は推定器が確率を出力できる場合にクラス確率を返す
func (p *Pipeline) PredictProba(ds *dataset.Dataset) (mat.Matrix, error) {
	pc, ok := p.estimator.(model.ProbabilisticClassifier)
	if !ok {
		return nil, errors.NewValueError("Pipeline.PredictProba", fmt.Sprintf("%T does not predict probabilities", p.estimator))
	}
	X, err := p.transform("PredictProba", ds)
	if err != nil {
		return nil, err
	}
	return pc.PredictProba(X)
}

// Score は推定器の既定スコアを返す。分類器は正解率、回帰器は R²、クラスタリングは慣性の符号反転。
func (p *Pipeline) Score(ds *dataset.Dataset) (float64, error) {
	X, err := p.transform("Score", ds)
	if err != nil {
		return 0, err
	}
	y, err := ds.Target()
	if err != nil {
		return 0, err
	}
	return p.estimator.Score(X, y)
}

// IsFitted は学習済みかどうかを返す
func (p *Pipeline) IsFitted() bool { return p.state.IsFitted() }

// Estimator は包んでいる推定器を返す
func (p *Pipeline) Estimator() model.Estimator { return p.estimator }

// Preprocessor は前処理を返す。設定されていなければ nil。
func (p *Pipeline) Preprocessor() *preprocessing.ColumnTransformer { return p.preprocessor }

// StepName は推定器ステップの名前を返す
func (p *Pipeline) StepName() string { return p.stepName }

// FeatureNames は推定器に渡される列の名前を返す
func (p *Pipeline) FeatureNames() []string {
	if p.preprocessor != nil {
		return p.preprocessor.FeatureNames()
	}
	return nil
}

// GetParams は "<step>__<param>" 形式で全ステップのパラメータを返す
func (p *Pipeline) GetParams() map[string]interface{} {
	params := map[string]interface{}{}
	if p.estimator != nil {
		for k, v := range p.estimator.GetParams() {
			params[p.stepName+"__"+k] = v
		}
	}
	if p.preprocessor != nil {
		for k, v := range p.preprocessor.GetParams() {
			params[PreprocessorStep+"__"+k] = v
		}
	}
	return params
}

// SetParams はキーの先頭のステップ名でパラメータを振り分け、学習状態をリセットする
func (p *Pipeline) SetParams(params map[string]interface{}) error {
	if p.buildErr != nil {
		return p.buildErr
	}
	estParams := map[string]interface{}{}
	preParams := map[string]interface{}{}
	for k, v := range params {
		step, param, ok := strings.Cut(k, "__")
		if !ok {
			return errors.NewValidationError(k, "expected <step>__<param>", v)
		}
		switch {
		case step == p.stepName:
			estParams[param] = v
		case step == PreprocessorStep && p.preprocessor != nil:
			preParams[param] = v
		default:
			return errors.NewValidationError(step, "unknown pipeline step", v)
		}
	}
	if len(estParams) > 0 {
		if err := p.estimator.SetParams(estParams); err != nil {
			return err
		}
	}
	if len(preParams) > 0 {
		if err := p.preprocessor.SetParams(preParams); err != nil {
			return err
		}
	}
	p.state.Reset()
	return nil
}

// Clone は同じ構成を持つ未学習の Pipeline を返す。
// 前処理を複製できない場合、返された Pipeline の Fit がそのエラーを返す。
func (p *Pipeline) Clone() model.Learner {
	out := &Pipeline{
		stepName: p.stepName,
		logger:   p.logger,
		buildErr: p.buildErr,
		state:    model.NewStateManager(),
	}
	if p.estimator != nil {
		out.estimator = p.estimator.Clone()
	}
	if p.preprocessor != nil && out.buildErr == nil {
		ct, err := p.preprocessor.Clone()
		if err != nil {
			out.buildErr = err
		}
		out.preprocessor = ct
	}
	return out
}
