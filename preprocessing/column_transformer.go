package preprocessing

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/dataset"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// Remainder はどのステップにも指定されなかった列の扱い
type Remainder string

const (
	// RemainderDrop は残りの列を捨てる (デフォルト)
	RemainderDrop Remainder = "drop"
	// RemainderPassthrough は残りの数値列をそのまま末尾に連結する
	RemainderPassthrough Remainder = "passthrough"
)

type cloneableTransformer interface {
	Clone() model.Transformer
}

type cloneableCategorical interface {
	Clone() model.CategoricalTransformer
}

type paramHolder interface {
	model.ParameterGetter
	model.ParameterSetter
}

// columnStep は名前付きの変換器と対象列の組
type columnStep struct {
	name        string
	columns     []string
	numeric     model.Transformer
	categorical model.CategoricalTransformer
	outNames    []string
}

func (s *columnStep) transformer() interface{} {
	if s.numeric != nil {
		return s.numeric
	}
	return s.categorical
}

// ColumnTransformer は列名ごとに異なる変換器を適用し、結果を横に連結する。
// 変換器は訓練用 Dataset でだけ Fit され、Transform は学習済みパラメータを変更しない。
//
//	ct := preprocessing.NewColumnTransformer(
//	    preprocessing.WithCategoricalStep("onehot", preprocessing.NewOneHotEncoder(preprocessing.HandleUnknownIgnore), "SEX", "UNION"),
//	    preprocessing.WithNumericStep("scale", preprocessing.NewStandardScaler(), "AGE", "EDUCATION"),
//	    preprocessing.WithRemainder(preprocessing.RemainderPassthrough),
//	)
type ColumnTransformer struct {
	state     *model.StateManager
	steps     []*columnStep
	remainder Remainder
	buildErr  error

	remainderCols []string
	featureNames  []string
}

// ColumnTransformerOption は ColumnTransformer の設定関数
type ColumnTransformerOption func(*ColumnTransformer)

// WithNumericStep は数値列に適用する変換器を追加する
func WithNumericStep(name string, t model.Transformer, columns ...string) ColumnTransformerOption {
	return func(ct *ColumnTransformer) {
		ct.addStep(&columnStep{name: name, columns: columns, numeric: t})
	}
}

// WithCategoricalStep はカテゴリ列に適用する変換器を追加する
func WithCategoricalStep(name string, t model.CategoricalTransformer, columns ...string) ColumnTransformerOption {
	return func(ct *ColumnTransformer) {
		ct.addStep(&columnStep{name: name, columns: columns, categorical: t})
	}
}

// WithRemainder は残りの列の扱いを設定する
func WithRemainder(r Remainder) ColumnTransformerOption {
	return func(ct *ColumnTransformer) { ct.remainder = r }
}

// NewColumnTransformer は新しい ColumnTransformer を作成する
func NewColumnTransformer(opts ...ColumnTransformerOption) *ColumnTransformer {
	ct := &ColumnTransformer{state: model.NewStateManager(), remainder: RemainderDrop}
	for _, opt := range opts {
		opt(ct)
	}
	return ct
}

func (ct *ColumnTransformer) addStep(step *columnStep) {
	if ct.buildErr != nil {
		return
	}
	switch {
	case step.name == "" || strings.Contains(step.name, "__"):
		ct.buildErr = errors.NewValidationError("step name", `must be non-empty and must not contain "__"`, step.name)
		return
	case len(step.columns) == 0:
		ct.buildErr = errors.NewValidationError(step.name, "step has no columns", step.columns)
		return
	}
	for _, s := range ct.steps {
		if s.name == step.name {
			ct.buildErr = errors.NewValidationError("step name", "duplicate step", step.name)
			return
		}
	}
	ct.steps = append(ct.steps, step)
}

// Fit は各ステップの変換器を ds の対象列で学習する
func (ct *ColumnTransformer) Fit(ds *dataset.Dataset) error {
	if ct.buildErr != nil {
		return ct.buildErr
	}
	if ct.remainder != RemainderDrop && ct.remainder != RemainderPassthrough {
		return errors.NewValidationError("remainder", `must be "drop" or "passthrough"`, ct.remainder)
	}
	if ds.NRows() == 0 {
		return errors.NewValueError("ColumnTransformer.Fit", "empty dataset")
	}

	schema := ds.Schema()
	used := map[string]string{}
	for _, step := range ct.steps {
		want := dataset.Numeric
		if step.categorical != nil {
			want = dataset.Categorical
		}
		for _, col := range step.columns {
			j := schema.Index(col)
			if j < 0 {
				return errors.NewValidationError(step.name, "unknown column", col)
			}
			if schema[j].Kind != want {
				return errors.NewValidationError(step.name,
					fmt.Sprintf("column %q is %s, step expects %s", col, schema[j].Kind, want), col)
			}
			if prev, ok := used[col]; ok {
				return errors.NewValidationError(step.name, "column already used by step "+prev, col)
			}
			used[col] = step.name
		}
	}

	ct.remainderCols = nil
	if ct.remainder == RemainderPassthrough {
		for _, c := range schema {
			if _, ok := used[c.Name]; ok {
				continue
			}
			if c.Kind == dataset.Categorical {
				return errors.NewValidationError("remainder",
					"passthrough cannot carry categorical column "+c.Name+"; add an encoder step", c.Name)
			}
			ct.remainderCols = append(ct.remainderCols, c.Name)
		}
	}

	var names []string
	for _, step := range ct.steps {
		if step.numeric != nil {
			X, err := ds.NumericMatrix(step.columns...)
			if err != nil {
				return err
			}
			if err := step.numeric.Fit(X); err != nil {
				return errors.Wrapf(err, "ColumnTransformer step %q", step.name)
			}
			step.outNames = prefixed(step.name, step.columns)
		} else {
			X, err := ds.CategoricalMatrix(step.columns...)
			if err != nil {
				return err
			}
			if err := step.categorical.Fit(X); err != nil {
				return errors.Wrapf(err, "ColumnTransformer step %q", step.name)
			}
			step.outNames = prefixed(step.name, step.categorical.FeatureNames(step.columns))
		}
		names = append(names, step.outNames...)
	}
	names = append(names, prefixed("remainder", ct.remainderCols)...)
	if len(names) == 0 {
		return errors.NewValueError("ColumnTransformer.Fit", "no output columns: add a step or use remainder=passthrough")
	}
	ct.featureNames = names
	ct.state.SetFitted(ds.NFeatures(), ds.NRows())
	return nil
}

// Transform は学習済みの各変換器を適用し、出力をステップ順に連結する
func (ct *ColumnTransformer) Transform(ds *dataset.Dataset) (*mat.Dense, error) {
	if err := ct.state.RequireFitted("ColumnTransformer", "Transform"); err != nil {
		return nil, err
	}
	n := ds.NRows()
	if n == 0 {
		return nil, errors.NewValueError("ColumnTransformer.Transform", "empty dataset")
	}

	blocks := make([]mat.Matrix, 0, len(ct.steps)+1)
	for _, step := range ct.steps {
		var (
			out mat.Matrix
			err error
		)
		if step.numeric != nil {
			var X *mat.Dense
			if X, err = ds.NumericMatrix(step.columns...); err == nil {
				out, err = step.numeric.Transform(X)
			}
		} else {
			var X [][]string
			if X, err = ds.CategoricalMatrix(step.columns...); err == nil {
				out, err = step.categorical.Transform(X)
			}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "ColumnTransformer step %q", step.name)
		}
		blocks = append(blocks, out)
	}
	if len(ct.remainderCols) > 0 {
		X, err := ds.NumericMatrix(ct.remainderCols...)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, X)
	}

	result := mat.NewDense(n, len(ct.featureNames), nil)
	offset := 0
	for _, b := range blocks {
		_, c := b.Dims()
		result.Slice(0, n, offset, offset+c).(*mat.Dense).Copy(b)
		offset += c
	}
	return result, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (ct *ColumnTransformer) FitTransform(ds *dataset.Dataset) (*mat.Dense, error) {
	if err := ct.Fit(ds); err != nil {
		return nil, err
	}
	return ct.Transform(ds)
}

// FeatureNames は出力列名 ("<step>__<column>") を返す。Fit 前は nil
func (ct *ColumnTransformer) FeatureNames() []string {
	return append([]string(nil), ct.featureNames...)
}

// IsFitted は学習済みかどうかを返す
func (ct *ColumnTransformer) IsFitted() bool { return ct.state.IsFitted() }

// GetParams は "remainder" と各ステップのパラメータ ("<step>__<param>") を返す
func (ct *ColumnTransformer) GetParams() map[string]interface{} {
	params := map[string]interface{}{"remainder": string(ct.remainder)}
	for _, step := range ct.steps {
		ph, ok := step.transformer().(model.ParameterGetter)
		if !ok {
			continue
		}
		for k, v := range ph.GetParams() {
			params[step.name+"__"+k] = v
		}
	}
	return params
}

// SetParams は "remainder" または "<step>__<param>" 形式のキーを各ステップへ振り分ける
func (ct *ColumnTransformer) SetParams(params map[string]interface{}) error {
	routed := map[string]map[string]interface{}{}
	for k, v := range params {
		if k == "remainder" {
			s, _ := v.(string)
			ct.remainder = Remainder(s)
			continue
		}
		stepName, param, ok := strings.Cut(k, "__")
		if !ok {
			return errors.NewValidationError(k, "expected <step>__<param>", v)
		}
		if routed[stepName] == nil {
			routed[stepName] = map[string]interface{}{}
		}
		routed[stepName][param] = v
	}
	for name, p := range routed {
		step := ct.step(name)
		if step == nil {
			return errors.NewValidationError(name, "unknown step", p)
		}
		ph, ok := step.transformer().(paramHolder)
		if !ok {
			return errors.NewValidationError(name, "step does not accept parameters", p)
		}
		if err := ph.SetParams(p); err != nil {
			return err
		}
	}
	ct.state.Reset()
	return nil
}

func (ct *ColumnTransformer) step(name string) *columnStep {
	for _, s := range ct.steps {
		if s.name == name {
			return s
		}
	}
	return nil
}

// Clone は同じ構成を持つ未学習の ColumnTransformer を返す。
// 全ての変換器が Clone を実装している必要がある。
func (ct *ColumnTransformer) Clone() (*ColumnTransformer, error) {
	out := &ColumnTransformer{state: model.NewStateManager(), remainder: ct.remainder, buildErr: ct.buildErr}
	for _, s := range ct.steps {
		c := &columnStep{name: s.name, columns: append([]string(nil), s.columns...)}
		switch {
		case s.numeric != nil:
			cl, ok := s.numeric.(cloneableTransformer)
			if !ok {
				return nil, errors.NewValidationError(s.name, "transformer cannot be cloned", fmt.Sprintf("%T", s.numeric))
			}
			c.numeric = cl.Clone()
		default:
			cl, ok := s.categorical.(cloneableCategorical)
			if !ok {
				return nil, errors.NewValidationError(s.name, "transformer cannot be cloned", fmt.Sprintf("%T", s.categorical))
			}
			c.categorical = cl.Clone()
		}
		out.steps = append(out.steps, c)
	}
	return out, nil
}

func prefixed(prefix string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + "__" + n
	}
	return out
}
