package preprocessing

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// HandleUnknown は変換時に未知のカテゴリが現れた場合の扱い
type HandleUnknown string

const (
	// HandleUnknownError は UnknownCategoryError を返す (デフォルト)
	HandleUnknownError HandleUnknown = "error"
	// HandleUnknownIgnore は OneHotEncoder で全て0のブロックを出力する
	HandleUnknownIgnore HandleUnknown = "ignore"
	// HandleUnknownUseEncodedValue は OrdinalEncoder で UnknownValue を出力する
	HandleUnknownUseEncodedValue HandleUnknown = "use_encoded_value"
)

// categoryIndex は列ごとのソート済みカテゴリと逆引き表
type categoryIndex struct {
	categories [][]string
	lookup     []map[string]int
}

func fitCategories(op string, X [][]string) (*categoryIndex, error) {
	if len(X) == 0 || len(X[0]) == 0 {
		return nil, errors.NewValueError(op, "empty data")
	}
	c := len(X[0])
	idx := &categoryIndex{
		categories: make([][]string, c),
		lookup:     make([]map[string]int, c),
	}
	for j := 0; j < c; j++ {
		seen := map[string]struct{}{}
		for _, row := range X {
			if len(row) != c {
				return nil, errors.NewDimensionError(op, c, len(row), 1)
			}
			seen[row[j]] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for s := range seen {
			cats = append(cats, s)
		}
		sort.Strings(cats)
		idx.categories[j] = cats
		idx.lookup[j] = make(map[string]int, len(cats))
		for k, s := range cats {
			idx.lookup[j][s] = k
		}
	}
	return idx, nil
}

func (ci *categoryIndex) copyCategories() [][]string {
	out := make([][]string, len(ci.categories))
	for j, cats := range ci.categories {
		out[j] = append([]string(nil), cats...)
	}
	return out
}

// OrdinalEncoder は各カテゴリ列をソート済みカテゴリの番号 0..k-1 に変換する
type OrdinalEncoder struct {
	state *model.StateManager
	index *categoryIndex

	// HandleUnknown は HandleUnknownError または HandleUnknownUseEncodedValue
	HandleUnknown HandleUnknown

	// UnknownValue は HandleUnknownUseEncodedValue のときに未知カテゴリへ割り当てる値
	UnknownValue float64
}

// OrdinalEncoderOption は OrdinalEncoder の設定関数
type OrdinalEncoderOption func(*OrdinalEncoder)

// WithUnknownValue は未知カテゴリを value に符号化する
func WithUnknownValue(value float64) OrdinalEncoderOption {
	return func(e *OrdinalEncoder) {
		e.HandleUnknown = HandleUnknownUseEncodedValue
		e.UnknownValue = value
	}
}

// NewOrdinalEncoder は新しい OrdinalEncoder を作成する
func NewOrdinalEncoder(opts ...OrdinalEncoderOption) *OrdinalEncoder {
	e := &OrdinalEncoder{state: model.NewStateManager(), HandleUnknown: HandleUnknownError}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fit は列ごとのカテゴリを学習する
func (e *OrdinalEncoder) Fit(X [][]string) error {
	idx, err := fitCategories("OrdinalEncoder.Fit", X)
	if err != nil {
		return err
	}
	e.index = idx
	e.state.SetFitted(len(idx.categories), len(X))
	return nil
}

// Transform はカテゴリを番号に変換する。学習時にないカテゴリは追加しない。
func (e *OrdinalEncoder) Transform(X [][]string) (mat.Matrix, error) {
	if err := e.state.RequireFitted("OrdinalEncoder", "Transform"); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, errors.NewValueError("OrdinalEncoder.Transform", "empty data")
	}
	c := len(e.index.categories)
	out := mat.NewDense(len(X), c, nil)
	for i, row := range X {
		if err := e.state.RequireFeatures("OrdinalEncoder.Transform", len(row)); err != nil {
			return nil, err
		}
		for j, v := range row {
			k, ok := e.index.lookup[j][v]
			if ok {
				out.Set(i, j, float64(k))
				continue
			}
			if e.HandleUnknown != HandleUnknownUseEncodedValue {
				return nil, errors.NewUnknownCategoryError("OrdinalEncoder.Transform", j, v)
			}
			out.Set(i, j, e.UnknownValue)
		}
	}
	return out, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (e *OrdinalEncoder) FitTransform(X [][]string) (mat.Matrix, error) {
	if err := e.Fit(X); err != nil {
		return nil, err
	}
	return e.Transform(X)
}

// Categories は学習したカテゴリを列ごとに返す
func (e *OrdinalEncoder) Categories() [][]string {
	if e.index == nil {
		return nil
	}
	return e.index.copyCategories()
}

// FeatureNames は入力列名をそのまま返す
func (e *OrdinalEncoder) FeatureNames(input []string) []string {
	return append([]string(nil), input...)
}

// GetParams はエンコーダのパラメータを取得する
func (e *OrdinalEncoder) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"handle_unknown": string(e.HandleUnknown),
		"unknown_value":  e.UnknownValue,
	}
}

// SetParams はエンコーダのパラメータを設定する
func (e *OrdinalEncoder) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "handle_unknown":
			h, err := parseHandleUnknown(v, HandleUnknownError, HandleUnknownUseEncodedValue)
			if err != nil {
				return err
			}
			e.HandleUnknown = h
		case "unknown_value":
			f, ok := toFloat(v)
			if !ok {
				return errors.NewValidationError(k, "must be a number", v)
			}
			e.UnknownValue = f
		default:
			return errors.NewValidationError(k, "unknown OrdinalEncoder parameter", v)
		}
	}
	e.state.Reset()
	return nil
}

// Clone は同じ設定を持つ未学習のエンコーダを返す
func (e *OrdinalEncoder) Clone() model.CategoricalTransformer {
	return &OrdinalEncoder{state: model.NewStateManager(), HandleUnknown: e.HandleUnknown, UnknownValue: e.UnknownValue}
}

// OneHotEncoder は各カテゴリ列をソート済みカテゴリごとの指示変数に展開する
type OneHotEncoder struct {
	state   *model.StateManager
	index   *categoryIndex
	offsets []int

	// HandleUnknown は HandleUnknownError または HandleUnknownIgnore
	HandleUnknown HandleUnknown
}

// NewOneHotEncoder は新しい OneHotEncoder を作成する
//
//	enc := preprocessing.NewOneHotEncoder(preprocessing.HandleUnknownIgnore)
func NewOneHotEncoder(handleUnknown HandleUnknown) *OneHotEncoder {
	if handleUnknown == "" {
		handleUnknown = HandleUnknownError
	}
	return &OneHotEncoder{state: model.NewStateManager(), HandleUnknown: handleUnknown}
}

// Fit は列ごとのカテゴリを学習する
func (e *OneHotEncoder) Fit(X [][]string) error {
	idx, err := fitCategories("OneHotEncoder.Fit", X)
	if err != nil {
		return err
	}
	e.index = idx
	e.offsets = make([]int, len(idx.categories)+1)
	for j, cats := range idx.categories {
		e.offsets[j+1] = e.offsets[j] + len(cats)
	}
	e.state.SetFitted(len(idx.categories), len(X))
	return nil
}

// Transform はカテゴリを指示変数に展開する。
// HandleUnknownIgnore のとき未知カテゴリはその列のブロックが全て0になる。
func (e *OneHotEncoder) Transform(X [][]string) (mat.Matrix, error) {
	if err := e.state.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, errors.NewValueError("OneHotEncoder.Transform", "empty data")
	}
	width := e.offsets[len(e.offsets)-1]
	out := mat.NewDense(len(X), width, nil)
	for i, row := range X {
		if err := e.state.RequireFeatures("OneHotEncoder.Transform", len(row)); err != nil {
			return nil, err
		}
		for j, v := range row {
			k, ok := e.index.lookup[j][v]
			if !ok {
				if e.HandleUnknown == HandleUnknownIgnore {
					continue
				}
				return nil, errors.NewUnknownCategoryError("OneHotEncoder.Transform", j, v)
			}
			out.Set(i, e.offsets[j]+k, 1)
		}
	}
	return out, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (e *OneHotEncoder) FitTransform(X [][]string) (mat.Matrix, error) {
	if err := e.Fit(X); err != nil {
		return nil, err
	}
	return e.Transform(X)
}

// Categories は学習したカテゴリを列ごとに返す
func (e *OneHotEncoder) Categories() [][]string {
	if e.index == nil {
		return nil
	}
	return e.index.copyCategories()
}

// FeatureNames は "<列名>_<カテゴリ>" 形式の出力列名を返す。
// 未学習の場合や input の長さが学習時の列数と異なる場合は nil。
func (e *OneHotEncoder) FeatureNames(input []string) []string {
	if e.index == nil || len(input) != len(e.index.categories) {
		return nil
	}
	var names []string
	for j, cats := range e.index.categories {
		for _, c := range cats {
			names = append(names, input[j]+"_"+c)
		}
	}
	return names
}

// GetParams はエンコーダのパラメータを取得する
func (e *OneHotEncoder) GetParams() map[string]interface{} {
	return map[string]interface{}{"handle_unknown": string(e.HandleUnknown)}
}

// SetParams はエンコーダのパラメータを設定する
func (e *OneHotEncoder) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		if k != "handle_unknown" {
			return errors.NewValidationError(k, "unknown OneHotEncoder parameter", v)
		}
		h, err := parseHandleUnknown(v, HandleUnknownError, HandleUnknownIgnore)
		if err != nil {
			return err
		}
		e.HandleUnknown = h
	}
	e.state.Reset()
	return nil
}

// Clone は同じ設定を持つ未学習のエンコーダを返す
func (e *OneHotEncoder) Clone() model.CategoricalTransformer {
	return NewOneHotEncoder(e.HandleUnknown)
}

func parseHandleUnknown(v interface{}, allowed ...HandleUnknown) (HandleUnknown, error) {
	var h HandleUnknown
	switch x := v.(type) {
	case string:
		h = HandleUnknown(x)
	case HandleUnknown:
		h = x
	}
	for _, a := range allowed {
		if h == a {
			return h, nil
		}
	}
	return "", errors.NewValidationError("handle_unknown", "unsupported value", v)
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
