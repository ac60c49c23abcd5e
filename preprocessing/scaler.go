package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/core/parallel"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// ZeroVariancePolicy は分散0の特徴量の扱いを決める
type ZeroVariancePolicy string

const (
	// ZeroVariancePassthrough は scale=1 として中心化のみ行い、DataConversionWarning を出す (デフォルト)
	ZeroVariancePassthrough ZeroVariancePolicy = "passthrough"
	// ZeroVarianceError は Fit を DegenerateFeatureError で失敗させる
	ZeroVarianceError ZeroVariancePolicy = "error"
)

const zeroVarianceTol = 1e-12

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを平均0、標準偏差1に変換する（母標準偏差を使用）
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差。分散0の特徴量では1
	Scale []float64

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool

	// ZeroVariance は分散0の特徴量の扱い (デフォルト: ZeroVariancePassthrough)
	ZeroVariance ZeroVariancePolicy
}

// StandardScalerOption は StandardScaler の設定関数
type StandardScalerOption func(*StandardScaler)

// WithoutMean は平均を引かない
func WithoutMean() StandardScalerOption {
	return func(s *StandardScaler) { s.WithMean = false }
}

// WithoutStd は標準偏差で割らない
func WithoutStd() StandardScalerOption {
	return func(s *StandardScaler) { s.WithStd = false }
}

// WithZeroVariance は分散0の特徴量の扱いを設定する
func WithZeroVariance(p ZeroVariancePolicy) StandardScalerOption {
	return func(s *StandardScaler) { s.ZeroVariance = p }
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(preprocessing.WithZeroVariance(preprocessing.ZeroVarianceError))
//	err := scaler.Fit(XTrain)
//	XTestScaled, err := scaler.Transform(XTest)
func NewStandardScaler(opts ...StandardScalerOption) *StandardScaler {
	s := &StandardScaler{
		state:        model.NewStateManager(),
		WithMean:     true,
		WithStd:      true,
		ZeroVariance: ZeroVariancePassthrough,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	mean := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		m, std := stat.PopMeanStdDev(col, nil)
		if s.WithMean {
			mean[j] = m
		}
		scale[j] = 1
		if !s.WithStd {
			continue
		}
		if std > zeroVarianceTol {
			scale[j] = std
			continue
		}
		if s.ZeroVariance == ZeroVarianceError {
			s.state.Reset()
			return errors.NewDegenerateFeatureError("StandardScaler.Fit", j)
		}
		errors.Warn(errors.NewDataConversionWarning("float64", "float64",
			fmt.Sprintf("feature %d has zero variance; it is centred but not scaled", j)))
	}
	if err := errors.CheckNumericalStability("StandardScaler.Fit", append(mean, scale...), 0); err != nil {
		return err
	}

	s.Mean = mean
	s.Scale = scale
	s.state.SetFitted(c, r)
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	return s.apply("Transform", X, func(v float64, j int) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	})
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	return s.apply("InverseTransform", X, func(v float64, j int) float64 {
		return v*s.Scale[j] + s.Mean[j]
	})
}

func (s *StandardScaler) apply(method string, X mat.Matrix, f func(v float64, j int) float64) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", method); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.state.RequireFeatures("StandardScaler."+method, c); err != nil {
		return nil, err
	}
	return mapElements(X, r, c, f), nil
}

// IsFitted はスケーラーが学習済みかどうかを返す
func (s *StandardScaler) IsFitted() bool { return s.state.IsFitted() }

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean":     s.WithMean,
		"with_std":      s.WithStd,
		"zero_variance": string(s.ZeroVariance),
	}
}

// SetParams はスケーラーのパラメータを設定し、学習状態をリセットする
func (s *StandardScaler) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "with_mean", "with_std":
			b, ok := v.(bool)
			if !ok {
				return errors.NewValidationError(k, "must be a bool", v)
			}
			if k == "with_mean" {
				s.WithMean = b
			} else {
				s.WithStd = b
			}
		case "zero_variance":
			p, err := parseZeroVariance(v)
			if err != nil {
				return err
			}
			s.ZeroVariance = p
		default:
			return errors.NewValidationError(k, "unknown StandardScaler parameter", v)
		}
	}
	s.state.Reset()
	return nil
}

// Clone は同じ設定を持つ未学習のスケーラーを返す
func (s *StandardScaler) Clone() model.Transformer {
	return &StandardScaler{
		state:        model.NewStateManager(),
		WithMean:     s.WithMean,
		WithStd:      s.WithStd,
		ZeroVariance: s.ZeroVariance,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	nFeatures, _ := s.state.GetDimensions()
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, nFeatures)
}

func parseZeroVariance(v interface{}) (ZeroVariancePolicy, error) {
	var p ZeroVariancePolicy
	switch x := v.(type) {
	case string:
		p = ZeroVariancePolicy(x)
	case ZeroVariancePolicy:
		p = x
	}
	if p != ZeroVariancePassthrough && p != ZeroVarianceError {
		return "", errors.NewValidationError("zero_variance", `must be "passthrough" or "error"`, v)
	}
	return p, nil
}

// MinMaxScaler はscikit-learn互換のMin-Maxスケーラー
// データを指定した範囲（デフォルト[0,1]）にスケーリングする
type MinMaxScaler struct {
	state *model.StateManager

	// DataMin は学習データの最小値
	DataMin []float64

	// DataMax は学習データの最大値
	DataMax []float64

	// Scale は各特徴量のレンジ (max - min)。定数特徴量では1
	Scale []float64

	// FeatureRange はスケーリング後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
//
//	scaler := preprocessing.NewMinMaxScaler([2]float64{-1, 1})
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{
		state:        model.NewStateManager(),
		FeatureRange: featureRange,
	}
}

// NewMinMaxScalerDefault はデフォルト設定([0,1]範囲)でMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0.0, 1.0})
}

// Fit は訓練データから最小値・最大値を計算する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}
	if m.FeatureRange[0] >= m.FeatureRange[1] {
		return errors.NewValidationError("feature_range", "minimum must be smaller than maximum", m.FeatureRange)
	}

	m.DataMin = make([]float64, c)
	m.DataMax = make([]float64, c)
	m.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		lo, hi := col[0], col[0]
		for _, v := range col[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		m.DataMin[j], m.DataMax[j] = lo, hi
		m.Scale[j] = hi - lo
		if m.Scale[j] < 1e-8 {
			m.Scale[j] = 1.0
		}
	}

	m.state.SetFitted(c, r)
	return nil
}

// Transform は学習済みの統計情報を使ってデータをスケーリングする
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	width := m.FeatureRange[1] - m.FeatureRange[0]
	return m.apply("Transform", X, func(v float64, j int) float64 {
		return (v-m.DataMin[j])/m.Scale[j]*width + m.FeatureRange[0]
	})
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform はスケーリングされたデータを元の範囲に戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	width := m.FeatureRange[1] - m.FeatureRange[0]
	return m.apply("InverseTransform", X, func(v float64, j int) float64 {
		return (v-m.FeatureRange[0])/width*m.Scale[j] + m.DataMin[j]
	})
}

func (m *MinMaxScaler) apply(method string, X mat.Matrix, f func(v float64, j int) float64) (mat.Matrix, error) {
	if err := m.state.RequireFitted("MinMaxScaler", method); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := m.state.RequireFeatures("MinMaxScaler."+method, c); err != nil {
		return nil, err
	}
	return mapElements(X, r, c, f), nil
}

// IsFitted はスケーラーが学習済みかどうかを返す
func (m *MinMaxScaler) IsFitted() bool { return m.state.IsFitted() }

// GetParams はスケーラーのパラメータを取得する
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_range": m.FeatureRange,
	}
}

// SetParams はスケーラーのパラメータを設定し、学習状態をリセットする
func (m *MinMaxScaler) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		if k != "feature_range" {
			return errors.NewValidationError(k, "unknown MinMaxScaler parameter", v)
		}
		switch r := v.(type) {
		case [2]float64:
			m.FeatureRange = r
		case []float64:
			if len(r) != 2 {
				return errors.NewValidationError(k, "must have two elements", v)
			}
			m.FeatureRange = [2]float64{r[0], r[1]}
		default:
			return errors.NewValidationError(k, "must be [2]float64", v)
		}
	}
	m.state.Reset()
	return nil
}

// Clone は同じ設定を持つ未学習のスケーラーを返す
func (m *MinMaxScaler) Clone() model.Transformer {
	return NewMinMaxScaler(m.FeatureRange)
}

// String はスケーラーの文字列表現を返す
func (m *MinMaxScaler) String() string {
	return fmt.Sprintf("MinMaxScaler(feature_range=[%g, %g])", m.FeatureRange[0], m.FeatureRange[1])
}

// mapElements は行ごとに独立な要素変換を適用する。大きな行列では行を分割して並列に処理する。
func mapElements(X mat.Matrix, r, c int, f func(v float64, j int) float64) *mat.Dense {
	result := mat.NewDense(r, c, nil)
	parallel.ParallelizeWithThreshold(r, parallel.DefaultThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				result.Set(i, j, f(X.At(i, j), j))
			}
		}
	})
	return result
}
