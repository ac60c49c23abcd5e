// Package model はskflowの推定器が満たすべき契約（インターフェース）を定義します。
//
// 行列レベルの契約（Fitter, Predictor, Estimator, Transformer）は gonum の mat.Matrix を扱い、
// データセットレベルの契約（Learner）は前処理を含むパイプライン全体を表します。
// 交差検証やグリッドサーチは Learner に対して動作します。
package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/dataset"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を n×1 行列で返す。再学習は行わない。
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer はモデル固有の既定スコアを計算できるモデル
type Scorer interface {
	// Score は分類器なら正解率、回帰器なら決定係数 R² を返す。値が大きいほど良い。
	Score(X, y mat.Matrix) (float64, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
// Unknown keys and values of the wrong type are errors.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// Cloner は同じハイパーパラメータを持つ未学習のコピーを作成できるモデル
type Cloner interface {
	Clone() Estimator
}

// Estimator は推定器の基本契約。教師なし推定器は Fit と Score の y を無視する。
type Estimator interface {
	Fitter
	Predictor
	Scorer
	ParameterGetter
	ParameterSetter
	Cloner
	IsFitted() bool
}

// Classifier は分類器。ターゲットはクラスインデックス (0..k-1) として渡される。
type Classifier interface {
	Estimator

	// Classes は学習時に観測したクラスを返す
	Classes() []float64
}

// ProbabilisticClassifier はクラス確率を出力できる分類器
type ProbabilisticClassifier interface {
	Classifier

	// PredictProba は n×len(Classes()) の確率行列を返す
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// Regressor は回帰器。Score は R² を返す。Classes を持たない点で Classifier と区別される。
type Regressor interface {
	Estimator
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する。学習済みパラメータは変更しない。
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// InverseTransformer は逆変換可能な変換器
type InverseTransformer interface {
	Transformer
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}

// CategoricalTransformer は文字列カテゴリ列を数値行列に変換する
type CategoricalTransformer interface {
	Fit(X [][]string) error
	Transform(X [][]string) (mat.Matrix, error)

	// FeatureNames は入力列名に対応する出力列名を返す
	FeatureNames(input []string) []string
}

// Learner はデータセットを直接扱う学習器。前処理と推定器をまとめたものを想定する。
type Learner interface {
	Fit(ds *dataset.Dataset) error
	Predict(ds *dataset.Dataset) (mat.Matrix, error)
	Score(ds *dataset.Dataset) (float64, error)
	ParameterGetter
	ParameterSetter

	// Clone は同じパラメータを持つ未学習のコピーを返す
	Clone() Learner
}
