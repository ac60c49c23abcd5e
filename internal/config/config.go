// Package config は skflow ワークフローの設定を読み込みます。
//
// 設定は TOML ファイルから読み込んだ後、SKFLOW_ 接頭辞の環境変数で上書きされます
// (例: SKFLOW_SEED, SKFLOW_LOG_LEVEL, SKFLOW_DATA_PATH, SKFLOW_CV_N_JOBS)。
// preprocess, model, search は TOML でのみ設定できます。
//
//	seed = 42
//	scoring = "accuracy"
//
//	[data]
//	path = "wages.csv"
//	target = "WAGE"
//
//	[model]
//	kind = "logistic_regression"
//	params = { C = 1.0 }
//
//	[search]
//	n_iter = 2 # 省略するとグリッドを総当たり
//
//	[search.grid]
//	C = [0.1, 1.0, 10.0]
package config

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/YuminosukeSato/skflow/metrics"
	"github.com/YuminosukeSato/skflow/pkg/errors"
	"github.com/YuminosukeSato/skflow/pkg/log"
)

// EnvPrefix は環境変数による上書きの接頭辞
const EnvPrefix = "SKFLOW"

// データ生成器の種類
const (
	GenerateBlobs      = "blobs"
	GenerateRegression = "regression"
)

// 推定器の種類
const (
	ModelLinearRegression   = "linear_regression"
	ModelLogisticRegression = "logistic_regression"
	ModelDummyClassifier    = "dummy_classifier"
	ModelDummyRegressor     = "dummy_regressor"
	ModelKMeans             = "kmeans"
)

// スケーラーの種類
const (
	ScalerNone     = "none"
	ScalerStandard = "standard"
	ScalerMinMax   = "minmax"
)

// Config はワークフロー 1 回分の設定
type Config struct {
	Seed      uint64 `toml:"seed"`
	LogLevel  string `toml:"log_level" split_words:"true"`
	StorePath string `toml:"store_path" split_words:"true"`
	// Scoring は metrics.GetScorer の名前。空なら推定器の Score を使う。
	Scoring string `toml:"scoring"`

	Data       DataConfig       `toml:"data"`
	Split      SplitConfig      `toml:"split"`
	CV         CVConfig         `toml:"cv"`
	Preprocess PreprocessConfig `toml:"preprocess" ignored:"true"`
	Model      ModelConfig      `toml:"model" ignored:"true"`
	Search     SearchConfig     `toml:"search" ignored:"true"`
}

// DataConfig はデータの取得元。Generate が空でなければ合成データを使う。
type DataConfig struct {
	Path        string   `toml:"path"`
	Table       string   `toml:"table"`
	Target      string   `toml:"target"`
	Categorical []string `toml:"categorical"`
	Delimiter   string   `toml:"delimiter"`

	Generate  string  `toml:"generate"`
	NSamples  int     `toml:"n_samples" split_words:"true"`
	NFeatures int     `toml:"n_features" split_words:"true"`
	Centers   int     `toml:"centers"`
	Noise     float64 `toml:"noise"`
}

// IsSQLite は Path を SQLite データベースとして読むかどうかを返す
func (d DataConfig) IsSQLite() bool {
	if d.Table != "" {
		return true
	}
	switch strings.ToLower(filepath.Ext(d.Path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// SplitConfig は学習用/評価用分割の設定
type SplitConfig struct {
	TestSize       float64 `toml:"test_size" split_words:"true"`
	TrainSize      float64 `toml:"train_size" split_words:"true"`
	Shuffle        bool    `toml:"shuffle"`
	Stratify       bool    `toml:"stratify"`
	StratifyColumn string  `toml:"stratify_column" split_words:"true"`
}

// CVConfig は交差検証の設定。Folds が 0 なら交差検証を行わない。
type CVConfig struct {
	Folds      int  `toml:"folds"`
	Stratified bool `toml:"stratified"`
	Shuffle    bool `toml:"shuffle"`
	NJobs      int  `toml:"n_jobs" split_words:"true"`
}

// PreprocessConfig は ColumnTransformer の構成
type PreprocessConfig struct {
	Scaler string `toml:"scaler"`
	// Scale はスケーリングする数値列。空なら全数値特徴量。
	Scale         []string `toml:"scale"`
	OneHot        []string `toml:"one_hot"`
	Ordinal       []string `toml:"ordinal"`
	HandleUnknown string   `toml:"handle_unknown"`
	Remainder     string   `toml:"remainder"`
}

// Enabled は何らかの前処理ステップが設定されているかを返す
func (p PreprocessConfig) Enabled() bool {
	return (p.Scaler != "" && p.Scaler != ScalerNone) || len(p.OneHot) > 0 || len(p.Ordinal) > 0
}

// ModelConfig は推定器の種類と初期ハイパーパラメータ
type ModelConfig struct {
	Kind   string                 `toml:"kind"`
	Params map[string]interface{} `toml:"params"`
}

// IsClassifier は分類器かどうかを返す
func (m ModelConfig) IsClassifier() bool {
	return m.Kind == ModelLogisticRegression || m.Kind == ModelDummyClassifier
}

// SearchConfig はグリッドサーチの候補。Grid が空ならグリッドサーチを行わない。
// キーは推定器のパラメータ名 (例: "C", "alpha")。
// NIter > 0 のときは総当たりの代わりに Grid から NIter 個を seed で選ぶランダムサーチになる。
type SearchConfig struct {
	Grid  map[string][]interface{} `toml:"grid"`
	NIter int                      `toml:"n_iter"`
}

// Default は既定値を入れた Config を返す
func Default() Config {
	return Config{
		LogLevel: "info",
		Data: DataConfig{
			NSamples:  100,
			NFeatures: 2,
			Centers:   3,
		},
		Split: SplitConfig{Shuffle: true},
		CV:    CVConfig{NJobs: 1},
		Preprocess: PreprocessConfig{
			Remainder: "passthrough",
		},
	}
}

// Load は path の TOML を読み込み、環境変数で上書きし、検証する
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "open config %s", path)
	}
	defer f.Close()
	return Decode(f)
}

// Decode は r の TOML を読み込み、環境変数で上書きし、検証する
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.NewValidationError("config", "unknown keys: "+strings.Join(keys, ", "), keys)
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "process environment")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検査する。最初に見つかった問題を ValidationError で返す。
func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidationError("log_level", err.Error(), c.LogLevel)
	}
	if c.Scoring != "" {
		if _, err := metrics.GetScorer(c.Scoring); err != nil {
			return err
		}
	}
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Split.validate(); err != nil {
		return err
	}
	if err := c.CV.validate(); err != nil {
		return err
	}
	if err := c.Preprocess.validate(); err != nil {
		return err
	}
	switch c.Model.Kind {
	case ModelLinearRegression, ModelLogisticRegression, ModelDummyClassifier, ModelDummyRegressor, ModelKMeans:
	case "":
		return errors.NewValidationError("model.kind", "is required", c.Model.Kind)
	default:
		return errors.NewValidationError("model.kind", "unknown model kind", c.Model.Kind)
	}
	if c.Search.NIter < 0 {
		return errors.NewValidationError("search.n_iter", "must not be negative", c.Search.NIter)
	}
	if c.Search.NIter > 0 && len(c.Search.Grid) == 0 {
		return errors.NewValidationError("search.n_iter", "randomized search needs search.grid", c.Search.NIter)
	}
	for _, name := range sortedKeys(c.Search.Grid) {
		if len(c.Search.Grid[name]) == 0 {
			return errors.NewValidationError("search.grid."+name, "needs at least one value", name)
		}
	}
	if c.Model.IsClassifier() && c.Data.Generate == GenerateRegression {
		return errors.NewValidationError("model.kind", "classifier cannot be trained on generated regression data", c.Model.Kind)
	}
	return nil
}

func (d DataConfig) validate() error {
	switch d.Generate {
	case "":
		if d.Path == "" {
			return errors.NewValidationError("data.path", "is required unless data.generate is set", d.Path)
		}
		if d.Target == "" {
			return errors.NewValidationError("data.target", "is required for file sources", d.Target)
		}
	case GenerateBlobs, GenerateRegression:
		if d.NSamples <= 0 || d.NFeatures <= 0 {
			return errors.NewValidationError("data.n_samples", "n_samples and n_features must be positive", d.NSamples)
		}
		if d.Generate == GenerateBlobs && d.Centers <= 0 {
			return errors.NewValidationError("data.centers", "must be positive", d.Centers)
		}
		if d.Noise < 0 {
			return errors.NewValidationError("data.noise", "must be non-negative", d.Noise)
		}
	default:
		return errors.NewValidationError("data.generate", `must be "blobs" or "regression"`, d.Generate)
	}
	if utf8.RuneCountInString(d.Delimiter) > 1 {
		return errors.NewValidationError("data.delimiter", "must be a single character", d.Delimiter)
	}
	return nil
}

// DelimiterRune は区切り文字を返す。未設定なら 0。
func (d DataConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(d.Delimiter)
	if r == utf8.RuneError {
		return 0
	}
	return r
}

func (s SplitConfig) validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"split.test_size", s.TestSize}, {"split.train_size", s.TrainSize}} {
		if math.IsNaN(f.v) || f.v < 0 || f.v >= 1 {
			return errors.NewValidationError(f.name, "must be in [0, 1)", f.v)
		}
	}
	if s.TestSize+s.TrainSize > 1 {
		return errors.NewValidationError("split.train_size", "train_size + test_size must not exceed 1", s.TrainSize)
	}
	return nil
}

func (c CVConfig) validate() error {
	if c.Folds < 0 || c.Folds == 1 {
		return errors.NewValidationError("cv.folds", "must be 0 (disabled) or at least 2", c.Folds)
	}
	if c.NJobs < 0 {
		return errors.NewValidationError("cv.n_jobs", "must be non-negative", c.NJobs)
	}
	return nil
}

func (p PreprocessConfig) validate() error {
	switch p.Scaler {
	case "", ScalerNone, ScalerStandard, ScalerMinMax:
	default:
		return errors.NewValidationError("preprocess.scaler", `must be "none", "standard" or "minmax"`, p.Scaler)
	}
	switch p.Remainder {
	case "", "drop", "passthrough":
	default:
		return errors.NewValidationError("preprocess.remainder", `must be "drop" or "passthrough"`, p.Remainder)
	}
	switch p.HandleUnknown {
	case "", "error", "ignore", "use_encoded_value":
	default:
		return errors.NewValidationError("preprocess.handle_unknown", "unknown policy", p.HandleUnknown)
	}
	seen := map[string]bool{}
	for _, col := range append(append([]string(nil), p.OneHot...), p.Ordinal...) {
		if seen[col] {
			return errors.NewValidationError("preprocess", "column listed in more than one encoder", col)
		}
		seen[col] = true
	}
	return nil
}

func sortedKeys(m map[string][]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
