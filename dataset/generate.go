package dataset

import (
	"math/rand/v2"
	"strconv"

	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// BlobsConfig は MakeBlobs の設定
type BlobsConfig struct {
	NSamples   int
	NFeatures  int
	Centers    int
	ClusterStd float64    // デフォルト: 1.0
	CenterBox  [2]float64 // デフォルト: [-10, 10]
	Shuffle    bool
	Seed       uint64
}

// MakeBlobs は等方的なガウス分布のクラスタからなる分類用データセットを生成する。
// ターゲットはクラスタ番号 (クラス名 "0", "1", ...)。同じ Seed なら結果は同じ。
func MakeBlobs(cfg BlobsConfig) (*Dataset, error) {
	if cfg.NSamples <= 0 || cfg.NFeatures <= 0 || cfg.Centers <= 0 {
		return nil, errors.NewValidationError("BlobsConfig", "n_samples, n_features and centers must be positive", cfg)
	}
	if cfg.ClusterStd == 0 {
		cfg.ClusterStd = 1.0
	}
	if cfg.CenterBox == [2]float64{} {
		cfg.CenterBox = [2]float64{-10, 10}
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))

	centers := make([][]float64, cfg.Centers)
	for k := range centers {
		centers[k] = make([]float64, cfg.NFeatures)
		for j := range centers[k] {
			centers[k][j] = cfg.CenterBox[0] + rng.Float64()*(cfg.CenterBox[1]-cfg.CenterBox[0])
		}
	}

	// samples are spread as evenly as possible over the centers
	labels := make([]int, cfg.NSamples)
	for i := range labels {
		labels[i] = i % cfg.Centers
	}
	if cfg.Shuffle {
		rng.Shuffle(len(labels), func(i, j int) { labels[i], labels[j] = labels[j], labels[i] })
	}

	d := newNumericDataset(cfg.NSamples, cfg.NFeatures)
	d.targetName = "y"
	d.target = make([]float64, cfg.NSamples)
	for i, k := range labels {
		for j := 0; j < cfg.NFeatures; j++ {
			d.num[j][i] = centers[k][j] + rng.NormFloat64()*cfg.ClusterStd
		}
		d.target[i] = float64(k)
	}
	d.classes = make([]string, cfg.Centers)
	for k := range d.classes {
		d.classes[k] = strconv.Itoa(k)
	}
	return d, nil
}

// RegressionConfig は MakeRegression の設定
type RegressionConfig struct {
	NSamples     int
	NFeatures    int
	NInformative int // デフォルト: NFeatures
	Bias         float64
	Noise        float64
	Seed         uint64
}

// MakeRegression はランダムな線形モデルに従う回帰用データセットを生成する。
// 係数は NInformative 個の特徴量だけが非ゼロ。Coef を返すのでテストで検証できる。
func MakeRegression(cfg RegressionConfig) (*Dataset, []float64, error) {
	if cfg.NSamples <= 0 || cfg.NFeatures <= 0 {
		return nil, nil, errors.NewValidationError("RegressionConfig", "n_samples and n_features must be positive", cfg)
	}
	if cfg.NInformative <= 0 || cfg.NInformative > cfg.NFeatures {
		cfg.NInformative = cfg.NFeatures
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))

	coef := make([]float64, cfg.NFeatures)
	for j := 0; j < cfg.NInformative; j++ {
		coef[j] = 100 * rng.Float64()
	}

	d := newNumericDataset(cfg.NSamples, cfg.NFeatures)
	d.targetName = "y"
	d.target = make([]float64, cfg.NSamples)
	for i := 0; i < cfg.NSamples; i++ {
		y := cfg.Bias
		for j := 0; j < cfg.NFeatures; j++ {
			x := rng.NormFloat64()
			d.num[j][i] = x
			y += coef[j] * x
		}
		if cfg.Noise > 0 {
			y += rng.NormFloat64() * cfg.Noise
		}
		d.target[i] = y
	}
	return d, coef, nil
}

func newNumericDataset(nRows, nFeatures int) *Dataset {
	d := &Dataset{
		schema: make(Schema, nFeatures),
		nRows:  nRows,
		num:    make(map[int][]float64, nFeatures),
		cat:    map[int][]string{},
	}
	for j := 0; j < nFeatures; j++ {
		d.schema[j] = Column{Name: "x" + strconv.Itoa(j), Kind: Numeric}
		d.num[j] = make([]float64, nRows)
	}
	return d
}
