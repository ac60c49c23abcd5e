package preprocessing

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/core/model"
	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// Analyzer は文書を n-gram に分ける単位
type Analyzer string

const (
	// AnalyzerWord は2文字以上の単語を単位にする (デフォルト)
	AnalyzerWord Analyzer = "word"
	// AnalyzerChar は空白を正規化した文字列の文字を単位にする
	AnalyzerChar Analyzer = "char"
)

// NormL2 と NormNone は TfidfVectorizer の行正規化
const (
	NormL2   = "l2"
	NormNone = "none"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// VectorizerOption は CountVectorizer / TfidfVectorizer の設定関数
type VectorizerOption func(*CountVectorizer)

// WithNGramRange は抽出する n-gram の長さの範囲 [minN, maxN] を設定する
func WithNGramRange(minN, maxN int) VectorizerOption {
	return func(v *CountVectorizer) { v.minN, v.maxN = minN, maxN }
}

// WithAnalyzer は n-gram の単位を設定する
func WithAnalyzer(a Analyzer) VectorizerOption {
	return func(v *CountVectorizer) { v.analyzer = a }
}

// WithLowercase は分割前に小文字化するかどうかを設定する
func WithLowercase(lower bool) VectorizerOption {
	return func(v *CountVectorizer) { v.lowercase = lower }
}

// CountVectorizer は1つのテキスト列を bag-of-words の出現回数行列に変換する。
// 語彙は Fit で学習した n-gram のソート順で、Transform では語彙にない n-gram を無視する。
//
//	cv := preprocessing.NewCountVectorizer(preprocessing.WithNGramRange(1, 2))
//	X, err := cv.FitTransform([][]string{{"Some say the world will end in fire,"}, {"Some say in ice."}})
type CountVectorizer struct {
	minN, maxN int
	analyzer   Analyzer
	lowercase  bool

	vocabulary map[string]int
	terms      []string
	state      *model.StateManager
}

// NewCountVectorizer は unigram・単語単位・小文字化ありの CountVectorizer を作成する
func NewCountVectorizer(opts ...VectorizerOption) *CountVectorizer {
	v := &CountVectorizer{
		minN:      1,
		maxN:      1,
		analyzer:  AnalyzerWord,
		lowercase: true,
		state:     model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *CountVectorizer) validate() error {
	if v.minN < 1 || v.maxN < v.minN {
		return errors.NewValidationError("ngram_range", "must satisfy 1 <= min_n <= max_n", [2]int{v.minN, v.maxN})
	}
	if v.analyzer != AnalyzerWord && v.analyzer != AnalyzerChar {
		return errors.NewValidationError("analyzer", `must be "word" or "char"`, v.analyzer)
	}
	return nil
}

// documents は1列の入力を文書のスライスにする
func documents(op string, X [][]string) ([]string, error) {
	if len(X) == 0 {
		return nil, errors.NewValueError(op, "empty data")
	}
	docs := make([]string, len(X))
	for i, row := range X {
		if len(row) != 1 {
			return nil, errors.NewDimensionError(op, 1, len(row), 1)
		}
		docs[i] = row[0]
	}
	return docs, nil
}

// analyze は1文書を n-gram の列に分ける
func (v *CountVectorizer) analyze(doc string) []string {
	if v.lowercase {
		doc = strings.ToLower(doc)
	}
	var units []string
	sep := " "
	if v.analyzer == AnalyzerChar {
		for _, r := range strings.Join(strings.Fields(doc), " ") {
			units = append(units, string(r))
		}
		sep = ""
	} else {
		units = wordPattern.FindAllString(doc, -1)
	}

	var grams []string
	for n := v.minN; n <= v.maxN; n++ {
		for i := 0; i+n <= len(units); i++ {
			grams = append(grams, strings.Join(units[i:i+n], sep))
		}
	}
	return grams
}

// Fit は全文書に現れる n-gram から語彙を作る
func (v *CountVectorizer) Fit(X [][]string) error {
	if err := v.validate(); err != nil {
		return err
	}
	docs, err := documents("CountVectorizer.Fit", X)
	if err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for _, doc := range docs {
		for _, g := range v.analyze(doc) {
			seen[g] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return errors.NewValueError("CountVectorizer.Fit", "empty vocabulary: documents contain no terms")
	}
	terms := make([]string, 0, len(seen))
	for g := range seen {
		terms = append(terms, g)
	}
	sort.Strings(terms)
	v.terms = terms
	v.vocabulary = make(map[string]int, len(terms))
	for i, g := range terms {
		v.vocabulary[g] = i
	}
	v.state.SetFitted(1, len(docs))
	return nil
}

// Transform は各文書の語彙ごとの出現回数を n×len(vocabulary) で返す
func (v *CountVectorizer) Transform(X [][]string) (mat.Matrix, error) {
	return v.counts("CountVectorizer", X)
}

func (v *CountVectorizer) counts(name string, X [][]string) (*mat.Dense, error) {
	if err := v.state.RequireFitted(name, "Transform"); err != nil {
		return nil, err
	}
	docs, err := documents(name+".Transform", X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(docs), len(v.terms), nil)
	for i, doc := range docs {
		for _, g := range v.analyze(doc) {
			if j, ok := v.vocabulary[g]; ok {
				out.Set(i, j, out.At(i, j)+1)
			}
		}
	}
	return out, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (v *CountVectorizer) FitTransform(X [][]string) (mat.Matrix, error) {
	if err := v.Fit(X); err != nil {
		return nil, err
	}
	return v.Transform(X)
}

// Vocabulary は n-gram から列番号への対応のコピーを返す
func (v *CountVectorizer) Vocabulary() map[string]int {
	if v.vocabulary == nil {
		return nil
	}
	out := make(map[string]int, len(v.vocabulary))
	for k, i := range v.vocabulary {
		out[k] = i
	}
	return out
}

// FeatureNames は語彙を列順に返す。入力は1列でなければ nil。
func (v *CountVectorizer) FeatureNames(input []string) []string {
	if v.terms == nil || len(input) != 1 {
		return nil
	}
	return append([]string(nil), v.terms...)
}

// IsFitted は学習済みかどうかを返す
func (v *CountVectorizer) IsFitted() bool { return v.state.IsFitted() }

// GetParams は "ngram_range", "analyzer", "lowercase" を返す
func (v *CountVectorizer) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"ngram_range": []int{v.minN, v.maxN},
		"analyzer":    string(v.analyzer),
		"lowercase":   v.lowercase,
	}
}

// SetParams はパラメータを設定し、学習状態をリセットする
func (v *CountVectorizer) SetParams(params map[string]interface{}) error {
	for k, val := range params {
		if err := v.setParam(k, val); err != nil {
			return err
		}
	}
	v.state.Reset()
	v.vocabulary, v.terms = nil, nil
	return nil
}

func (v *CountVectorizer) setParam(k string, val interface{}) error {
	switch k {
	case "ngram_range":
		r, ok := intPair(val)
		if !ok || r[0] < 1 || r[1] < r[0] {
			return errors.NewValidationError(k, "must be [min_n, max_n] with 1 <= min_n <= max_n", val)
		}
		v.minN, v.maxN = r[0], r[1]
	case "analyzer":
		var a Analyzer
		switch x := val.(type) {
		case string:
			a = Analyzer(x)
		case Analyzer:
			a = x
		}
		if a != AnalyzerWord && a != AnalyzerChar {
			return errors.NewValidationError(k, `must be "word" or "char"`, val)
		}
		v.analyzer = a
	case "lowercase":
		b, ok := val.(bool)
		if !ok {
			return errors.NewValidationError(k, "must be a bool", val)
		}
		v.lowercase = b
	default:
		return errors.NewValidationError(k, "unknown vectorizer parameter", val)
	}
	return nil
}

// Clone は同じ設定を持つ未学習の CountVectorizer を返す
func (v *CountVectorizer) Clone() model.CategoricalTransformer {
	return v.cloneCounts()
}

func (v *CountVectorizer) cloneCounts() *CountVectorizer {
	return NewCountVectorizer(WithNGramRange(v.minN, v.maxN), WithAnalyzer(v.analyzer), WithLowercase(v.lowercase))
}

func (v *CountVectorizer) String() string {
	return fmt.Sprintf("CountVectorizer(ngram_range=(%d, %d), analyzer=%s)", v.minN, v.maxN, v.analyzer)
}

// TfidfVectorizer は出現回数に平滑化した idf = ln((1+n)/(1+df)) + 1 を掛け、
// 既定では各行を L2 正規化する。多くの文書に現れる語ほど重みが下がる。
type TfidfVectorizer struct {
	counts *CountVectorizer
	norm   string

	idf []float64
}

// NewTfidfVectorizer は TfidfVectorizer を作成する。norm が空なら NormL2。
// opts は内部の CountVectorizer に渡される。
//
//	tv := preprocessing.NewTfidfVectorizer(preprocessing.NormL2, preprocessing.WithNGramRange(1, 2))
func NewTfidfVectorizer(norm string, opts ...VectorizerOption) *TfidfVectorizer {
	if norm == "" {
		norm = NormL2
	}
	return &TfidfVectorizer{counts: NewCountVectorizer(opts...), norm: norm}
}

// Fit は語彙と各語の idf を学習する
func (t *TfidfVectorizer) Fit(X [][]string) error {
	if t.norm != NormL2 && t.norm != NormNone {
		return errors.NewValidationError("norm", `must be "l2" or "none"`, t.norm)
	}
	if err := t.counts.Fit(X); err != nil {
		return errors.Wrap(err, "TfidfVectorizer.Fit")
	}
	counts, err := t.counts.counts("TfidfVectorizer", X)
	if err != nil {
		return err
	}
	n, m := counts.Dims()
	idf := make([]float64, m)
	for j := 0; j < m; j++ {
		df := 0
		for i := 0; i < n; i++ {
			if counts.At(i, j) > 0 {
				df++
			}
		}
		idf[j] = math.Log(float64(1+n)/float64(1+df)) + 1
	}
	t.idf = idf
	return nil
}

// Transform は tf-idf 行列を返す。全て0の行は正規化しない。
func (t *TfidfVectorizer) Transform(X [][]string) (mat.Matrix, error) {
	out, err := t.counts.counts("TfidfVectorizer", X)
	if err != nil {
		return nil, err
	}
	n, m := out.Dims()
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for j := 0; j < m; j++ {
			row[j] *= t.idf[j]
		}
		if t.norm == NormL2 {
			norm := mat.Norm(mat.NewVecDense(m, row), 2)
			if norm > 0 {
				for j := range row {
					row[j] /= norm
				}
			}
		}
	}
	return out, nil
}

// FitTransform は Fit と Transform を続けて実行する
func (t *TfidfVectorizer) FitTransform(X [][]string) (mat.Matrix, error) {
	if err := t.Fit(X); err != nil {
		return nil, err
	}
	return t.Transform(X)
}

// Vocabulary は n-gram から列番号への対応のコピーを返す
func (t *TfidfVectorizer) Vocabulary() map[string]int { return t.counts.Vocabulary() }

// IDF は語彙順の idf のコピーを返す
func (t *TfidfVectorizer) IDF() []float64 { return append([]float64(nil), t.idf...) }

// FeatureNames は語彙を列順に返す。入力は1列でなければ nil。
func (t *TfidfVectorizer) FeatureNames(input []string) []string {
	return t.counts.FeatureNames(input)
}

// IsFitted は学習済みかどうかを返す
func (t *TfidfVectorizer) IsFitted() bool { return t.counts.IsFitted() }

// GetParams は CountVectorizer のパラメータに "norm" を加えて返す
func (t *TfidfVectorizer) GetParams() map[string]interface{} {
	params := t.counts.GetParams()
	params["norm"] = t.norm
	return params
}

// SetParams はパラメータを設定し、学習状態をリセットする
func (t *TfidfVectorizer) SetParams(params map[string]interface{}) error {
	rest := make(map[string]interface{}, len(params))
	for k, v := range params {
		if k != "norm" {
			rest[k] = v
			continue
		}
		s, ok := v.(string)
		if !ok || (s != NormL2 && s != NormNone) {
			return errors.NewValidationError("norm", `must be "l2" or "none"`, v)
		}
		t.norm = s
	}
	t.idf = nil
	return t.counts.SetParams(rest)
}

// Clone は同じ設定を持つ未学習の TfidfVectorizer を返す
func (t *TfidfVectorizer) Clone() model.CategoricalTransformer {
	return &TfidfVectorizer{counts: t.counts.cloneCounts(), norm: t.norm}
}

// intPair は [2]int, []int, []interface{} 形式の2要素を取り出す
func intPair(v interface{}) ([2]int, bool) {
	var items []interface{}
	switch x := v.(type) {
	case [2]int:
		return x, true
	case []int:
		if len(x) != 2 {
			return [2]int{}, false
		}
		return [2]int{x[0], x[1]}, true
	case []interface{}:
		items = x
	default:
		return [2]int{}, false
	}
	if len(items) != 2 {
		return [2]int{}, false
	}
	var out [2]int
	for i, it := range items {
		f, ok := toFloat(it)
		if !ok || f != math.Trunc(f) {
			return [2]int{}, false
		}
		out[i] = int(f)
	}
	return out, true
}
