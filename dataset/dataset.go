// Package dataset はテーブル形式のデータセットを表現します。
//
// Dataset は名前付きの特徴量列（数値またはカテゴリ）と、0個または1個のターゲット列を持ちます。
// ロード後は不変であり、アクセサは常にコピーを返します。
package dataset

import (
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// Kind は列の型を表す
type Kind int

const (
	// Numeric は float64 の列
	Numeric Kind = iota
	// Categorical は文字列カテゴリの列
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Column は特徴量列の名前と型
type Column struct {
	Name string
	Kind Kind
}

// Schema は全レコードが共有する特徴量列の並び
type Schema []Column

// Names は列名を順に返す
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Index は列名の位置を返す。存在しない場合は -1
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Dataset は順序付きレコードの集合。列指向で保持する。
type Dataset struct {
	schema Schema
	nRows  int

	num map[int][]float64 // column index -> values, numeric columns only
	cat map[int][]string  // column index -> values, categorical columns only

	targetName string
	target     []float64
	classes    []string // non-nil when the target is a class label
}

// NRows はレコード数を返す
func (d *Dataset) NRows() int { return d.nRows }

// NFeatures は特徴量列の数を返す
func (d *Dataset) NFeatures() int { return len(d.schema) }

// Schema は特徴量スキーマのコピーを返す
func (d *Dataset) Schema() Schema {
	out := make(Schema, len(d.schema))
	copy(out, d.schema)
	return out
}

// FeatureNames は特徴量名を順に返す
func (d *Dataset) FeatureNames() []string { return d.schema.Names() }

// ColumnsOfKind は指定した型の列名を順に返す
func (d *Dataset) ColumnsOfKind(kind Kind) []string {
	var names []string
	for _, c := range d.schema {
		if c.Kind == kind {
			names = append(names, c.Name)
		}
	}
	return names
}

// HasTarget はターゲット列を持つかどうか
func (d *Dataset) HasTarget() bool { return d.target != nil }

// TargetName はターゲット列名を返す
func (d *Dataset) TargetName() string { return d.targetName }

// IsClassification はターゲットがクラスラベルかどうか
func (d *Dataset) IsClassification() bool { return d.classes != nil }

// TargetClasses はクラス名をインデックス順に返す。回帰ターゲットでは nil
func (d *Dataset) TargetClasses() []string {
	if d.classes == nil {
		return nil
	}
	out := make([]string, len(d.classes))
	copy(out, d.classes)
	return out
}

// Target はターゲットのコピーを n×1 ベクトルで返す。
// クラスラベルは TargetClasses のインデックスとして符号化される。
func (d *Dataset) Target() (*mat.VecDense, error) {
	if d.target == nil {
		return nil, errors.NewValueError("Dataset.Target", "dataset has no target column")
	}
	return mat.NewVecDense(d.nRows, append([]float64(nil), d.target...)), nil
}

// TargetValues はターゲットのコピーをスライスで返す
func (d *Dataset) TargetValues() []float64 {
	return append([]float64(nil), d.target...)
}

// NumericColumn は数値列のコピーを返す
func (d *Dataset) NumericColumn(name string) ([]float64, error) {
	j, err := d.column(name, Numeric, "Dataset.NumericColumn")
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), d.num[j]...), nil
}

// CategoricalColumn はカテゴリ列のコピーを返す
func (d *Dataset) CategoricalColumn(name string) ([]string, error) {
	j, err := d.column(name, Categorical, "Dataset.CategoricalColumn")
	if err != nil {
		return nil, err
	}
	return append([]string(nil), d.cat[j]...), nil
}

func (d *Dataset) column(name string, kind Kind, op string) (int, error) {
	j := d.schema.Index(name)
	if j < 0 {
		return 0, errors.NewValueError(op, "unknown column "+strconv.Quote(name))
	}
	if d.schema[j].Kind != kind {
		return 0, errors.NewValueError(op, "column "+strconv.Quote(name)+" is "+d.schema[j].Kind.String())
	}
	return j, nil
}

// NumericMatrix は指定した数値列を n×len(names) 行列で返す。
// names が空なら全特徴量を使い、カテゴリ列が含まれていればエラー。
func (d *Dataset) NumericMatrix(names ...string) (*mat.Dense, error) {
	if len(names) == 0 {
		names = d.schema.Names()
	}
	if d.nRows == 0 || len(names) == 0 {
		return nil, errors.NewValueError("Dataset.NumericMatrix", "empty selection")
	}
	out := mat.NewDense(d.nRows, len(names), nil)
	for k, name := range names {
		j, err := d.column(name, Numeric, "Dataset.NumericMatrix")
		if err != nil {
			return nil, err
		}
		out.SetCol(k, d.num[j])
	}
	return out, nil
}

// CategoricalMatrix は指定したカテゴリ列を行優先の [][]string で返す
func (d *Dataset) CategoricalMatrix(names ...string) ([][]string, error) {
	cols := make([][]string, len(names))
	for k, name := range names {
		j, err := d.column(name, Categorical, "Dataset.CategoricalMatrix")
		if err != nil {
			return nil, err
		}
		cols[k] = d.cat[j]
	}
	out := make([][]string, d.nRows)
	for i := range out {
		row := make([]string, len(names))
		for k := range names {
			row[k] = cols[k][i]
		}
		out[i] = row
	}
	return out, nil
}

// Subset は指定した行インデックスのレコードからなる新しい Dataset を返す。
// 元の Dataset は変更されない。
func (d *Dataset) Subset(idx []int) (*Dataset, error) {
	for _, i := range idx {
		if i < 0 || i >= d.nRows {
			return nil, errors.NewValueError("Dataset.Subset", "row index "+strconv.Itoa(i)+" out of range")
		}
	}
	out := &Dataset{
		schema:     d.Schema(),
		nRows:      len(idx),
		num:        make(map[int][]float64, len(d.num)),
		cat:        make(map[int][]string, len(d.cat)),
		targetName: d.targetName,
		classes:    d.TargetClasses(),
	}
	for j, col := range d.num {
		v := make([]float64, len(idx))
		for k, i := range idx {
			v[k] = col[i]
		}
		out.num[j] = v
	}
	for j, col := range d.cat {
		v := make([]string, len(idx))
		for k, i := range idx {
			v[k] = col[i]
		}
		out.cat[j] = v
	}
	if d.target != nil {
		out.target = make([]float64, len(idx))
		for k, i := range idx {
			out.target[k] = d.target[i]
		}
	}
	return out, nil
}

// WithTargetValues は特徴量を共有したまま、ターゲットだけ差し替えた Dataset を返す。
// クラス情報は引き継がない。
func (d *Dataset) WithTargetValues(name string, y []float64) (*Dataset, error) {
	if len(y) != d.nRows {
		return nil, errors.NewDimensionError("Dataset.WithTargetValues", d.nRows, len(y), 0)
	}
	out := *d
	out.targetName = name
	out.target = append([]float64(nil), y...)
	out.classes = nil
	return &out, nil
}

// FromMatrix は数値行列から Dataset を作成する。
// y は nil、n×1 行列、またはベクトル。names が nil なら "x0", "x1", ... を使う。
func FromMatrix(X mat.Matrix, y mat.Matrix, names []string) (*Dataset, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError("FromMatrix", "empty matrix")
	}
	if names == nil {
		names = make([]string, c)
		for j := range names {
			names[j] = "x" + strconv.Itoa(j)
		}
	}
	if len(names) != c {
		return nil, errors.NewDimensionError("FromMatrix", c, len(names), 1)
	}
	d := &Dataset{
		schema: make(Schema, c),
		nRows:  r,
		num:    make(map[int][]float64, c),
		cat:    map[int][]string{},
	}
	for j := 0; j < c; j++ {
		d.schema[j] = Column{Name: names[j], Kind: Numeric}
		col := make([]float64, r)
		for i := 0; i < r; i++ {
			col[i] = X.At(i, j)
		}
		d.num[j] = col
	}
	if y != nil {
		yr, yc := y.Dims()
		if yr != r {
			return nil, errors.NewDimensionError("FromMatrix", r, yr, 0)
		}
		if yc != 1 {
			return nil, errors.NewDimensionError("FromMatrix", 1, yc, 1)
		}
		d.targetName = "y"
		d.target = make([]float64, r)
		for i := 0; i < r; i++ {
			d.target[i] = y.At(i, 0)
		}
	}
	return d, nil
}

// AsClassification はターゲットの値を整数クラスラベルとして扱う Dataset を返す。
// 値はソート済みクラスのインデックスに再符号化される。
func (d *Dataset) AsClassification() (*Dataset, error) {
	if d.target == nil {
		return nil, errors.NewValueError("Dataset.AsClassification", "dataset has no target column")
	}
	if d.classes != nil {
		return d, nil
	}
	uniq := map[float64]struct{}{}
	for _, v := range d.target {
		uniq[v] = struct{}{}
	}
	values := make([]float64, 0, len(uniq))
	for v := range uniq {
		values = append(values, v)
	}
	sort.Float64s(values)
	index := make(map[float64]int, len(values))
	classes := make([]string, len(values))
	for i, v := range values {
		index[v] = i
		classes[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	out := *d
	out.target = make([]float64, d.nRows)
	for i, v := range d.target {
		out.target[i] = float64(index[v])
	}
	out.classes = classes
	return &out, nil
}
