package dataset

import (
	"bufio"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ulikunitz/xz"

	"github.com/YuminosukeSato/skflow/pkg/errors"
)

// loadConfig はロード時のオプション
type loadConfig struct {
	target      string
	categorical map[string]bool
	delimiter   rune
}

// LoadOption はロードの設定を変更する関数
type LoadOption func(*loadConfig)

// WithTarget はターゲット列名を指定する
func WithTarget(name string) LoadOption {
	return func(c *loadConfig) { c.target = name }
}

// WithCategorical は数値として解釈できてもカテゴリとして扱う列を指定する
func WithCategorical(names ...string) LoadOption {
	return func(c *loadConfig) {
		for _, n := range names {
			c.categorical[n] = true
		}
	}
}

// WithDelimiter は区切り文字を指定する (デフォルト: ',')
func WithDelimiter(r rune) LoadOption {
	return func(c *loadConfig) { c.delimiter = r }
}

func newLoadConfig(opts []LoadOption) *loadConfig {
	c := &loadConfig{categorical: map[string]bool{}, delimiter: ','}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadCSV はヘッダ付きの区切りテキストファイルを読み込む。
// 拡張子が .xz のファイルは透過的に展開される。
//
// 使用例:
//
//	ds, err := dataset.LoadCSV("cps_85_wages.csv", dataset.WithTarget("WAGE"))
func LoadCSV(path string, opts ...LoadOption) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewLoadError(path, 0, "cannot open file", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, errors.NewLoadError(path, 0, "invalid xz stream", err)
		}
		r = xr
	}
	return readCSV(path, r, newLoadConfig(opts))
}

// ReadCSV は io.Reader からヘッダ付き CSV を読み込む
func ReadCSV(r io.Reader, opts ...LoadOption) (*Dataset, error) {
	return readCSV("<reader>", r, newLoadConfig(opts))
}

func readCSV(source string, r io.Reader, cfg *loadConfig) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.Comma = cfg.delimiter
	cr.TrimLeadingSpace = true
	// ragged rows are reported as LoadError below, with the line number
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewLoadError(source, 0, "empty file", nil)
	}
	if err != nil {
		return nil, errors.NewLoadError(source, 1, "cannot read header", err)
	}

	var rows [][]string
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.NewLoadError(source, line, "malformed record", err)
		}
		if len(rec) != len(header) {
			return nil, errors.NewLoadError(source, line,
				fmt.Sprintf("expected %d fields, got %d", len(header), len(rec)), nil)
		}
		rows = append(rows, rec)
	}
	return fromRecords(source, header, rows, cfg)
}

// LoadSQLite は SQLite データベースのテーブル全体を読み込む
func LoadSQLite(path, table string, opts ...LoadOption) (*Dataset, error) {
	source := path + ":" + table
	if _, err := os.Stat(path); err != nil {
		return nil, errors.NewLoadError(source, 0, "cannot open database", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewLoadError(source, 0, "cannot open database", err)
	}
	defer db.Close()

	rs, err := db.Query("SELECT * FROM " + quoteIdent(table))
	if err != nil {
		return nil, errors.NewLoadError(source, 0, "cannot query table", err)
	}
	defer rs.Close()

	header, err := rs.Columns()
	if err != nil {
		return nil, errors.NewLoadError(source, 0, "cannot read columns", err)
	}

	var rows [][]string
	values := make([]interface{}, len(header))
	ptrs := make([]interface{}, len(header))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rs.Next() {
		if err := rs.Scan(ptrs...); err != nil {
			return nil, errors.NewLoadError(source, len(rows)+1, "cannot scan row", err)
		}
		rec := make([]string, len(values))
		for i, v := range values {
			rec[i] = sqlString(v)
		}
		rows = append(rows, rec)
	}
	if err := rs.Err(); err != nil {
		return nil, errors.NewLoadError(source, 0, "cannot iterate rows", err)
	}
	return fromRecords(source, header, rows, newLoadConfig(opts))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// fromRecords は文字列レコードから型を推論して Dataset を組み立てる
func fromRecords(source string, header []string, rows [][]string, cfg *loadConfig) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, errors.NewLoadError(source, 0, "no records", nil)
	}
	seen := make(map[string]bool, len(header))
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
		if seen[header[i]] {
			return nil, errors.NewLoadError(source, 1, "duplicate column "+strconv.Quote(header[i]), nil)
		}
		seen[header[i]] = true
	}

	targetIdx := -1
	if cfg.target != "" {
		for i, h := range header {
			if h == cfg.target {
				targetIdx = i
			}
		}
		if targetIdx < 0 {
			return nil, errors.NewLoadError(source, 0, "target column "+strconv.Quote(cfg.target)+" not found", nil)
		}
	}

	d := &Dataset{
		nRows: len(rows),
		num:   map[int][]float64{},
		cat:   map[int][]string{},
	}
	for i, name := range header {
		raw := make([]string, len(rows))
		for k, rec := range rows {
			raw[k] = strings.TrimSpace(rec[i])
		}
		values, numeric := parseFloats(raw)
		numeric = numeric && !cfg.categorical[name]

		if i == targetIdx {
			d.targetName = name
			if numeric {
				d.target = values
			} else {
				d.target, d.classes = encodeLabels(raw)
			}
			continue
		}

		j := len(d.schema)
		if numeric {
			d.schema = append(d.schema, Column{Name: name, Kind: Numeric})
			d.num[j] = values
		} else {
			d.schema = append(d.schema, Column{Name: name, Kind: Categorical})
			d.cat[j] = raw
		}
	}
	return d, nil
}

func parseFloats(raw []string) ([]float64, bool) {
	out := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// encodeLabels は文字列ラベルをソート済みクラスのインデックスに変換する
func encodeLabels(raw []string) ([]float64, []string) {
	uniq := map[string]int{}
	for _, s := range raw {
		uniq[s] = 0
	}
	classes := make([]string, 0, len(uniq))
	for s := range uniq {
		classes = append(classes, s)
	}
	sort.Strings(classes)
	for i, s := range classes {
		uniq[s] = i
	}
	y := make([]float64, len(raw))
	for i, s := range raw {
		y[i] = float64(uniq[s])
	}
	return y, classes
}
