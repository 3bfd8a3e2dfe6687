package fbref

import (
	"regexp"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindMissing valueKind = iota
	kindNum
	kindText
)

// Value is a normalized scalar: numeric, text, or missing.
type Value struct {
	kind valueKind
	num  float64
	text string
}

var Missing = Value{}

func Num(f float64) Value       { return Value{kind: kindNum, num: f} }
func Text(s string) Value       { return Value{kind: kindText, text: s} }
func (v Value) IsMissing() bool { return v.kind == kindMissing }
func (v Value) IsNum() bool     { return v.kind == kindNum }

// Float returns the numeric value, or 0 for text and missing values.
func (v Value) Float() float64 {
	if v.kind == kindNum {
		return v.num
	}
	return 0
}

// String renders the value the way it is exported: integers without a
// fractional part, missing as "".
func (v Value) String() string {
	switch v.kind {
	case kindNum:
		return FormatFloat(v.num)
	case kindText:
		return v.text
	default:
		return ""
	}
}

func FormatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var thousandsRe = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)

// parseNumber parses plain and thousands-separated numbers ("1,234").
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if thousandsRe.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Row maps canonical column names to values.
type Row map[string]Value

func (r Row) Str(col string) string { return r[col].String() }

func (r Row) clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered set of canonical columns over normalized rows.
type Table struct {
	ID      string
	Team    string
	Columns []string
	Rows    []Row
}

func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// NumericColumns returns the set of columns holding at least one numeric value.
func (t Table) NumericColumns() map[string]bool {
	out := map[string]bool{}
	for _, r := range t.Rows {
		for k, v := range r {
			if v.IsNum() {
				out[k] = true
			}
		}
	}
	return out
}

// fillMissing replaces missing values in numeric columns with zero.
func (t *Table) fillMissing() { t.fillNumeric(t.NumericColumns()) }

func (t *Table) fillNumeric(numeric map[string]bool) {
	for _, r := range t.Rows {
		for _, c := range t.Columns {
			if v, ok := r[c]; (!ok || v.IsMissing()) && numeric[c] {
				r[c] = Num(0)
			}
		}
	}
}
