package fbref

import (
	"strconv"
	"strings"
)

// summaryLabel marks the trailing "16 Players" total row.
const summaryLabel = "Players"

// Sanitize drops structurally invalid rows and reduces Nation/Pos/Age to
// their primary token. Blank cells stay missing so a later partial table can
// still supply them; MergeMatch and ConcatSlices apply the zero default.
func Sanitize(in Table) Table {
	out := Table{ID: in.ID, Team: in.Team, Columns: dedupe(in.Columns)}

	rows := make([]Row, 0, len(in.Rows))
	for _, r := range in.Rows {
		r = blankToMissing(r)
		if r[ColPlayer].IsMissing() {
			continue
		}
		rows = append(rows, r)
	}

	for _, r := range rows {
		if strings.Contains(r.Str(ColPlayer), summaryLabel) {
			rows = rows[:len(rows)-1]
			break
		}
	}

	for _, r := range rows {
		if out.HasColumn(ColPlayerID) && strings.TrimSpace(r.Str(ColPlayerID)) == "" {
			continue
		}
		if !deriveFields(out, r) {
			continue
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

func blankToMissing(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		if !v.IsNum() && strings.TrimSpace(v.String()) == "" {
			out[k] = Missing
			continue
		}
		out[k] = v
	}
	return out
}

// deriveFields rewrites Nation, Pos and Age in place. It reports false when
// the table has one of those columns but the row cannot produce a value.
func deriveFields(t Table, r Row) bool {
	if t.HasColumn(ColNation) {
		n := ParseNation(r.Str(ColNation))
		if n == "" {
			return false
		}
		r[ColNation] = Text(n)
	}
	if t.HasColumn(ColPos) {
		p := ParsePos(r.Str(ColPos))
		if p == "" {
			return false
		}
		r[ColPos] = Text(p)
	}
	if t.HasColumn(ColAge) {
		a, ok := ParseAge(r.Str(ColAge))
		if !ok {
			return false
		}
		r[ColAge] = Num(float64(a))
	}
	return true
}

// ParseNation keeps the country code: "eng ENG" -> "ENG".
func ParseNation(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[len(f)-1]
}

// ParsePos keeps the primary position: "MF,FW" -> "MF".
func ParsePos(s string) string {
	s, _, _ = strings.Cut(s, ",")
	return strings.TrimSpace(s)
}

// ParseAge keeps whole years: "27-045" -> 27.
func ParseAge(s string) (int, bool) {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "-")
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}
