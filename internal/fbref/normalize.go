package fbref

import (
	"errors"
	"strings"
)

// Identifier columns.
const (
	ColPlayer   = "Player"
	ColPlayerID = "playerID"
	ColMatchID  = "matchID"
	ColGW       = "gw"
	ColClub     = "Club"
	ColLeague   = "League"
	ColNation   = "Nation"
	ColPos      = "Pos"
	ColAge      = "Age"
	ColSquad    = "Squad"
)

// ErrNoIdentity is returned for tables without a Player column.
var ErrNoIdentity = errors.New("fbref: table has no Player column")

// substitutions rename header tokens that are unsafe or ambiguous as column
// names. Only whole-label matches are rewritten.
var substitutions = map[string]string{
	"#":   "Num",
	"Int": "Interceptions",
	"%":   "Pct",
	"1/3": "Passes_Final_Third",
	"2":   "Second",
	"Out": "Outswinging",
	"Off": "Pass_Offside",
	"+":   "And",
	"In":  "Inswinging",
}

// CanonicalColumn maps a header label to its storage name.
func CanonicalColumn(label string) string {
	label = strings.TrimSpace(label)
	if sub, ok := substitutions[label]; ok {
		label = sub
	}
	return strings.ReplaceAll(label, " ", "_")
}

// Normalize renames columns, derives playerID from the Player link target,
// drops link-less player rows and coerces numeric columns. Cells are gone
// after this step.
func Normalize(raw RawTable) (Table, error) {
	out := Table{ID: raw.ID, Team: raw.Team}
	cols := make([]string, len(raw.Columns))
	for i, c := range raw.Columns {
		cols[i] = CanonicalColumn(c)
	}

	playerIdx := indexOf(cols, ColPlayer)
	if playerIdx < 0 {
		out.Columns = dedupe(cols)
		out.Rows = resolveRows(raw.Rows, cols)
		coerceNumeric(&out)
		return out, ErrNoIdentity
	}

	out.Columns = append([]string{ColPlayerID}, dedupe(cols)...)
	for _, cells := range raw.Rows {
		if playerIdx >= len(cells) {
			continue
		}
		pc := cells[playerIdx]
		if !pc.IsLinked() {
			continue
		}
		id := IDFromTarget(pc.Resolve())
		if id == "" {
			continue
		}
		row := resolveRow(cells, cols)
		row[ColPlayerID] = Text(id)
		row[ColPlayer] = Text(pc.Text)
		out.Rows = append(out.Rows, row)
	}
	coerceNumeric(&out)
	return out, nil
}

// resolveRow keeps the display text of every cell; the first column with a
// given name wins.
func resolveRow(cells []Cell, cols []string) Row {
	row := make(Row, len(cols))
	for i, c := range cols {
		if _, seen := row[c]; seen || i >= len(cells) {
			continue
		}
		row[c] = Text(cells[i].Text)
	}
	return row
}

func resolveRows(rows [][]Cell, cols []string) []Row {
	out := make([]Row, 0, len(rows))
	for _, cells := range rows {
		out = append(out, resolveRow(cells, cols))
	}
	return out
}

// coerceNumeric turns a column numeric when every non-blank value parses.
func coerceNumeric(t *Table) {
	for _, c := range t.Columns {
		if c == ColPlayerID || c == ColPlayer {
			continue
		}
		numeric, seen := true, false
		for _, r := range t.Rows {
			s := strings.TrimSpace(r[c].String())
			if s == "" {
				continue
			}
			seen = true
			if _, ok := parseNumber(s); !ok {
				numeric = false
				break
			}
		}
		if !numeric || !seen {
			continue
		}
		for _, r := range t.Rows {
			v, ok := r[c]
			if !ok {
				continue
			}
			if f, ok := parseNumber(v.String()); ok {
				r[c] = Num(f)
			} else {
				r[c] = Missing
			}
		}
	}
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func dedupe(cols []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
