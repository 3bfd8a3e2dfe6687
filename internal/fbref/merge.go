package fbref

import (
	"strconv"
)

// MatchRecord is one player's merged statistics for one match.
type MatchRecord struct {
	GW       int
	MatchID  string
	PlayerID string
	Player   string
	Club     string
	Columns  []string // ordered, leading gw, matchID, playerID
	Values   Row
}

type mergeKey struct {
	playerID string
	club     string
}

// MergeTables folds partial statistic tables into one row per
// (playerID, club). Columns are added in first-seen order and the first
// non-missing value for a cell wins. Event tables and tables without
// identity are skipped.
func MergeTables(tables []Table) Table {
	acc := Table{}
	seenCol := map[string]bool{}
	addCol := func(c string) {
		if !seenCol[c] {
			seenCol[c] = true
			acc.Columns = append(acc.Columns, c)
		}
	}
	index := map[mergeKey]int{}

	for _, t := range tables {
		if t.HasColumn(EventColumn) || !t.HasColumn(ColPlayerID) {
			continue
		}
		for _, c := range t.Columns {
			addCol(c)
		}
		if t.Team != "" {
			addCol(ColClub)
		}
		for _, r := range t.Rows {
			club := t.Team
			if club == "" {
				club = r.Str(ColClub)
			}
			k := mergeKey{playerID: r.Str(ColPlayerID), club: club}
			i, ok := index[k]
			if !ok {
				nr := r.clone()
				if t.Team != "" && nr[ColClub].IsMissing() {
					nr[ColClub] = Text(t.Team)
				}
				index[k] = len(acc.Rows)
				acc.Rows = append(acc.Rows, nr)
				continue
			}
			cur := acc.Rows[i]
			for c, v := range r {
				if old, has := cur[c]; !has || old.IsMissing() {
					cur[c] = v
				}
			}
		}
	}
	return acc
}

// MergeMatch merges the partial tables of one match and stamps every row
// with gw and matchID as leading columns.
func MergeMatch(tables []Table, m Match) Table {
	merged := MergeTables(tables)
	merged.ID = m.MatchID

	lead := []string{ColGW, ColMatchID, ColPlayerID}
	cols := append([]string{}, lead...)
	for _, c := range merged.Columns {
		if c == ColGW || c == ColMatchID || c == ColPlayerID {
			continue
		}
		cols = append(cols, c)
	}
	merged.Columns = cols
	for _, r := range merged.Rows {
		r[ColGW] = Num(float64(m.GW))
		r[ColMatchID] = Text(m.MatchID)
	}
	merged.fillMissing()
	return merged
}

// ConcatSlices appends gameweek slices over the union of their columns.
// Rows are never dropped; columns a slice lacks are zero (numeric) or
// missing (text).
func ConcatSlices(slices []Table) Table {
	out := Table{}
	seen := map[string]bool{}
	for _, s := range slices {
		for _, c := range s.Columns {
			if !seen[c] {
				seen[c] = true
				out.Columns = append(out.Columns, c)
			}
		}
		for _, r := range s.Rows {
			out.Rows = append(out.Rows, r.clone())
		}
	}
	out.fillMissing()
	return out
}

// MatchRecords converts a merged match table into records.
func (t Table) MatchRecords() []MatchRecord {
	out := make([]MatchRecord, 0, len(t.Rows))
	for _, r := range t.Rows {
		gw, _ := strconv.Atoi(r.Str(ColGW))
		out = append(out, MatchRecord{
			GW:       gw,
			MatchID:  r.Str(ColMatchID),
			PlayerID: r.Str(ColPlayerID),
			Player:   r.Str(ColPlayer),
			Club:     r.Str(ColClub),
			Columns:  t.Columns,
			Values:   r,
		})
	}
	return out
}

// Stats returns the record's non-identifier columns in order.
func (m MatchRecord) Stats() []string {
	out := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		switch c {
		case ColGW, ColMatchID, ColPlayerID, ColPlayer, ColClub, ColLeague:
			continue
		}
		out = append(out, c)
	}
	return out
}
