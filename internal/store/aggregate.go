package store

import (
	"strings"

	"github.com/tyler180/fbref-backends/internal/fbref"
)

// ColumnClass decides how a match column rolls up into player totals.
type ColumnClass int

const (
	Identity ColumnClass = iota // carried, never aggregated
	Summable                    // season total = sum over matches
	Averaged                    // season value = mean over matches
)

func (c ColumnClass) String() string {
	switch c {
	case Summable:
		return "summable"
	case Averaged:
		return "averaged"
	default:
		return "identity"
	}
}

// identityColumns never aggregate even when numeric.
var identityColumns = map[string]bool{
	fbref.ColGW:       true,
	fbref.ColMatchID:  true,
	fbref.ColPlayerID: true,
	fbref.ColPlayer:   true,
	fbref.ColClub:     true,
	fbref.ColLeague:   true,
	fbref.ColNation:   true,
	fbref.ColPos:      true,
	fbref.ColAge:      true,
	"Num":             true,
}

// Classifier maps columns to their ColumnClass. Rate columns (Pct, %, per 90)
// are averaged, other numeric columns summed.
type Classifier struct {
	Overrides map[string]ColumnClass
}

func (c Classifier) Classify(col string, v fbref.Value) ColumnClass {
	if cls, ok := c.Overrides[col]; ok {
		return cls
	}
	if identityColumns[col] || !v.IsNum() {
		return Identity
	}
	if isRateColumn(col) {
		return Averaged
	}
	return Summable
}

func isRateColumn(col string) bool {
	return strings.HasSuffix(col, "%") ||
		strings.HasSuffix(col, "Pct") ||
		strings.HasSuffix(col, "/90") ||
		strings.HasPrefix(col, "Avg")
}

// Contribution is what one match adds to a player's totals.
type Contribution struct {
	Sums map[string]float64
	Avgs map[string]float64
}

func (c Classifier) Contribution(rec fbref.MatchRecord) Contribution {
	out := Contribution{Sums: map[string]float64{}, Avgs: map[string]float64{}}
	for _, col := range rec.Stats() {
		v := rec.Values[col]
		switch c.Classify(col, v) {
		case Summable:
			out.Sums[col] = v.Float()
		case Averaged:
			out.Avgs[col] = v.Float()
		}
	}
	return out
}

// Totals is the running per-player aggregate. Averaged columns keep their
// running sum; Averages divides by Matches.
type Totals struct {
	PlayerID string             `json:"playerID"`
	Player   string             `json:"player"`
	Club     string             `json:"club"`
	League   string             `json:"league"`
	Matches  int                `json:"matches"`
	Sums     map[string]float64 `json:"sums"`
	AvgSums  map[string]float64 `json:"avgSums"`
}

func NewTotals(playerID string) *Totals {
	return &Totals{PlayerID: playerID, Sums: map[string]float64{}, AvgSums: map[string]float64{}}
}

// Fold adds one new match to the totals.
func (t *Totals) Fold(rec fbref.MatchRecord, league string, c Classifier) {
	if t.Sums == nil {
		t.Sums = map[string]float64{}
	}
	if t.AvgSums == nil {
		t.AvgSums = map[string]float64{}
	}
	con := c.Contribution(rec)
	for k, v := range con.Sums {
		t.Sums[k] += v
	}
	for k, v := range con.Avgs {
		t.AvgSums[k] += v
	}
	t.Matches++
	if rec.Player != "" {
		t.Player = rec.Player
	}
	if rec.Club != "" {
		t.Club = rec.Club
	}
	if league != "" {
		t.League = league
	}
}

func (t *Totals) Averages() map[string]float64 {
	out := make(map[string]float64, len(t.AvgSums))
	if t.Matches == 0 {
		return out
	}
	for k, v := range t.AvgSums {
		out[k] = v / float64(t.Matches)
	}
	return out
}
