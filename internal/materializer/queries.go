// Package materializer builds season player totals in Athena from the
// exported gameweek Parquet slices.
package materializer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tyler180/fbref-backends/internal/fbref"
	"github.com/tyler180/fbref-backends/internal/store"
)

const (
	SourceTable = "fbref_player_matches"
	TableName   = "fbref_player_season_totals"
)

// Column is one stat column of the source table.
type Column struct {
	Name  string
	Type  string // Athena type: int, double, string
	Class store.ColumnClass
}

// ColumnsFor derives the source schema from an exported table.
func ColumnsFor(t fbref.Table, cls store.Classifier) []Column {
	numeric := t.NumericColumns()
	out := make([]Column, 0, len(t.Columns))
	seen := map[string]bool{}
	for _, c := range t.Columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		col := Column{Name: c, Type: "string"}
		switch {
		case c == fbref.ColGW:
			col.Type = "int"
		case numeric[c]:
			col.Type = "double"
			col.Class = cls.Classify(c, fbref.Num(0))
		}
		out = append(out, col)
	}
	return out
}

func ident(name string) string {
	return `"` + strings.ReplaceAll(strings.ToLower(name), `"`, `""`) + `"`
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// BuildDrop returns a DROP TABLE IF EXISTS for the materialized table.
func BuildDrop(db string) string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %s.%s`, db, TableName)
}

// BuildDropSource drops the external source table. Dropping an external
// table leaves the S3 objects alone.
func BuildDropSource(db string) string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %s.%s`, db, SourceTable)
}

// BuildCreateSource declares the external table over the Parquet prefix with
// the current column set. Athena reads every object under location,
// partition folders included.
func BuildCreateSource(db, location string, cols []Column) string {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		defs = append(defs, fmt.Sprintf("  `%s` %s", strings.ToLower(c.Name), c.Type))
	}
	return fmt.Sprintf(`
CREATE EXTERNAL TABLE %s.%s (
%s
)
STORED AS PARQUET
LOCATION %s`, db, SourceTable, strings.Join(defs, ",\n"), sqlString(location))
}

// BuildCTAS returns the CTAS that rolls match rows up into one row per player
// and league. Each (playerid, matchid) counts once. Summable columns are
// summed, averaged columns averaged.
func BuildCTAS(db string, cols []Column) string {
	sel := []string{
		`  "playerid"                                AS player_id`,
		`  MAX_BY("player", "gw")                    AS player_name`,
		`  MAX_BY("club", "gw")                      AS club`,
		`  COUNT(DISTINCT "matchid")                 AS matches`,
	}
	sorted := append([]Column(nil), cols...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, c := range sorted {
		switch c.Class {
		case store.Summable:
			sel = append(sel, fmt.Sprintf("  SUM(%s) AS %s", ident(c.Name), ident(c.Name)))
		case store.Averaged:
			sel = append(sel, fmt.Sprintf("  ROUND(AVG(%s), 2) AS %s", ident(c.Name), ident(c.Name)))
		}
	}
	// partition column goes last
	sel = append(sel, `  "league"                                  AS league`)

	return fmt.Sprintf(`
CREATE TABLE %s.%s
WITH (
  format = 'PARQUET',
  partitioned_by = ARRAY['league']
) AS
SELECT
%s
FROM (
  SELECT *, ROW_NUMBER() OVER (PARTITION BY "playerid", "matchid") AS rn
  FROM %s.%s
  WHERE "playerid" IS NOT NULL AND "playerid" <> ''
)
WHERE rn = 1
GROUP BY "playerid", "league"
`, db, TableName, strings.Join(sel, ",\n"), db, SourceTable)
}

// Some light sanity/QA queries to log after CTAS finishes.
func BuildCount(db, league string) string {
	q := fmt.Sprintf(`SELECT COUNT(*) AS rows FROM %s.%s`, db, TableName)
	if league != "" {
		q += " WHERE league=" + sqlString(league)
	}
	return q
}

func BuildPerClubCounts(db, league string) string {
	return fmt.Sprintf(`
SELECT club, COUNT(*) AS players
FROM %s.%s
WHERE league=%s
GROUP BY club
ORDER BY club`, db, TableName, sqlString(league))
}

func BuildSample(db, league string) string {
	return fmt.Sprintf(`
SELECT club, player_name, matches
FROM %s.%s
WHERE league=%s
ORDER BY club, player_name
LIMIT 25`, db, TableName, sqlString(league))
}
