// Package export writes merged gameweek tables as CSV or Parquet files and
// uploads them to S3.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tyler180/fbref-backends/internal/fbref"
)

// Columns orders a table's columns for output: gw, matchID, playerID first,
// then the rest in table order.
func Columns(t fbref.Table) []string {
	lead := []string{fbref.ColGW, fbref.ColMatchID, fbref.ColPlayerID}
	out := make([]string, 0, len(t.Columns)+len(lead))
	for _, c := range lead {
		if t.HasColumn(c) {
			out = append(out, c)
		}
	}
	for _, c := range t.Columns {
		if c == fbref.ColGW || c == fbref.ColMatchID || c == fbref.ColPlayerID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// WriteCSV writes t with a canonical-name header. Missing numeric values are
// written as 0, missing text as an empty field.
func WriteCSV(w io.Writer, t fbref.Table) error {
	cols := Columns(t)
	numeric := t.NumericColumns()

	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	rec := make([]string, len(cols))
	for _, r := range t.Rows {
		for i, c := range cols {
			v := r[c]
			switch {
			case v.IsMissing() && numeric[c]:
				rec[i] = "0"
			default:
				rec[i] = v.String()
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// GameweekFile is the CSV path for one league gameweek: <dir>/<league>_gw<N>.csv.
func GameweekFile(dir, league string, gw int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_gw%d.csv", Slug(league), gw))
}

// Slug turns a league name into a path-safe token ("Premier League" -> "premier_league").
func Slug(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "_"))
}

// SaveGameweekCSV writes t to GameweekFile, creating dir when needed.
func SaveGameweekCSV(dir, league string, gw int, t fbref.Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := GameweekFile(dir, league, gw)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}
