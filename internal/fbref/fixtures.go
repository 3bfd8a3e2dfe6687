package fbref

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const DefaultBaseURL = "https://fbref.com"

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Match is one completed fixture of a schedule page.
type Match struct {
	URL       string
	MatchID   string
	GW        int
	Date      string
	Home      string
	HomeID    string
	Away      string
	AwayID    string
	HomeScore int
	AwayScore int
}

var scoreRe = regexp.MustCompile(`(\d+)\s*[–-]\s*(\d+)`)

// ParseScore reads "3–1" (penalty annotations such as "(4) 1–1 (3)" keep
// the regulation score).
func ParseScore(s string) (home, away int, ok bool) {
	m := scoreRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	home, _ = strconv.Atoi(m[1])
	away, _ = strconv.Atoi(m[2])
	return home, away, true
}

// findScheduleTable prefers the sched_* table and falls back to any table
// carrying Wk and Score columns.
func findScheduleTable(doc *goquery.Document) (RawTable, bool) {
	if sel := doc.Find(`table[id^="sched"]`).First(); sel.Length() > 0 {
		if t, ok := ExtractTable(sel); ok {
			return t, true
		}
	}
	for _, t := range ExtractDocument(doc) {
		if t.HasColumn("Wk") && t.HasColumn("Score") {
			return t, true
		}
	}
	return RawTable{}, false
}

// ListMatches returns the completed matches of gameweek gw (all weeks when
// gw <= 0). Fixtures without a score are skipped.
func ListMatches(doc *goquery.Document, baseURL string, gw int) ([]Match, error) {
	t, ok := findScheduleTable(doc)
	if !ok {
		return nil, fmt.Errorf("fbref: no schedule table")
	}
	col := func(name string) int { return indexOf(t.Columns, name) }
	iWk, iScore, iHome, iAway, iDate := col("Wk"), col("Score"), col("Home"), col("Away"), col("Date")
	if iScore < 0 || iHome < 0 || iAway < 0 {
		return nil, fmt.Errorf("fbref: schedule table %q missing Score/Home/Away", t.ID)
	}
	at := func(cells []Cell, i int) Cell {
		if i < 0 || i >= len(cells) {
			return Cell{}
		}
		return cells[i]
	}

	out := []Match{}
	for _, cells := range t.Rows {
		wk := max(gw, 0)
		if iWk >= 0 {
			n, err := strconv.Atoi(strings.TrimSpace(at(cells, iWk).Text))
			if err != nil || (gw > 0 && n != gw) {
				continue
			}
			wk = n
		}
		score := at(cells, iScore)
		hs, as, ok := ParseScore(score.Text)
		if !ok || !score.IsLinked() {
			continue
		}
		home, away := at(cells, iHome), at(cells, iAway)
		out = append(out, Match{
			URL:       absURL(baseURL, score.Target),
			MatchID:   IDFromTarget(score.Target),
			GW:        wk,
			Date:      at(cells, iDate).Text,
			Home:      home.Text,
			HomeID:    IDFromTarget(home.Target),
			Away:      away.Text,
			AwayID:    IDFromTarget(away.Target),
			HomeScore: hs,
			AwayScore: as,
		})
	}
	return out, nil
}

func absURL(base, target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if base == "" {
		base = DefaultBaseURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(target, "/")
}

// Collector walks schedule pages through a Fetcher.
type Collector struct {
	Fetcher Fetcher
	BaseURL string
}

func (c *Collector) ListMatches(ctx context.Context, scheduleURL string, gw int) ([]Match, error) {
	html, err := c.Fetcher.Fetch(ctx, scheduleURL)
	if err != nil {
		return nil, fmt.Errorf("fetch schedule: %w", err)
	}
	doc, err := ParseDocument(html)
	if err != nil {
		return nil, err
	}
	return ListMatches(doc, c.BaseURL, gw)
}
