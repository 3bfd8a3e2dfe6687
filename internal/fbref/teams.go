package fbref

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TeamMarker is one side of a match page's scorebox.
type TeamMarker struct {
	ID   string // squad id, e.g. "b8fd03ef"
	Name string
}

// TeamMarkers returns the home and away squads linked from the scorebox,
// in page order.
func TeamMarkers(doc *goquery.Document) []TeamMarker {
	out := []TeamMarker{}
	seen := map[string]bool{}
	doc.Find(`div.scorebox strong a[href*="/squads/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		id := IDFromTarget(href)
		if id == "" || seen[id] || len(out) == 2 {
			return
		}
		seen[id] = true
		out = append(out, TeamMarker{ID: id, Name: cleanText(a.Text())})
	})
	return out
}

// statTable reports whether t takes part in the per-match merge.
func statTable(t RawTable) bool {
	return !t.IsEventTable() && t.HasColumn(ColPlayer)
}

// AttributeTeams tags every statistic table with its club. A table whose id
// or caption names one of the squads is attributed directly; the rest fall
// back to page order, first half home and second half away. It returns the
// number of tables attributed by position.
func AttributeTeams(tables []RawTable, home, away TeamMarker) ([]RawTable, int) {
	out := make([]RawTable, len(tables))
	copy(out, tables)

	stat := []int{}
	for i, t := range out {
		if statTable(t) {
			stat = append(stat, i)
		}
	}

	fallback := 0
	half := len(stat) / 2
	for pos, i := range stat {
		if team, ok := signalTeam(out[i], home, away); ok {
			out[i].Team = team
			continue
		}
		fallback++
		if pos < half {
			out[i].Team = home.Name
		} else {
			out[i].Team = away.Name
		}
	}
	return out, fallback
}

func signalTeam(t RawTable, home, away TeamMarker) (string, bool) {
	for _, m := range []TeamMarker{home, away} {
		if m.ID != "" && strings.Contains(t.ID, m.ID) {
			return m.Name, true
		}
	}
	for _, m := range []TeamMarker{home, away} {
		if m.Name != "" && strings.HasPrefix(t.Caption, m.Name+" ") {
			return m.Name, true
		}
	}
	return "", false
}
