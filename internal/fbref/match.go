package fbref

import (
	"errors"
	"fmt"
)

// MatchReport counts what happened to the tables of one match page.
type MatchReport struct {
	Tables      int
	Merged      int
	SkippedEvt  int
	SkippedNoID int
	ByPosition  int
	Players     int
}

// ParseMatchPage runs extract, team attribution, normalize, sanitize and
// merge over one match page. Tables that do not fit are skipped and counted.
func ParseMatchPage(html string, m Match) (Table, MatchReport, error) {
	var rep MatchReport
	doc, err := ParseDocument(html)
	if err != nil {
		return Table{}, rep, err
	}
	raw := ExtractDocument(doc)
	rep.Tables = len(raw)

	home := TeamMarker{ID: m.HomeID, Name: m.Home}
	away := TeamMarker{ID: m.AwayID, Name: m.Away}
	if mk := TeamMarkers(doc); len(mk) == 2 {
		home, away = mk[0], mk[1]
	}
	raw, rep.ByPosition = AttributeTeams(raw, home, away)

	parts := make([]Table, 0, len(raw))
	for _, rt := range raw {
		if rt.IsEventTable() {
			rep.SkippedEvt++
			continue
		}
		nt, err := Normalize(rt)
		if errors.Is(err, ErrNoIdentity) {
			rep.SkippedNoID++
			continue
		}
		if err != nil {
			return Table{}, rep, fmt.Errorf("normalize %s: %w", rt.ID, err)
		}
		parts = append(parts, Sanitize(nt))
		rep.Merged++
	}

	merged := MergeMatch(parts, m)
	rep.Players = len(merged.Rows)
	return merged, rep, nil
}
