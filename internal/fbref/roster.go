package fbref

import (
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// PlayerProfile is the per-league master record of a player.
type PlayerProfile struct {
	PlayerID string
	Name     string
	Pos      string
	Nation   string
	Age      int
	Club     string
	ClubID   string
	League   string
	URL      string
}

func findRosterTable(doc *goquery.Document) (RawTable, bool) {
	if sel := doc.Find("table#stats_standard").First(); sel.Length() > 0 {
		if t, ok := ExtractTable(sel); ok {
			return t, true
		}
	}
	for _, t := range ExtractDocument(doc) {
		if t.HasColumn(ColPlayer) && t.HasColumn(ColSquad) {
			return t, true
		}
	}
	return RawTable{}, false
}

// ParseRoster builds player profiles from a league stats page. A player
// listed for two squads keeps the later row.
func ParseRoster(doc *goquery.Document, baseURL, league string) ([]PlayerProfile, error) {
	raw, ok := findRosterTable(doc)
	if !ok {
		return nil, fmt.Errorf("fbref: no player table on roster page")
	}

	squadIDs := map[string]string{}
	urls := map[string]string{}
	iPlayer, iSquad := indexOf(raw.Columns, ColPlayer), indexOf(raw.Columns, ColSquad)
	for _, cells := range raw.Rows {
		if iSquad >= 0 && iSquad < len(cells) && cells[iSquad].IsLinked() {
			squadIDs[cells[iSquad].Text] = IDFromTarget(cells[iSquad].Target)
		}
		if iPlayer >= 0 && iPlayer < len(cells) && cells[iPlayer].IsLinked() {
			urls[IDFromTarget(cells[iPlayer].Target)] = absURL(baseURL, cells[iPlayer].Target)
		}
	}

	nt, err := Normalize(raw)
	if err != nil {
		if errors.Is(err, ErrNoIdentity) {
			return nil, fmt.Errorf("roster table %q: %w", raw.ID, err)
		}
		return nil, err
	}
	st := Sanitize(nt)

	order := []string{}
	byID := map[string]PlayerProfile{}
	for _, r := range st.Rows {
		id := r.Str(ColPlayerID)
		club := r.Str(ColSquad)
		p := PlayerProfile{
			PlayerID: id,
			Name:     r.Str(ColPlayer),
			Pos:      r.Str(ColPos),
			Nation:   r.Str(ColNation),
			Age:      int(r[ColAge].Float()),
			Club:     club,
			ClubID:   squadIDs[club],
			League:   league,
			URL:      urls[id],
		}
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = p
	}

	out := make([]PlayerProfile, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// RosterSource fetches and parses league stats pages.
type RosterSource struct {
	Fetcher Fetcher
	BaseURL string
}

func (s *RosterSource) Profiles(ctx context.Context, rosterURL, league string) ([]PlayerProfile, error) {
	html, err := s.Fetcher.Fetch(ctx, rosterURL)
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}
	doc, err := ParseDocument(html)
	if err != nil {
		return nil, err
	}
	return ParseRoster(doc, s.BaseURL, league)
}
