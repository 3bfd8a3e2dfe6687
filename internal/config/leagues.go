package config

import (
	"fmt"
	"sort"
	"strings"
)

// League is one competition: its schedule page drives match scraping and its
// stats page drives player profiles.
type League struct {
	Name        string
	CompID      int
	ScheduleURL string
	RosterURL   string
}

// Leagues is keyed by league name.
type Leagues map[string]League

func fbrefLeague(name string, comp int, slug string) League {
	return League{
		Name:        name,
		CompID:      comp,
		ScheduleURL: fmt.Sprintf("https://fbref.com/en/comps/%d/schedule/%s-Scores-and-Fixtures", comp, slug),
		RosterURL:   fmt.Sprintf("https://fbref.com/en/comps/%d/stats/%s-Stats", comp, slug),
	}
}

// DefaultLeagues returns the registry of supported competitions.
func DefaultLeagues() Leagues {
	return Leagues{
		"Premier League": fbrefLeague("Premier League", 9, "Premier-League"),
		"La Liga":        fbrefLeague("La Liga", 12, "La-Liga"),
		"Serie A":        fbrefLeague("Serie A", 11, "Serie-A"),
		"Bundesliga":     fbrefLeague("Bundesliga", 20, "Bundesliga"),
	}
}

// Names returns league names sorted.
func (l Leagues) Names() []string {
	out := make([]string, 0, len(l))
	for k := range l {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup finds a league by name, case-insensitively, also accepting the
// dashed slug ("premier-league").
func (l Leagues) Lookup(name string) (League, bool) {
	want := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", " "))
	for k, v := range l {
		if strings.ToLower(k) == want {
			return v, true
		}
	}
	return League{}, false
}

// Subset keeps the named leagues; an empty list keeps all of them.
func (l Leagues) Subset(names []string) (Leagues, error) {
	if len(names) == 0 {
		return l, nil
	}
	out := Leagues{}
	for _, n := range names {
		lg, ok := l.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("unknown league %q (known: %s)", n, strings.Join(l.Names(), ", "))
		}
		out[lg.Name] = lg
	}
	return out, nil
}
