package scrape

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Modes.
const (
	ModePlayers   = "players"   // league stats pages -> player profiles
	ModeMatches   = "matches"   // gameweek match pages -> match records
	ModePositions = "positions" // profile pages -> Pos on stored players
)

// Event is the Lambda payload.
type Event struct {
	Mode        string `json:"mode"`        // players | matches | positions
	Leagues     string `json:"leagues"`     // CSV ("Premier League,La Liga"); empty = LEAGUES env
	Gameweeks   string `json:"gameweeks"`   // "1-12", "3,5,7"
	Materialize bool   `json:"materialize"` // rebuild Athena totals after a matches run
}

// Raw is used by Lambda entrypoint to avoid tight coupling to the event type at the edge.
type Raw = json.RawMessage

// ParseGameweeks expands "1-3,7" into [1 2 3 7]. Duplicates collapse and
// the result is sorted.
func ParseGameweeks(s string) ([]int, error) {
	seen := map[int]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi := part, part
		if i := strings.Index(part, "-"); i > 0 {
			lo, hi = part[:i], part[i+1:]
		}
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("gameweek %q: %w", part, err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("gameweek %q: %w", part, err)
		}
		if a < 1 || b < a {
			return nil, fmt.Errorf("gameweek range %q is invalid", part)
		}
		for gw := a; gw <= b; gw++ {
			seen[gw] = true
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("no gameweeks in %q", s)
	}
	out := make([]int, 0, len(seen))
	for gw := range seen {
		out = append(out, gw)
	}
	sort.Ints(out)
	return out, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
