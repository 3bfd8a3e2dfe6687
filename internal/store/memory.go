package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/tyler180/fbref-backends/internal/fbref"
)

type matchKey struct{ playerID, matchID string }

// MemorySink keeps everything in process. It backs dry runs and tests.
type MemorySink struct {
	mu       sync.Mutex
	cls      Classifier
	logger   *slog.Logger
	matches  map[matchKey]fbref.MatchRecord
	order    []matchKey
	players  map[string]fbref.PlayerProfile
	totals   map[string]*Totals
	fixtures map[string]fbref.Match
}

func NewMemorySink(cls Classifier, logger *slog.Logger) *MemorySink {
	return &MemorySink{
		cls:      cls,
		logger:   orDefault(logger),
		matches:  map[matchKey]fbref.MatchRecord{},
		players:  map[string]fbref.PlayerProfile{},
		totals:   map[string]*Totals{},
		fixtures: map[string]fbref.Match{},
	}
}

func (m *MemorySink) PutMatchRecords(_ context.Context, league string, recs []fbref.MatchRecord) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res WriteResult
	for _, r := range recs {
		k := matchKey{r.PlayerID, r.MatchID}
		if _, dup := m.matches[k]; dup {
			logDuplicate(m.logger, r)
			res.Duplicates++
			continue
		}
		m.matches[k] = r
		m.order = append(m.order, k)
		t := m.totals[r.PlayerID]
		if t == nil {
			t = NewTotals(r.PlayerID)
			m.totals[r.PlayerID] = t
		}
		t.Fold(r, league, m.cls)
		res.Inserted++
	}
	return res, nil
}

func (m *MemorySink) PutPlayerProfiles(_ context.Context, profiles []fbref.PlayerProfile) (WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res WriteResult
	for _, p := range profiles {
		cur, ok := m.players[p.PlayerID]
		if !ok {
			m.players[p.PlayerID] = p
			res.Inserted++
			continue
		}
		// Existing player: only mutable attributes move.
		cur.Name, cur.Nation, cur.Club, cur.ClubID, cur.League, cur.Age = p.Name, p.Nation, p.Club, p.ClubID, p.League, p.Age
		if p.URL != "" {
			cur.URL = p.URL
		}
		m.players[p.PlayerID] = cur
		res.ClubUpdates++
	}
	return res, nil
}

func (m *MemorySink) PutFixtures(_ context.Context, _ string, matches []fbref.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range matches {
		m.fixtures[x.MatchID] = x
	}
	return nil
}

func (m *MemorySink) ListPlayerProfiles(_ context.Context, league string) ([]fbref.PlayerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []fbref.PlayerProfile{}
	for _, p := range m.players {
		if league == "" || p.League == league {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (m *MemorySink) UpdatePosition(_ context.Context, playerID, pos string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return ErrNotFound
	}
	p.Pos = pos
	m.players[playerID] = p
	return nil
}

func (m *MemorySink) Close() error { return nil }

// MatchRecord returns a stored record.
func (m *MemorySink) MatchRecord(playerID, matchID string) (fbref.MatchRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.matches[matchKey{playerID, matchID}]
	return r, ok
}

// Totals returns a copy of a player's running totals.
func (m *MemorySink) Totals(playerID string) (Totals, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.totals[playerID]
	if !ok {
		return Totals{}, false
	}
	return *t, true
}

func (m *MemorySink) Profile(playerID string) (fbref.PlayerProfile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	return p, ok
}

func (m *MemorySink) Fixtures() []fbref.Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]fbref.Match, 0, len(m.fixtures))
	for _, x := range m.fixtures {
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}

func (m *MemorySink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}
