// Package scrape runs the scrape pipeline for one or more leagues: fixtures,
// match pages, player profiles and positions, and the optional exports.
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tyler180/fbref-backends/internal/config"
	"github.com/tyler180/fbref-backends/internal/export"
	"github.com/tyler180/fbref-backends/internal/fbref"
	"github.com/tyler180/fbref-backends/internal/materializer"
	"github.com/tyler180/fbref-backends/internal/metrics"
	"github.com/tyler180/fbref-backends/internal/retry"
	"github.com/tyler180/fbref-backends/internal/store"
)

type Service struct {
	Fetcher    fbref.Fetcher
	Sink       store.Sink
	BaseURL    string
	Retry      retry.Policy
	Workers    int
	Precedence []fbref.PositionSource
	Classifier store.Classifier
	ExportDir  string               // gameweek CSVs; empty disables
	Uploader   *export.Uploader     // gameweek Parquet and CSV; nil disables
	Athena     *materializer.Runner // season totals; nil disables
	Logger     *slog.Logger
	RunID      uuid.UUID
}

func (s *Service) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) policy() retry.Policy {
	p := s.Retry
	if p.Logger == nil {
		p.Logger = s.log()
	}
	return p
}

// retryingFetcher routes every page request through the retry policy.
type retryingFetcher struct {
	f fbref.Fetcher
	p retry.Policy
}

func (r retryingFetcher) Fetch(ctx context.Context, url string) (string, error) {
	return retry.Value(ctx, r.p, "fetch "+url, func(ctx context.Context) (string, error) {
		return r.f.Fetch(ctx, url)
	})
}

func (s *Service) fetcher() fbref.Fetcher {
	return retryingFetcher{f: s.Fetcher, p: s.policy()}
}

func countWrites(kind string, res store.WriteResult) {
	metrics.RecordsWritten.WithLabelValues(kind, "inserted").Add(float64(res.Inserted))
	metrics.RecordsWritten.WithLabelValues(kind, "duplicate").Add(float64(res.Duplicates))
	metrics.RecordsWritten.WithLabelValues(kind, "club_update").Add(float64(res.ClubUpdates))
}

// ------------------ players ------------------

// ScrapePlayers loads the league stats page and upserts player profiles.
func (s *Service) ScrapePlayers(ctx context.Context, lg config.League) (store.WriteResult, error) {
	src := &fbref.RosterSource{Fetcher: s.fetcher(), BaseURL: s.BaseURL}
	profiles, err := src.Profiles(ctx, lg.RosterURL, lg.Name)
	if err != nil {
		return store.WriteResult{}, fmt.Errorf("%s roster: %w", lg.Name, err)
	}
	res, err := s.Sink.PutPlayerProfiles(ctx, profiles)
	countWrites("player", res)
	if err != nil {
		return res, fmt.Errorf("%s players: %w", lg.Name, err)
	}
	s.log().Info(fmt.Sprintf("OK players: wrote %d rows for %s", res.Inserted+res.ClubUpdates, lg.Name),
		"inserted", res.Inserted, "club_updates", res.ClubUpdates)
	return res, nil
}

// ------------------ matches ------------------

// GameweekResult describes one scraped gameweek.
type GameweekResult struct {
	League     string
	GW         int
	Matches    int
	Written    store.WriteResult
	Table      fbref.Table
	CSVPath    string
	CSVKey     string
	ParquetKey string
}

// ScrapeGameweek lists the played matches of gw, stores the fixtures, then
// fetches, merges and stores every match. Matches run on up to Workers
// goroutines; each one merges into its own accumulator.
func (s *Service) ScrapeGameweek(ctx context.Context, lg config.League, gw int) (GameweekResult, error) {
	out := GameweekResult{League: lg.Name, GW: gw}
	col := &fbref.Collector{Fetcher: s.fetcher(), BaseURL: s.BaseURL}
	matches, err := col.ListMatches(ctx, lg.ScheduleURL, gw)
	if err != nil {
		return out, fmt.Errorf("%s gw%d fixtures: %w", lg.Name, gw, err)
	}
	out.Matches = len(matches)
	if len(matches) == 0 {
		s.log().Warn("no played matches", "league", lg.Name, "gw", gw)
		return out, nil
	}
	if err := s.Sink.PutFixtures(ctx, lg.Name, matches); err != nil {
		return out, fmt.Errorf("%s gw%d fixtures: %w", lg.Name, gw, err)
	}

	slices := make([]fbref.Table, len(matches))
	var mu sync.Mutex
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, m := range matches {
		g.Go(func() error {
			t, res, err := s.scrapeMatch(gctx, lg.Name, m)
			if err != nil {
				return err
			}
			slices[i] = t
			mu.Lock()
			out.Written.Add(res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	out.Table = fbref.ConcatSlices(slices)
	stampLeague(&out.Table, lg.Name)

	if err := s.export(ctx, &out); err != nil {
		return out, err
	}
	s.log().Info(fmt.Sprintf("OK matches: wrote %d rows for %s gw%d", out.Written.Inserted, lg.Name, gw),
		"matches", out.Matches, "duplicates", out.Written.Duplicates, "csv", out.CSVPath, "parquet", out.ParquetKey)
	return out, nil
}

func (s *Service) scrapeMatch(ctx context.Context, league string, m fbref.Match) (fbref.Table, store.WriteResult, error) {
	logger := s.log().With("league", league, "gw", m.GW, "match", m.MatchID)
	html, err := s.fetcher().Fetch(ctx, m.URL)
	if err != nil {
		return fbref.Table{}, store.WriteResult{}, fmt.Errorf("match %s: %w", m.MatchID, err)
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		if raw, err := fbref.ExtractTables(strings.NewReader(html)); err == nil {
			fbref.DumpTablesForDebug(logger, raw, m.MatchID)
		}
	}
	t, rep, err := fbref.ParseMatchPage(html, m)
	if err != nil {
		return fbref.Table{}, store.WriteResult{}, fmt.Errorf("match %s: %w", m.MatchID, err)
	}
	metrics.TablesSkipped.WithLabelValues("event").Add(float64(rep.SkippedEvt))
	metrics.TablesSkipped.WithLabelValues("no_identity").Add(float64(rep.SkippedNoID))
	if rep.SkippedNoID > 0 {
		logger.Warn("tables without player identity skipped", "count", rep.SkippedNoID)
	}
	if rep.ByPosition > 0 {
		logger.Warn("teams attributed by table position", "tables", rep.ByPosition)
	}
	logger.Debug("merged", "tables", rep.Tables, "merged", rep.Merged, "players", rep.Players)
	if len(t.Rows) == 0 {
		logger.Warn("no player rows")
		return t, store.WriteResult{}, nil
	}

	recs := t.MatchRecords()
	// records committed by a failed attempt come back as duplicates on the
	// next one; count them as inserted.
	committed := 0
	res, err := retry.Value(ctx, s.policy(), "put match "+m.MatchID, func(ctx context.Context) (store.WriteResult, error) {
		r, err := s.Sink.PutMatchRecords(ctx, league, recs)
		if err != nil {
			committed += r.Inserted
		}
		return r, err
	})
	if err == nil && committed > 0 {
		res.Inserted += committed
		res.Duplicates -= committed
	}
	countWrites("match", res)
	if err != nil {
		return t, res, fmt.Errorf("match %s: %w", m.MatchID, err)
	}
	metrics.MatchesProcessed.WithLabelValues(league).Inc()
	return t, res, nil
}

// stampLeague adds a League column so exported slices of several leagues
// can share one prefix.
func stampLeague(t *fbref.Table, league string) {
	if len(t.Rows) == 0 {
		return
	}
	if !t.HasColumn(fbref.ColLeague) {
		t.Columns = append(t.Columns, fbref.ColLeague)
	}
	for _, r := range t.Rows {
		r[fbref.ColLeague] = fbref.Text(league)
	}
}

func (s *Service) export(ctx context.Context, out *GameweekResult) error {
	if len(out.Table.Rows) == 0 {
		return nil
	}
	if s.ExportDir != "" {
		p, err := export.SaveGameweekCSV(s.ExportDir, out.League, out.GW, out.Table)
		if err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
		out.CSVPath = p
	}
	if s.Uploader != nil {
		data, _, err := export.ParquetBytes(out.Table)
		if err != nil {
			return fmt.Errorf("export parquet: %w", err)
		}
		key, err := s.Uploader.PutParquet(ctx, out.League, out.GW, s.RunID, data)
		if err != nil {
			return fmt.Errorf("export parquet: %w", err)
		}
		out.ParquetKey = key

		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, out.Table); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
		if out.CSVKey, err = s.Uploader.PutCSV(ctx, out.League, out.GW, s.RunID, buf.Bytes()); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
	}
	return nil
}

// ScrapeGameweeks runs ScrapeGameweek over gws in order and, when asked and
// configured, rebuilds the Athena season totals from the uploaded slices.
func (s *Service) ScrapeGameweeks(ctx context.Context, lg config.League, gws []int, materialize bool) ([]GameweekResult, error) {
	results := make([]GameweekResult, 0, len(gws))
	tables := make([]fbref.Table, 0, len(gws))
	for _, gw := range gws {
		r, err := s.ScrapeGameweek(ctx, lg, gw)
		if err != nil {
			return results, err
		}
		results = append(results, r)
		tables = append(tables, r.Table)
	}
	if !materialize {
		return results, nil
	}
	if s.Athena == nil || s.Uploader == nil {
		s.log().Warn("materialize requested without ATHENA_DB and EXPORT_BUCKET; skipping")
		return results, nil
	}
	cols := materializer.ColumnsFor(fbref.ConcatSlices(tables), s.Classifier)
	res, err := s.Athena.Materialize(ctx, s.Uploader.Location(), lg.Name, cols)
	if err != nil {
		return results, fmt.Errorf("materialize %s: %w", lg.Name, err)
	}
	s.log().Info(fmt.Sprintf("OK materialize: %d rows into %s for %s", res.RowCount, res.Table, lg.Name))
	return results, nil
}

// ------------------ positions ------------------

type PositionResult struct {
	Updated   int
	Unchanged int
	Dropped   int
}

// UpdatePositions resolves the position of every stored player of league.
// Players with no position source are dropped from the update.
func (s *Service) UpdatePositions(ctx context.Context, league string) (PositionResult, error) {
	var out PositionResult
	profiles, err := s.Sink.ListPlayerProfiles(ctx, league)
	if err != nil {
		return out, err
	}
	r := &fbref.Resolver{Fetcher: s.fetcher(), Precedence: s.Precedence}
	for _, p := range profiles {
		pos, src, err := r.Resolve(ctx, p)
		if errors.Is(err, fbref.ErrNoPosition) {
			s.log().Warn("no position source", "player", p.PlayerID, "name", p.Name)
			out.Dropped++
			continue
		}
		if err != nil {
			return out, err
		}
		if pos == p.Pos {
			out.Unchanged++
			continue
		}
		if err := s.Sink.UpdatePosition(ctx, p.PlayerID, pos); err != nil {
			return out, err
		}
		s.log().Debug("position", "player", p.PlayerID, "pos", pos, "source", src)
		out.Updated++
	}
	s.log().Info(fmt.Sprintf("OK positions: updated %d players for %s", out.Updated, league),
		"unchanged", out.Unchanged, "dropped", out.Dropped)
	return out, nil
}

func (s *Service) Close() error {
	if s.Sink == nil {
		return nil
	}
	return s.Sink.Close()
}
