package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/tyler180/fbref-backends/internal/fbref"
)

// Dialect covers the two SQL backends: PostgreSQL through pgx and SQLite
// through modernc.
type Dialect struct {
	Driver   string
	Postgres bool
}

var (
	DialectPostgres = Dialect{Driver: "pgx", Postgres: true}
	DialectSQLite   = Dialect{Driver: "sqlite"}
)

func (d Dialect) ph(i int) string {
	if d.Postgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (d Dialect) realType() string {
	if d.Postgres {
		return "DOUBLE PRECISION"
	}
	return "REAL"
}

// DialectFor picks the backend from a DATABASE_URL.
func DialectFor(dsn string) (Dialect, string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite://")
	default:
		return DialectSQLite, dsn
	}
}

// SQLSink stores match records in a table keyed by (playerID, matchID) whose
// stat columns grow as new ones are seen.
type SQLSink struct {
	db     *sql.DB
	d      Dialect
	tables Tables
	cls    Classifier
	logger *slog.Logger

	mu   sync.Mutex
	cols map[string]bool
}

// OpenSQL opens dsn and creates the tables when missing.
func OpenSQL(ctx context.Context, dsn string, tables Tables, cls Classifier, logger *slog.Logger) (*SQLSink, error) {
	d, conn := DialectFor(dsn)
	db, err := sql.Open(d.Driver, conn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Driver, err)
	}
	if !d.Postgres {
		// one connection keeps :memory: databases alive and serializes writers
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLSink(ctx, db, d, tables, cls, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLSink(ctx context.Context, db *sql.DB, d Dialect, tables Tables, cls Classifier, logger *slog.Logger) (*SQLSink, error) {
	s := &SQLSink{db: db, d: d, tables: tables, cls: cls, logger: orDefault(logger)}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLSink) Close() error { return s.db.Close() }

func q(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SQLSink) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"playerID" TEXT NOT NULL,
	"matchID" TEXT NOT NULL,
	"gw" INTEGER NOT NULL,
	"Player" TEXT,
	"Club" TEXT,
	"League" TEXT,
	PRIMARY KEY ("playerID", "matchID"))`, q(s.tables.Matches)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"playerID" TEXT PRIMARY KEY,
	"Player" TEXT,
	"Pos" TEXT,
	"Nation" TEXT,
	"Age" INTEGER,
	"Club" TEXT,
	"ClubID" TEXT,
	"League" TEXT,
	"URL" TEXT,
	"UpdatedAt" BIGINT)`, q(s.tables.Players)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"playerID" TEXT PRIMARY KEY,
	"Player" TEXT,
	"Club" TEXT,
	"League" TEXT,
	"Matches" INTEGER NOT NULL,
	"Totals" TEXT NOT NULL,
	"UpdatedAt" BIGINT)`, q(s.tables.Totals)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	"matchID" TEXT PRIMARY KEY,
	"League" TEXT,
	"gw" INTEGER,
	"Date" TEXT,
	"Home" TEXT,
	"HomeID" TEXT,
	"Away" TEXT,
	"AwayID" TEXT,
	"HomeScore" INTEGER,
	"AwayScore" INTEGER,
	"URL" TEXT)`, q(s.tables.Fixtures)),
	}
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return s.loadColumns(ctx)
}

func (s *SQLSink) loadColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", q(s.tables.Matches)))
	if err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	s.cols = make(map[string]bool, len(names))
	for _, n := range names {
		s.cols[n] = true
	}
	return rows.Err()
}

// ensureColumns adds a column for every stat not yet in the table. The type
// comes from the first record carrying a value for it.
func (s *SQLSink) ensureColumns(ctx context.Context, recs []fbref.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		for _, col := range r.Stats() {
			if s.cols[col] {
				continue
			}
			v := r.Values[col]
			if v.IsMissing() {
				continue
			}
			typ := "TEXT"
			if v.IsNum() {
				typ = s.d.realType()
			}
			if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", q(s.tables.Matches), q(col), typ)); err != nil {
				return fmt.Errorf("add column %s: %w", col, err)
			}
			s.logger.Debug("added column", "table", s.tables.Matches, "column", col, "type", typ)
			s.cols[col] = true
		}
	}
	return nil
}

func sqlValue(v fbref.Value) any {
	switch {
	case v.IsMissing():
		return nil
	case v.IsNum():
		return v.Float()
	default:
		return v.String()
	}
}

// PutMatchRecords inserts each record and folds it into the player's totals
// in one transaction. An existing (playerID, matchID) row is left untouched.
func (s *SQLSink) PutMatchRecords(ctx context.Context, league string, recs []fbref.MatchRecord) (WriteResult, error) {
	var res WriteResult
	if err := s.ensureColumns(ctx, recs); err != nil {
		return res, err
	}
	for _, r := range recs {
		if r.PlayerID == "" || r.MatchID == "" {
			continue
		}
		inserted, err := s.putMatch(ctx, league, r)
		if err != nil {
			return res, fmt.Errorf("put match %s/%s: %w", r.PlayerID, r.MatchID, err)
		}
		if !inserted {
			logDuplicate(s.logger, r)
			res.Duplicates++
			continue
		}
		res.Inserted++
	}
	return res, nil
}

func (s *SQLSink) putMatch(ctx context.Context, league string, r fbref.MatchRecord) (bool, error) {
	cols := []string{fbref.ColPlayerID, fbref.ColMatchID, fbref.ColGW, fbref.ColPlayer, fbref.ColClub, fbref.ColLeague}
	args := []any{r.PlayerID, r.MatchID, r.GW, r.Player, r.Club, league}
	for _, c := range r.Stats() {
		if v := r.Values[c]; !v.IsMissing() {
			cols = append(cols, c)
			args = append(args, sqlValue(v))
		}
	}
	quoted := make([]string, len(cols))
	phs := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = q(c)
		phs[i] = s.d.ph(i + 1)
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT ("playerID", "matchID") DO NOTHING`,
		q(s.tables.Matches), strings.Join(quoted, ", "), strings.Join(phs, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	out, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, err
	}
	n, err := out.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if err := s.foldTotals(ctx, tx, league, r); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *SQLSink) foldTotals(ctx context.Context, tx *sql.Tx, league string, r fbref.MatchRecord) error {
	t, err := s.readTotals(ctx, tx, r.PlayerID)
	if err != nil {
		return err
	}
	t.Fold(r, league, s.cls)
	blob, err := json.Marshal(t)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s ("playerID", "Player", "Club", "League", "Matches", "Totals", "UpdatedAt")
VALUES (%s, %s, %s, %s, %s, %s, %s)
ON CONFLICT ("playerID") DO UPDATE SET "Player"=excluded."Player", "Club"=excluded."Club", "League"=excluded."League",
"Matches"=excluded."Matches", "Totals"=excluded."Totals", "UpdatedAt"=excluded."UpdatedAt"`,
		q(s.tables.Totals), s.d.ph(1), s.d.ph(2), s.d.ph(3), s.d.ph(4), s.d.ph(5), s.d.ph(6), s.d.ph(7))
	_, err = tx.ExecContext(ctx, stmt, t.PlayerID, t.Player, t.Club, t.League, t.Matches, string(blob), time.Now().Unix())
	return err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLSink) readTotals(ctx context.Context, qr querier, playerID string) (*Totals, error) {
	var blob string
	err := qr.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT "Totals" FROM %s WHERE "playerID" = %s`, q(s.tables.Totals), s.d.ph(1)), playerID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return NewTotals(playerID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read totals %s: %w", playerID, err)
	}
	t := NewTotals(playerID)
	if err := json.Unmarshal([]byte(blob), t); err != nil {
		return nil, fmt.Errorf("decode totals %s: %w", playerID, err)
	}
	return t, nil
}

// Totals returns a player's running totals.
func (s *SQLSink) Totals(ctx context.Context, playerID string) (*Totals, error) {
	return s.readTotals(ctx, s.db, playerID)
}

func (s *SQLSink) PutPlayerProfiles(ctx context.Context, profiles []fbref.PlayerProfile) (WriteResult, error) {
	var res WriteResult
	now := time.Now().Unix()
	ins := fmt.Sprintf(`INSERT INTO %s ("playerID", "Player", "Pos", "Nation", "Age", "Club", "ClubID", "League", "URL", "UpdatedAt")
VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s) ON CONFLICT ("playerID") DO NOTHING`,
		q(s.tables.Players), s.d.ph(1), s.d.ph(2), s.d.ph(3), s.d.ph(4), s.d.ph(5), s.d.ph(6), s.d.ph(7), s.d.ph(8), s.d.ph(9), s.d.ph(10))
	upd := fmt.Sprintf(`UPDATE %s SET "Player"=%s, "Nation"=%s, "Age"=%s, "Club"=%s, "ClubID"=%s, "League"=%s, "URL"=%s, "UpdatedAt"=%s
WHERE "playerID"=%s`,
		q(s.tables.Players), s.d.ph(1), s.d.ph(2), s.d.ph(3), s.d.ph(4), s.d.ph(5), s.d.ph(6), s.d.ph(7), s.d.ph(8), s.d.ph(9))

	for _, p := range profiles {
		if p.PlayerID == "" {
			continue
		}
		out, err := s.db.ExecContext(ctx, ins, p.PlayerID, p.Name, p.Pos, p.Nation, p.Age, p.Club, p.ClubID, p.League, p.URL, now)
		if err != nil {
			return res, fmt.Errorf("put player %s: %w", p.PlayerID, err)
		}
		if n, _ := out.RowsAffected(); n > 0 {
			res.Inserted++
			continue
		}
		if _, err := s.db.ExecContext(ctx, upd, p.Name, p.Nation, p.Age, p.Club, p.ClubID, p.League, p.URL, now, p.PlayerID); err != nil {
			return res, fmt.Errorf("update club %s: %w", p.PlayerID, err)
		}
		res.ClubUpdates++
	}
	return res, nil
}

func (s *SQLSink) PutFixtures(ctx context.Context, league string, matches []fbref.Match) error {
	stmt := fmt.Sprintf(`INSERT INTO %s ("matchID", "League", "gw", "Date", "Home", "HomeID", "Away", "AwayID", "HomeScore", "AwayScore", "URL")
VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
ON CONFLICT ("matchID") DO UPDATE SET "HomeScore"=excluded."HomeScore", "AwayScore"=excluded."AwayScore", "Date"=excluded."Date"`,
		q(s.tables.Fixtures), s.d.ph(1), s.d.ph(2), s.d.ph(3), s.d.ph(4), s.d.ph(5), s.d.ph(6), s.d.ph(7), s.d.ph(8), s.d.ph(9), s.d.ph(10), s.d.ph(11))
	for _, m := range matches {
		if m.MatchID == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt, m.MatchID, league, m.GW, m.Date, m.Home, m.HomeID, m.Away, m.AwayID, m.HomeScore, m.AwayScore, m.URL); err != nil {
			return fmt.Errorf("put fixture %s: %w", m.MatchID, err)
		}
	}
	return nil
}

func (s *SQLSink) ListPlayerProfiles(ctx context.Context, league string) ([]fbref.PlayerProfile, error) {
	query := fmt.Sprintf(`SELECT "playerID", "Player", "Pos", "Nation", "Age", "Club", "ClubID", "League", "URL" FROM %s`, q(s.tables.Players))
	var args []any
	if league != "" {
		query += fmt.Sprintf(` WHERE "League" = %s`, s.d.ph(1))
		args = append(args, league)
	}
	query += ` ORDER BY "playerID"`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []fbref.PlayerProfile
	for rows.Next() {
		var (
			p                                     fbref.PlayerProfile
			name, pos, nat, club, clubID, lg, url sql.NullString
			age                                   sql.NullInt64
		)
		if err := rows.Scan(&p.PlayerID, &name, &pos, &nat, &age, &club, &clubID, &lg, &url); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.Name, p.Pos, p.Nation, p.Club, p.ClubID, p.League, p.URL = name.String, pos.String, nat.String, club.String, clubID.String, lg.String, url.String
		p.Age = int(age.Int64)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLSink) UpdatePosition(ctx context.Context, playerID, pos string) error {
	out, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET "Pos"=%s, "UpdatedAt"=%s WHERE "playerID"=%s`, q(s.tables.Players), s.d.ph(1), s.d.ph(2), s.d.ph(3)),
		pos, time.Now().Unix(), playerID)
	if err != nil {
		return fmt.Errorf("position %s: %w", playerID, err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return fmt.Errorf("position %s: %w", playerID, ErrNotFound)
	}
	return nil
}

// MatchRow reads one stored match row as column -> value.
func (s *SQLSink) MatchRow(ctx context.Context, playerID, matchID string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT * FROM %s WHERE "playerID"=%s AND "matchID"=%s`, q(s.tables.Matches), s.d.ph(1), s.d.ph(2)),
		playerID, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		out[c] = vals[i]
	}
	return out, nil
}
