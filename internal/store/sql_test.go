package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyler180/fbref-backends/internal/fbref"
)

func openTestSQL(t *testing.T) *SQLSink {
	t.Helper()
	s, err := OpenSQL(context.Background(), ":memory:", testTables, Classifier{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDialectFor(t *testing.T) {
	d, dsn := DialectFor("postgres://u:p@db:5432/fbref")
	require.Equal(t, DialectPostgres, d)
	require.Equal(t, "postgres://u:p@db:5432/fbref", dsn)
	require.Equal(t, "$3", d.ph(3))

	d, dsn = DialectFor("sqlite://data/fbref.db")
	require.Equal(t, DialectSQLite, d)
	require.Equal(t, "data/fbref.db", dsn)
	require.Equal(t, "?", d.ph(3))
}

func TestSQLSink_DuplicateIsNoop(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()

	res, err := s.PutMatchRecords(ctx, "Premier League", []fbref.MatchRecord{record("a1", "m1", 1)})
	require.NoError(t, err)
	require.Equal(t, WriteResult{Inserted: 1}, res)

	res, err = s.PutMatchRecords(ctx, "Premier League", []fbref.MatchRecord{record("a1", "m1", 7)})
	require.NoError(t, err)
	require.Equal(t, WriteResult{Duplicates: 1}, res)

	row, err := s.MatchRow(ctx, "a1", "m1")
	require.NoError(t, err)
	require.EqualValues(t, 1, row["Gls"])
	require.Equal(t, "Premier League", row["League"])

	tot, err := s.Totals(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 1, tot.Matches)
	require.Equal(t, 1.0, tot.Sums["Gls"])
}

func TestSQLSink_GrowingColumnsAndTotals(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()

	r2 := record("a1", "m2", 2)
	r2.Columns = append(r2.Columns, "Tkl")
	r2.Values["Tkl"] = fbref.Num(3)
	r2.Values["Cmp_Pct"] = fbref.Num(90)

	_, err := s.PutMatchRecords(ctx, "Premier League", []fbref.MatchRecord{record("a1", "m1", 1), r2})
	require.NoError(t, err)

	row, err := s.MatchRow(ctx, "a1", "m2")
	require.NoError(t, err)
	require.EqualValues(t, 3, row["Tkl"])

	row, err = s.MatchRow(ctx, "a1", "m1")
	require.NoError(t, err)
	require.Nil(t, row["Tkl"])

	tot, err := s.Totals(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 2, tot.Matches)
	require.Equal(t, 3.0, tot.Sums["Gls"])
	require.Equal(t, 3.0, tot.Sums["Tkl"])
	require.Equal(t, 85.0, tot.Averages()["Cmp_Pct"])

	_, err = s.MatchRow(ctx, "zz", "m1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLSink_ProfilesFixturesPositions(t *testing.T) {
	s := openTestSQL(t)
	ctx := context.Background()

	p := fbref.PlayerProfile{PlayerID: "a1", Name: "Ann", Pos: "MF", Club: "Arsenal", League: "Premier League", Age: 24}
	res, err := s.PutPlayerProfiles(ctx, []fbref.PlayerProfile{p, {PlayerID: "b2", Name: "Bo", League: "La Liga"}})
	require.NoError(t, err)
	require.Equal(t, WriteResult{Inserted: 2}, res)

	p.Club, p.Pos = "Chelsea", "FW"
	res, err = s.PutPlayerProfiles(ctx, []fbref.PlayerProfile{p})
	require.NoError(t, err)
	require.Equal(t, WriteResult{ClubUpdates: 1}, res)

	got, err := s.ListPlayerProfiles(ctx, "Premier League")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Chelsea", got[0].Club)
	require.Equal(t, "MF", got[0].Pos, "club update keeps the stored position")

	require.NoError(t, s.UpdatePosition(ctx, "a1", "DF"))
	require.ErrorIs(t, s.UpdatePosition(ctx, "nope", "DF"), ErrNotFound)

	all, err := s.ListPlayerProfiles(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "DF", all[0].Pos)

	m := fbref.Match{MatchID: "m1", GW: 1, Home: "Arsenal", Away: "Chelsea", HomeScore: 1, AwayScore: 1}
	require.NoError(t, s.PutFixtures(ctx, "Premier League", []fbref.Match{m}))
	m.HomeScore = 2
	require.NoError(t, s.PutFixtures(ctx, "Premier League", []fbref.Match{m}))
}
