package materializer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/stretchr/testify/require"

	"github.com/tyler180/fbref-backends/internal/fbref"
	"github.com/tyler180/fbref-backends/internal/store"
)

func exported() fbref.Table {
	return fbref.Table{
		Columns: []string{fbref.ColGW, fbref.ColMatchID, fbref.ColPlayerID, fbref.ColPlayer, "Gls", "Cmp_Pct", fbref.ColClub, fbref.ColLeague},
		Rows: []fbref.Row{{
			fbref.ColGW: fbref.Num(1), fbref.ColMatchID: fbref.Text("m1"), fbref.ColPlayerID: fbref.Text("a1"),
			fbref.ColPlayer: fbref.Text("Ann"), "Gls": fbref.Num(1), "Cmp_Pct": fbref.Num(75),
			fbref.ColClub: fbref.Text("Roma"), fbref.ColLeague: fbref.Text("Serie A"),
		}},
	}
}

func TestColumnsFor(t *testing.T) {
	cols := ColumnsFor(exported(), store.Classifier{})
	require.Len(t, cols, 8)
	byName := map[string]Column{}
	for _, c := range cols {
		byName[c.Name] = c
	}
	require.Equal(t, "int", byName[fbref.ColGW].Type)
	require.Equal(t, store.Identity, byName[fbref.ColGW].Class)
	require.Equal(t, Column{Name: "Gls", Type: "double", Class: store.Summable}, byName["Gls"])
	require.Equal(t, store.Averaged, byName["Cmp_Pct"].Class)
	require.Equal(t, "string", byName[fbref.ColClub].Type)
}

func TestBuildQueries(t *testing.T) {
	cols := ColumnsFor(exported(), store.Classifier{})

	src := BuildCreateSource("fbref", "s3://b/fbref/player_matches/", cols)
	require.Contains(t, src, "CREATE EXTERNAL TABLE fbref.fbref_player_matches (")
	require.NotContains(t, src, "IF NOT EXISTS")
	require.Equal(t, "DROP TABLE IF EXISTS fbref.fbref_player_matches", BuildDropSource("fbref"))
	require.Contains(t, src, "`cmp_pct` double")
	require.Contains(t, src, "LOCATION 's3://b/fbref/player_matches/'")

	ctas := BuildCTAS("fbref", cols)
	require.Contains(t, ctas, `SUM("gls") AS "gls"`)
	require.Contains(t, ctas, `ROUND(AVG("cmp_pct"), 2) AS "cmp_pct"`)
	require.NotContains(t, ctas, `SUM("gw")`)
	require.Contains(t, ctas, `ROW_NUMBER() OVER (PARTITION BY "playerid", "matchid")`)
	require.Contains(t, ctas, "WHERE rn = 1")
	require.True(t, strings.Index(ctas, `AS league`) > strings.Index(ctas, `"cmp_pct"`), "partition column last")

	require.Equal(t, "SELECT COUNT(*) AS rows FROM fbref.fbref_player_season_totals WHERE league='Serie A'", BuildCount("fbref", "Serie A"))
	require.Contains(t, BuildSample("fbref", "O'Brien League"), "league='O''Brien League'")
	require.Equal(t, "DROP TABLE IF EXISTS fbref.fbref_player_season_totals", BuildDrop("fbref"))
}

type fakeAthena struct {
	started []string
	failOn  string
	polls   int
}

func (f *fakeAthena) StartQueryExecution(_ context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.started = append(f.started, aws.ToString(in.QueryString))
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String(strings.Repeat("q", len(f.started)))}, nil
}

func (f *fakeAthena) GetQueryExecution(_ context.Context, in *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	f.polls++
	state := types.QueryExecutionStateSucceeded
	last := f.started[len(f.started)-1]
	if f.failOn != "" && strings.Contains(last, f.failOn) {
		state = types.QueryExecutionStateFailed
	}
	return &athena.GetQueryExecutionOutput{QueryExecution: &types.QueryExecution{
		QueryExecutionId: in.QueryExecutionId,
		Status: &types.QueryExecutionStatus{
			State:             state,
			StateChangeReason: aws.String("bad sql"),
		},
	}}, nil
}

func (f *fakeAthena) GetQueryResults(_ context.Context, _ *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	return &athena.GetQueryResultsOutput{ResultSet: &types.ResultSet{Rows: []types.Row{
		{Data: []types.Datum{{VarCharValue: aws.String("rows")}}},
		{Data: []types.Datum{{VarCharValue: aws.String("42")}}},
	}}}, nil
}

func TestRunner_Materialize(t *testing.T) {
	fa := &fakeAthena{}
	r := &Runner{Client: fa, Workgroup: "primary", Database: "fbref", Poll: time.Millisecond}

	res, err := r.Materialize(context.Background(), "s3://b/p/", "Serie A", ColumnsFor(exported(), store.Classifier{}))
	require.NoError(t, err)
	require.EqualValues(t, 42, res.RowCount)
	require.Equal(t, "fbref.fbref_player_season_totals", res.Table)
	require.Len(t, res.QueryIDs, 7)
	require.Equal(t, "DROP TABLE IF EXISTS fbref.fbref_player_matches", fa.started[0])
	require.Contains(t, fa.started[1], "CREATE EXTERNAL TABLE")
	require.Contains(t, fa.started[3], "CREATE TABLE fbref.fbref_player_season_totals")
}

func TestRunner_Failure(t *testing.T) {
	fa := &fakeAthena{failOn: "CREATE TABLE fbref."}
	r := &Runner{Client: fa, Workgroup: "primary", Database: "fbref", Poll: time.Millisecond}

	_, err := r.Materialize(context.Background(), "s3://b/p/", "", nil)
	require.ErrorContains(t, err, "create CTAS")
	require.ErrorContains(t, err, "bad sql")
}

func TestRunner_ContextCancelled(t *testing.T) {
	r := &Runner{Client: &fakeAthena{}, Database: "fbref", Poll: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.ExecAndWait(ctx, "SELECT 1")
	require.ErrorIs(t, err, context.Canceled)
}
