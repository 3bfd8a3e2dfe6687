package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/tyler180/fbref-backends/internal/fbref"
	"github.com/tyler180/fbref-backends/internal/retry"
)

// fake client implementing DynamoDBAPI
type fakeDDB struct {
	calls int
	// simulate first attempt returning unprocessed, second succeeds
	failFirst bool

	items   map[string]map[string]map[string]types.AttributeValue // table -> key -> item
	updates []*ddb.UpdateItemInput
	putErr  error
	// transactions cancelled by throttling before one goes through
	throttleTx int
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{items: map[string]map[string]map[string]types.AttributeValue{}}
}

func str(it map[string]types.AttributeValue, k string) string {
	if v, ok := it[k].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func itemKey(it map[string]types.AttributeValue) string {
	return str(it, "PlayerID") + "|" + str(it, "MatchID")
}

func (f *fakeDDB) PutItem(_ context.Context, in *ddb.PutItemInput, _ ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	tbl := aws.ToString(in.TableName)
	if f.items[tbl] == nil {
		f.items[tbl] = map[string]map[string]types.AttributeValue{}
	}
	k := itemKey(in.Item)
	if _, ok := f.items[tbl][k]; ok && in.ConditionExpression != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	f.items[tbl][k] = in.Item
	return &ddb.PutItemOutput{}, nil
}

func (f *fakeDDB) UpdateItem(_ context.Context, in *ddb.UpdateItemInput, _ ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
	tbl := aws.ToString(in.TableName)
	if in.ConditionExpression != nil {
		if _, ok := f.items[tbl][itemKey(in.Key)]; !ok {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
		}
	}
	f.updates = append(f.updates, in)
	return &ddb.UpdateItemOutput{}, nil
}

func (f *fakeDDB) TransactWriteItems(_ context.Context, in *ddb.TransactWriteItemsInput, _ ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	for i := range reasons {
		reasons[i].Code = aws.String("None")
	}
	if f.throttleTx > 0 {
		f.throttleTx--
		reasons[len(reasons)-1].Code = aws.String("ThrottlingError")
		return nil, &types.TransactionCanceledException{Message: aws.String("throttled"), CancellationReasons: reasons}
	}
	for i, it := range in.TransactItems {
		if it.Put == nil {
			continue
		}
		tbl := aws.ToString(it.Put.TableName)
		if _, ok := f.items[tbl][itemKey(it.Put.Item)]; ok && it.Put.ConditionExpression != nil {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			return nil, &types.TransactionCanceledException{Message: aws.String("exists"), CancellationReasons: reasons}
		}
	}
	for _, it := range in.TransactItems {
		switch {
		case it.Put != nil:
			tbl := aws.ToString(it.Put.TableName)
			if f.items[tbl] == nil {
				f.items[tbl] = map[string]map[string]types.AttributeValue{}
			}
			f.items[tbl][itemKey(it.Put.Item)] = it.Put.Item
		case it.Update != nil:
			f.updates = append(f.updates, &ddb.UpdateItemInput{
				TableName:                 it.Update.TableName,
				Key:                       it.Update.Key,
				UpdateExpression:          it.Update.UpdateExpression,
				ExpressionAttributeNames:  it.Update.ExpressionAttributeNames,
				ExpressionAttributeValues: it.Update.ExpressionAttributeValues,
			})
		}
	}
	return &ddb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDDB) BatchWriteItem(ctx context.Context, in *ddb.BatchWriteItemInput, _ ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error) {
	f.calls++
	if f.failFirst {
		f.failFirst = false
		// Echo back all as unprocessed to force a retry
		return &ddb.BatchWriteItemOutput{
			UnprocessedItems: in.RequestItems,
		}, nil
	}
	// Success (no unprocessed)
	return &ddb.BatchWriteItemOutput{}, nil
}

func (f *fakeDDB) Query(_ context.Context, in *ddb.QueryInput, _ ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
	league := in.ExpressionAttributeValues[":l"].(*types.AttributeValueMemberS).Value
	var out []map[string]types.AttributeValue
	for _, it := range f.items[aws.ToString(in.TableName)] {
		if str(it, "League") == league {
			out = append(out, it)
		}
	}
	return &ddb.QueryOutput{Items: out}, nil
}

func (f *fakeDDB) Scan(_ context.Context, in *ddb.ScanInput, _ ...func(*ddb.Options)) (*ddb.ScanOutput, error) {
	var out []map[string]types.AttributeValue
	for _, it := range f.items[aws.ToString(in.TableName)] {
		out = append(out, it)
	}
	return &ddb.ScanOutput{Items: out}, nil
}

var testTables = Tables{Matches: "m", Players: "p", Totals: "t", Fixtures: "f"}

func record(pid, mid string, gls float64) fbref.MatchRecord {
	return fbref.MatchRecord{
		GW: 1, MatchID: mid, PlayerID: pid, Player: "P " + pid, Club: "Arsenal",
		Columns: []string{fbref.ColGW, fbref.ColMatchID, fbref.ColPlayerID, fbref.ColPlayer, "Gls", "Cmp_Pct", fbref.ColClub},
		Values: fbref.Row{
			fbref.ColGW:       fbref.Num(1),
			fbref.ColMatchID:  fbref.Text(mid),
			fbref.ColPlayerID: fbref.Text(pid),
			fbref.ColPlayer:   fbref.Text("P " + pid),
			"Gls":             fbref.Num(gls),
			"Cmp_Pct":         fbref.Num(80),
			fbref.ColClub:     fbref.Text("Arsenal"),
		},
	}
}

func TestPutFixtures_BatchingAndRetry(t *testing.T) {
	// build 30 fixtures → 25 + 5 batches
	var ms []fbref.Match
	for i := 0; i < 30; i++ {
		ms = append(ms, fbref.Match{MatchID: fmt.Sprintf("m%02d", i), GW: 1, Home: "A", Away: "B"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	fc := newFakeDDB()
	fc.failFirst = true
	s := NewDynamoSink(fc, testTables, Classifier{}, nil)
	require.NoError(t, s.PutFixtures(ctx, "Premier League", ms))

	// First batch is attempted twice (one retry), second batch once.
	require.Equal(t, 3, fc.calls)
}

func TestDynamoSink_DuplicateSkipsTotals(t *testing.T) {
	fc := newFakeDDB()
	s := NewDynamoSink(fc, testTables, Classifier{}, nil)
	ctx := context.Background()

	res, err := s.PutMatchRecords(ctx, "Premier League", []fbref.MatchRecord{record("a1", "m1", 1), record("b2", "m1", 0)})
	require.NoError(t, err)
	require.Equal(t, 2, res.Inserted)
	require.Len(t, fc.updates, 2)

	stored := fc.items["m"]["a1|m1"]
	require.Equal(t, "1", stored["Gls"].(*types.AttributeValueMemberN).Value)

	res, err = s.PutMatchRecords(ctx, "Premier League", []fbref.MatchRecord{record("a1", "m1", 5)})
	require.NoError(t, err)
	require.Equal(t, WriteResult{Duplicates: 1}, res)
	require.Len(t, fc.updates, 2, "duplicate must not touch totals")
	require.Equal(t, "1", fc.items["m"]["a1|m1"]["Gls"].(*types.AttributeValueMemberN).Value)
}

func TestDynamoSink_ThrottledTotalsRetried(t *testing.T) {
	fc := newFakeDDB()
	fc.throttleTx = 1
	s := NewDynamoSink(fc, testTables, Classifier{}, nil)
	pol := retry.Policy{MaxRetries: 3, Delay: time.Millisecond}

	res, err := retry.Value(context.Background(), pol, "put match", func(ctx context.Context) (WriteResult, error) {
		return s.PutMatchRecords(ctx, "Premier League", []fbref.MatchRecord{record("a1", "m1", 1)})
	})
	require.NoError(t, err)
	require.Equal(t, WriteResult{Inserted: 1}, res)
	require.Len(t, fc.items["m"], 1)
	require.Len(t, fc.updates, 1, "totals folded exactly once")
}

func TestDynamoSink_TotalsExpression(t *testing.T) {
	fc := newFakeDDB()
	s := NewDynamoSink(fc, testTables, Classifier{}, nil)

	_, err := s.PutMatchRecords(context.Background(), "La Liga", []fbref.MatchRecord{record("a1", "m1", 2)})
	require.NoError(t, err)
	require.Len(t, fc.updates, 1)

	up := fc.updates[0]
	require.Equal(t, "t", aws.ToString(up.TableName))
	require.Equal(t, "SET Player=:p, UpdatedAt=:now, Club=:c, League=:l ADD Matches :one, #a0 :a0, #a1 :a1",
		aws.ToString(up.UpdateExpression))
	require.Equal(t, map[string]string{"#a0": "Gls", "#a1": "Cmp_Pct_sum"}, up.ExpressionAttributeNames)
	require.Equal(t, "2", up.ExpressionAttributeValues[":a0"].(*types.AttributeValueMemberN).Value)
}

func TestDynamoSink_ProfilesAndPositions(t *testing.T) {
	fc := newFakeDDB()
	s := NewDynamoSink(fc, testTables, Classifier{}, nil)
	ctx := context.Background()

	p := fbref.PlayerProfile{PlayerID: "a1", Name: "Ann", Club: "Arsenal", League: "Premier League", Age: 24}
	res, err := s.PutPlayerProfiles(ctx, []fbref.PlayerProfile{p})
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)

	p.Club = "Chelsea"
	res, err = s.PutPlayerProfiles(ctx, []fbref.PlayerProfile{p})
	require.NoError(t, err)
	require.Equal(t, WriteResult{ClubUpdates: 1}, res)
	last := fc.updates[len(fc.updates)-1]
	require.Equal(t, "Chelsea", last.ExpressionAttributeValues[":c"].(*types.AttributeValueMemberS).Value)

	got, err := s.ListPlayerProfiles(ctx, "Premier League")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Ann", got[0].Name)
	require.Equal(t, 24, got[0].Age)

	require.NoError(t, s.UpdatePosition(ctx, "a1", "MF"))
	err = s.UpdatePosition(ctx, "zz", "FW")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWrapAWS_Transient(t *testing.T) {
	err := wrapAWS(&types.ProvisionedThroughputExceededException{Message: aws.String("slow down")})
	require.True(t, retry.IsTransient(err))
	require.False(t, retry.IsTransient(wrapAWS(errors.New("validation"))))

	fc := newFakeDDB()
	cancelled := &types.TransactionCanceledException{CancellationReasons: []types.CancellationReason{
		{Code: aws.String("None")}, {Code: aws.String("TransactionConflict")},
	}}
	require.True(t, retry.IsTransient(wrapAWS(cancelled)))

	fc.putErr = &types.InternalServerError{Message: aws.String("boom")}
	s := NewDynamoSink(fc, testTables, Classifier{}, nil)
	_, err = s.PutMatchRecords(context.Background(), "", []fbref.MatchRecord{record("a1", "m1", 1)})
	require.Error(t, err)
	require.True(t, retry.IsTransient(err))
}
