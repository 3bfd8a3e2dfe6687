package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tyler180/fbref-backends/internal/fbref"
	"github.com/tyler180/fbref-backends/internal/retry"
)

type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Tables names the four tables a sink writes. DynamoDB key layout:
//
//	matches:  PK=PlayerID, SK=MatchID
//	players:  PK=PlayerID (GSI LeagueIndex on League)
//	totals:   PK=PlayerID
//	fixtures: PK=LeagueGW ("<league>#<gw>"), SK=MatchID
type Tables struct {
	Matches  string
	Players  string
	Totals   string
	Fixtures string
}

// LeagueIndex is the players-table GSI used by ListPlayerProfiles.
const LeagueIndex = "LeagueIndex"

type DynamoSink struct {
	ddb    DynamoDBAPI
	tables Tables
	cls    Classifier
	logger *slog.Logger
	now    func() time.Time
}

func NewDynamoSink(ddb DynamoDBAPI, tables Tables, cls Classifier, logger *slog.Logger) *DynamoSink {
	return &DynamoSink{ddb: ddb, tables: tables, cls: cls, logger: orDefault(logger), now: time.Now}
}

func (s *DynamoSink) Close() error { return nil }

func (s *DynamoSink) stamp() string {
	return strconv.FormatInt(s.now().Unix(), 10)
}

// PutMatchRecords writes each record and its totals increment in one
// transaction guarded by attribute_not_exists on the match key. A cancelled
// condition is a duplicate: logged, counted, and kept out of totals. A record
// is either stored with its totals or not at all, so a retried batch never
// loses an increment.
func (s *DynamoSink) PutMatchRecords(ctx context.Context, league string, recs []fbref.MatchRecord) (WriteResult, error) {
	var res WriteResult
	now := s.stamp()
	for _, r := range recs {
		if r.PlayerID == "" || r.MatchID == "" {
			continue
		}
		_, err := s.ddb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				{Put: &types.Put{
					TableName:           aws.String(s.tables.Matches),
					Item:                matchItem(r, league, now),
					ConditionExpression: aws.String("attribute_not_exists(PlayerID) AND attribute_not_exists(MatchID)"),
				}},
				{Update: s.totalsUpdate(r, league, now)},
			},
		})
		if isDuplicateMatch(err) {
			logDuplicate(s.logger, r)
			res.Duplicates++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("put match %s/%s: %w", r.PlayerID, r.MatchID, wrapAWS(err))
		}
		res.Inserted++
	}
	return res, nil
}

// isDuplicateMatch reports a transaction cancelled by the match put's
// condition (the first transact item).
func isDuplicateMatch(err error) bool {
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		return len(tce.CancellationReasons) > 0 && aws.ToString(tce.CancellationReasons[0].Code) == "ConditionalCheckFailed"
	}
	return isConditionFailed(err)
}

func matchItem(r fbref.MatchRecord, league, now string) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PlayerID":  &types.AttributeValueMemberS{Value: r.PlayerID}, // PK
		"MatchID":   &types.AttributeValueMemberS{Value: r.MatchID},  // SK
		"GW":        &types.AttributeValueMemberN{Value: strconv.Itoa(r.GW)},
		"Player":    &types.AttributeValueMemberS{Value: r.Player},
		"UpdatedAt": &types.AttributeValueMemberN{Value: now},
	}
	if r.Club != "" {
		item["Club"] = &types.AttributeValueMemberS{Value: r.Club}
	}
	if league != "" {
		item["League"] = &types.AttributeValueMemberS{Value: league}
	}
	for _, col := range r.Stats() {
		if av := valueAttr(r.Values[col]); av != nil {
			item[col] = av
		}
	}
	return item
}

// valueAttr maps a Value to N or S; missing values are left off the item.
func valueAttr(v fbref.Value) types.AttributeValue {
	switch {
	case v.IsMissing():
		return nil
	case v.IsNum():
		return &types.AttributeValueMemberN{Value: fbref.FormatFloat(v.Float())}
	default:
		return &types.AttributeValueMemberS{Value: v.String()}
	}
}

// totalsUpdate folds one new match into the totals item with a single ADD.
// Averaged columns accumulate under "<col>_sum"; readers divide by Matches.
func (s *DynamoSink) totalsUpdate(r fbref.MatchRecord, league, now string) *types.Update {
	con := s.cls.Contribution(r)
	names := map[string]string{}
	vals := map[string]types.AttributeValue{
		":one": &types.AttributeValueMemberN{Value: "1"},
		":p":   &types.AttributeValueMemberS{Value: r.Player},
		":now": &types.AttributeValueMemberN{Value: now},
	}
	set := "SET Player=:p, UpdatedAt=:now"
	if r.Club != "" {
		set += ", Club=:c"
		vals[":c"] = &types.AttributeValueMemberS{Value: r.Club}
	}
	if league != "" {
		set += ", League=:l"
		vals[":l"] = &types.AttributeValueMemberS{Value: league}
	}
	add := "ADD Matches :one"
	i := 0
	addCol := func(attr string, v float64) {
		n, p := fmt.Sprintf("#a%d", i), fmt.Sprintf(":a%d", i)
		names[n] = attr
		vals[p] = &types.AttributeValueMemberN{Value: fbref.FormatFloat(v)}
		add += fmt.Sprintf(", %s %s", n, p)
		i++
	}
	for _, col := range sortedCols(con.Sums) {
		addCol(col, con.Sums[col])
	}
	for _, col := range sortedCols(con.Avgs) {
		addCol(col+"_sum", con.Avgs[col])
	}

	up := &types.Update{
		TableName:                 aws.String(s.tables.Totals),
		Key:                       map[string]types.AttributeValue{"PlayerID": &types.AttributeValueMemberS{Value: r.PlayerID}},
		UpdateExpression:          aws.String(set + " " + add),
		ExpressionAttributeValues: vals,
	}
	if len(names) > 0 {
		up.ExpressionAttributeNames = names
	}
	return up
}

func sortedCols(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PutFixtures batch-writes fixture rows; re-writing a fixture overwrites it.
func (s *DynamoSink) PutFixtures(ctx context.Context, league string, matches []fbref.Match) error {
	if len(matches) == 0 {
		return nil
	}
	const maxBatch = 25
	now := s.stamp()

	for i := 0; i < len(matches); i += maxBatch {
		end := i + maxBatch
		if end > len(matches) {
			end = len(matches)
		}

		reqs := make([]types.WriteRequest, 0, end-i)
		for _, m := range matches[i:end] {
			if m.MatchID == "" {
				continue
			}
			item := map[string]types.AttributeValue{
				"LeagueGW":  &types.AttributeValueMemberS{Value: fmt.Sprintf("%s#%02d", league, m.GW)}, // PK
				"MatchID":   &types.AttributeValueMemberS{Value: m.MatchID},                            // SK
				"League":    &types.AttributeValueMemberS{Value: league},
				"GW":        &types.AttributeValueMemberN{Value: strconv.Itoa(m.GW)},
				"URL":       &types.AttributeValueMemberS{Value: m.URL},
				"Home":      &types.AttributeValueMemberS{Value: m.Home},
				"Away":      &types.AttributeValueMemberS{Value: m.Away},
				"HomeScore": &types.AttributeValueMemberN{Value: strconv.Itoa(m.HomeScore)},
				"AwayScore": &types.AttributeValueMemberN{Value: strconv.Itoa(m.AwayScore)},
				"UpdatedAt": &types.AttributeValueMemberN{Value: now},
			}
			if m.Date != "" {
				item["Date"] = &types.AttributeValueMemberS{Value: m.Date}
			}
			if m.HomeID != "" {
				item["HomeID"] = &types.AttributeValueMemberS{Value: m.HomeID}
			}
			if m.AwayID != "" {
				item["AwayID"] = &types.AttributeValueMemberS{Value: m.AwayID}
			}
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}
		if len(reqs) == 0 {
			continue
		}
		if err := batchWriteWithRetry(ctx, s.ddb, s.tables.Fixtures, reqs); err != nil {
			return fmt.Errorf("batch write fixtures: %w", err)
		}
	}
	return nil
}

func batchWriteWithRetry(ctx context.Context, ddb DynamoDBAPI, table string, reqs []types.WriteRequest) error {
	input := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{table: reqs},
	}
	const maxAttempts = 6
	backoff := 120 * time.Millisecond

	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := ddb.BatchWriteItem(ctx, input)
		if err != nil {
			return wrapAWS(err)
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		input.RequestItems = out.UnprocessedItems
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff += 120 * time.Millisecond
		}
	}
	return fmt.Errorf("unprocessed items remained after retries for table %s", table)
}

// UpdatePosition sets Pos on an existing player. It never creates one.
func (s *DynamoSink) UpdatePosition(ctx context.Context, playerID, pos string) error {
	_, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tables.Players),
		Key: map[string]types.AttributeValue{
			"PlayerID": &types.AttributeValueMemberS{Value: playerID},
		},
		UpdateExpression: aws.String("SET Pos=:pos, UpdatedAt=:now"),
		// avoid creating new items accidentally
		ConditionExpression: aws.String("attribute_exists(PlayerID)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pos": &types.AttributeValueMemberS{Value: pos},
			":now": &types.AttributeValueMemberN{Value: s.stamp()},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("position %s: %w", playerID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("position %s: %w", playerID, wrapAWS(err))
	}
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// awsTransient marks throttling and server-side errors for retry.Do.
type awsTransient struct{ err error }

func (e *awsTransient) Error() string   { return e.err.Error() }
func (e *awsTransient) Unwrap() error   { return e.err }
func (e *awsTransient) Transient() bool { return true }

var _ retry.Transient = (*awsTransient)(nil)

// transientCancel lists transaction cancellation codes worth retrying.
var transientCancel = map[string]bool{
	"ThrottlingError":               true,
	"ProvisionedThroughputExceeded": true,
	"TransactionConflict":           true,
}

func wrapAWS(err error) error {
	if err == nil {
		return nil
	}
	var (
		thr *types.ProvisionedThroughputExceededException
		lim *types.RequestLimitExceeded
		ise *types.InternalServerError
		tcf *types.TransactionConflictException
		tce *types.TransactionCanceledException
	)
	if errors.As(err, &thr) || errors.As(err, &lim) || errors.As(err, &ise) || errors.As(err, &tcf) {
		return &awsTransient{err: err}
	}
	if errors.As(err, &tce) {
		for _, r := range tce.CancellationReasons {
			if transientCancel[aws.ToString(r.Code)] {
				return &awsTransient{err: err}
			}
		}
	}
	return err
}
