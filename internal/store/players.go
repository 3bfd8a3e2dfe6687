package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tyler180/fbref-backends/internal/fbref"
)

// PutPlayerProfiles inserts new players. A player already on file keeps its
// key and position; its club, league and bio fields are updated in place.
func (s *DynamoSink) PutPlayerProfiles(ctx context.Context, profiles []fbref.PlayerProfile) (WriteResult, error) {
	var res WriteResult
	now := s.stamp()
	for _, p := range profiles {
		if p.PlayerID == "" {
			continue
		}
		item, err := profileItem(p, now)
		if err != nil {
			return res, err
		}
		_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tables.Players),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PlayerID)"),
		})
		if err == nil {
			res.Inserted++
			continue
		}
		if !isConditionFailed(err) {
			return res, fmt.Errorf("put player %s: %w", p.PlayerID, wrapAWS(err))
		}
		if err := s.updateClub(ctx, p, now); err != nil {
			return res, err
		}
		res.ClubUpdates++
	}
	return res, nil
}

// profileRow is the players table item; UpdatedAt is stamped separately.
type profileRow struct {
	PlayerID string `dynamodbav:"PlayerID"` // PK
	Name     string `dynamodbav:"Player"`
	Pos      string `dynamodbav:"Pos,omitempty"`
	Nation   string `dynamodbav:"Nation,omitempty"`
	Age      int    `dynamodbav:"Age"`
	Club     string `dynamodbav:"Club,omitempty"`
	ClubID   string `dynamodbav:"ClubID,omitempty"`
	League   string `dynamodbav:"League,omitempty"`
	URL      string `dynamodbav:"URL,omitempty"`
}

func profileItem(p fbref.PlayerProfile, now string) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(profileRow(p))
	if err != nil {
		return nil, fmt.Errorf("marshal player %s: %w", p.PlayerID, err)
	}
	item["UpdatedAt"] = &types.AttributeValueMemberN{Value: now}
	return item, nil
}

func (s *DynamoSink) updateClub(ctx context.Context, p fbref.PlayerProfile, now string) error {
	_, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tables.Players),
		Key: map[string]types.AttributeValue{
			"PlayerID": &types.AttributeValueMemberS{Value: p.PlayerID},
		},
		UpdateExpression:         aws.String("SET Player=:n, Club=:c, ClubID=:cid, League=:l, Age=:a, Nation=:nat, #u=:u, UpdatedAt=:now"),
		ConditionExpression:      aws.String("attribute_exists(PlayerID)"),
		ExpressionAttributeNames: map[string]string{"#u": "URL"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n":   &types.AttributeValueMemberS{Value: p.Name},
			":c":   &types.AttributeValueMemberS{Value: p.Club},
			":cid": &types.AttributeValueMemberS{Value: p.ClubID},
			":l":   &types.AttributeValueMemberS{Value: p.League},
			":a":   &types.AttributeValueMemberN{Value: strconv.Itoa(p.Age)},
			":nat": &types.AttributeValueMemberS{Value: p.Nation},
			":u":   &types.AttributeValueMemberS{Value: p.URL},
			":now": &types.AttributeValueMemberN{Value: now},
		},
	})
	if err != nil {
		return fmt.Errorf("update club %s: %w", p.PlayerID, wrapAWS(err))
	}
	s.logger.Debug("club update", "player", p.PlayerID, "club", p.Club, "league", p.League)
	return nil
}

// ListPlayerProfiles pages through LeagueIndex for one league, or scans the
// whole players table when league is empty.
func (s *DynamoSink) ListPlayerProfiles(ctx context.Context, league string) ([]fbref.PlayerProfile, error) {
	var out []fbref.PlayerProfile
	var lastKey map[string]types.AttributeValue
	for {
		var (
			items []map[string]types.AttributeValue
			next  map[string]types.AttributeValue
		)
		if league == "" {
			o, err := s.ddb.Scan(ctx, &dynamodb.ScanInput{
				TableName:         aws.String(s.tables.Players),
				ExclusiveStartKey: lastKey,
			})
			if err != nil {
				return nil, fmt.Errorf("scan players: %w", wrapAWS(err))
			}
			items, next = o.Items, o.LastEvaluatedKey
		} else {
			o, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
				TableName:                 aws.String(s.tables.Players),
				IndexName:                 aws.String(LeagueIndex),
				KeyConditionExpression:    aws.String("#L = :l"),
				ExpressionAttributeNames:  map[string]string{"#L": "League"},
				ExpressionAttributeValues: map[string]types.AttributeValue{":l": &types.AttributeValueMemberS{Value: league}},
				ExclusiveStartKey:         lastKey,
			})
			if err != nil {
				return nil, fmt.Errorf("query players %s: %w", league, wrapAWS(err))
			}
			items, next = o.Items, o.LastEvaluatedKey
		}
		for _, it := range items {
			if p, ok := profileFromItem(it); ok {
				out = append(out, p)
			}
		}
		if len(next) == 0 {
			break
		}
		lastKey = next
	}
	return out, nil
}

func profileFromItem(it map[string]types.AttributeValue) (fbref.PlayerProfile, bool) {
	var row profileRow
	if err := attributevalue.UnmarshalMap(it, &row); err != nil {
		return fbref.PlayerProfile{}, false
	}
	return fbref.PlayerProfile(row), row.PlayerID != ""
}
