package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"foreclosure-auction-scraper/internal/models"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the auction store
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBService stores auction records in a single table.
// PK is AUCTION#<state>#<county> and SK is CASE#<caseNumber>.
type DynamoDBService struct {
	client        DynamoDBAPI
	auctionsTable string
}

// NewDynamoDBService creates a new DynamoDB service instance
func NewDynamoDBService(client DynamoDBAPI, auctionsTable string) *DynamoDBService {
	return &DynamoDBService{
		client:        client,
		auctionsTable: auctionsTable,
	}
}

// UpsertAuction writes the record with one UpdateItem call. Insert-only
// attributes are guarded with if_not_exists so a concurrent writer can never
// reset createDate or the enrichment flags.
func (s *DynamoDBService) UpsertAuction(ctx context.Context, record *models.AuctionRecord, now time.Time) (bool, error) {
	key := record.Key()
	if !key.Valid() {
		return false, ErrInvalidRecord
	}

	input, err := s.buildUpsertInput(record, now)
	if err != nil {
		return false, fmt.Errorf("failed to build auction update: %w", err)
	}

	result, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return false, persistenceError("upsert", key, fmt.Errorf("failed to update auction item: %w", err))
	}

	// ALL_OLD returns nothing when the item did not exist before the write
	return len(result.Attributes) == 0, nil
}

func (s *DynamoDBService) buildUpsertInput(record *models.AuctionRecord, now time.Time) (*dynamodb.UpdateItemInput, error) {
	names := make(map[string]string)
	values := make(map[string]types.AttributeValue)
	var clauses []string

	add := func(f field, insertOnly bool) error {
		av, err := attributevalue.Marshal(f.value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", f.name, err)
		}
		names["#"+f.name] = f.name
		values[":"+f.name] = av
		if insertOnly {
			clauses = append(clauses, fmt.Sprintf("#%[1]s = if_not_exists(#%[1]s, :%[1]s)", f.name))
		} else {
			clauses = append(clauses, fmt.Sprintf("#%[1]s = :%[1]s", f.name))
		}
		return nil
	}

	for _, f := range mutableFields(record, now) {
		if err := add(f, false); err != nil {
			return nil, err
		}
	}
	for _, f := range insertOnlyFields(record, now) {
		if err := add(f, true); err != nil {
			return nil, err
		}
	}

	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.auctionsTable),
		Key:                       auctionItemKey(record.Key()),
		UpdateExpression:          aws.String("SET " + strings.Join(clauses, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllOld,
	}, nil
}

// GetAuction retrieves an auction record by its natural key
func (s *DynamoDBService) GetAuction(ctx context.Context, key models.AuctionKey) (*models.AuctionRecord, error) {
	if !key.Valid() {
		return nil, ErrInvalidRecord
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.auctionsTable),
		Key:       auctionItemKey(key),
	})
	if err != nil {
		return nil, persistenceError("get", key, fmt.Errorf("failed to get auction item: %w", err))
	}

	if result.Item == nil {
		return nil, ErrAuctionNotFound
	}

	var record models.AuctionRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auction item: %w", err)
	}

	return &record, nil
}

// ListAuctions returns every record in a county partition, following pagination.
// The sort key is the case number, so records are re-ordered by auction date.
func (s *DynamoDBService) ListAuctions(ctx context.Context, county, state string) ([]models.AuctionRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.auctionsTable),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: models.CreateAuctionPK(state, county)},
		},
	}

	var records []models.AuctionRecord
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, persistenceError("list", models.AuctionKey{}, fmt.Errorf("failed to query auctions: %w", err))
		}

		var page []models.AuctionRecord
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal auctions: %w", err)
		}
		records = append(records, page...)

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sortAuctions(records)
	return records, nil
}

// Ping checks that the table is reachable with a single-item scan
func (s *DynamoDBService) Ping(ctx context.Context) error {
	_, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.auctionsTable),
		Limit:     aws.Int32(1),
	})
	if err != nil {
		return persistenceError("ping", models.AuctionKey{}, fmt.Errorf("failed to scan table %s: %w", s.auctionsTable, err))
	}
	return nil
}

func auctionItemKey(key models.AuctionKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: models.CreateAuctionPK(key.State, key.County)},
		"SK": &types.AttributeValueMemberS{Value: models.CreateAuctionSK(key.CaseNumber)},
	}
}
