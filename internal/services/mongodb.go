package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"foreclosure-auction-scraper/internal/models"
)

const naturalKeyIndexName = "state_county_caseNumber_unique"

// MongoDBService stores auction records in a MongoDB collection
type MongoDBService struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// ConnectMongoDB dials the cluster and selects the collection. The database
// comes from the connection string path unless database is set.
func ConnectMongoDB(ctx context.Context, uri, database, collection string) (*MongoDBService, error) {
	if database == "" {
		cs, err := connstring.ParseAndValidate(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mongodb url: %w", err)
		}
		database = cs.Database
	}
	if database == "" {
		return nil, fmt.Errorf("mongodb url has no database and MONGO_DATABASE is not set")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, persistenceError("connect", models.AuctionKey{}, fmt.Errorf("failed to connect to mongodb: %w", err))
	}

	return NewMongoDBService(client, client.Database(database).Collection(collection)), nil
}

// NewMongoDBService wraps an existing client and collection
func NewMongoDBService(client *mongo.Client, collection *mongo.Collection) *MongoDBService {
	return &MongoDBService{
		client:     client,
		collection: collection,
	}
}

// EnsureIndexes creates the unique natural key index that makes concurrent
// upserts of one case collapse into a single document
func (s *MongoDBService) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "state", Value: 1},
			{Key: "county", Value: 1},
			{Key: "caseNumber", Value: 1},
		},
		Options: options.Index().SetUnique(true).SetName(naturalKeyIndexName),
	})
	if err != nil {
		return persistenceError("create index", models.AuctionKey{}, fmt.Errorf("failed to create natural key index: %w", err))
	}
	return nil
}

// UpsertAuction issues one findOneAndUpdate with upsert. Two racing inserts
// of the same key can both miss the filter; the loser hits the unique index
// and is retried once, which then matches the winner's document.
func (s *MongoDBService) UpsertAuction(ctx context.Context, record *models.AuctionRecord, now time.Time) (bool, error) {
	key := record.Key()
	if !key.Valid() {
		return false, ErrInvalidRecord
	}

	filter, update := buildMongoUpsert(record, now)
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before).
		SetProjection(bson.D{{Key: "_id", Value: 1}})

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.collection.FindOneAndUpdate(ctx, filter, update, opts).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return true, nil
		}
		if err == nil {
			return false, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}

	return false, persistenceError("upsert", key, fmt.Errorf("failed to upsert auction document: %w", err))
}

func buildMongoUpsert(record *models.AuctionRecord, now time.Time) (bson.D, bson.D) {
	filter := bson.D{
		{Key: "state", Value: record.State},
		{Key: "county", Value: record.County},
		{Key: "caseNumber", Value: record.CaseNumber},
	}

	set := bson.D{}
	for _, f := range mutableFields(record, now) {
		set = append(set, bson.E{Key: f.name, Value: f.value})
	}

	// caseNumber, county and state come from the equality filter on insert
	setOnInsert := bson.D{}
	for _, f := range insertOnlyFields(record, now) {
		if f.name == "caseNumber" {
			continue
		}
		setOnInsert = append(setOnInsert, bson.E{Key: f.name, Value: f.value})
	}

	return filter, bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: setOnInsert},
	}
}

// GetAuction retrieves an auction document by its natural key
func (s *MongoDBService) GetAuction(ctx context.Context, key models.AuctionKey) (*models.AuctionRecord, error) {
	if !key.Valid() {
		return nil, ErrInvalidRecord
	}

	var record models.AuctionRecord
	err := s.collection.FindOne(ctx, bson.D{
		{Key: "state", Value: key.State},
		{Key: "county", Value: key.County},
		{Key: "caseNumber", Value: key.CaseNumber},
	}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, persistenceError("get", key, fmt.Errorf("failed to find auction document: %w", err))
	}

	return &record, nil
}

// ListAuctions returns the county's documents ordered by auction date then case number
func (s *MongoDBService) ListAuctions(ctx context.Context, county, state string) ([]models.AuctionRecord, error) {
	cursor, err := s.collection.Find(ctx,
		bson.D{{Key: "state", Value: state}, {Key: "county", Value: county}},
		options.Find().SetSort(bson.D{{Key: "auctionDate", Value: 1}, {Key: "caseNumber", Value: 1}}),
	)
	if err != nil {
		return nil, persistenceError("list", models.AuctionKey{}, fmt.Errorf("failed to query auctions: %w", err))
	}
	defer cursor.Close(ctx)

	var records []models.AuctionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, persistenceError("list", models.AuctionKey{}, fmt.Errorf("failed to decode auctions: %w", err))
	}

	return records, nil
}

// Ping checks the primary is reachable
func (s *MongoDBService) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return persistenceError("ping", models.AuctionKey{}, fmt.Errorf("failed to ping mongodb: %w", err))
	}
	return nil
}

// Disconnect closes the client's connection pool
func (s *MongoDBService) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
