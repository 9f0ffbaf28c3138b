package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"foreclosure-auction-scraper/internal/config"
)

// PingableStore is an AuctionStore that can check its own connectivity
type PingableStore interface {
	AuctionStore
	Ping(ctx context.Context) error
}

// OpenAuctionStore builds the store selected by STORE_BACKEND. The returned
// close func releases connections and is safe to call for every backend.
func OpenAuctionStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) (PingableStore, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Store.Backend {
	case config.StoreDynamoDB:
		logger.Info("Using DynamoDB auction store", zap.String("table", cfg.Store.AuctionsTable))
		return NewDynamoDBService(dynamodb.NewFromConfig(awsCfg), cfg.Store.AuctionsTable), noop, nil

	case config.StoreMongoDB:
		svc, err := ConnectMongoDB(ctx, cfg.Store.MongoURL, cfg.Store.MongoDatabase, cfg.Store.MongoCollection)
		if err != nil {
			return nil, nil, err
		}
		if err := svc.EnsureIndexes(ctx); err != nil {
			_ = svc.Disconnect(ctx)
			return nil, nil, err
		}
		logger.Info("Using MongoDB auction store", zap.String("collection", cfg.Store.MongoCollection))
		return svc, svc.Disconnect, nil

	case config.StoreMemory:
		logger.Warn("Using in-memory auction store, records are not persisted")
		return NewMemoryStore(), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
