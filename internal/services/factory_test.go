package services

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foreclosure-auction-scraper/internal/config"
)

func TestOpenAuctionStore(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	store, closeStore, err := OpenAuctionStore(ctx, &config.Config{Store: config.StoreConfig{Backend: config.StoreMemory}}, aws.Config{}, log)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	assert.NoError(t, store.Ping(ctx))
	assert.NoError(t, closeStore(ctx))

	store, _, err = OpenAuctionStore(ctx, &config.Config{Store: config.StoreConfig{
		Backend:       config.StoreDynamoDB,
		AuctionsTable: "foreclosure-auctions",
	}}, aws.Config{Region: "us-east-1"}, log)
	require.NoError(t, err)
	assert.IsType(t, &DynamoDBService{}, store)

	_, _, err = OpenAuctionStore(ctx, &config.Config{Store: config.StoreConfig{Backend: "postgres"}}, aws.Config{}, log)
	assert.Error(t, err)
}
