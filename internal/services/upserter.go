package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"foreclosure-auction-scraper/internal/models"
)

// RecordUpserter idempotently persists auction records by natural key
type RecordUpserter struct {
	store  AuctionStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRecordUpserter creates an upserter over the given store
func NewRecordUpserter(store AuctionStore, logger *zap.Logger) *RecordUpserter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordUpserter{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source used for createDate and updateDate
func (u *RecordUpserter) WithClock(now func() time.Time) *RecordUpserter {
	u.now = now
	return u
}

// Upsert inserts the record when its key is new and otherwise updates it in
// place. Store failures are returned as *PersistenceError.
func (u *RecordUpserter) Upsert(ctx context.Context, record *models.AuctionRecord) (models.UpsertResult, error) {
	key := record.Key()
	if !key.Valid() {
		return models.UpsertResult{}, ErrInvalidRecord
	}

	created, err := u.store.UpsertAuction(ctx, record, u.now())
	if err != nil {
		return models.UpsertResult{}, persistenceError("upsert", key, err)
	}

	u.logger.Debug("Upserted auction record",
		zap.String("case_number", key.CaseNumber),
		zap.String("county", key.County),
		zap.String("state", key.State),
		zap.Bool("created", created),
	)

	return models.UpsertResult{Created: created}, nil
}
