package services

import (
	"context"
	"sync"
	"time"

	"foreclosure-auction-scraper/internal/models"
)

// MemoryStore is an in-process AuctionStore for local runs and tests.
// It applies the same insert/update field rules as the database stores.
type MemoryStore struct {
	mu      sync.Mutex
	records map[models.AuctionKey]models.AuctionRecord
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[models.AuctionKey]models.AuctionRecord)}
}

func (m *MemoryStore) UpsertAuction(ctx context.Context, record *models.AuctionRecord, now time.Time) (bool, error) {
	key := record.Key()
	if !key.Valid() {
		return false, ErrInvalidRecord
	}
	if err := ctx.Err(); err != nil {
		return false, persistenceError("upsert", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, found := m.records[key]
	next := *record
	next.PopulateKeys()
	next.Active = true
	next.UpdateDate = now

	if found {
		next.CaseNumber = existing.CaseNumber
		next.CreateDate = existing.CreateDate
		next.AttemptedZillowAPI = existing.AttemptedZillowAPI
		next.AttemptedRentCastAPI = existing.AttemptedRentCastAPI
		next.AttemptedGeoCodeAPI = existing.AttemptedGeoCodeAPI
	} else {
		next.CreateDate = now
	}

	m.records[key] = next
	return !found, nil
}

func (m *MemoryStore) GetAuction(ctx context.Context, key models.AuctionKey) (*models.AuctionRecord, error) {
	if !key.Valid() {
		return nil, ErrInvalidRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[key]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return &record, nil
}

// ListAuctions returns the county's records ordered by auction date, then case number
func (m *MemoryStore) ListAuctions(ctx context.Context, county, state string) ([]models.AuctionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []models.AuctionRecord
	for key, record := range m.records {
		if key.County == county && key.State == state {
			records = append(records, record)
		}
	}
	sortAuctions(records)
	return records, nil
}

// SetEnrichmentFlags mimics a downstream enrichment job marking a record
func (m *MemoryStore) SetEnrichmentFlags(key models.AuctionKey, zillow, rentCast, geoCode bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[key]
	if !ok {
		return ErrAuctionNotFound
	}
	record.AttemptedZillowAPI = zillow
	record.AttemptedRentCastAPI = rentCast
	record.AttemptedGeoCodeAPI = geoCode
	m.records[key] = record
	return nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored records
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
