package services

import (
	"context"
	"sort"
	"time"

	"foreclosure-auction-scraper/internal/models"
)

// AuctionStore is a document store keyed by (caseNumber, county, state).
//
// UpsertAuction must be a single atomic conditional write: insert with
// createDate = updateDate = now when the key is absent, otherwise overwrite
// every field except caseNumber, createDate and the three attempted-enrichment
// flags, setting updateDate = now. It reports whether a document was created.
//
// ListAuctions returns a county's records ordered by auction date, then case number.
type AuctionStore interface {
	UpsertAuction(ctx context.Context, record *models.AuctionRecord, now time.Time) (bool, error)
	GetAuction(ctx context.Context, key models.AuctionKey) (*models.AuctionRecord, error)
	ListAuctions(ctx context.Context, county, state string) ([]models.AuctionRecord, error)
}

// mutableFields are overwritten on every upsert. The remaining persisted
// fields (createDate and the attempted flags) are written on insert only.
// active is always written true: deactivation belongs to downstream jobs.
func mutableFields(record *models.AuctionRecord, now time.Time) []field {
	return []field{
		{"plaintiff", record.Plaintiff},
		{"defendant", record.Defendant},
		{"tms", record.TMS},
		{"address", record.Address},
		{"city", record.City},
		{"county", record.County},
		{"state", record.State},
		{"auctionDate", record.AuctionDate},
		{"active", true},
		{"isReopen", record.IsReopen},
		{"updateDate", now},
	}
}

func insertOnlyFields(record *models.AuctionRecord, now time.Time) []field {
	return []field{
		{"caseNumber", record.CaseNumber},
		{"createDate", now},
		{"attemptedZillowApi", record.AttemptedZillowAPI},
		{"attemptedRentCastApi", record.AttemptedRentCastAPI},
		{"attemptedGeoCodeApi", record.AttemptedGeoCodeAPI},
	}
}

// sortAuctions applies the ListAuctions order
func sortAuctions(records []models.AuctionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].AuctionDate.Equal(records[j].AuctionDate) {
			return records[i].AuctionDate.Before(records[j].AuctionDate)
		}
		return records[i].CaseNumber < records[j].CaseNumber
	})
}

type field struct {
	name  string
	value interface{}
}
