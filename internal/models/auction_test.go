package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var georgetown = Jurisdiction{
	County:      "Georgetown",
	State:       "SC",
	DefaultCity: "Georgetown",
	CityAliases: map[string]string{"Gtown": "Georgetown"},
}

func TestNewAuctionRecord_Defaults(t *testing.T) {
	auctionDate := time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC)
	rec := NewAuctionRecord(ExtractedCase{
		CaseNumber: " 2025-CP-22-00123 ",
		Plaintiff:  "First  Citizens Bank",
		Defendant:  "John Doe",
		TMS:        "04-0123-045-00",
		Address:    "123 Front St, Gtown",
	}, georgetown, auctionDate)

	assert.Equal(t, "2025-CP-22-00123", rec.CaseNumber)
	assert.Equal(t, "First Citizens Bank", rec.Plaintiff)
	assert.Equal(t, "123 Front St", rec.Address)
	assert.Equal(t, "Georgetown", rec.City)
	assert.Equal(t, "Georgetown", rec.County)
	assert.Equal(t, "SC", rec.State)
	assert.Equal(t, auctionDate, rec.AuctionDate)

	assert.True(t, rec.Active)
	assert.False(t, rec.IsReopen)
	assert.False(t, rec.AttemptedZillowAPI)
	assert.False(t, rec.AttemptedRentCastAPI)
	assert.False(t, rec.AttemptedGeoCodeAPI)
	assert.True(t, rec.CreateDate.IsZero(), "createDate is owned by the store")
}

func TestAuctionRecord_Keys(t *testing.T) {
	rec := &AuctionRecord{CaseNumber: "2025CP2200123", County: "Georgetown", State: "SC"}
	rec.PopulateKeys()

	assert.Equal(t, "AUCTION#SC#Georgetown", rec.PK)
	assert.Equal(t, "CASE#2025CP2200123", rec.SK)
	assert.True(t, rec.Key().Valid())
	assert.Equal(t, "SC/Georgetown/2025CP2200123", rec.Key().String())

	assert.False(t, AuctionKey{County: "Georgetown", State: "SC"}.Valid())
}

func TestNormalizeLocation(t *testing.T) {
	tests := []struct {
		name        string
		address     string
		city        string
		wantAddress string
		wantCity    string
	}{
		{"split on last comma", "12 Oak Ln, Unit 4, Pawleys Island", "", "12 Oak Ln, Unit 4", "Pawleys Island"},
		{"alias mapped", "9 King St, Gtown", "", "9 King St", "Georgetown"},
		{"alias is case insensitive", "9 King St", "GTOWN", "9 King St", "Georgetown"},
		{"no comma defaults city", "400 Highmarket St", "", "400 Highmarket St", "Georgetown"},
		{"explicit city kept", "1 Bay Rd, Murrells Inlet", "Murrells Inlet", "1 Bay Rd, Murrells Inlet", "Murrells Inlet"},
		{"empty address", "", "", "", "Georgetown"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			address, city := NormalizeLocation(test.address, test.city, georgetown)
			assert.Equal(t, test.wantAddress, address)
			assert.Equal(t, test.wantCity, city)
		})
	}
}

func TestNormalizeCaseNumber(t *testing.T) {
	assert.Equal(t, "2025CP2200123", NormalizeCaseNumber(" 2025 cp 22 00123\n"))
	assert.Equal(t, "", NormalizeCaseNumber("   "))
}

func TestParseListingMonth(t *testing.T) {
	year, month, err := ParseListingMonth("September  2025")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, 9, month)

	_, _, err = ParseListingMonth("Sales List (updated)")
	assert.Error(t, err)
}

func TestIsFutureMonth(t *testing.T) {
	now := time.Date(2025, 8, 20, 15, 0, 0, 0, time.UTC)

	assert.True(t, IsFutureMonth(2025, 9, now))
	assert.True(t, IsFutureMonth(2026, 1, now))
	assert.False(t, IsFutureMonth(2025, 8, now), "current month is not in the future")
	assert.False(t, IsFutureMonth(2025, 7, now))
	assert.False(t, IsFutureMonth(2024, 12, now))
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2025-09", MonthKey(2025, 9))

	year, month, err := ParseMonthKey("2025-09")
	require.NoError(t, err)
	assert.Equal(t, 2025, year)
	assert.Equal(t, 9, month)

	_, _, err = ParseMonthKey("09/2025")
	assert.Error(t, err)
}

func TestParseCityAliases(t *testing.T) {
	aliases := ParseCityAliases("Gtown=Georgetown, Pawleys = Pawleys Island,broken,=x")
	assert.Equal(t, map[string]string{
		"Gtown":   "Georgetown",
		"Pawleys": "Pawleys Island",
	}, aliases)
}

func TestGenerateScrapingRunID(t *testing.T) {
	ts := time.Date(2025, 8, 20, 15, 4, 5, 0, time.UTC)
	a := GenerateScrapingRunID(ts)
	b := GenerateScrapingRunID(ts)

	assert.Contains(t, a, "run_20250820T150405_")
	assert.NotEqual(t, a, b)
}

func TestScrapingRun_Finish(t *testing.T) {
	start := time.Date(2025, 8, 20, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		links         []LinkResult
		recordsFailed int
		want          string
	}{
		{"nothing to process", nil, 0, ScrapingStatusSkipped},
		{"all succeeded", []LinkResult{{Success: true}}, 0, ScrapingStatusCompleted},
		{"one link failed", []LinkResult{{Success: true}, {Success: false}}, 0, ScrapingStatusPartial},
		{"record failures", []LinkResult{{Success: true}}, 2, ScrapingStatusPartial},
		{"all failed", []LinkResult{{Success: false}}, 0, ScrapingStatusFailed},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			run := &ScrapingRun{StartedAt: start, Status: ScrapingStatusRunning, Links: test.links, RecordsFailed: test.recordsFailed}
			run.Finish(start.Add(1500 * time.Millisecond))

			assert.Equal(t, test.want, run.Status)
			assert.Equal(t, int64(1500), run.Duration)
		})
	}
}
