package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateScrapingRunID creates a unique ID for a scraping run
func GenerateScrapingRunID(timestamp time.Time) string {
	return fmt.Sprintf("run_%s_%s", timestamp.UTC().Format("20060102T150405"), uuid.New().String()[:8])
}

// CreateAuctionPK returns the DynamoDB partition key for a jurisdiction
func CreateAuctionPK(state, county string) string {
	return "AUCTION#" + state + "#" + county
}

// CreateAuctionSK returns the DynamoDB sort key for a case
func CreateAuctionSK(caseNumber string) string {
	return "CASE#" + caseNumber
}

// NormalizeCaseNumber trims whitespace and drops inner spaces, which the
// county PDFs insert inconsistently ("2025 CP 22 00123").
func NormalizeCaseNumber(caseNumber string) string {
	return strings.ToUpper(strings.Join(strings.Fields(caseNumber), ""))
}

// NormalizeLocation splits "street, city" on the last comma when the model did
// not separate the city, maps city aliases, and falls back to the default city.
func NormalizeLocation(address, city string, j Jurisdiction) (string, string) {
	address = collapseSpaces(address)
	city = collapseSpaces(city)

	if city == "" {
		if idx := strings.LastIndex(address, ","); idx >= 0 {
			city = strings.TrimSpace(address[idx+1:])
			address = strings.TrimSpace(address[:idx])
		}
	}

	for alias, canonical := range j.CityAliases {
		if strings.EqualFold(city, alias) {
			city = canonical
			break
		}
	}

	if city == "" {
		city = j.DefaultCity
	}

	return address, city
}

// ParseListingMonth parses link text such as "September 2025"
func ParseListingMonth(text string) (year, month int, err error) {
	t, err := time.Parse("January 2006", collapseSpaces(text))
	if err != nil {
		return 0, 0, fmt.Errorf("link text %q is not a month and year: %w", text, err)
	}
	return t.Year(), int(t.Month()), nil
}

// IsFutureMonth reports whether year/month is strictly after the month containing now
func IsFutureMonth(year, month int, now time.Time) bool {
	if year != now.Year() {
		return year > now.Year()
	}
	return month > int(now.Month())
}

// MonthKey formats year/month as "2006-01"
func MonthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

// ParseMonthKey parses "2006-01" into year and month
func ParseMonthKey(key string) (year, month int, err error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(key))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", key, err)
	}
	return t.Year(), int(t.Month()), nil
}

// ParseCityAliases parses "Gtown=Georgetown,Pawleys=Pawleys Island"
func ParseCityAliases(s string) map[string]string {
	aliases := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		alias, canonical, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		alias = strings.TrimSpace(alias)
		canonical = strings.TrimSpace(canonical)
		if alias != "" && canonical != "" {
			aliases[alias] = canonical
		}
	}
	return aliases
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
