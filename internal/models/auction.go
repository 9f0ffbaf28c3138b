package models

import "time"

// AuctionRecord is one foreclosure case scheduled for a county auction.
// The natural key is (CaseNumber, County, State).
type AuctionRecord struct {
	// DynamoDB keys, never serialized elsewhere
	PK string `json:"-" bson:"-" dynamodbav:"PK"`
	SK string `json:"-" bson:"-" dynamodbav:"SK"`

	CaseNumber string `json:"caseNumber" bson:"caseNumber" dynamodbav:"caseNumber"`
	Plaintiff  string `json:"plaintiff" bson:"plaintiff" dynamodbav:"plaintiff"`
	Defendant  string `json:"defendant" bson:"defendant" dynamodbav:"defendant"`
	TMS        string `json:"tms,omitempty" bson:"tms" dynamodbav:"tms"` // tax map number
	Address    string `json:"address" bson:"address" dynamodbav:"address"`
	City       string `json:"city" bson:"city" dynamodbav:"city"`
	County     string `json:"county" bson:"county" dynamodbav:"county"`
	State      string `json:"state" bson:"state" dynamodbav:"state"`

	// Always midnight UTC, computed from the listing month
	AuctionDate time.Time `json:"auctionDate" bson:"auctionDate" dynamodbav:"auctionDate"`

	Active   bool `json:"active" bson:"active" dynamodbav:"active"`
	IsReopen bool `json:"isReopen" bson:"isReopen" dynamodbav:"isReopen"`

	// Owned by the downstream enrichment jobs. Written on insert only.
	AttemptedZillowAPI   bool `json:"attemptedZillowApi" bson:"attemptedZillowApi" dynamodbav:"attemptedZillowApi"`
	AttemptedRentCastAPI bool `json:"attemptedRentCastApi" bson:"attemptedRentCastApi" dynamodbav:"attemptedRentCastApi"`
	AttemptedGeoCodeAPI  bool `json:"attemptedGeoCodeApi" bson:"attemptedGeoCodeApi" dynamodbav:"attemptedGeoCodeApi"`

	CreateDate time.Time `json:"createDate" bson:"createDate" dynamodbav:"createDate"`
	UpdateDate time.Time `json:"updateDate" bson:"updateDate" dynamodbav:"updateDate"`
}

// AuctionKey identifies a record within its jurisdiction
type AuctionKey struct {
	CaseNumber string `json:"caseNumber"`
	County     string `json:"county"`
	State      string `json:"state"`
}

// UpsertResult reports whether an upsert inserted a new document
type UpsertResult struct {
	Created bool `json:"created"`
}

// ExtractedCase is one table row returned by the extraction model.
// Every field is best effort and may be empty.
type ExtractedCase struct {
	CaseNumber string `json:"caseNumber"`
	Plaintiff  string `json:"plaintiff"`
	Defendant  string `json:"defendant"`
	TMS        string `json:"tms"`
	Address    string `json:"address"`
	City       string `json:"city"`
}

// Jurisdiction is the county a scraper run is bound to
type Jurisdiction struct {
	County      string            `json:"county"`
	State       string            `json:"state"`
	DefaultCity string            `json:"defaultCity"`
	CityAliases map[string]string `json:"cityAliases,omitempty"` // e.g. Gtown -> Georgetown
}

// NewAuctionRecord builds a record for a freshly extracted case with the
// creation defaults applied: active, not reopened, no enrichment attempted.
func NewAuctionRecord(c ExtractedCase, j Jurisdiction, auctionDate time.Time) *AuctionRecord {
	address, city := NormalizeLocation(c.Address, c.City, j)

	return &AuctionRecord{
		CaseNumber:  NormalizeCaseNumber(c.CaseNumber),
		Plaintiff:   collapseSpaces(c.Plaintiff),
		Defendant:   collapseSpaces(c.Defendant),
		TMS:         collapseSpaces(c.TMS),
		Address:     address,
		City:        city,
		County:      j.County,
		State:       j.State,
		AuctionDate: auctionDate,
		Active:      true,
	}
}

// Key returns the natural key of the record
func (r *AuctionRecord) Key() AuctionKey {
	return AuctionKey{
		CaseNumber: r.CaseNumber,
		County:     r.County,
		State:      r.State,
	}
}

// PopulateKeys sets the DynamoDB partition and sort keys from the natural key
func (r *AuctionRecord) PopulateKeys() {
	r.PK = CreateAuctionPK(r.State, r.County)
	r.SK = CreateAuctionSK(r.CaseNumber)
}

// Valid reports whether every natural key component is present
func (k AuctionKey) Valid() bool {
	return k.CaseNumber != "" && k.County != "" && k.State != ""
}

func (k AuctionKey) String() string {
	return k.State + "/" + k.County + "/" + k.CaseNumber
}
