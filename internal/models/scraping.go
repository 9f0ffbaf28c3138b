package models

import "time"

// ListingLink is one auction-month link found on the county page
type ListingLink struct {
	Text   string `json:"text"`
	URL    string `json:"url"`
	Year   int    `json:"year,omitempty"`
	Month  int    `json:"month,omitempty"`
	Parsed bool   `json:"parsed"` // false when the link text is not "<Month> <Year>"
}

// LinkResult is the outcome of processing one listing document
type LinkResult struct {
	Text           string    `json:"text"`
	URL            string    `json:"url"`
	AuctionDate    time.Time `json:"auctionDate,omitempty"`
	Shifted        bool      `json:"shifted"` // first Monday was a holiday
	ArchiveKey     string    `json:"archiveKey,omitempty"`
	CasesExtracted int       `json:"casesExtracted"`
	CasesDropped   int       `json:"casesDropped"` // rows without a case number
	Created        int       `json:"created"`
	Updated        int       `json:"updated"`
	TokensUsed     int       `json:"tokensUsed,omitempty"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
}

// ScrapingRun represents one invocation of the scraper across a county page
type ScrapingRun struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
	Duration    int64     `json:"duration,omitempty"` // milliseconds
	Status      string    `json:"status"`             // running|completed|failed|partial|skipped

	PageURL string `json:"pageUrl"`
	County  string `json:"county"`
	State   string `json:"state"`

	// Aggregated results
	LinksFound     int `json:"linksFound"`
	LinksProcessed int `json:"linksProcessed"` // future-month links attempted
	LinksSkipped   int `json:"linksSkipped"`   // current/past months or unparseable text
	RecordsCreated int `json:"recordsCreated"`
	RecordsUpdated int `json:"recordsUpdated"`
	RecordsFailed  int `json:"recordsFailed"`

	Links []LinkResult `json:"links"`

	ErrorSummary string   `json:"errorSummary,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`

	TotalTokensUsed int `json:"totalTokensUsed"`

	// Metadata
	TriggerType     string `json:"triggerType"` // scheduled|manual
	ScrapingVersion string `json:"scrapingVersion"`
	LambdaRequestID string `json:"lambdaRequestId,omitempty"`
}

// Scraping run status constants
const (
	ScrapingStatusRunning   = "running"
	ScrapingStatusCompleted = "completed"
	ScrapingStatusFailed    = "failed"
	ScrapingStatusPartial   = "partial"
	ScrapingStatusSkipped   = "skipped"
)

// Trigger type constants
const (
	TriggerTypeScheduled = "scheduled"
	TriggerTypeManual    = "manual"
)

// ScrapingVersion is stamped on every run summary
const ScrapingVersion = "2.0.0"

// Finish closes the run and derives its status from the link results
func (r *ScrapingRun) Finish(now time.Time) {
	r.CompletedAt = now
	r.Duration = now.Sub(r.StartedAt).Milliseconds()

	if r.Status == ScrapingStatusFailed {
		return
	}

	failed := 0
	for _, link := range r.Links {
		if !link.Success {
			failed++
		}
	}

	switch {
	case len(r.Links) == 0:
		r.Status = ScrapingStatusSkipped
	case failed == 0 && r.RecordsFailed == 0:
		r.Status = ScrapingStatusCompleted
	case failed == len(r.Links):
		r.Status = ScrapingStatusFailed
	default:
		r.Status = ScrapingStatusPartial
	}
}
