package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foreclosure-auction-scraper/internal/models"
	"foreclosure-auction-scraper/internal/schedule"
	"foreclosure-auction-scraper/internal/services"
)

const pageURL = "https://www.example.gov/326/Foreclosures"

const countyPage = `<html><body>
<h2>Upcoming Foreclosure Sales</h2>
<ul>
  <li><a href="/DocumentCenter/View/101">July 2025</a></li>
  <li><a href="/DocumentCenter/View/102">August 2025</a></li>
  <li><a href="/DocumentCenter/View/103">September 2025</a></li>
  <li><a href="/DocumentCenter/View/104">October 2025</a></li>
  <li><a href="/DocumentCenter/View/105">Sale Procedures</a></li>
</ul>
</body></html>`

const (
	septemberURL = "https://www.example.gov/DocumentCenter/View/103"
	octoberURL   = "https://www.example.gov/DocumentCenter/View/104"
)

var jurisdiction = models.Jurisdiction{
	County:      "Georgetown",
	State:       "SC",
	DefaultCity: "Georgetown",
	CityAliases: map[string]string{"Gtown": "Georgetown"},
}

type fakeSite struct {
	page    string
	pageErr error
	files   map[string]*services.DownloadedFile
}

func (f *fakeSite) FetchPage(ctx context.Context, url string) ([]byte, error) {
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	return []byte(f.page), nil
}

func (f *fakeSite) Download(ctx context.Context, url string) (*services.DownloadedFile, error) {
	file, ok := f.files[url]
	if !ok {
		return nil, &services.HTTPStatusError{URL: url, StatusCode: 404, Body: "not found"}
	}
	return file, nil
}

type fakeExtractor struct {
	cases map[string][]models.ExtractedCase
	err   error
}

func (f *fakeExtractor) ExtractCases(ctx context.Context, pdf []byte) (*services.ExtractionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.ExtractionResponse{
		Cases:        f.cases[string(pdf)],
		InputTokens:  1000,
		OutputTokens: 200,
	}, nil
}

type fakeArchive struct {
	mu   sync.Mutex
	pdfs []string
	runs []*models.ScrapingRun
}

func (f *fakeArchive) ArchivePDF(ctx context.Context, j models.Jurisdiction, year, month int, body []byte) (*services.S3UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := services.PDFKey(j.State, j.County, year, month, fmt.Sprint(len(f.pdfs)))
	f.pdfs = append(f.pdfs, key)
	return &services.S3UploadResult{Key: key}, nil
}

func (f *fakeArchive) UploadRunSummary(ctx context.Context, run *models.ScrapingRun) (*services.S3UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return &services.S3UploadResult{Key: "scraping-runs/" + run.ID + ".json"}, nil
}

// flakyUpserter fails the first failures calls with a persistence error
type flakyUpserter struct {
	next     recordUpserter
	failures int
	calls    int
}

func (f *flakyUpserter) Upsert(ctx context.Context, record *models.AuctionRecord) (models.UpsertResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return models.UpsertResult{}, &services.PersistenceError{Op: "upsert", Key: record.Key(), Err: errors.New("connection refused")}
	}
	return f.next.Upsert(ctx, record)
}

func pdfFile(url, body string) *services.DownloadedFile {
	return &services.DownloadedFile{URL: url, ContentType: "application/pdf", Body: []byte(body)}
}

func defaultSite() *fakeSite {
	return &fakeSite{
		page: countyPage,
		files: map[string]*services.DownloadedFile{
			septemberURL: pdfFile(septemberURL, "%PDF-1.7 september"),
			octoberURL:   pdfFile(octoberURL, "%PDF-1.7 october"),
		},
	}
}

func defaultExtractor() *fakeExtractor {
	return &fakeExtractor{cases: map[string][]models.ExtractedCase{
		"%PDF-1.7 september": {
			{CaseNumber: "2025CP2200123", Plaintiff: "First Bank", Defendant: "John Doe", TMS: "01-0234-005-00", Address: "12 Front St, Gtown"},
			{CaseNumber: "2025CP2200124", Plaintiff: "Lender LLC", Defendant: "Jane Roe", Address: "9 Church St"},
			{Plaintiff: "continued from previous page"},
		},
		"%PDF-1.7 october": {
			{CaseNumber: "2025CP2200200", Plaintiff: "First Bank", Defendant: "Sam Poe", Address: "4 Duke St, Pawleys Island"},
		},
	}}
}

type harness struct {
	orchestrator *ScrapingOrchestrator
	store        *services.MemoryStore
	archive      *fakeArchive
}

func newHarness(site countySite, extractor caseExtractor) *harness {
	store := services.NewMemoryStore()
	archive := &fakeArchive{}
	now := time.Date(2025, 8, 15, 6, 0, 0, 0, time.UTC)

	return &harness{
		orchestrator: &ScrapingOrchestrator{
			site:           site,
			extractor:      extractor,
			upserter:       services.NewRecordUpserter(store, nil),
			archive:        archive,
			resolver:       schedule.NewAuctionDateResolver(nil, schedule.ShiftNextMonday),
			logger:         zap.NewNop(),
			pageURL:        pageURL,
			sectionHeading: "Upcoming Foreclosure Sales",
			jurisdiction:   jurisdiction,
			upsertRetries:  1,
			now:            func() time.Time { return now },
		},
		store:   store,
		archive: archive,
	}
}

func TestRun_ProcessesFutureMonths(t *testing.T) {
	h := newHarness(defaultSite(), defaultExtractor())
	ctx := context.Background()

	run, err := h.orchestrator.Run(ctx, LambdaEvent{Source: "aws.events"})
	require.NoError(t, err)

	assert.Equal(t, models.ScrapingStatusCompleted, run.Status)
	assert.Equal(t, models.TriggerTypeScheduled, run.TriggerType)
	assert.Equal(t, 5, run.LinksFound)
	assert.Equal(t, 2, run.LinksProcessed)
	assert.Equal(t, 3, run.LinksSkipped)
	assert.Equal(t, 3, run.RecordsCreated)
	assert.Equal(t, 0, run.RecordsUpdated)
	assert.Equal(t, 2400, run.TotalTokensUsed)
	assert.Len(t, run.Warnings, 1)

	require.Len(t, run.Links, 2)
	september := run.Links[0]
	assert.Equal(t, "September 2025", september.Text)
	assert.Equal(t, time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC), september.AuctionDate)
	assert.True(t, september.Shifted, "Labor Day moves the September sale")
	assert.Equal(t, 3, september.CasesExtracted)
	assert.Equal(t, 1, september.CasesDropped)
	assert.NotEmpty(t, september.ArchiveKey)

	october := run.Links[1]
	assert.Equal(t, time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC), october.AuctionDate)
	assert.False(t, october.Shifted)

	rec, err := h.store.GetAuction(ctx, models.AuctionKey{CaseNumber: "2025CP2200123", County: "Georgetown", State: "SC"})
	require.NoError(t, err)
	assert.Equal(t, "12 Front St", rec.Address)
	assert.Equal(t, "Georgetown", rec.City)
	assert.True(t, rec.Active)

	rec, err = h.store.GetAuction(ctx, models.AuctionKey{CaseNumber: "2025CP2200200", County: "Georgetown", State: "SC"})
	require.NoError(t, err)
	assert.Equal(t, "Pawleys Island", rec.City)

	require.Len(t, h.archive.runs, 1)
	assert.Equal(t, run.ID, h.archive.runs[0].ID)
	assert.Len(t, h.archive.pdfs, 2)
}

func TestRun_RedeliveryDoesNotDuplicate(t *testing.T) {
	h := newHarness(defaultSite(), defaultExtractor())
	ctx := context.Background()

	_, err := h.orchestrator.Run(ctx, LambdaEvent{})
	require.NoError(t, err)
	key := models.AuctionKey{CaseNumber: "2025CP2200123", County: "Georgetown", State: "SC"}
	first, err := h.store.GetAuction(ctx, key)
	require.NoError(t, err)

	second, err := h.orchestrator.Run(ctx, LambdaEvent{})
	require.NoError(t, err)

	assert.Equal(t, 0, second.RecordsCreated)
	assert.Equal(t, 3, second.RecordsUpdated)
	assert.Equal(t, 3, h.store.Len())

	again, err := h.store.GetAuction(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first.CreateDate, again.CreateDate)
}

func TestRun_LinkFailuresArePartial(t *testing.T) {
	tests := []struct {
		name      string
		site      *fakeSite
		wantError string
	}{
		{
			name: "download failure",
			site: &fakeSite{page: countyPage, files: map[string]*services.DownloadedFile{
				septemberURL: pdfFile(septemberURL, "%PDF-1.7 september"),
			}},
			wantError: "download failed",
		},
		{
			name: "not a pdf",
			site: &fakeSite{page: countyPage, files: map[string]*services.DownloadedFile{
				septemberURL: pdfFile(septemberURL, "%PDF-1.7 september"),
				octoberURL:   {URL: octoberURL, ContentType: "text/html", Body: []byte("<html>Moved</html>")},
			}},
			wantError: "file type not supported",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(test.site, defaultExtractor())

			run, err := h.orchestrator.Run(context.Background(), LambdaEvent{})
			require.NoError(t, err)

			assert.Equal(t, models.ScrapingStatusPartial, run.Status)
			assert.Equal(t, 2, run.RecordsCreated)
			require.Len(t, run.Links, 2)
			assert.True(t, run.Links[0].Success)
			assert.False(t, run.Links[1].Success)
			assert.Contains(t, run.Links[1].Error, test.wantError)

			resp := buildResponse(run)
			assert.True(t, resp.Success)
			require.Len(t, resp.Errors, 1)
			assert.Contains(t, resp.Errors[0], "October 2025")
		})
	}
}

func TestRun_ExtractionFailureOnEveryLink(t *testing.T) {
	h := newHarness(defaultSite(), &fakeExtractor{err: errors.New("ThrottlingException")})

	run, err := h.orchestrator.Run(context.Background(), LambdaEvent{})
	require.NoError(t, err)
	assert.Equal(t, models.ScrapingStatusFailed, run.Status)
	assert.Zero(t, h.store.Len())
}

func TestRun_PersistenceFailureAbortsRun(t *testing.T) {
	h := newHarness(defaultSite(), defaultExtractor())
	flaky := &flakyUpserter{next: h.orchestrator.upserter, failures: 100}
	h.orchestrator.upserter = flaky

	run, err := h.orchestrator.Run(context.Background(), LambdaEvent{})
	require.Error(t, err)

	assert.ErrorIs(t, err, errRunAborted)
	var pe *services.PersistenceError
	assert.ErrorAs(t, err, &pe)

	assert.Equal(t, 2, flaky.calls, "one try plus one retry")
	assert.Equal(t, models.ScrapingStatusFailed, run.Status)
	assert.Equal(t, 1, run.RecordsFailed)
	assert.Equal(t, 1, run.LinksProcessed, "October is never attempted")
	require.Len(t, h.archive.runs, 1, "summary is uploaded for failed runs")

	resp := buildResponse(run)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Errors)
}

func TestRun_PersistenceFailureRecoversOnRetry(t *testing.T) {
	h := newHarness(defaultSite(), defaultExtractor())
	flaky := &flakyUpserter{next: h.orchestrator.upserter, failures: 1}
	h.orchestrator.upserter = flaky

	run, err := h.orchestrator.Run(context.Background(), LambdaEvent{})
	require.NoError(t, err)
	assert.Equal(t, models.ScrapingStatusCompleted, run.Status)
	assert.Equal(t, 3, run.RecordsCreated)
	assert.Equal(t, 4, flaky.calls)
}

func TestRun_MonthOverride(t *testing.T) {
	h := newHarness(defaultSite(), defaultExtractor())

	run, err := h.orchestrator.Run(context.Background(), LambdaEvent{TriggerType: models.TriggerTypeManual, MonthOverride: "2025-10"})
	require.NoError(t, err)
	require.Len(t, run.Links, 1)
	assert.Equal(t, "October 2025", run.Links[0].Text)
	assert.Equal(t, 1, run.RecordsCreated)
	assert.Equal(t, 4, run.LinksSkipped)
	assert.Equal(t, models.TriggerTypeManual, run.TriggerType)
}

func TestRun_InvalidMonthOverride(t *testing.T) {
	for _, override := range []string{"2025-08", "2025-12", "Sept 2025"} {
		t.Run(override, func(t *testing.T) {
			h := newHarness(defaultSite(), defaultExtractor())

			run, err := h.orchestrator.Run(context.Background(), LambdaEvent{MonthOverride: override})
			assert.Error(t, err)
			assert.Equal(t, models.ScrapingStatusFailed, run.Status)
			assert.Zero(t, h.store.Len())
		})
	}
}

func TestRun_PageFailures(t *testing.T) {
	tests := []struct {
		name string
		site *fakeSite
	}{
		{"fetch error", &fakeSite{pageErr: errors.New("dial tcp: i/o timeout")}},
		{"redesigned page", &fakeSite{page: "<html><h2>Sales</h2></html>"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(test.site, defaultExtractor())

			run, err := h.orchestrator.Run(context.Background(), LambdaEvent{})
			assert.Error(t, err)
			assert.Equal(t, models.ScrapingStatusFailed, run.Status)
			assert.NotEmpty(t, run.ErrorSummary)
		})
	}
}

func TestRun_NoFutureMonths(t *testing.T) {
	site := &fakeSite{page: `<h2>Upcoming Foreclosure Sales</h2><ul><li><a href="/a">July 2025</a></li></ul>`}
	h := newHarness(site, defaultExtractor())

	run, err := h.orchestrator.Run(context.Background(), LambdaEvent{})
	require.NoError(t, err)
	assert.Equal(t, models.ScrapingStatusSkipped, run.Status)

	resp := buildResponse(run)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "No future auction months")
}

func TestRun_ArchiveDisabled(t *testing.T) {
	h := newHarness(defaultSite(), defaultExtractor())
	h.orchestrator.archive = nil

	run, err := h.orchestrator.Run(context.Background(), LambdaEvent{})
	require.NoError(t, err)
	assert.Equal(t, models.ScrapingStatusCompleted, run.Status)
	assert.Empty(t, run.Links[0].ArchiveKey)
}

func TestHandleLambdaEvent(t *testing.T) {
	h := newHarness(defaultSite(), defaultExtractor())

	resp, err := h.orchestrator.HandleLambdaEvent(context.Background(), LambdaEvent{Source: "aws.events"})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, models.ScrapingStatusCompleted, resp.Status)
	assert.Equal(t, 3, resp.RecordsCreated)
	assert.Equal(t, "Processed 2 listings: 3 records created, 0 updated", resp.Message)
	assert.NotEmpty(t, resp.ScrapingRunID)
}

func TestTriggerType(t *testing.T) {
	assert.Equal(t, models.TriggerTypeScheduled, triggerType(LambdaEvent{Source: "aws.events"}))
	assert.Equal(t, models.TriggerTypeManual, triggerType(LambdaEvent{}))
	assert.Equal(t, "manual", triggerType(LambdaEvent{Source: "aws.events", TriggerType: "manual"}))
}
