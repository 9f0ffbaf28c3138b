package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"foreclosure-auction-scraper/internal/config"
	"foreclosure-auction-scraper/internal/logger"
	"foreclosure-auction-scraper/internal/models"
	"foreclosure-auction-scraper/internal/schedule"
	"foreclosure-auction-scraper/internal/services"
)

// LambdaEvent represents the EventBridge trigger event
type LambdaEvent struct {
	Source        string                 `json:"source"`
	DetailType    string                 `json:"detail-type"`
	Detail        map[string]interface{} `json:"detail"`
	TriggerType   string                 `json:"trigger-type,omitempty"`   // manual, scheduled
	MonthOverride string                 `json:"month-override,omitempty"` // re-run one month, e.g. 2025-09
}

// LambdaResponse represents the function response
type LambdaResponse struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	ScrapingRunID  string   `json:"scraping_run_id"`
	Status         string   `json:"status"`
	LinksFound     int      `json:"links_found"`
	LinksProcessed int      `json:"links_processed"`
	LinksSkipped   int      `json:"links_skipped"`
	RecordsCreated int      `json:"records_created"`
	RecordsUpdated int      `json:"records_updated"`
	RecordsFailed  int      `json:"records_failed"`
	TokensUsed     int      `json:"tokens_used"`
	ProcessingTime int64    `json:"processing_time_ms"`
	Errors         []string `json:"errors,omitempty"`
}

// countySite downloads the listing page and its PDFs
type countySite interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
	Download(ctx context.Context, url string) (*services.DownloadedFile, error)
}

type caseExtractor interface {
	ExtractCases(ctx context.Context, pdf []byte) (*services.ExtractionResponse, error)
}

type recordUpserter interface {
	Upsert(ctx context.Context, record *models.AuctionRecord) (models.UpsertResult, error)
}

type runArchive interface {
	ArchivePDF(ctx context.Context, j models.Jurisdiction, year, month int, body []byte) (*services.S3UploadResult, error)
	UploadRunSummary(ctx context.Context, run *models.ScrapingRun) (*services.S3UploadResult, error)
}

// ScrapingOrchestrator runs one scrape of the county foreclosure page
type ScrapingOrchestrator struct {
	site      countySite
	extractor caseExtractor
	upserter  recordUpserter
	archive   runArchive // nil when archiving is disabled
	resolver  *schedule.AuctionDateResolver
	logger    *zap.Logger

	pageURL        string
	sectionHeading string
	jurisdiction   models.Jurisdiction
	upsertRetries  int
	retryDelay     time.Duration
	now            func() time.Time
}

// errRunAborted marks a failure that stops the whole run
var errRunAborted = errors.New("scraping run aborted")

// Run scrapes the page and upserts every case from future-month listings.
// It returns an error only when the trigger should be redelivered.
func (so *ScrapingOrchestrator) Run(ctx context.Context, event LambdaEvent) (*models.ScrapingRun, error) {
	startedAt := so.now()
	run := &models.ScrapingRun{
		ID:              models.GenerateScrapingRunID(startedAt),
		StartedAt:       startedAt,
		Status:          models.ScrapingStatusRunning,
		PageURL:         so.pageURL,
		County:          so.jurisdiction.County,
		State:           so.jurisdiction.State,
		TriggerType:     triggerType(event),
		ScrapingVersion: models.ScrapingVersion,
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		run.LambdaRequestID = lc.AwsRequestID
	}

	log := so.logger.With(zap.String("run_id", run.ID), zap.String("request_id", run.LambdaRequestID))
	log.Info("Starting scraping run",
		zap.String("trigger_type", run.TriggerType),
		zap.String("page_url", so.pageURL),
		zap.String("month_override", event.MonthOverride),
	)

	err := so.scrape(ctx, log, run, event)
	if err != nil {
		run.Status = models.ScrapingStatusFailed
		run.ErrorSummary = err.Error()
		log.Error("Scraping run failed", zap.Error(err))
	}

	run.Finish(so.now())
	so.uploadSummary(ctx, log, run)

	log.Info("Scraping run finished",
		zap.String("status", run.Status),
		zap.Int("links_processed", run.LinksProcessed),
		zap.Int("records_created", run.RecordsCreated),
		zap.Int("records_updated", run.RecordsUpdated),
		zap.Int64("duration_ms", run.Duration),
	)

	return run, err
}

func (so *ScrapingOrchestrator) scrape(ctx context.Context, log *zap.Logger, run *models.ScrapingRun, event LambdaEvent) error {
	page, err := so.site.FetchPage(ctx, so.pageURL)
	if err != nil {
		return fmt.Errorf("failed to fetch county page: %w", err)
	}

	links, err := services.ParseAuctionLinks(bytes.NewReader(page), so.pageURL, so.sectionHeading)
	if err != nil {
		return fmt.Errorf("failed to parse county page: %w", err)
	}
	run.LinksFound = len(links)

	targets, skipped, err := so.selectLinks(links, event.MonthOverride, run.StartedAt)
	if err != nil {
		return err
	}
	run.LinksSkipped = len(skipped)
	for _, link := range skipped {
		if !link.Parsed {
			run.Warnings = append(run.Warnings, fmt.Sprintf("skipped link %q: text is not a month and year", link.Text))
		}
	}

	log.Info("Found auction links",
		zap.Int("found", len(links)),
		zap.Int("future", len(targets)),
		zap.Int("skipped", len(skipped)),
	)

	for _, link := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := so.processLink(ctx, log, link)
		run.Links = append(run.Links, result)
		run.LinksProcessed++
		run.RecordsCreated += result.Created
		run.RecordsUpdated += result.Updated
		run.TotalTokensUsed += result.TokensUsed

		if err != nil {
			run.RecordsFailed++
			return err
		}
	}

	return nil
}

// selectLinks picks the links to process. A month override must name a
// future month that the page actually lists.
func (so *ScrapingOrchestrator) selectLinks(links []models.ListingLink, monthOverride string, now time.Time) (targets, skipped []models.ListingLink, err error) {
	if monthOverride == "" {
		targets, skipped = services.FilterFutureLinks(links, now)
		return targets, skipped, nil
	}

	year, month, err := models.ParseMonthKey(monthOverride)
	if err != nil {
		return nil, nil, err
	}
	if !models.IsFutureMonth(year, month, now) {
		return nil, nil, fmt.Errorf("month override %s is not after the current month", monthOverride)
	}

	link, ok := services.FindMonthLink(links, year, month)
	if !ok {
		return nil, nil, fmt.Errorf("county page has no listing for %s", monthOverride)
	}

	for _, l := range links {
		if l.URL != link.URL {
			skipped = append(skipped, l)
		}
	}
	return []models.ListingLink{link}, skipped, nil
}

// processLink handles one listing PDF. Download and extraction problems are
// recorded on the result; a returned error aborts the run.
func (so *ScrapingOrchestrator) processLink(ctx context.Context, log *zap.Logger, link models.ListingLink) (models.LinkResult, error) {
	result := models.LinkResult{Text: link.Text, URL: link.URL}
	log = log.With(zap.String("listing", link.Text))

	resolution, err := so.resolver.ResolveDetailed(link.Year, link.Month)
	if err != nil {
		result.Error = err.Error()
		log.Error("Failed to resolve auction date", zap.Error(err))
		return result, nil
	}
	result.AuctionDate = resolution.Date
	result.Shifted = resolution.Shifted
	if resolution.Shifted {
		log.Info("Auction date moved for holiday",
			zap.String("holiday", resolution.Holiday),
			zap.Time("first_monday", resolution.FirstMonday),
			zap.Time("auction_date", resolution.Date),
		)
	}

	file, err := so.site.Download(ctx, link.URL)
	if err != nil {
		result.Error = fmt.Sprintf("download failed: %v", err)
		log.Error("Failed to download listing", zap.Error(err))
		return result, nil
	}

	if err := services.ValidatePDF(file); err != nil {
		result.Error = err.Error()
		log.Error("Rejected listing document", zap.Error(err))
		return result, nil
	}

	if so.archive != nil {
		uploaded, err := so.archive.ArchivePDF(ctx, so.jurisdiction, link.Year, link.Month, file.Body)
		if err != nil {
			log.Warn("Failed to archive listing PDF", zap.Error(err))
		} else {
			result.ArchiveKey = uploaded.Key
		}
	}

	extraction, err := so.extractor.ExtractCases(ctx, file.Body)
	if err != nil {
		result.Error = fmt.Sprintf("extraction failed: %v", err)
		log.Error("Failed to extract cases", zap.Error(err))
		return result, nil
	}
	result.TokensUsed = extraction.TokensUsed()

	records, dropped := services.BuildRecords(extraction.Cases, so.jurisdiction, resolution.Date)
	result.CasesExtracted = len(extraction.Cases)
	result.CasesDropped = dropped
	if dropped > 0 {
		log.Warn("Dropped rows without a case number", zap.Int("dropped", dropped))
	}

	for _, record := range records {
		upserted, err := so.upsertWithRetry(ctx, log, record)
		if err != nil {
			result.Error = err.Error()
			return result, fmt.Errorf("%w: case %s: %w", errRunAborted, record.CaseNumber, err)
		}
		if upserted.Created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	result.Success = true
	log.Info("Processed listing",
		zap.Time("auction_date", resolution.Date),
		zap.Int("cases", result.CasesExtracted),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("tokens", result.TokensUsed),
	)
	return result, nil
}

// upsertWithRetry retries persistence failures; anything else is returned at once
func (so *ScrapingOrchestrator) upsertWithRetry(ctx context.Context, log *zap.Logger, record *models.AuctionRecord) (models.UpsertResult, error) {
	var lastErr error
	for attempt := 0; attempt <= so.upsertRetries; attempt++ {
		result, err := so.upserter.Upsert(ctx, record)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var pe *services.PersistenceError
		if !errors.As(err, &pe) {
			return models.UpsertResult{}, err
		}

		if attempt < so.upsertRetries {
			log.Warn("Upsert failed, retrying",
				zap.String("case_number", record.CaseNumber),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return models.UpsertResult{}, ctx.Err()
			case <-time.After(so.retryDelay * time.Duration(attempt+1)):
			}
		}
	}
	return models.UpsertResult{}, lastErr
}

func (so *ScrapingOrchestrator) uploadSummary(ctx context.Context, log *zap.Logger, run *models.ScrapingRun) {
	if so.archive == nil {
		return
	}
	uploaded, err := so.archive.UploadRunSummary(ctx, run)
	if err != nil {
		log.Warn("Failed to upload scraping run summary", zap.Error(err))
		return
	}
	log.Info("Uploaded scraping run summary", zap.String("key", uploaded.Key))
}

// HandleLambdaEvent is the main Lambda handler function
func (so *ScrapingOrchestrator) HandleLambdaEvent(ctx context.Context, event LambdaEvent) (LambdaResponse, error) {
	run, err := so.Run(ctx, event)
	return buildResponse(run), err
}

func buildResponse(run *models.ScrapingRun) LambdaResponse {
	response := LambdaResponse{
		Success:        run.Status != models.ScrapingStatusFailed,
		ScrapingRunID:  run.ID,
		Status:         run.Status,
		LinksFound:     run.LinksFound,
		LinksProcessed: run.LinksProcessed,
		LinksSkipped:   run.LinksSkipped,
		RecordsCreated: run.RecordsCreated,
		RecordsUpdated: run.RecordsUpdated,
		RecordsFailed:  run.RecordsFailed,
		TokensUsed:     run.TotalTokensUsed,
		ProcessingTime: run.Duration,
	}

	if run.ErrorSummary != "" {
		response.Errors = append(response.Errors, run.ErrorSummary)
	}
	for _, link := range run.Links {
		if !link.Success && link.Error != "" {
			response.Errors = append(response.Errors, fmt.Sprintf("%s: %s", link.Text, link.Error))
		}
	}

	switch run.Status {
	case models.ScrapingStatusSkipped:
		response.Message = fmt.Sprintf("No future auction months listed (%d links skipped)", run.LinksSkipped)
	case models.ScrapingStatusFailed:
		response.Message = fmt.Sprintf("Scraping failed: %s", run.ErrorSummary)
	default:
		response.Message = fmt.Sprintf("Processed %d listings: %d records created, %d updated",
			run.LinksProcessed, run.RecordsCreated, run.RecordsUpdated)
	}

	return response
}

func triggerType(event LambdaEvent) string {
	if event.TriggerType != "" {
		return event.TriggerType
	}
	if event.Source == "aws.events" {
		return models.TriggerTypeScheduled
	}
	return models.TriggerTypeManual
}

// NewScrapingOrchestrator wires the orchestrator from configuration
func NewScrapingOrchestrator(ctx context.Context, cfg *config.Config, log *zap.Logger) (*ScrapingOrchestrator, func(context.Context) error, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	store, closeStore, err := services.OpenAuctionStore(ctx, cfg, awsCfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open auction store: %w", err)
	}

	so := &ScrapingOrchestrator{
		site:           services.NewCountyClient(cfg.HTTP.Timeout, cfg.HTTP.MaxRetries, log),
		extractor:      services.NewBedrockExtractor(bedrockruntime.NewFromConfig(awsCfg), cfg.Model.ID, cfg.Model.MaxTokens, log),
		upserter:       services.NewRecordUpserter(store, log),
		resolver:       schedule.NewAuctionDateResolver(nil, cfg.Schedule.ShiftStrategy),
		logger:         log,
		pageURL:        cfg.County.PageURL,
		sectionHeading: cfg.County.SectionHeading,
		jurisdiction:   cfg.Jurisdiction(),
		upsertRetries:  cfg.Store.UpsertRetries,
		retryDelay:     500 * time.Millisecond,
		now:            func() time.Time { return time.Now().UTC() },
	}

	if cfg.ArchiveBucket != "" {
		archive := services.NewS3Archive(s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, awsCfg.Region)
		log.Info("Archiving listing PDFs and run summaries", zap.String("bucket", archive.GetBucketName()))
		so.archive = archive
	} else {
		log.Info("S3_BUCKET_NAME not set, archiving disabled")
	}

	return so, closeStore, nil
}

// main is the entry point for the Lambda function
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Must(false).Fatal("Failed to load configuration", zap.Error(err))
	}

	log := logger.Must(cfg.IsDevelopment())
	defer func() { _ = log.Sync() }()
	if err := cfg.RequireCountyURL(); err != nil {
		log.Fatal("Invalid scraper configuration", zap.Error(err))
	}

	ctx := context.Background()
	orchestrator, closeStore, err := NewScrapingOrchestrator(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize orchestrator", zap.Error(err))
	}
	defer func() { _ = closeStore(ctx) }()

	lambda.Start(orchestrator.HandleLambdaEvent)
}
