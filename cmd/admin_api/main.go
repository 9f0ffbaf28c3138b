package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	lambdaclient "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"foreclosure-auction-scraper/internal/config"
	"foreclosure-auction-scraper/internal/logger"
	"foreclosure-auction-scraper/internal/models"
	"foreclosure-auction-scraper/internal/schedule"
	"foreclosure-auction-scraper/internal/services"
)

// AdminAPIResponse represents the Lambda response
type AdminAPIResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// ResponseBody represents the response body structure
type ResponseBody struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// TriggerRunRequest is the optional body of POST /api/runs
type TriggerRunRequest struct {
	MonthOverride string `json:"month_override,omitempty"` // YYYY-MM
	Notes         string `json:"notes,omitempty"`
}

// scraperEvent mirrors the event the scraper Lambda accepts
type scraperEvent struct {
	Source        string                 `json:"source"`
	DetailType    string                 `json:"detail-type"`
	Detail        map[string]interface{} `json:"detail"`
	TriggerType   string                 `json:"trigger-type"`
	MonthOverride string                 `json:"month-override,omitempty"`
}

type lambdaInvoker interface {
	Invoke(ctx context.Context, params *lambdaclient.InvokeInput, optFns ...func(*lambdaclient.Options)) (*lambdaclient.InvokeOutput, error)
}

type runSummaries interface {
	LatestRunSummary(ctx context.Context) (*models.ScrapingRun, error)
}

// adminAPI serves read access to auction records and manual run triggers
type adminAPI struct {
	store        services.AuctionStore
	resolver     *schedule.AuctionDateResolver
	invoker      lambdaInvoker
	runs         runSummaries // nil when no archive bucket is configured
	jurisdiction models.Jurisdiction
	scraperFunc  string
	logger       *zap.Logger
	now          func() time.Time
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
	"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
	"Content-Type":                 "application/json",
}

func (a *adminAPI) handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (AdminAPIResponse, error) {
	// Handle preflight OPTIONS request
	if request.HTTPMethod == "OPTIONS" {
		return AdminAPIResponse{StatusCode: 200, Headers: corsHeaders}, nil
	}

	path := strings.TrimSuffix(request.Path, "/")
	method := request.HTTPMethod

	a.logger.Info("Admin API request", zap.String("method", method), zap.String("path", path))

	var responseBody ResponseBody
	var statusCode int

	switch {
	case method == "GET" && path == "/api/auctions":
		responseBody, statusCode = a.handleListAuctions(ctx, request.QueryStringParameters)

	case method == "GET" && strings.HasPrefix(path, "/api/auctions/"):
		caseNumber, err := url.PathUnescape(strings.TrimPrefix(path, "/api/auctions/"))
		if err != nil {
			responseBody, statusCode = ResponseBody{Success: false, Error: "Invalid case number"}, 400
			break
		}
		responseBody, statusCode = a.handleGetAuction(ctx, caseNumber, request.QueryStringParameters)

	case method == "GET" && path == "/api/auction-date":
		responseBody, statusCode = a.handleResolveAuctionDate(request.QueryStringParameters)

	case method == "GET" && path == "/api/runs/latest":
		responseBody, statusCode = a.handleLatestRun(ctx)

	case method == "POST" && path == "/api/runs":
		responseBody, statusCode = a.handleTriggerRun(ctx, request.Body)

	default:
		responseBody = ResponseBody{
			Success: false,
			Error:   "Not found",
		}
		statusCode = 404
	}

	bodyJSON, err := json.Marshal(responseBody)
	if err != nil {
		a.logger.Error("Error marshaling response body", zap.Error(err))
		return AdminAPIResponse{
			StatusCode: 500,
			Headers:    corsHeaders,
			Body:       `{"success":false,"error":"Internal server error"}`,
		}, nil
	}

	return AdminAPIResponse{
		StatusCode: statusCode,
		Headers:    corsHeaders,
		Body:       string(bodyJSON),
	}, nil
}

// jurisdictionFromQuery applies ?county= and ?state= over the configured county
func (a *adminAPI) jurisdictionFromQuery(params map[string]string) (county, state string) {
	county, state = a.jurisdiction.County, a.jurisdiction.State
	if v := strings.TrimSpace(params["county"]); v != "" {
		county = v
	}
	if v := strings.TrimSpace(params["state"]); v != "" {
		state = strings.ToUpper(v)
	}
	return county, state
}

// handleListAuctions handles GET /api/auctions
func (a *adminAPI) handleListAuctions(ctx context.Context, params map[string]string) (ResponseBody, int) {
	county, state := a.jurisdictionFromQuery(params)

	records, err := a.store.ListAuctions(ctx, county, state)
	if err != nil {
		a.logger.Error("Error listing auctions", zap.Error(err))
		return ResponseBody{Success: false, Error: "Failed to list auctions"}, 500
	}

	if params["upcoming"] == "true" {
		today := schedule.DateOnly(a.now())
		upcoming := records[:0]
		for _, r := range records {
			if !r.AuctionDate.Before(today) {
				upcoming = append(upcoming, r)
			}
		}
		records = upcoming
	}

	if limit := parseLimit(params["limit"]); limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return ResponseBody{
		Success: true,
		Message: fmt.Sprintf("Found %d auctions in %s County, %s", len(records), county, state),
		Data: map[string]interface{}{
			"county":   county,
			"state":    state,
			"count":    len(records),
			"auctions": records,
		},
	}, 200
}

// handleGetAuction handles GET /api/auctions/{caseNumber}
func (a *adminAPI) handleGetAuction(ctx context.Context, caseNumber string, params map[string]string) (ResponseBody, int) {
	county, state := a.jurisdictionFromQuery(params)
	key := models.AuctionKey{
		CaseNumber: models.NormalizeCaseNumber(caseNumber),
		County:     county,
		State:      state,
	}
	if !key.Valid() {
		return ResponseBody{Success: false, Error: "Case number is required"}, 400
	}

	record, err := a.store.GetAuction(ctx, key)
	if errors.Is(err, services.ErrAuctionNotFound) {
		return ResponseBody{Success: false, Error: fmt.Sprintf("Auction %s not found", key)}, 404
	}
	if err != nil {
		a.logger.Error("Error getting auction", zap.String("key", key.String()), zap.Error(err))
		return ResponseBody{Success: false, Error: "Failed to get auction"}, 500
	}

	return ResponseBody{Success: true, Data: record}, 200
}

// handleResolveAuctionDate handles GET /api/auction-date?year=&month=
func (a *adminAPI) handleResolveAuctionDate(params map[string]string) (ResponseBody, int) {
	year, err := strconv.Atoi(params["year"])
	if err != nil {
		return ResponseBody{Success: false, Error: "year must be a number"}, 400
	}
	month, err := strconv.Atoi(params["month"])
	if err != nil {
		return ResponseBody{Success: false, Error: "month must be a number"}, 400
	}

	resolution, err := a.resolver.ResolveDetailed(year, month)
	var invalid *schedule.InvalidMonthError
	if errors.As(err, &invalid) {
		return ResponseBody{Success: false, Error: invalid.Error()}, 400
	}
	if err != nil {
		return ResponseBody{Success: false, Error: err.Error()}, 500
	}

	return ResponseBody{
		Success: true,
		Message: fmt.Sprintf("Auction for %s is held on %s", models.MonthKey(year, month), resolution.Date.Format("2006-01-02")),
		Data: map[string]interface{}{
			"auction_date":   resolution.Date.Format("2006-01-02"),
			"first_monday":   resolution.FirstMonday.Format("2006-01-02"),
			"shifted":        resolution.Shifted,
			"holiday":        resolution.Holiday,
			"shift_strategy": a.resolver.Strategy(),
		},
	}, 200
}

// handleLatestRun handles GET /api/runs/latest
func (a *adminAPI) handleLatestRun(ctx context.Context) (ResponseBody, int) {
	if a.runs == nil {
		return ResponseBody{Success: false, Error: "Run archive is not configured"}, 404
	}

	run, err := a.runs.LatestRunSummary(ctx)
	if err != nil {
		a.logger.Error("Error reading latest run summary", zap.Error(err))
		return ResponseBody{Success: false, Error: "Latest run summary not available"}, 404
	}

	return ResponseBody{Success: true, Data: run}, 200
}

// handleTriggerRun handles POST /api/runs by invoking the scraper asynchronously
func (a *adminAPI) handleTriggerRun(ctx context.Context, body string) (ResponseBody, int) {
	if a.scraperFunc == "" {
		return ResponseBody{Success: false, Error: "SCRAPER_FUNCTION_NAME is not configured"}, 500
	}

	var req TriggerRunRequest
	if strings.TrimSpace(body) != "" {
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return ResponseBody{Success: false, Error: "Invalid request body: " + err.Error()}, 400
		}
	}

	if req.MonthOverride != "" {
		year, month, err := models.ParseMonthKey(req.MonthOverride)
		if err != nil {
			return ResponseBody{Success: false, Error: err.Error()}, 400
		}
		if !models.IsFutureMonth(year, month, a.now()) {
			return ResponseBody{Success: false, Error: fmt.Sprintf("month_override %s must be after the current month", req.MonthOverride)}, 400
		}
	}

	requestID := uuid.New().String()
	event := scraperEvent{
		Source:     "admin-api",
		DetailType: "Manual Scrape",
		Detail: map[string]interface{}{
			"request_id": requestID,
			"notes":      req.Notes,
		},
		TriggerType:   models.TriggerTypeManual,
		MonthOverride: req.MonthOverride,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return ResponseBody{Success: false, Error: "Failed to build scraper event"}, 500
	}

	_, err = a.invoker.Invoke(ctx, &lambdaclient.InvokeInput{
		FunctionName:   aws.String(a.scraperFunc),
		InvocationType: lambdatypes.InvocationTypeEvent, // Async invocation
		Payload:        payload,
	})
	if err != nil {
		a.logger.Error("Error invoking scraper", zap.String("function", a.scraperFunc), zap.Error(err))
		return ResponseBody{Success: false, Error: "Failed to trigger scraper"}, 502
	}

	a.logger.Info("Triggered manual scrape",
		zap.String("request_id", requestID),
		zap.String("month_override", req.MonthOverride),
	)

	return ResponseBody{
		Success: true,
		Message: "Manual scrape triggered successfully",
		Data: map[string]interface{}{
			"request_id":     requestID,
			"month_override": req.MonthOverride,
			"triggered_at":   a.now(),
		},
	}, 202
}

func parseLimit(limitStr string) int {
	n, err := strconv.Atoi(limitStr)
	if err != nil || n < 0 {
		return 0
	}
	if n > 500 {
		return 500
	}
	return n
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Must(false).Fatal("Failed to load configuration", zap.Error(err))
	}

	log := logger.Must(cfg.IsDevelopment())
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal("Failed to load AWS config", zap.Error(err))
	}

	store, closeStore, err := services.OpenAuctionStore(ctx, cfg, awsCfg, log)
	if err != nil {
		log.Fatal("Failed to open auction store", zap.Error(err))
	}
	defer func() { _ = closeStore(ctx) }()

	api := &adminAPI{
		store:        store,
		resolver:     schedule.NewAuctionDateResolver(nil, cfg.Schedule.ShiftStrategy),
		invoker:      lambdaclient.NewFromConfig(awsCfg),
		jurisdiction: cfg.Jurisdiction(),
		scraperFunc:  cfg.ScraperFunctionName,
		logger:       log,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if cfg.ArchiveBucket != "" {
		archive := services.NewS3Archive(s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, awsCfg.Region)
		log.Info("Reading run summaries", zap.String("bucket", archive.GetBucketName()))
		api.runs = archive
	}

	lambda.Start(api.handleRequest)
}
