package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"foreclosure-auction-scraper/internal/models"
)

const anthropicVersion = "bedrock-2023-05-31"

// BedrockAPI is the subset of the Bedrock runtime client used for extraction
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockExtractor reads the sales table out of a listing PDF with a hosted model
type BedrockExtractor struct {
	client    BedrockAPI
	modelID   string
	maxTokens int
	logger    *zap.Logger
}

// ExtractionResponse is the parsed model output for one PDF
type ExtractionResponse struct {
	Cases        []models.ExtractedCase `json:"cases"`
	InputTokens  int                    `json:"input_tokens"`
	OutputTokens int                    `json:"output_tokens"`
	ProcessingMS int64                  `json:"processing_ms"`
	StopReason   string                 `json:"stop_reason"`
}

// TokensUsed returns input plus output tokens
func (r *ExtractionResponse) TokensUsed() int {
	return r.InputTokens + r.OutputTokens
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float64            `json:"temperature"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewBedrockExtractor creates an extractor for the given model
func NewBedrockExtractor(client BedrockAPI, modelID string, maxTokens int, logger *zap.Logger) *BedrockExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BedrockExtractor{
		client:    client,
		modelID:   modelID,
		maxTokens: maxTokens,
		logger:    logger,
	}
}

// ExtractCases sends the PDF as a document block and parses the JSON rows
func (b *BedrockExtractor) ExtractCases(ctx context.Context, pdf []byte) (*ExtractionResponse, error) {
	startTime := time.Now()

	if len(pdf) == 0 {
		return nil, fmt.Errorf("pdf content cannot be empty")
	}

	body, err := json.Marshal(b.buildRequest(pdf))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bedrock request: %w", err)
	}

	b.logger.Debug("Invoking extraction model",
		zap.String("model_id", b.modelID),
		zap.Int("pdf_bytes", len(pdf)),
	)

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock request failed: %w", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode bedrock response: %w", err)
	}

	text := firstText(resp)
	if text == "" {
		return nil, fmt.Errorf("no text content in bedrock response (stop reason %q)", resp.StopReason)
	}

	cases, err := parseExtractedCases(text)
	if err != nil {
		return nil, err
	}

	return &ExtractionResponse{
		Cases:        cases,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		ProcessingMS: time.Since(startTime).Milliseconds(),
		StopReason:   resp.StopReason,
	}, nil
}

func (b *BedrockExtractor) buildRequest(pdf []byte) anthropicRequest {
	return anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        b.maxTokens,
		Temperature:      0,
		Messages: []anthropicMessage{
			{
				Role: "user",
				Content: []anthropicContent{
					{
						Type: "document",
						Source: &anthropicSource{
							Type:      "base64",
							MediaType: "application/pdf",
							Data:      base64.StdEncoding.EncodeToString(pdf),
						},
					},
					{
						Type: "text",
						Text: extractionPrompt,
					},
				},
			},
		},
	}
}

const extractionPrompt = `You are a parser that extracts structured rows from a tabular foreclosure sales PDF.

Rules:
- Find the main table of sales and skip the header row.
- For each remaining row, map the first five cells by position:
  0 = caseNumber
  1 = plaintiff
  2 = defendant
  3 = tms
  4 = address
- Copy every cell exactly as printed. Do not split, expand or correct the address.
- Use an empty string for a blank cell.
- Rows that continue onto the next page belong to the same table.

Return ONLY a JSON array of objects with the keys "caseNumber", "plaintiff", "defendant", "tms" and "address".
Do NOT include any explanations or markdown, JSON only.`

func firstText(resp anthropicResponse) string {
	for _, c := range resp.Content {
		if c.Type == "text" || c.Type == "" {
			return c.Text
		}
	}
	return ""
}

// parseExtractedCases decodes the model's array. Cell values that come back as
// numbers are kept as their printed form.
func parseExtractedCases(text string) ([]models.ExtractedCase, error) {
	cleaned := cleanJSONResponse(text)

	var rows []map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &rows); err != nil {
		return nil, fmt.Errorf("failed to parse bedrock response JSON: %w\nResponse: %s", err, truncate(cleaned, 500))
	}

	cases := make([]models.ExtractedCase, 0, len(rows))
	for _, row := range rows {
		cases = append(cases, models.ExtractedCase{
			CaseNumber: cellString(row["caseNumber"]),
			Plaintiff:  cellString(row["plaintiff"]),
			Defendant:  cellString(row["defendant"]),
			TMS:        cellString(row["tms"]),
			Address:    cellString(row["address"]),
			City:       cellString(row["city"]),
		})
	}
	return cases, nil
}

func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%.0f", val))
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// cleanJSONResponse removes markdown code fences and any prose around the array
func cleanJSONResponse(response string) string {
	cleaned := strings.TrimSpace(response)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}

	return cleaned
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// BuildRecords turns extracted rows into auction records for one listing month.
// Rows without a case number cannot be keyed and are counted as dropped.
func BuildRecords(cases []models.ExtractedCase, j models.Jurisdiction, auctionDate time.Time) (records []*models.AuctionRecord, dropped int) {
	for _, c := range cases {
		record := models.NewAuctionRecord(c, j, auctionDate)
		if record.CaseNumber == "" {
			dropped++
			continue
		}
		records = append(records, record)
	}
	return records, dropped
}
