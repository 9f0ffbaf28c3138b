package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"foreclosure-auction-scraper/internal/models"
)

// LatestRunKey always holds the summary of the most recent run
const LatestRunKey = "scraping-runs/latest.json"

// S3API is the subset of the S3 client used by the archive
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Archive keeps the source PDFs and per-run summaries for audit
type S3Archive struct {
	client     S3API
	bucketName string
	region     string
}

// S3UploadResult represents the result of an S3 upload operation
type S3UploadResult struct {
	Key         string    `json:"key"`
	Location    string    `json:"location"`
	ETag        string    `json:"etag"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
	ContentType string    `json:"content_type"`
}

// NewS3Archive creates an archive writing to bucketName
func NewS3Archive(client S3API, bucketName, region string) *S3Archive {
	return &S3Archive{
		client:     client,
		bucketName: bucketName,
		region:     region,
	}
}

// PDFKey returns pdfs/<state>/<county>/<yyyy-mm>/<id>.pdf
func PDFKey(state, county string, year, month int, id string) string {
	return fmt.Sprintf("pdfs/%s/%s/%s/%s.pdf",
		strings.ToLower(state), strings.ToLower(county), models.MonthKey(year, month), id)
}

// ArchivePDF stores a listing document under its jurisdiction and month
func (s *S3Archive) ArchivePDF(ctx context.Context, j models.Jurisdiction, year, month int, body []byte) (*S3UploadResult, error) {
	key := PDFKey(j.State, j.County, year, month, uuid.New().String())
	return s.upload(ctx, body, key, "application/pdf")
}

// UploadRunSummary writes the run under a timestamped key and as the latest run
func (s *S3Archive) UploadRunSummary(ctx context.Context, run *models.ScrapingRun) (*S3UploadResult, error) {
	jsonData, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scraping run to JSON: %w", err)
	}

	key := fmt.Sprintf("scraping-runs/%s/%s.json", run.StartedAt.UTC().Format("2006-01-02"), run.ID)
	result, err := s.upload(ctx, jsonData, key, "application/json")
	if err != nil {
		return nil, err
	}

	if _, err := s.upload(ctx, jsonData, LatestRunKey, "application/json"); err != nil {
		return nil, err
	}

	return result, nil
}

// LatestRunSummary reads back the most recent run summary
func (s *S3Archive) LatestRunSummary(ctx context.Context) (*models.ScrapingRun, error) {
	data, err := s.downloadJSON(ctx, LatestRunKey)
	if err != nil {
		return nil, err
	}

	var run models.ScrapingRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scraping run JSON: %w", err)
	}

	return &run, nil
}

// upload is a helper method to put one object into the bucket
func (s *S3Archive) upload(ctx context.Context, data []byte, key, contentType string) (*S3UploadResult, error) {
	// Ensure key doesn't start with /
	key = strings.TrimPrefix(key, "/")

	result, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"uploaded-by": "foreclosure-auction-scraper",
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	return &S3UploadResult{
		Key:         key,
		Location:    s.GetObjectURL(key),
		ETag:        strings.Trim(aws.ToString(result.ETag), `"`),
		Size:        int64(len(data)),
		UploadedAt:  time.Now(),
		ContentType: contentType,
	}, nil
}

// downloadJSON is a helper method to download JSON data from S3
func (s *S3Archive) downloadJSON(ctx context.Context, key string) ([]byte, error) {
	key = strings.TrimPrefix(key, "/")

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from S3: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}

	return data, nil
}

// GetBucketName returns the configured bucket name
func (s *S3Archive) GetBucketName() string {
	return s.bucketName
}

// GetObjectURL returns the virtual-hosted URL of an object. The bucket is
// private; the URL is for operators with bucket access.
func (s *S3Archive) GetObjectURL(key string) string {
	key = strings.TrimPrefix(key, "/")
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucketName, s.region, key)
}
