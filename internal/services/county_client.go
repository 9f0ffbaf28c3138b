package services

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxDownloadBytes caps a single page or PDF download
const maxDownloadBytes = 50 << 20

var errResponseTooLarge = errors.New("response exceeds download limit")

// CountyClient fetches the county foreclosure page and the PDFs it links to
type CountyClient struct {
	httpClient  *http.Client
	userAgents  []string
	retryConfig RetryConfig
	logger      *zap.Logger
}

// RetryConfig defines retry behavior for failed requests
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DownloadedFile is a fetched document with the metadata needed to validate it
type DownloadedFile struct {
	URL         string
	ContentType string
	Body        []byte
}

// NewCountyClient creates a client with browser-like headers and retry support
func NewCountyClient(timeout time.Duration, maxRetries int, logger *zap.Logger) *CountyClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		IdleConnTimeout: 90 * time.Second,
	}

	return &CountyClient{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		userAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		retryConfig: RetryConfig{
			MaxRetries:    maxRetries,
			InitialDelay:  1 * time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
		},
		logger: logger,
	}
}

// WithRetryConfig replaces the backoff settings
func (c *CountyClient) WithRetryConfig(rc RetryConfig) *CountyClient {
	c.retryConfig = rc
	return c
}

// FetchPage downloads an HTML page
func (c *CountyClient) FetchPage(ctx context.Context, url string) ([]byte, error) {
	file, err := c.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	return file.Body, nil
}

// Download fetches url, retrying timeouts, connection errors, 429 and 5xx
func (c *CountyClient) Download(ctx context.Context, url string) (*DownloadedFile, error) {
	if url == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		file, err := c.attemptDownload(ctx, url, attempt)
		if err == nil {
			return file, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil {
			break
		}

		if attempt < c.retryConfig.MaxRetries {
			delay := c.calculateDelay(attempt)
			c.logger.Warn("Download attempt failed, retrying",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err),
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, fmt.Errorf("failed to download %s: %w", url, lastErr)
}

func (c *CountyClient) attemptDownload(ctx context.Context, url string, attempt int) (*DownloadedFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, attempt)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxDownloadBytes {
		return nil, fmt.Errorf("%s: %w (%d bytes)", url, errResponseTooLarge, maxDownloadBytes)
	}

	return &DownloadedFile{
		URL:         url,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (c *CountyClient) setHeaders(req *http.Request, attempt int) {
	// Rotate user agent on retries
	req.Header.Set("User-Agent", c.userAgents[attempt%len(c.userAgents)])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Connection", "keep-alive")

	if attempt > 0 {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
}

// calculateDelay is exponential backoff with up to 10% jitter
func (c *CountyClient) calculateDelay(attempt int) time.Duration {
	base := float64(c.retryConfig.InitialDelay) * math.Pow(c.retryConfig.BackoffFactor, float64(attempt))
	delay := base + rand.Float64()*0.1*float64(c.retryConfig.InitialDelay)

	if delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}
	return time.Duration(delay)
}

func isRetryable(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, errResponseTooLarge)
}
