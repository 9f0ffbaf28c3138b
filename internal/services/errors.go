package services

import (
	"errors"
	"fmt"

	"foreclosure-auction-scraper/internal/models"
)

var (
	// ErrAuctionNotFound is returned when no record matches a natural key
	ErrAuctionNotFound = errors.New("auction record not found")

	// ErrInvalidRecord is returned before any write when the natural key is incomplete
	ErrInvalidRecord = errors.New("auction record is missing case number, county or state")
)

// PersistenceError wraps a connectivity or write failure from the document store.
// Callers decide whether to retry the record or abort the batch.
type PersistenceError struct {
	Op  string
	Key models.AuctionKey
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Key.Valid() {
		return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UnsupportedFileTypeError rejects a downloaded listing that is not a PDF
type UnsupportedFileTypeError struct {
	URL         string
	ContentType string
	Extension   string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("file type not supported - only PDF files are accepted (url: %s, content-type: %q, extension: %q)",
		e.URL, e.ContentType, e.Extension)
}

// HTTPStatusError is a non-2xx response from the county website
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth another attempt
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

func persistenceError(op string, key models.AuctionKey, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Key: key, Err: err}
}
