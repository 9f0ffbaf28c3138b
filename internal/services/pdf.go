package services

import (
	"bytes"
	"net/url"
	"path"
	"strings"
)

var pdfMagic = []byte("%PDF-")

// ValidatePDF accepts a download only when the body carries the PDF header.
// Content type and extension are reported on rejection but not trusted,
// since the county server labels PDFs inconsistently.
func ValidatePDF(file *DownloadedFile) error {
	if bytes.HasPrefix(bytes.TrimLeft(file.Body, " \t\r\n"), pdfMagic) {
		return nil
	}

	return &UnsupportedFileTypeError{
		URL:         file.URL,
		ContentType: file.ContentType,
		Extension:   fileExtension(file.URL),
	}
}

func fileExtension(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
