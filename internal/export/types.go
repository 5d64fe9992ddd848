// Package export renders a draft with its review comments to PDF, DOCX or
// HTML and optionally archives the artefact in object storage.
package export

import (
	"errors"
	"strings"
	"time"

	"npa/draftbuilder/internal/comments"
	"npa/draftbuilder/internal/draft"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
)

// ParseFormat maps a query value to a Format.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatPDF, "":
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation
type Request struct {
	DraftID         string
	Format          Format
	IncludeComments bool
	IncludeResolved bool
	// Archive uploads the artefact to object storage when one is configured.
	Archive bool
}

// DraftData is everything an export needs from one draft.
type DraftData struct {
	DraftID   string
	Title     string
	Document  draft.Document
	Comments  []comments.Comment
	Revision  uint64
	Author    string
	UpdatedAt time.Time
}

// Result contains the export output
type Result struct {
	Data      []byte
	Filename  string
	MimeType  string
	ObjectKey string
}

var (
	// ErrUnsupportedFormat indicates an unknown export format.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
