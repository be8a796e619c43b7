// Package export produces downloadable manuscripts of a novel in HTML, PDF
// and DOCX formats.
package export

import (
	"errors"
	"strings"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Selection picks which chapters go into the manuscript.
type Selection string

const (
	// IncludeAll exports drafts and scheduled chapters too.
	IncludeAll Selection = "all"
	// IncludeLive exports only what readers can currently see.
	IncludeLive Selection = "live"
)

func ParseSelection(value string) (Selection, error) {
	switch Selection(strings.ToLower(strings.TrimSpace(value))) {
	case "", IncludeAll:
		return IncludeAll, nil
	case IncludeLive:
		return IncludeLive, nil
	default:
		return "", ErrUnsupportedSelection
	}
}

// Request contains parameters for an export operation
type Request struct {
	NovelID string
	Format  Format
	Include Selection
	Now     time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat    = errors.New("format must be html, pdf or docx")
	ErrUnsupportedSelection = errors.New("include must be all or live")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
