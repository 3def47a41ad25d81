// Package docext extracts plain text from the document formats legal
// sources arrive in: HTML pages and PDF publications.
//
// Extraction is a pure transform over fetched bytes. HTML goes through a
// DOM walk that drops boilerplate and hidden elements; PDF goes through
// pdfcpu page by page. All output text has its whitespace (including
// non-breaking spaces) collapsed to single ASCII spaces, with a newline
// kept between PDF pages.
package docext

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"unicode"
)

// Format identifies a source document type.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ErrExtraction is returned when a document's content cannot be parsed.
// Callers skip the source and continue.
var ErrExtraction = errors.New("docext: extraction failed")

// ErrPDFDisabled is returned for PDF input while PDF support is switched
// off. Callers treat the source as skipped rather than failed.
var ErrPDFDisabled = errors.New("docext: pdf extraction disabled")

// ErrUnsupportedFormat is returned for formats this extractor does not know.
var ErrUnsupportedFormat = errors.New("docext: unsupported format")

// ParseFormat validates a format string from the source list.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// DetectFormat guesses a format from a location's extension, defaulting
// to HTML.
func DetectFormat(location string) Format {
	if strings.EqualFold(path.Ext(stripQuery(location)), ".pdf") {
		return FormatPDF
	}
	return FormatHTML
}

func stripQuery(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		return location[:i]
	}
	return location
}

// Document is the result of extracting one source.
type Document struct {
	Format Format `json:"format"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

// Config configures the extractor.
type Config struct {
	// DisablePDF switches PDF extraction off. PDF sources are then skipped
	// (logged once at construction), not failed per call.
	DisablePDF bool `yaml:"disable_pdf"`

	// MaxPDFPages caps how many pages are read per PDF. 0 = all pages.
	MaxPDFPages int `yaml:"max_pdf_pages"`

	// Logger for debug/warn messages.
	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor converts fetched source bytes into plain text.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor. When PDF support is disabled the degradation
// is logged here, once, not on every call.
func New(cfg Config) *Extractor {
	cfg.defaults()
	e := &Extractor{cfg: cfg, logger: cfg.Logger}
	if cfg.DisablePDF {
		e.logger.Warn("docext: pdf extraction disabled, pdf sources will be skipped")
	}
	return e
}

// PDFEnabled reports whether PDF input can be extracted.
func (e *Extractor) PDFEnabled() bool { return !e.cfg.DisablePDF }

// Extract parses data according to format and returns normalized text.
// Failures are per-document; the caller decides whether to continue.
func (e *Extractor) Extract(data []byte, format Format) (*Document, error) {
	switch format {
	case FormatHTML:
		title, text, err := extractHTML(data)
		if err != nil {
			return nil, fmt.Errorf("%w: html: %v", ErrExtraction, err)
		}
		return &Document{Format: FormatHTML, Title: title, Text: text}, nil

	case FormatPDF:
		if e.cfg.DisablePDF {
			return nil, ErrPDFDisabled
		}
		title, text, err := extractPDF(data, e.cfg.MaxPDFPages)
		if err != nil {
			return nil, fmt.Errorf("%w: pdf: %v", ErrExtraction, err)
		}
		return &Document{Format: FormatPDF, Title: title, Text: text}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// normalizeWhitespace collapses every run of Unicode whitespace (including
// non-breaking spaces) to a single ASCII space and trims the ends.
func normalizeWhitespace(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
