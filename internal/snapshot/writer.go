// Package snapshot writes each successful extraction as a .md file so an
// operator can review exactly what text entered the knowledge base.
//
// Each file carries YAML frontmatter with source metadata. The body is the
// sanitized HTML converted to markdown; when conversion fails, produces
// nothing, or the source was a PDF, the plain extracted text is written
// instead. Files land atomically (write .tmp then rename) so a reader never
// sees a partial snapshot.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/obba100/redress/idgen"
)

// Metadata describes the source and extraction context for a snapshot file.
type Metadata struct {
	ID          string
	SourceID    string
	SourceName  string
	Location    string
	Format      string
	Tag         string
	Title       string
	ContentHash string
	ExtractedAt time.Time
}

// Writer deposits .md snapshots into a directory.
type Writer struct {
	dir         string
	newID       func() string
	sanitizer   *bluemonday.Policy
	mdConverter *converter.Converter
}

// NewWriter creates a Writer targeting the given directory.
// The directory is created on first write if it does not exist.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:       dir,
		newID:     idgen.New,
		sanitizer: bluemonday.UGCPolicy(),
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Write creates a .md file with YAML frontmatter and a markdown body.
// html may be empty (PDF sources); plainText is the fallback body.
// Returns the path of the written file.
func (w *Writer) Write(ctx context.Context, meta Metadata, html, plainText string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: mkdir %s: %w", w.dir, err)
	}

	if meta.ID == "" {
		meta.ID = w.newID()
	}

	filename := meta.ID + ".md"
	target := filepath.Join(w.dir, filename)
	tmp := target + ".tmp"

	content := formatFrontmatter(meta) + w.markdown(html, meta.Location, plainText)

	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write tmp: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("snapshot: rename: %w", err)
	}

	return target, nil
}

// markdown converts sanitized HTML to structured markdown.
// If conversion fails or produces empty output, returns the fallback text.
func (w *Writer) markdown(html, location, fallback string) string {
	if html == "" {
		return fallback
	}
	clean := w.sanitizer.Sanitize(html)
	result, err := w.mdConverter.ConvertString(clean, converter.WithDomain(location))
	if err != nil || strings.TrimSpace(result) == "" {
		return fallback
	}
	return strings.TrimSpace(result)
}

// formatFrontmatter builds a YAML frontmatter block.
func formatFrontmatter(m Metadata) string {
	return "---\n" +
		"id: " + m.ID + "\n" +
		"source_id: " + m.SourceID + "\n" +
		"source: " + yamlEscape(m.SourceName) + "\n" +
		"location: " + m.Location + "\n" +
		"format: " + m.Format + "\n" +
		"tag: " + m.Tag + "\n" +
		"title: " + yamlEscape(m.Title) + "\n" +
		"extracted_at: " + m.ExtractedAt.UTC().Format(time.RFC3339) + "\n" +
		"content_hash: " + m.ContentHash + "\n" +
		"---\n\n"
}

// yamlEscape wraps a string in quotes if it contains special YAML
// characters. A hyphen is only special as a leading "- ", so plain
// hyphenated names stay unquoted.
func yamlEscape(s string) string {
	if strings.HasPrefix(s, "- ") || s == "-" {
		return `"` + escapeDoubleQuotes(s) + `"`
	}
	for _, c := range s {
		if c == ':' || c == '#' || c == '\'' || c == '"' || c == '{' || c == '}' || c == '[' || c == ']' || c == ',' || c == '&' || c == '*' || c == '?' || c == '|' || c == '<' || c == '>' || c == '=' || c == '!' || c == '%' || c == '@' || c == '`' || c == '\n' {
			return `"` + escapeDoubleQuotes(s) + `"`
		}
	}
	return s
}

func escapeDoubleQuotes(s string) string {
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			result = append(result, '\\', '"')
		} else if s[i] == '\\' {
			result = append(result, '\\', '\\')
		} else {
			result = append(result, s[i])
		}
	}
	return string(result)
}
