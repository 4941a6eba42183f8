// Package docpipe extracts article content from submitted document files.
//
// Supported formats:
//   - .docx — Microsoft Word (zip → word/document.xml, images from word/media)
//   - .doc  — legacy Word, converted to .docx via LibreOffice first
//   - .pdf  — text extraction with quality metrics (pure Go)
//   - .txt  — plain text passthrough
//   - .html — visible text via DOM walk
//
// Output is uniform: a title (first one or two lines), body text with
// [[IMG_n]] markers standing in for images, and the image bytes in marker
// order, ready for upload and placeholder mapping.
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported reports a file extension no parser handles.
var ErrUnsupported = errors.New("docpipe: unsupported format")

// Pipeline is the document extraction engine.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Detect returns the document format based on file extension.
func (p *Pipeline) Detect(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".doc":
		return FormatDoc, nil
	case ".docx":
		return FormatDocx, nil
	case ".pdf":
		return FormatPDF, nil
	case ".txt", ".text":
		return FormatTXT, nil
	case ".html", ".htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
	}
}

// Extract parses a document into title, marker-bearing body text and images.
// Legacy .doc files are converted to .docx first; that is the only step
// that shells out, and it honors ctx.
func (p *Pipeline) Extract(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), p.cfg.MaxFileSize)
	}

	format, err := p.Detect(path)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("extracting document", "path", path, "format", format)

	if format == FormatDoc {
		converted, err := p.convertDoc(ctx, path)
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(filepath.Dir(converted))
		doc, err := p.extract(converted, FormatDocx)
		if err != nil {
			return nil, err
		}
		doc.Path = path
		doc.Format = FormatDoc
		return doc, nil
	}
	return p.extract(path, format)
}

func (p *Pipeline) extract(path string, format Format) (*Document, error) {
	var doc *Document
	var err error
	switch format {
	case FormatDocx:
		doc, err = extractDocx(path)
	case FormatPDF:
		doc, err = extractPDF(path)
	case FormatTXT:
		doc, err = extractText(path)
	case FormatHTML:
		doc, err = extractHTMLFile(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s (%s): %w", path, format, err)
	}
	doc.Path = path
	doc.Format = format
	return doc, nil
}

// SupportedFormats returns all supported format extensions.
func SupportedFormats() []string {
	return []string{"doc", "docx", "pdf", "txt", "html"}
}

// splitTitle applies the title convention to extracted text lines: the
// first non-empty line is the title; a second line starting with "--" is a
// subtitle joined with a dash. Marker lines do not count as text.
func splitTitle(lines []string) (title string, lineCount int) {
	var heads []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[[IMG_") {
			continue
		}
		heads = append(heads, line)
		if len(heads) == 2 {
			break
		}
	}
	switch {
	case len(heads) == 0:
		return "", 0
	case len(heads) >= 2 && strings.HasPrefix(heads[1], "--"):
		sub := strings.TrimSpace(strings.TrimLeft(heads[1], "-"))
		return heads[0] + "——" + sub, 2
	default:
		return heads[0], 1
	}
}

// stripTitleLines removes the first n non-marker text lines, keeping any
// marker lines that precede or interleave with them.
func stripTitleLines(lines []string, n int) []string {
	if n <= 0 {
		return lines
	}
	skipped := 0
	var out []string
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if skipped < n && t != "" && !strings.HasPrefix(t, "[[IMG_") {
			skipped++
			continue
		}
		out = append(out, line)
	}
	return out
}
