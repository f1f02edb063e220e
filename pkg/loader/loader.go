package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"strings"

	"github.com/OFFIS-RIT/dochub/backend/pkg/common"
	"github.com/OFFIS-RIT/dochub/backend/pkg/loader/csv"
	"github.com/OFFIS-RIT/dochub/backend/pkg/loader/doc"
	"github.com/OFFIS-RIT/dochub/backend/pkg/loader/html"
	"github.com/OFFIS-RIT/dochub/backend/pkg/loader/pdf"
	"github.com/OFFIS-RIT/dochub/backend/pkg/loader/text"
	"github.com/OFFIS-RIT/dochub/backend/pkg/logger"
	"github.com/OFFIS-RIT/dochub/backend/pkg/pipeline"
)

// Source reads the raw bytes of a stored file. Implementations return an
// error matching fs.ErrNotExist when the file does not exist.
type Source interface {
	ReadFile(ctx context.Context, filePath string) ([]byte, error)
}

// Format is the content format a document is parsed as.
type Format string

const (
	FormatUnknown Format = ""
	FormatText    Format = "text"
	FormatHTML    Format = "html"
	FormatPDF     Format = "pdf"
	FormatDocx    Format = "docx"
	FormatCSV     Format = "csv"
)

// ErrUnsupportedFormat is returned for documents no parser handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

var mimeFormats = map[string]Format{
	"text/plain":                  FormatText,
	"text/markdown":               FormatText,
	"text/x-markdown":             FormatText,
	"application/json":            FormatText,
	"text/html":                   FormatHTML,
	"application/xhtml+xml":       FormatHTML,
	"application/pdf":             FormatPDF,
	"text/csv":                    FormatCSV,
	"application/csv":             FormatCSV,
	"text/comma-separated-values": FormatCSV,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatDocx,
}

var extFormats = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatText,
	".markdown": FormatText,
	".log":      FormatText,
	".json":     FormatText,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".xhtml":    FormatHTML,
	".pdf":      FormatPDF,
	".docx":     FormatDocx,
	".csv":      FormatCSV,
}

// DetectFormat picks the format from the document's MIME type and falls
// back to the file extension of its path or name.
func DetectFormat(d common.Document) Format {
	if d.MimeType != "" {
		mediaType, _, err := mime.ParseMediaType(d.MimeType)
		if err == nil {
			if f, ok := mimeFormats[strings.ToLower(mediaType)]; ok {
				return f
			}
		}
	}
	for _, name := range []string{d.FilePath, d.Name} {
		if f, ok := extFormats[strings.ToLower(path.Ext(name))]; ok {
			return f
		}
	}
	return FormatUnknown
}

// Parser turns raw file content into plain text.
type Parser func(ctx context.Context, content []byte, d common.Document) (string, error)

// Extractor reads documents from a Source and converts them to plain text
// according to their format.
type Extractor struct {
	source  Source
	parsers map[Format]Parser
}

type ExtractorOption func(*Extractor)

// WithParser registers or replaces the parser of a format.
func WithParser(f Format, p Parser) ExtractorOption {
	return func(e *Extractor) {
		e.parsers[f] = p
	}
}

func NewExtractor(source Source, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		source: source,
		parsers: map[Format]Parser{
			FormatText: parseText,
			FormatHTML: parseHTML,
			FormatPDF:  parsePDF,
			FormatDocx: parseDocx,
			FormatCSV:  parseCSV,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract implements pipeline.Extractor. Missing files and unreadable
// content fail permanently; other source errors may be retried.
func (e *Extractor) Extract(ctx context.Context, d common.Document) (string, error) {
	format := DetectFormat(d)
	parse, ok := e.parsers[format]
	if !ok {
		return "", pipeline.Permanent(pipeline.StageExtraction, pipeline.ErrExtraction,
			fmt.Errorf("%w: %q (%s)", ErrUnsupportedFormat, d.Name, d.MimeType))
	}

	content, err := e.source.ReadFile(ctx, d.FilePath)
	if err != nil {
		err = fmt.Errorf("read %s: %w", d.FilePath, err)
		if errors.Is(err, fs.ErrNotExist) {
			return "", pipeline.Permanent(pipeline.StageExtraction, pipeline.ErrExtraction, err)
		}
		return "", pipeline.Transient(pipeline.StageExtraction, pipeline.ErrExtraction, err)
	}

	out, err := parse(ctx, content, d)
	if err != nil {
		return "", pipeline.Permanent(pipeline.StageExtraction, pipeline.ErrExtraction,
			fmt.Errorf("parse %s as %s: %w", d.Name, format, err))
	}

	logger.Debug("[Loader] Extracted text", "document_id", d.ID, "format", format, "bytes", len(content), "chars", len(out))
	return out, nil
}

func parseText(ctx context.Context, content []byte, d common.Document) (string, error) {
	return text.Decode(content, d.MimeType)
}

func parseHTML(ctx context.Context, content []byte, d common.Document) (string, error) {
	return html.Extract(content, d.MimeType, d.FilePath)
}

func parsePDF(ctx context.Context, content []byte, d common.Document) (string, error) {
	return pdf.Parse(ctx, content)
}

func parseDocx(ctx context.Context, content []byte, d common.Document) (string, error) {
	return doc.ParseDocx(content)
}

func parseCSV(ctx context.Context, content []byte, d common.Document) (string, error) {
	return csv.Parse(content)
}
