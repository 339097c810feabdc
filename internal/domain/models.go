package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Format is a supported input file format, named by its extension.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatJPG  Format = "jpg"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWEBP Format = "webp"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// SupportedFormats lists every format the OCR service accepts, with the
// MIME type used when building a data URI for it.
var SupportedFormats = map[Format]string{
	FormatPDF:  "application/pdf",
	FormatJPG:  "image/jpeg",
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatWEBP: "image/webp",
	FormatGIF:  "image/gif",
	FormatBMP:  "image/bmp",
	FormatTIFF: "image/tiff",
}

// FormatFromPath returns the format for a file path and whether it is supported.
func FormatFromPath(path string) (Format, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	f := Format(ext)
	_, ok := SupportedFormats[f]
	return f, ok
}

// IsDocument reports whether the format is submitted as a document rather
// than as an image.
func (f Format) IsDocument() bool {
	return f == FormatPDF
}

// MIMEType returns the MIME type registered for the format.
func (f Format) MIMEType() string {
	return SupportedFormats[f]
}

// InputFile is one file selected for processing
type InputFile struct {
	Path    string // Absolute or caller-supplied path used for reading
	RelPath string // Path relative to the resolved input root
	Size    int64
	Format  Format
}

// Stem returns the file name without directory and extension.
func (f InputFile) Stem() string {
	base := filepath.Base(f.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ExtractedImage is an image the OCR service found embedded in a page
type ExtractedImage struct {
	ID       string // Identifier used by the service in the page markdown
	Page     int    // 1-based page number
	Data     []byte
	MIMEType string
	TopLeftX int
	TopLeftY int
}

// OCRPage is the recognized content of a single page
type OCRPage struct {
	Index    int // 0-based, as reported by the service
	Markdown string
	Images   []ExtractedImage
}

// OCRResult contains everything the service returned for one file
type OCRResult struct {
	Model          string
	Pages          []OCRPage
	PagesProcessed int
}

// PageCount returns the number of pages in the result.
func (r *OCRResult) PageCount() int {
	if r.PagesProcessed > len(r.Pages) {
		return r.PagesProcessed
	}
	return len(r.Pages)
}

// ImageCount returns the number of images across all pages.
func (r *OCRResult) ImageCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Images)
	}
	return n
}

// Status is the outcome of processing one file
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ProcessingRecord is one file's outcome within a batch
type ProcessingRecord struct {
	Source         string  `json:"source"`
	Output         string  `json:"output"`
	SizeBytes      int64   `json:"size_bytes"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Status         Status  `json:"status"`
	Error          string  `json:"error,omitempty"`
}

// Elapsed returns the processing time as a duration.
func (r ProcessingRecord) Elapsed() time.Duration {
	return time.Duration(r.ElapsedSeconds * float64(time.Second))
}

// Failed reports whether the record describes an error.
func (r ProcessingRecord) Failed() bool {
	return r.Status == StatusError
}

// BatchTotals holds batch-level aggregates
type BatchTotals struct {
	Count          int     `json:"count"`
	Errors         int     `json:"errors"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// BatchManifest is the serialized summary of a batch run
type BatchManifest struct {
	Files  []ProcessingRecord `json:"files"`
	Totals BatchTotals        `json:"totals"`
}

// Succeeded returns the number of successful records.
func (m *BatchManifest) Succeeded() int {
	return m.Totals.Count - m.Totals.Errors
}

// EventType represents the type of progress event
type EventType string

const (
	EventStart          EventType = "start"
	EventFileProcessing EventType = "file_processing"
	EventFileComplete   EventType = "file_complete"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// Event is a progress notification emitted by the batch orchestrator
type Event struct {
	Type      EventType
	Index     int // 1-based; for file_complete, the number of files finished so far
	Total     int
	File      *InputFile
	Record    *ProcessingRecord
	Payload   interface{} // Status message or error text
	Timestamp time.Time
}
