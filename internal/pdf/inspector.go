// Package pdf inspects PDF documents locally before they are submitted.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/mistral-ocr/internal/domain"
)

// tailSize is how much of the file end is searched for the xref marker.
const tailSize = 1024

var (
	pdfHeader = []byte("%PDF-")
	startXref = []byte("startxref")
)

// Inspector counts pages using go-fitz
type Inspector struct{}

// NewInspector creates a new PDF inspector
func NewInspector() *Inspector {
	return &Inspector{}
}

// PageCount opens the PDF at path and returns its number of pages.
// Files without a PDF header and trailer are rejected before MuPDF sees
// them, since MuPDF reports its repair attempts on stderr.
func (i *Inspector) PageCount(path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, domain.ValidationError("file path cannot be empty", nil)
	}

	if err := sniff(path); err != nil {
		return 0, err
	}

	doc, err := fitz.New(path)
	if err != nil {
		return 0, domain.ValidationError(fmt.Sprintf("cannot open PDF: %s", path), err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return 0, domain.ValidationError("PDF has no pages", nil)
	}

	return pageCount, nil
}

func sniff(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return domain.IOError(fmt.Sprintf("cannot read %s", path), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.IOError(fmt.Sprintf("cannot read %s", path), err)
	}

	head := make([]byte, len(pdfHeader))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfHeader) {
		return domain.ValidationError(fmt.Sprintf("not a PDF: %s", path), nil)
	}

	offset := info.Size() - tailSize
	if offset < 0 {
		offset = 0
	}
	tail := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(tail, offset); err != nil && err != io.EOF {
		return domain.IOError(fmt.Sprintf("cannot read %s", path), err)
	}
	if !bytes.Contains(tail, startXref) {
		return domain.ValidationError(fmt.Sprintf("PDF has no cross-reference trailer: %s", path), nil)
	}
	return nil
}

// CheckPageLimit fails with a ValidationError when pages exceeds maxPages.
// A maxPages of zero disables the check.
func CheckPageLimit(pages, maxPages int) error {
	if maxPages <= 0 || pages <= maxPages {
		return nil
	}
	return domain.ValidationError(fmt.Sprintf("PDF has %d pages, exceeding the maximum of %d", pages, maxPages), nil)
}
