package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := FileTooLargeError("big.pdf is 60.00 MB", nil)
	assert.Equal(t, "[file_too_large] big.pdf is 60.00 MB", err.Error())

	wrapped := IOError("write failed", errors.New("disk full"))
	assert.Equal(t, "[io] write failed: disk full", wrapped.Error())
}

func TestIsType_ThroughWrapping(t *testing.T) {
	base := AuthError("invalid API key", nil)
	err := fmt.Errorf("processing doc.pdf: %w", base)

	assert.True(t, IsType(err, ErrorTypeAuth))
	assert.False(t, IsType(err, ErrorTypeService))
	assert.False(t, IsType(nil, ErrorTypeAuth))
	assert.Equal(t, ErrorTypeAuth, TypeOf(err))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}

func TestIsResolutionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{PathNotFoundError("missing", nil), true},
		{UnsupportedFormatError("txt", nil), true},
		{FileTooLargeError("big", nil), true},
		{EmptyBatchError("empty", nil), true},
		{AuthError("bad key", nil), false},
		{ServiceError("500", nil), false},
		{errors.New("other"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsResolutionError(tt.err), "%v", tt.err)
	}
}

func TestFormatFromPath(t *testing.T) {
	f, ok := FormatFromPath("/docs/Scan.TIFF")
	assert.True(t, ok)
	assert.Equal(t, FormatTIFF, f)
	assert.Equal(t, "image/tiff", f.MIMEType())
	assert.False(t, f.IsDocument())

	f, ok = FormatFromPath("report.pdf")
	assert.True(t, ok)
	assert.True(t, f.IsDocument())

	_, ok = FormatFromPath("notes.txt")
	assert.False(t, ok)

	_, ok = FormatFromPath("README")
	assert.False(t, ok)
}

func TestOCRResult_Counts(t *testing.T) {
	r := &OCRResult{
		Pages: []OCRPage{
			{Index: 0, Images: []ExtractedImage{{ID: "img-0.png"}}},
			{Index: 1, Images: []ExtractedImage{{ID: "img-1.png"}, {ID: "img-2.png"}}},
		},
	}
	assert.Equal(t, 2, r.PageCount())
	assert.Equal(t, 3, r.ImageCount())

	r.PagesProcessed = 5
	assert.Equal(t, 5, r.PageCount())
}
