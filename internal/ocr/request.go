package ocr

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/spherical/mistral-ocr/internal/domain"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "mistral-ocr-latest"

const (
	documentTypeDocument = "document_url"
	documentTypeImage    = "image_url"
)

// Request represents the OCR API request structure
type Request struct {
	Model              string   `json:"model"`
	Document           Document `json:"document"`
	IncludeImageBase64 bool     `json:"include_image_base64"`

	// Source is the file the request was built from; it is not sent.
	Source string `json:"-"`
}

// Document is the payload being recognized, embedded as a data URI
type Document struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// RequestOptions controls how requests are built
type RequestOptions struct {
	Model         string
	IncludeImages bool
}

// BuildRequest reads file and encodes it into an OCR request.
func BuildRequest(file domain.InputFile, opts RequestOptions) (*Request, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("failed to read %s", file.RelPath), err)
	}

	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	dataURI := "data:" + detectMIME(data, file.Format) + ";base64," + base64.StdEncoding.EncodeToString(data)

	req := &Request{
		Model:              model,
		IncludeImageBase64: opts.IncludeImages,
		Source:             file.Path,
	}
	if file.Format.IsDocument() {
		req.Document = Document{Type: documentTypeDocument, DocumentURL: dataURI}
	} else {
		req.Document = Document{Type: documentTypeImage, ImageURL: dataURI}
	}

	return req, nil
}

// detectMIME sniffs the content type, falling back to the extension table
// when the content is not recognizably one of the supported formats.
func detectMIME(data []byte, format domain.Format) string {
	detected := mimetype.Detect(data).String()
	if i := strings.IndexByte(detected, ';'); i >= 0 {
		detected = strings.TrimSpace(detected[:i])
	}

	for _, supported := range domain.SupportedFormats {
		if detected == supported {
			return detected
		}
	}

	if mime := format.MIMEType(); mime != "" {
		return mime
	}
	return "application/octet-stream"
}
