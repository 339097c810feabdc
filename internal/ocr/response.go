package ocr

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spherical/mistral-ocr/internal/domain"
)

// ocrResponse represents the OCR API response structure
type ocrResponse struct {
	Pages     []pageResponse `json:"pages"`
	Model     string         `json:"model"`
	UsageInfo usageInfo      `json:"usage_info"`
}

type pageResponse struct {
	Index    int             `json:"index"`
	Markdown string          `json:"markdown"`
	Images   []imageResponse `json:"images"`
}

type imageResponse struct {
	ID           string  `json:"id"`
	TopLeftX     float64 `json:"top_left_x"`
	TopLeftY     float64 `json:"top_left_y"`
	BottomRightX float64 `json:"bottom_right_x"`
	BottomRightY float64 `json:"bottom_right_y"`
	ImageBase64  *string `json:"image_base64"`
}

type usageInfo struct {
	PagesProcessed int `json:"pages_processed"`
}

// toResult converts the wire response into an OCRResult. Images returned
// without a payload are dropped.
func (r *ocrResponse) toResult(requestModel string) (*domain.OCRResult, error) {
	model := r.Model
	if model == "" {
		model = requestModel
	}

	result := &domain.OCRResult{
		Model:          model,
		Pages:          make([]domain.OCRPage, 0, len(r.Pages)),
		PagesProcessed: r.UsageInfo.PagesProcessed,
	}

	for _, p := range r.Pages {
		page := domain.OCRPage{
			Index:    p.Index,
			Markdown: p.Markdown,
		}

		for _, img := range p.Images {
			if img.ImageBase64 == nil || *img.ImageBase64 == "" {
				continue
			}
			data, mimeType, err := decodeImage(*img.ImageBase64, img.ID)
			if err != nil {
				return nil, domain.TransportError(fmt.Sprintf("failed to decode image %s on page %d", img.ID, p.Index+1), err)
			}
			page.Images = append(page.Images, domain.ExtractedImage{
				ID:       img.ID,
				Page:     p.Index + 1,
				Data:     data,
				MIMEType: mimeType,
				TopLeftX: int(img.TopLeftX),
				TopLeftY: int(img.TopLeftY),
			})
		}

		result.Pages = append(result.Pages, page)
	}

	return result, nil
}

// decodeImage decodes a base64 payload that may carry a data URI prefix.
// The MIME type comes from the prefix, then the image ID's extension, and
// defaults to image/png.
func decodeImage(payload, id string) ([]byte, string, error) {
	mimeType := ""
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, "", fmt.Errorf("malformed data URI")
		}
		header := payload[len("data:"):comma]
		payload = payload[comma+1:]
		if semi := strings.IndexByte(header, ';'); semi >= 0 {
			header = header[:semi]
		}
		mimeType = header
	}

	if mimeType == "" {
		if format, ok := domain.FormatFromPath(id); ok && !format.IsDocument() {
			mimeType = format.MIMEType()
		}
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, "", err
		}
	}

	return data, mimeType, nil
}
