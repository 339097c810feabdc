package ocr

import (
	"context"

	"github.com/spherical/mistral-ocr/internal/domain"
)

// Processor builds and submits one request per file
type Processor struct {
	client *Client
	opts   RequestOptions
}

// NewProcessor creates a processor bound to client.
func NewProcessor(client *Client, opts RequestOptions) *Processor {
	return &Processor{client: client, opts: opts}
}

// ProcessFile implements domain.OCRProcessor.
func (p *Processor) ProcessFile(ctx context.Context, file domain.InputFile) (*domain.OCRResult, error) {
	req, err := BuildRequest(file, p.opts)
	if err != nil {
		return nil, err
	}
	return p.client.Process(ctx, req)
}
