package domain

import "context"

// PageCounter inspects a document locally before it is submitted
type PageCounter interface {
	// PageCount returns the number of pages in the PDF at path
	PageCount(path string) (int, error)
}

// OCRProcessor submits one file to the OCR service
type OCRProcessor interface {
	// ProcessFile builds the request for file and returns the recognized content
	ProcessFile(ctx context.Context, file InputFile) (*OCRResult, error)
}

// ResultWriter persists the outcome of one successfully recognized file
type ResultWriter interface {
	// Write stores result under the reserved name and returns the markdown path
	Write(name string, file InputFile, result *OCRResult) (string, error)
}
