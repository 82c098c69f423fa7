// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"bytes"
	"fmt"

	"github.com/pdiddy/pubsum/internal/container"
)

// imageOCR is the container image the OCR strategy pipes PDFs through. The
// image reads a PDF on stdin, rasterizes its pages, runs tesseract, and
// writes the recognized text to stdout.
const imageOCR = "pubsum-ocr:latest"

// OCR recognizes text from rasterized pages. It is the slowest strategy
// and the last resort for scanned or image-only PDFs. It depends on a
// container.Runtime (docker or podman) injected at construction time.
type OCR struct {
	runtime container.Runtime
}

// NewOCR creates the OCR strategy using the given container runtime. It
// verifies that the OCR image exists locally before returning.
func NewOCR(rt container.Runtime) (*OCR, error) {
	if err := rt.ImageExists(imageOCR); err != nil {
		return nil, fmt.Errorf("ocr image not available in %s: %w", rt.Name(), err)
	}
	return &OCR{runtime: rt}, nil
}

// Name returns the strategy identifier.
func (o *OCR) Name() string { return "ocr" }

// Extract pipes the PDF through the OCR container and returns its stdout.
func (o *OCR) Extract(pdfBytes []byte) (string, error) {
	var out bytes.Buffer
	if err := o.runtime.Run(imageOCR, bytes.NewReader(pdfBytes), &out); err != nil {
		return "", fmt.Errorf("running ocr container: %w", err)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("ocr produced empty output")
	}
	return out.String(), nil
}
