// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Structural reads the PDF's embedded text layer directly. It is the fast
// path for digitally produced papers and the first strategy in the default
// chain.
type Structural struct{}

// Name returns the strategy identifier.
func (Structural) Name() string { return "structural" }

// Extract pulls the plain text stream out of the PDF. The parser panics on
// some malformed inputs; that surfaces as an error so the chain can fall
// through to the next strategy.
func (Structural) Extract(pdfBytes []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	stream, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading text layer: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return "", fmt.Errorf("reading text layer: %w", err)
	}

	text = buf.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no embedded text layer")
	}
	return text, nil
}
