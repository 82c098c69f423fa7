// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Layout walks each page row by row, keeping vertical reading order. It
// recovers text from multi-column papers that the plain text stream
// interleaves, at the cost of a second full parse.
type Layout struct{}

// Name returns the strategy identifier.
func (Layout) Name() string { return "layout" }

// Extract concatenates the rows of every page top to bottom. Parser panics
// on malformed input surface as errors, as in Structural.
func (Layout) Extract(pdfBytes []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			// Unreadable pages are skipped; the plausibility check
			// decides whether what remains is enough.
			continue
		}

		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				if word.S != "" {
					parts = append(parts, word.S)
				}
			}
			if len(parts) > 0 {
				b.WriteString(strings.Join(parts, " "))
				b.WriteByte('\n')
			}
		}
		b.WriteByte('\n')
	}

	text = b.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text rows found")
	}
	return text, nil
}
