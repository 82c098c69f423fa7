// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdftext extracts readable text from PDF bytes through an ordered
// chain of strategies. Each strategy is strictly more expensive than the
// previous one and only runs when the cheaper strategy's output fails a
// plausibility check, so a PDF with a usable text layer never pays for OCR.
package pdftext

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Strategy is one way of getting text out of a PDF. A Chain tries
// strategies in order from cheapest to most expensive.
type Strategy interface {
	// Name identifies the strategy in errors and progress output.
	Name() string

	// Extract returns raw text for the given PDF bytes. The caller
	// cleans and validates the result.
	Extract(pdf []byte) (string, error)
}

// ExtractionError reports that every strategy in the chain was exhausted.
type ExtractionError struct {
	// Attempts lists one "strategy: reason" entry per failed strategy.
	Attempts []string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("all extraction strategies exhausted: %s", strings.Join(e.Attempts, "; "))
}

// Plausibility thresholds: output shorter than minTextLength or with a
// lower share of letters than minAlphaRatio is treated as a failed
// extraction and the chain moves on.
const (
	minTextLength = 200
	minAlphaRatio = 0.4
)

// Chain runs extraction strategies in order and returns the first cleaned,
// plausible result.
type Chain struct {
	strategies []Strategy
}

// NewChain builds a chain over the given strategies, tried in argument order.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Extract tries each strategy in order. The first result that survives
// cleaning and passes the plausibility check wins; cleaning is applied
// uniformly regardless of which strategy produced the text. When every
// strategy fails or produces implausible output, Extract returns an
// *ExtractionError naming each attempt.
func (c *Chain) Extract(pdf []byte) (string, error) {
	var attempts []string
	for _, s := range c.strategies {
		raw, err := s.Extract(pdf)
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		cleaned := Clean(raw)
		if !Plausible(cleaned) {
			attempts = append(attempts, fmt.Sprintf("%s: implausible output (%d chars)", s.Name(), len(cleaned)))
			continue
		}
		return cleaned, nil
	}
	return "", &ExtractionError{Attempts: attempts}
}

// Plausible applies the length and alphabetic-ratio heuristic that decides
// whether an extraction attempt succeeded well enough to stop the chain.
func Plausible(text string) bool {
	if len(text) < minTextLength {
		return false
	}
	var letters, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return false
	}
	return float64(letters)/float64(total) >= minAlphaRatio
}

// ligatures maps common PDF ligature mis-decodes to their letter sequences.
var ligatures = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
)

// pageNumberLine matches lines that are nothing but a page number.
var pageNumberLine = regexp.MustCompile(`^\d{1,4}$`)

// Clean normalizes extracted text: ligature mis-decodes are expanded,
// control characters dropped, per-page header/footer repetition stripped,
// and whitespace collapsed. Applied to the output of every strategy.
func Clean(text string) string {
	text = ligatures.Replace(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}

	lines := stripRepeatedLines(strings.Split(b.String(), "\n"))
	return strings.Join(strings.Fields(strings.Join(lines, "\n")), " ")
}

// headerRepeatThreshold is how many times a short line must recur before it
// is treated as a running page header or footer.
const headerRepeatThreshold = 3

// stripRepeatedLines drops page-number lines and short lines that repeat
// across pages (running titles, copyright footers).
func stripRepeatedLines(lines []string) []string {
	counts := make(map[string]int)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && len(trimmed) <= 80 {
			counts[trimmed]++
		}
	}

	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if pageNumberLine.MatchString(trimmed) {
			continue
		}
		if len(trimmed) <= 80 && counts[trimmed] >= headerRepeatThreshold {
			continue
		}
		kept = append(kept, line)
	}
	return kept
}
