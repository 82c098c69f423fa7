// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"errors"
	"strings"
	"testing"
)

// fakeStrategy returns canned output and records whether it was invoked.
type fakeStrategy struct {
	name   string
	text   string
	err    error
	called bool
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(_ []byte) (string, error) {
	f.called = true
	return f.text, f.err
}

// plausibleText builds text that comfortably passes the plausibility check.
func plausibleText(prefix string) string {
	return prefix + strings.Repeat(" the quick brown fox jumps over the lazy dog", 10)
}

func TestChainUsesCheapestPlausibleStrategy(t *testing.T) {
	cheap := &fakeStrategy{name: "structural", text: plausibleText("embedded layer")}
	mid := &fakeStrategy{name: "layout", text: plausibleText("layout")}
	expensive := &fakeStrategy{name: "ocr", text: plausibleText("ocr")}

	got, err := NewChain(cheap, mid, expensive).Extract([]byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.HasPrefix(got, "embedded layer") {
		t.Errorf("expected structural output, got %q", got[:40])
	}
	if mid.called || expensive.called {
		t.Error("more expensive strategies must not run when the cheap one succeeds")
	}
}

func TestChainFallsBackOnError(t *testing.T) {
	broken := &fakeStrategy{name: "structural", err: errors.New("no embedded text layer")}
	working := &fakeStrategy{name: "layout", text: plausibleText("columns")}

	got, err := NewChain(broken, working).Extract(nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.HasPrefix(got, "columns") {
		t.Errorf("expected layout output, got %q", got[:20])
	}
}

func TestChainFallsBackOnImplausibleOutput(t *testing.T) {
	// Short garbage passes no plausibility check even though extraction
	// "succeeded".
	garbage := &fakeStrategy{name: "structural", text: "1 2 3 % $$$"}
	ocr := &fakeStrategy{name: "ocr", text: plausibleText("scanned pages")}

	got, err := NewChain(garbage, ocr).Extract(nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !ocr.called {
		t.Error("ocr should run when the cheaper output is implausible")
	}
	if !strings.HasPrefix(got, "scanned pages") {
		t.Errorf("expected ocr output, got %q", got[:20])
	}
}

func TestChainExhaustedReturnsExtractionError(t *testing.T) {
	a := &fakeStrategy{name: "structural", err: errors.New("boom")}
	b := &fakeStrategy{name: "layout", text: "too short"}

	_, err := NewChain(a, b).Extract(nil)
	var exhausted *ExtractionError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExtractionError, got %v", err)
	}
	if len(exhausted.Attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %v", exhausted.Attempts)
	}
	if !strings.Contains(exhausted.Attempts[0], "structural") {
		t.Errorf("first attempt should name structural: %q", exhausted.Attempts[0])
	}
	if !strings.Contains(exhausted.Attempts[1], "implausible") {
		t.Errorf("second attempt should mention implausibility: %q", exhausted.Attempts[1])
	}
}

func TestPlausible(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", false},
		{"short", "hello world", false},
		{"long prose", plausibleText("abstract"), true},
		{"long but numeric", strings.Repeat("0 1 2 3 4 5 6 7 8 9 ", 30), false},
		{"long symbol soup", strings.Repeat("%% $$ ## @@ !! ", 40), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plausible(tt.text); got != tt.want {
				t.Errorf("Plausible(%q...) = %v, want %v", tt.text[:min(len(tt.text), 20)], got, tt.want)
			}
		})
	}
}

func TestCleanLigatures(t *testing.T) {
	got := Clean("eﬃcient workﬂow ﬁndings" + strings.Repeat(" pad", 60))
	for _, want := range []string{"efficient", "workflow", "findings"} {
		if !strings.Contains(got, want) {
			t.Errorf("Clean output missing %q: %q", want, got[:60])
		}
	}
}

func TestCleanDropsControlCharacters(t *testing.T) {
	got := Clean("abc\x00def\x07ghi")
	if got != "abcdefghi" {
		t.Errorf("Clean = %q, want %q", got, "abcdefghi")
	}
}

func TestCleanCollapsesWhitespace(t *testing.T) {
	got := Clean("a  b\t\tc\n\n\nd")
	if got != "a b c d" {
		t.Errorf("Clean = %q, want %q", got, "a b c d")
	}
}

func TestCleanStripsRepeatedHeadersAndPageNumbers(t *testing.T) {
	var pages []string
	for i := 1; i <= 4; i++ {
		pages = append(pages,
			"Proceedings of the Imaginary Conference 2026",
			"unique paragraph content number "+strings.Repeat("x", i),
			"12",
		)
	}
	got := Clean(strings.Join(pages, "\n"))

	if strings.Contains(got, "Proceedings of the Imaginary Conference") {
		t.Errorf("repeated header should be stripped: %q", got)
	}
	if strings.Contains(got, " 12") || strings.HasPrefix(got, "12") {
		t.Errorf("page number lines should be stripped: %q", got)
	}
	if !strings.Contains(got, "unique paragraph content") {
		t.Errorf("body text should survive cleaning: %q", got)
	}
}
