// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdiddy/pubsum/internal/httputil"
)

func init() {
	httputil.RetryBaseDelay = 1 * time.Millisecond
}

const fakePDFContent = "%PDF-1.4 fake"

func newFetcher(t *testing.T, ts *httptest.Server) *Fetcher {
	t.Helper()
	return New(ts.Client(), Config{
		OutputDir:    t.TempDir(),
		UserAgent:    "pubsum-test/0.1",
		MaxRetries:   3,
		HostInterval: time.Millisecond,
	})
}

func TestFetchWritesPDF(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "pubsum-test/0.1" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, fakePDFContent)
	}))
	defer ts.Close()

	f := newFetcher(t, ts)
	path, err := f.Fetch(context.Background(), "A Study of Things", ts.URL+"/paper.pdf")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if string(data) != fakePDFContent {
		t.Errorf("file content = %q", data)
	}
	if !strings.Contains(path, "a-study-of-things-") {
		t.Errorf("path should contain the title slug: %q", path)
	}
}

func TestFetchOverwritesOnRerun(t *testing.T) {
	var serve atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "version %d", serve.Add(1))
	}))
	defer ts.Close()

	f := newFetcher(t, ts)
	first, err := f.Fetch(context.Background(), "Same Title", ts.URL)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	second, err := f.Fetch(context.Background(), "Same Title", ts.URL)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	if first != second {
		t.Errorf("re-run produced a different path: %q vs %q", first, second)
	}
	data, _ := os.ReadFile(second)
	if string(data) != "version 2" {
		t.Errorf("re-run should overwrite, got %q", data)
	}
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, fakePDFContent)
	}))
	defer ts.Close()

	f := newFetcher(t, ts)
	if _, err := f.Fetch(context.Background(), "Flaky Server Paper", ts.URL); err != nil {
		t.Fatalf("Fetch should succeed after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetchTerminalErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	f := newFetcher(t, ts)
	_, err := f.Fetch(context.Background(), "Gone Paper", ts.URL)

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Retryable {
		t.Error("404 must be terminal")
	}
	if fe.Status != http.StatusNotFound {
		t.Errorf("Status = %d", fe.Status)
	}
	if calls.Load() != 1 {
		t.Errorf("404 should not be retried, got %d attempts", calls.Load())
	}
}

func TestFetchExhaustedRetriesIsRetryableError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	f := newFetcher(t, ts)
	_, err := f.Fetch(context.Background(), "Broken Server Paper", ts.URL)

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !fe.Retryable {
		t.Error("persistent 5xx should be marked retryable")
	}
}

func TestFetchMalformedURL(t *testing.T) {
	f := New(http.DefaultClient, Config{OutputDir: t.TempDir()})
	_, err := f.Fetch(context.Background(), "Bad URL Paper", "not a url")

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if fe.Retryable {
		t.Error("malformed URL must be terminal")
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string // prefix before the hash suffix; "" means any
	}{
		{"simple", "Attention Is All You Need", "attention-is-all-you-need-"},
		{"punctuation collapsed", "GANs: A (Short?) Survey!", "gans-a-short-survey-"},
		{"unicode stripped", "Café — Résumé Networks", "caf-r-sum-networks-"},
		{"empty", "", "paper-"},
		{"symbols only", "!!! ???", "paper-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slug(tt.title)
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("Slug(%q) = %q, want prefix %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestSlugDeterministicAndCollisionSafe(t *testing.T) {
	if Slug("Same Title") != Slug("Same Title") {
		t.Error("slug must be deterministic")
	}

	long := strings.Repeat("very long title segment ", 10)
	a := Slug(long + "alpha")
	b := Slug(long + "beta")
	if a == b {
		t.Error("distinct titles truncated to the same stem must still differ")
	}
	if len(a) > slugMaxLen+10 {
		t.Errorf("slug too long: %d chars", len(a))
	}
}
