// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads paper PDFs with bounded retry, exponential
// backoff, and shared per-host rate limiting. Files land at deterministic
// title-derived paths so re-runs overwrite rather than duplicate.
package fetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/pubsum/internal/httputil"
)

// Error is a failed or refused download. Retryable marks the transient
// subset (network errors, 5xx, 429); everything else fails immediately.
type Error struct {
	URL       string
	Status    int // HTTP status when the server answered, 0 otherwise
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds acquisition settings.
type Config struct {
	// OutputDir is where PDFs are written.
	OutputDir string

	// UserAgent is sent with every request.
	UserAgent string

	// MaxRetries bounds retry attempts per download. Zero uses the
	// httputil default.
	MaxRetries int

	// HostInterval is the minimum spacing between requests to a single
	// host, enforced cumulatively across all workers (default 1s).
	HostInterval time.Duration
}

// Fetcher downloads PDFs. It is safe for concurrent use; the per-host rate
// limiters are shared so a worker pool never exceeds the politeness limit
// of any one host.
type Fetcher struct {
	client       *http.Client
	outputDir    string
	userAgent    string
	maxRetries   int
	hostInterval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Fetcher using the given HTTP client, which must carry a
// timeout so no download blocks indefinitely.
func New(client *http.Client, cfg Config) *Fetcher {
	interval := cfg.HostInterval
	if interval <= 0 {
		interval = time.Second
	}
	return &Fetcher{
		client:       client,
		outputDir:    cfg.OutputDir,
		userAgent:    cfg.UserAgent,
		maxRetries:   cfg.MaxRetries,
		hostInterval: interval,
		limiters:     make(map[string]*rate.Limiter),
	}
}

// limiter returns the shared limiter for host, creating it on first use.
func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(f.hostInterval), 1)
		f.limiters[host] = l
	}
	return l
}

// Fetch downloads rawURL and stores it under the output directory at a
// path derived from title. It returns the local path of the written file.
// Transient failures are retried with exponential backoff; terminal
// failures (malformed URL, 404) return immediately.
func (f *Fetcher) Fetch(ctx context.Context, title, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", &Error{URL: rawURL, Retryable: false, Err: fmt.Errorf("malformed URL")}
	}

	if err := f.limiter(u.Host).Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &Error{URL: rawURL, Retryable: false, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := httputil.DoWithRetry(ctx, f.client, req, f.maxRetries)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{URL: rawURL, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			URL:       rawURL,
			Status:    resp.StatusCode,
			Retryable: httputil.RetryableStatus(resp.StatusCode),
			Err:       fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory %s: %w", f.outputDir, err)
	}

	dest := filepath.Join(f.outputDir, Slug(title)+".pdf")
	if err := writeFile(dest, resp.Body); err != nil {
		return "", fmt.Errorf("storing %s: %w", dest, err)
	}
	return dest, nil
}

// writeFile streams body to a temporary file and renames it into place so
// an interrupted download never leaves a partial PDF at the final path.
func writeFile(destPath string, body io.Reader) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// slugMaxLen bounds the readable part of a slug; the hash suffix keeps
// truncated titles collision-safe.
const slugMaxLen = 80

// Slug converts a paper title into a deterministic, collision-safe
// filename stem: lowercased alphanumeric runs joined by hyphens, truncated,
// with a short hash of the full title appended.
func Slug(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	base := strings.Trim(b.String(), "-")
	if len(base) > slugMaxLen {
		base = strings.Trim(base[:slugMaxLen], "-")
	}

	sum := sha256.Sum256([]byte(title))
	hash := fmt.Sprintf("%x", sum[:4])
	if base == "" {
		return "paper-" + hash
	}
	return base + "-" + hash
}
