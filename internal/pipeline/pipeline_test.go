// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubsum/internal/fetch"
	"github.com/pdiddy/pubsum/internal/httputil"
	"github.com/pdiddy/pubsum/internal/ledger"
	"github.com/pdiddy/pubsum/internal/source"
	"github.com/pdiddy/pubsum/pkg/types"
)

type fakeSource struct {
	entries []source.Entry
	err     error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Discover(_ context.Context, _ types.ScrapingConfig) ([]source.Entry, error) {
	return f.entries, f.err
}

// fakeExtractor returns the PDF bytes as text.
type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeExtractor) Extract(pdf []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return string(pdf), nil
}

type fakeSummarizer struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (f *fakeSummarizer) Name() string { return "fake" }

func (f *fakeSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + prompt[:min(20, len(prompt))], nil
}

// testEnv bundles the real fetcher and ledger around an httptest PDF server.
type testEnv struct {
	server   *httptest.Server
	store    *ledger.Store
	cfg      types.RunConfig
	fetcher  *fetch.Fetcher
	requests map[string]int
	mu       sync.Mutex
}

func newTestEnv(t *testing.T, pdfs map[string]string, failPaths map[string]int) *testEnv {
	t.Helper()

	env := &testEnv{requests: make(map[string]int)}
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.requests[r.URL.Path]++
		env.mu.Unlock()
		if code, ok := failPaths[r.URL.Path]; ok {
			w.WriteHeader(code)
			return
		}
		body, ok := pdfs[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(env.server.Close)

	dir := t.TempDir()
	store, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	env.store = store

	env.cfg = types.RunConfig{
		Scraping: types.ScrapingConfig{Platform: "fake"},
		Paths: types.PathsConfig{
			OutputDir: filepath.Join(dir, "pdfs"),
			DBPath:    filepath.Join(dir, "ledger.db"),
		},
	}
	env.fetcher = fetch.New(env.server.Client(), fetch.Config{
		OutputDir:    env.cfg.Paths.OutputDir,
		UserAgent:    "pubsum-test/1.0",
		MaxRetries:   1,
		HostInterval: time.Millisecond,
	})
	return env
}

func (env *testEnv) hits(path string) int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.requests[path]
}

func TestRunIsolatesPerPaperFailures(t *testing.T) {
	oldDelay := httputil.RetryBaseDelay
	httputil.RetryBaseDelay = time.Millisecond
	defer func() { httputil.RetryBaseDelay = oldDelay }()

	env := newTestEnv(t,
		map[string]string{"/a.pdf": "text of paper A", "/c.pdf": "text of paper C"},
		map[string]int{"/b.pdf": http.StatusInternalServerError},
	)
	src := &fakeSource{entries: []source.Entry{
		{Title: "Paper A", PDFURL: env.server.URL + "/a.pdf"},
		{Title: "Paper B", PDFURL: env.server.URL + "/b.pdf"},
		{Title: "Paper C", PDFURL: env.server.URL + "/c.pdf"},
	}}
	summ := &fakeSummarizer{}
	var out bytes.Buffer

	p := New(src, env.fetcher, &fakeExtractor{}, summ, env.store, env.cfg, &out)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Discovered)
	assert.Equal(t, 2, report.Summarized)
	assert.Equal(t, 1, report.Failed[types.StageAcquire])
	assert.Equal(t, []string{"Paper B"}, report.FailedTitles)
	assert.True(t, report.HasFailures())

	recA, err := env.store.Get(context.Background(), p.runID, "Paper A")
	require.NoError(t, err)
	require.NotNil(t, recA)
	assert.Equal(t, types.StatusSummarized, recA.Status)
	assert.Contains(t, recA.Summary, "summary of")

	recB, err := env.store.Get(context.Background(), p.runID, "Paper B")
	require.NoError(t, err)
	require.NotNil(t, recB)
	assert.Equal(t, types.FailedStatus(types.StageAcquire), recB.Status)
	assert.NotEmpty(t, recB.ErrorDetail)

	assert.Contains(t, out.String(), "failed: Paper B")
	assert.Contains(t, out.String(), "summarized: Paper A")
}

func TestRunSecondPassSkipsSummarized(t *testing.T) {
	env := newTestEnv(t, map[string]string{"/a.pdf": "text of paper A"}, nil)
	src := &fakeSource{entries: []source.Entry{
		{Title: "Paper A", PDFURL: env.server.URL + "/a.pdf"},
	}}
	summ := &fakeSummarizer{}
	var out bytes.Buffer

	p := New(src, env.fetcher, &fakeExtractor{}, summ, env.store, env.cfg, &out)
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, env.hits("/a.pdf"))

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Summarized)
	assert.Equal(t, 1, env.hits("/a.pdf"), "no refetch on skip")
	assert.Len(t, summ.prompts, 1, "no resummarize on skip")
}

func TestRunEnforceRescrapeReprocesses(t *testing.T) {
	env := newTestEnv(t, map[string]string{"/a.pdf": "text of paper A"}, nil)
	src := &fakeSource{entries: []source.Entry{
		{Title: "Paper A", PDFURL: env.server.URL + "/a.pdf"},
	}}
	summ := &fakeSummarizer{}
	var out bytes.Buffer

	p := New(src, env.fetcher, &fakeExtractor{}, summ, env.store, env.cfg, &out)
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	env.cfg.Scraping.EnforceRescrape = true
	p2 := New(src, env.fetcher, &fakeExtractor{}, summ, env.store, env.cfg, &out)
	report, err := p2.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 1, report.Summarized)
	assert.Equal(t, 2, env.hits("/a.pdf"), "rescrape refetches")
	assert.Len(t, summ.prompts, 2)
}

func TestRunResumesFromFailedSummarize(t *testing.T) {
	env := newTestEnv(t, map[string]string{"/a.pdf": "text of paper A"}, nil)
	src := &fakeSource{entries: []source.Entry{
		{Title: "Paper A", PDFURL: env.server.URL + "/a.pdf"},
	}}
	var out bytes.Buffer
	extractor := &fakeExtractor{}

	// First run: summarization fails after download and extraction succeed.
	failing := &fakeSummarizer{err: fmt.Errorf("provider down")}
	p := New(src, env.fetcher, extractor, failing, env.store, env.cfg, &out)
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed[types.StageSummarize])

	rec, err := env.store.Get(context.Background(), p.runID, "Paper A")
	require.NoError(t, err)
	assert.Equal(t, types.FailedStatus(types.StageSummarize), rec.Status)
	require.Equal(t, 1, env.hits("/a.pdf"))
	require.Equal(t, 1, extractor.calls)

	// Second run: only the summarize stage reruns.
	working := &fakeSummarizer{}
	p2 := New(src, env.fetcher, extractor, working, env.store, env.cfg, &out)
	report, err = p2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summarized)
	assert.Equal(t, 0, report.Downloaded)
	assert.Equal(t, 0, report.Extracted)
	assert.Equal(t, 1, env.hits("/a.pdf"), "acquire not rerun")
	assert.Equal(t, 1, extractor.calls, "extract not rerun")
	assert.Contains(t, working.prompts[0], "text of paper A")
}

// peekSummarizer captures the paper's ledger record as it stands when
// summarization begins.
type peekSummarizer struct {
	store *ledger.Store
	runID string
	title string
	seen  *types.PaperRecord
}

func (f *peekSummarizer) Name() string { return "peek" }

func (f *peekSummarizer) Summarize(ctx context.Context, _ string) (string, error) {
	rec, err := f.store.Get(ctx, f.runID, f.title)
	if err != nil {
		return "", err
	}
	f.seen = rec
	return "summary", nil
}

func TestFailureDetailKeptUntilStageAdvances(t *testing.T) {
	env := newTestEnv(t, map[string]string{"/a.pdf": "text of paper A"}, nil)
	src := &fakeSource{entries: []source.Entry{
		{Title: "Paper A", PDFURL: env.server.URL + "/a.pdf"},
	}}
	var out bytes.Buffer

	failing := &fakeSummarizer{err: fmt.Errorf("provider down")}
	p := New(src, env.fetcher, &fakeExtractor{}, failing, env.store, env.cfg, &out)
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	// While the retry is still mid-pipeline the failed status must keep
	// its failure reason.
	peek := &peekSummarizer{store: env.store, runID: env.cfg.RunID(), title: "Paper A"}
	p2 := New(src, env.fetcher, &fakeExtractor{}, peek, env.store, env.cfg, &out)
	report, err := p2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summarized)

	require.NotNil(t, peek.seen)
	assert.Equal(t, types.FailedStatus(types.StageSummarize), peek.seen.Status)
	assert.Equal(t, "provider down", peek.seen.ErrorDetail)

	final, err := env.store.Get(context.Background(), env.cfg.RunID(), "Paper A")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSummarized, final.Status)
	assert.Empty(t, final.ErrorDetail)
}

func TestRunCapsPromptBeforeReferences(t *testing.T) {
	body := "Important findings about networks. REFERENCES [1] A. Author, 2019."
	env := newTestEnv(t, map[string]string{"/a.pdf": body}, nil)
	src := &fakeSource{entries: []source.Entry{
		{Title: "Paper A", PDFURL: env.server.URL + "/a.pdf"},
	}}
	summ := &fakeSummarizer{}
	var out bytes.Buffer

	env.cfg.Summarization = types.SummarizationConfig{
		Prefix: "Summarize this paper:",
		Suffix: "Reply with [Topics:], [TL;DR:], [Summary:] sections.",
		CapAt:  "REFERENCES",
	}
	p := New(src, env.fetcher, &fakeExtractor{}, summ, env.store, env.cfg, &out)
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summ.prompts, 1)
	prompt := summ.prompts[0]
	assert.True(t, strings.HasPrefix(prompt, "Summarize this paper:\n\n"))
	assert.Contains(t, prompt, "Important findings about networks.")
	assert.NotContains(t, prompt, "REFERENCES")
	assert.True(t, strings.HasSuffix(prompt, "[Summary:] sections."))
}

func TestRunSkipsDuplicateTitles(t *testing.T) {
	env := newTestEnv(t, map[string]string{"/a.pdf": "text of paper A"}, nil)
	src := &fakeSource{entries: []source.Entry{
		{Title: "Paper A", PDFURL: env.server.URL + "/a.pdf"},
		{Title: "Paper A", PDFURL: env.server.URL + "/a.pdf"},
	}}
	summ := &fakeSummarizer{}
	var out bytes.Buffer

	p := New(src, env.fetcher, &fakeExtractor{}, summ, env.store, env.cfg, &out)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Summarized)
	assert.Equal(t, 1, env.hits("/a.pdf"))
}

func TestRunConcurrentWorkers(t *testing.T) {
	pdfs := make(map[string]string)
	var entries []source.Entry
	env := newTestEnv(t, pdfs, nil)
	for i := 0; i < 8; i++ {
		path := fmt.Sprintf("/p%d.pdf", i)
		pdfs[path] = fmt.Sprintf("text of paper %d", i)
		entries = append(entries, source.Entry{
			Title:  fmt.Sprintf("Paper %d", i),
			PDFURL: env.server.URL + path,
		})
	}
	src := &fakeSource{entries: entries}
	summ := &fakeSummarizer{}
	var out bytes.Buffer

	env.cfg.Scraping.Workers = 4
	p := New(src, env.fetcher, &fakeExtractor{}, summ, env.store, env.cfg, &out)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, report.Summarized)
	assert.False(t, report.HasFailures())
	assert.Len(t, summ.prompts, 8)
}

func TestRunDiscoveryErrorIsFatal(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	src := &fakeSource{err: fmt.Errorf("API unreachable")}
	var out bytes.Buffer

	p := New(src, env.fetcher, &fakeExtractor{}, &fakeSummarizer{}, env.store, env.cfg, &out)
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API unreachable")
}

func TestBuildRejectsBadConfig(t *testing.T) {
	base := types.RunConfig{
		Scraping: types.ScrapingConfig{Platform: "openreview"},
		Paths: types.PathsConfig{
			OutputDir: t.TempDir(),
			DBPath:    filepath.Join(t.TempDir(), "ledger.db"),
		},
		Summarization: types.SummarizationConfig{
			Provider: "openai", APIKey: "k", Model: "m",
		},
	}

	bad := base
	bad.Scraping.Platform = "arxiv"
	_, err := Build(bad, nil, &bytes.Buffer{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "scraping.platform", cfgErr.Field)

	bad = base
	bad.Summarization.Provider = "bard"
	_, err = Build(bad, nil, &bytes.Buffer{})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "summarization", cfgErr.Field)

	bad = base
	bad.Paths.OutputDir = ""
	_, err = Build(bad, nil, &bytes.Buffer{})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "paths.output_dir", cfgErr.Field)

	p, err := Build(base, nil, &bytes.Buffer{})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
