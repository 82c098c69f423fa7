// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates a full ingestion run: discover papers on the
// configured platform, download their PDFs, extract text, and summarize.
// Every paper's progress is committed to the ledger stage by stage, so an
// interrupted or partially failed run resumes where it left off.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/pubsum/internal/container"
	"github.com/pdiddy/pubsum/internal/fetch"
	"github.com/pdiddy/pubsum/internal/ledger"
	"github.com/pdiddy/pubsum/internal/pdftext"
	"github.com/pdiddy/pubsum/internal/source"
	"github.com/pdiddy/pubsum/internal/summarize"
	"github.com/pdiddy/pubsum/pkg/types"
)

// ConfigError marks a configuration problem found while wiring the pipeline,
// before any paper is touched.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Report aggregates the outcome of one run.
type Report struct {
	Discovered int
	Skipped    int
	Downloaded int
	Extracted  int
	Summarized int

	// Failed counts failures per stage.
	Failed       map[string]int
	FailedTitles []string
}

// TotalFailed sums failures across stages.
func (r Report) TotalFailed() int {
	n := 0
	for _, c := range r.Failed {
		n += c
	}
	return n
}

// HasFailures reports whether any paper failed.
func (r Report) HasFailures() bool { return r.TotalFailed() > 0 }

// Extractor turns raw PDF bytes into text. *pdftext.Chain satisfies it.
type Extractor interface {
	Extract(pdf []byte) (string, error)
}

// Pipeline holds the wired components for one run.
type Pipeline struct {
	source     source.Source
	fetcher    *fetch.Fetcher
	extractor  Extractor
	summarizer summarize.Summarizer
	store      *ledger.Store
	cfg        types.RunConfig
	runID      string

	mu sync.Mutex
	w  io.Writer
}

// New assembles a pipeline from pre-built components.
func New(src source.Source, fetcher *fetch.Fetcher, extractor Extractor,
	summarizer summarize.Summarizer, store *ledger.Store,
	cfg types.RunConfig, w io.Writer) *Pipeline {
	return &Pipeline{
		source:     src,
		fetcher:    fetcher,
		extractor:  extractor,
		summarizer: summarizer,
		store:      store,
		cfg:        cfg,
		runID:      cfg.RunID(),
		w:          w,
	}
}

// Build wires every component from configuration. All configuration problems
// surface here as *ConfigError, before the paper loop starts.
func Build(cfg types.RunConfig, keys map[string]string, w io.Writer) (*Pipeline, error) {
	client := &http.Client{Timeout: cfg.Timeout.Std()}

	src, err := source.ForPlatform(cfg.Scraping.Platform, client, cfg.UserAgent)
	if err != nil {
		return nil, &ConfigError{Field: "scraping.platform", Err: err}
	}

	summarizer, err := summarize.New(cfg.Summarization, keys, cfg.Scraping.Delay.Std())
	if err != nil {
		return nil, &ConfigError{Field: "summarization", Err: err}
	}

	if cfg.Paths.OutputDir == "" {
		return nil, &ConfigError{Field: "paths.output_dir", Err: fmt.Errorf("must be set")}
	}
	if cfg.Paths.DBPath == "" {
		return nil, &ConfigError{Field: "paths.db_path", Err: fmt.Errorf("must be set")}
	}

	store, err := ledger.Open(cfg.Paths.DBPath)
	if err != nil {
		return nil, &ConfigError{Field: "paths.db_path", Err: err}
	}

	fetcher := fetch.New(client, fetch.Config{
		OutputDir:    cfg.Paths.OutputDir,
		UserAgent:    cfg.UserAgent,
		HostInterval: cfg.Scraping.Delay.Std(),
	})

	strategies := []pdftext.Strategy{pdftext.Structural{}, pdftext.Layout{}}
	if rt, err := container.DetectRuntime(); err == nil {
		if ocr, err := pdftext.NewOCR(rt); err == nil {
			strategies = append(strategies, ocr)
		} else {
			fmt.Fprintf(w, "ocr disabled: %v\n", err)
		}
	}

	return New(src, fetcher, pdftext.NewChain(strategies...), summarizer, store, cfg, w), nil
}

// Close releases the ledger.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// Run executes the pipeline. The returned error covers only run-level
// problems (discovery, context cancellation); per-paper failures are
// isolated, recorded in the ledger, and counted in the report.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	report := Report{Failed: make(map[string]int)}

	entries, err := p.source.Discover(ctx, p.cfg.Scraping)
	if err != nil {
		return report, fmt.Errorf("discovering papers on %s: %w", p.source.Name(), err)
	}
	report.Discovered = len(entries)
	fmt.Fprintf(p.w, "discovered %d papers on %s (run %s)\n",
		len(entries), p.source.Name(), p.runID)

	// Duplicate titles collapse into one paper; extras count as skipped.
	seen := make(map[string]bool, len(entries))
	unique := entries[:0]
	for _, e := range entries {
		if seen[e.Title] {
			report.Skipped++
			p.progress("skipped: %s (duplicate title)", e.Title)
			continue
		}
		seen[e.Title] = true
		unique = append(unique, e)
	}

	if p.cfg.Scraping.Workers > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.Scraping.Workers)
		for _, entry := range unique {
			entry := entry
			g.Go(func() error {
				p.process(gctx, entry, &report)
				return nil
			})
		}
		g.Wait()
	} else {
		for i, entry := range unique {
			if i > 0 && p.cfg.Scraping.Delay.Std() > 0 {
				select {
				case <-ctx.Done():
					return report, ctx.Err()
				case <-time.After(p.cfg.Scraping.Delay.Std()):
				}
			}
			p.process(ctx, entry, &report)
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// process runs one paper through the remaining stages. All outcomes are
// committed to the ledger; nothing is returned because a paper's failure
// must not stop the run.
func (p *Pipeline) process(ctx context.Context, entry source.Entry, report *Report) {
	rec, err := p.store.Get(ctx, p.runID, entry.Title)
	if err != nil {
		p.recordFailure(ctx, report, nil, entry.Title, types.StageAcquire, err)
		return
	}

	if rec != nil && rec.Status == types.StatusSummarized && !p.cfg.Scraping.EnforceRescrape {
		p.count(report, func(r *Report) { r.Skipped++ })
		p.progress("skipped: %s (already summarized)", entry.Title)
		return
	}

	if rec == nil || p.cfg.Scraping.EnforceRescrape {
		rec = &types.PaperRecord{
			RunID:  p.runID,
			Title:  entry.Title,
			Status: types.StatusDiscovered,
		}
	}
	// ErrorDetail stays with the failed status until a stage commit
	// advances past it.
	rec.SourceURL = entry.PDFURL
	if err := p.commit(ctx, rec); err != nil {
		p.recordFailure(ctx, report, nil, entry.Title, types.StageAcquire, err)
		return
	}

	// Acquire. Re-runs when the ledger says downloaded but the file is gone.
	if !rec.Status.AtLeast(types.StatusDownloaded) || !fileExists(rec.LocalPath) {
		path, err := p.fetcher.Fetch(ctx, rec.Title, rec.SourceURL)
		if err != nil {
			p.recordFailure(ctx, report, rec, rec.Title, types.StageAcquire, err)
			return
		}
		rec.LocalPath = path
		rec.Status = types.StatusDownloaded
		rec.RawText = ""
		rec.Summary = ""
		rec.ErrorDetail = ""
		if err := p.commit(ctx, rec); err != nil {
			p.recordFailure(ctx, report, nil, rec.Title, types.StageAcquire, err)
			return
		}
		p.count(report, func(r *Report) { r.Downloaded++ })
		p.progress("downloaded: %s", rec.Title)
	}

	// Extract.
	if !rec.Status.AtLeast(types.StatusExtracted) {
		pdfBytes, err := os.ReadFile(rec.LocalPath)
		if err == nil {
			rec.RawText, err = p.extractor.Extract(pdfBytes)
		}
		if err != nil {
			p.recordFailure(ctx, report, rec, rec.Title, types.StageExtract, err)
			return
		}
		rec.Status = types.StatusExtracted
		rec.Summary = ""
		rec.ErrorDetail = ""
		if err := p.commit(ctx, rec); err != nil {
			p.recordFailure(ctx, report, nil, rec.Title, types.StageExtract, err)
			return
		}
		p.count(report, func(r *Report) { r.Extracted++ })
		p.progress("extracted: %s", rec.Title)
	}

	// Summarize.
	sumCfg := p.cfg.Summarization
	text := summarize.Cap(rec.RawText, sumCfg.CapAt, sumCfg.ContentCap)
	prompt := summarize.BuildPrompt(sumCfg.Prefix, sumCfg.Suffix, text)
	summary, err := p.summarizer.Summarize(ctx, prompt)
	if err != nil {
		p.recordFailure(ctx, report, rec, rec.Title, types.StageSummarize, err)
		return
	}
	rec.Summary = summary
	rec.Status = types.StatusSummarized
	rec.ErrorDetail = ""
	if err := p.commit(ctx, rec); err != nil {
		p.recordFailure(ctx, report, nil, rec.Title, types.StageSummarize, err)
		return
	}
	p.count(report, func(r *Report) { r.Summarized++ })
	p.progress("summarized: %s", rec.Title)
}

func (p *Pipeline) commit(ctx context.Context, rec *types.PaperRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	return p.store.Upsert(ctx, *rec)
}

// recordFailure marks the paper failed at the given stage. A cancelled
// context skips the ledger write so the last committed stage stands and the
// next run resumes from it.
func (p *Pipeline) recordFailure(ctx context.Context, report *Report,
	rec *types.PaperRecord, title, stage string, cause error) {
	p.count(report, func(r *Report) {
		r.Failed[stage]++
		r.FailedTitles = append(r.FailedTitles, title)
	})
	p.progress("failed: %s (%s: %v)", title, stage, cause)

	if ctx.Err() != nil || rec == nil {
		return
	}
	rec.Status = types.FailedStatus(stage)
	rec.ErrorDetail = cause.Error()
	if err := p.commit(ctx, rec); err != nil {
		p.progress("ledger write failed for %s: %v", title, err)
	}
}

func (p *Pipeline) count(report *Report, update func(*Report)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	update(report)
}

func (p *Pipeline) progress(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
