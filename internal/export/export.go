// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export renders summarized papers from the ledger into a markdown
// or HTML digest.
package export

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/pubsum/internal/ledger"
	"github.com/pdiddy/pubsum/pkg/types"
)

// Format selects the output rendering.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatMarkdown:
		return FormatMarkdown, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported format %q: use markdown or html", s)
	}
}

// Options filter and label the export.
type Options struct {
	RunID  string
	Title  string
	Format Format
}

// Sections holds the labeled parts of a model summary.
type Sections struct {
	Topics  string
	TLDR    string
	Summary string
}

var (
	topicsLabel  = regexp.MustCompile(`(?i)^topics:\]`)
	tldrLabel    = regexp.MustCompile(`(?i)^tl;dr:\]`)
	summaryLabel = regexp.MustCompile(`(?i)^summary:\]`)
)

// parseSections splits a summary on its [Topics:], [TL;DR:] and [Summary:]
// markers. Models sometimes bold the markers, so ** and __ are stripped
// first. Unlabeled text is ignored.
func parseSections(summary string) Sections {
	clean := strings.NewReplacer("**", "", "__", "").Replace(summary)

	var s Sections
	for _, part := range strings.Split(clean, "[") {
		switch {
		case topicsLabel.MatchString(part):
			s.Topics = strings.TrimSpace(topicsLabel.ReplaceAllString(part, ""))
		case tldrLabel.MatchString(part):
			s.TLDR = strings.TrimSpace(tldrLabel.ReplaceAllString(part, ""))
		case summaryLabel.MatchString(part):
			s.Summary = strings.TrimSpace(summaryLabel.ReplaceAllString(part, ""))
		}
	}
	return s
}

// topicList splits the topics section into individual badges.
func (s Sections) topicList() []string {
	if s.Topics == "" {
		return nil
	}
	parts := strings.Split(s.Topics, ",")
	topics := make([]string, 0, len(parts))
	for _, t := range parts {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// now is stubbed in tests.
var now = time.Now

// Render writes the digest of all summarized papers matching opts to w.
func Render(ctx context.Context, store *ledger.Store, opts Options, w io.Writer) error {
	records, err := store.List(ctx, ledger.Filter{
		RunID:  opts.RunID,
		Status: types.StatusSummarized,
	})
	if err != nil {
		return fmt.Errorf("querying ledger: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("no summarized papers found")
	}

	title := opts.Title
	if title == "" {
		title = "Research Paper Summaries"
	}

	switch opts.Format {
	case FormatHTML:
		return renderHTML(w, title, records)
	case FormatMarkdown, "":
		return renderMarkdown(w, title, records)
	default:
		return fmt.Errorf("unsupported format %q", opts.Format)
	}
}

func renderMarkdown(w io.Writer, title string, records []types.PaperRecord) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "*Generated on %s by pubsum*\n\n", now().Format("2006-01-02 15:04:05"))

	for _, rec := range records {
		fmt.Fprintf(&b, "## %s\n\n", rec.Title)

		s := parseSections(rec.Summary)
		if s.Topics != "" {
			fmt.Fprintf(&b, "### Topics\n\n%s\n\n", s.Topics)
		}
		if s.TLDR != "" {
			fmt.Fprintf(&b, "### TL;DR\n\n%s\n\n", s.TLDR)
		}
		if s.Summary != "" {
			fmt.Fprintf(&b, "### Summary\n\n%s\n\n", s.Summary)
		}
		if rec.SourceURL != "" {
			fmt.Fprintf(&b, "**Paper URL**: [%s](%s)\n\n", rec.SourceURL, rec.SourceURL)
		}
		b.WriteString("---\n\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
