// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source discovers the (title, pdf_url) pairs of a conference run.
// One adapter exists per listing platform; the pipeline treats adapters as
// interchangeable behind the Source interface.
package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/pubsum/pkg/types"
)

// Entry is one discovered paper: its title and the location of its PDF.
type Entry struct {
	Title  string
	PDFURL string
}

// Source lists the accepted papers for one conference run. Discover is
// finite and restartable only from the beginning; resume semantics across
// runs come from the ledger, not the adapter. Adapters hold no state
// beyond the scope of a single Discover call.
type Source interface {
	// Name returns the platform identifier.
	Name() string

	// Discover returns every (title, pdf_url) pair selected by the
	// filter parameters.
	Discover(ctx context.Context, cfg types.ScrapingConfig) ([]Entry, error)
}

// ForPlatform returns the adapter for a platform identifier. Unknown
// platforms are a configuration error.
func ForPlatform(platform string, client *http.Client, userAgent string) (Source, error) {
	switch strings.ToLower(platform) {
	case "openreview":
		return &OpenReview{Client: client, UserAgent: userAgent}, nil
	default:
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
}
