// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/pubsum/pkg/types"
)

// openReviewAPIBase is the OpenReview notes endpoint. Declared as a var so
// tests can substitute an httptest server.
var openReviewAPIBase = "https://api2.openreview.net/notes"

// openReviewSite resolves relative PDF paths returned by the API.
var openReviewSite = "https://openreview.net"

// openReviewPageSize is the API page size used while walking the listing.
const openReviewPageSize = 1000

// OpenReview discovers accepted papers through the OpenReview notes API.
//
// Recognized scraper params: venue_id (full venue identifier, e.g.
// "ICLR.cc/2026/Conference") or the conference/year/track triple it is
// assembled from, plus an optional num_cap bounding the number of papers.
type OpenReview struct {
	Client    *http.Client
	UserAgent string
}

// Name returns the platform identifier.
func (o *OpenReview) Name() string { return "openreview" }

// openReviewNotes mirrors the notes API response shape.
type openReviewNotes struct {
	Notes []struct {
		Content struct {
			Title struct {
				Value string `json:"value"`
			} `json:"title"`
			PDF struct {
				Value string `json:"value"`
			} `json:"pdf"`
		} `json:"content"`
	} `json:"notes"`
	Count int `json:"count"`
}

// Discover pages through the venue's notes and returns every paper that
// carries both a title and a PDF.
func (o *OpenReview) Discover(ctx context.Context, cfg types.ScrapingConfig) ([]Entry, error) {
	venue, err := venueID(cfg.Params)
	if err != nil {
		return nil, err
	}

	numCap := 0
	if raw := cfg.Params["num_cap"]; raw != "" {
		numCap, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid num_cap %q: %w", raw, err)
		}
	}

	var entries []Entry
	for offset := 0; ; {
		page, err := o.fetchPage(ctx, venue, offset)
		if err != nil {
			return nil, err
		}
		if len(page.Notes) == 0 {
			break
		}

		for _, note := range page.Notes {
			title := strings.TrimSpace(note.Content.Title.Value)
			pdf := strings.TrimSpace(note.Content.PDF.Value)
			if title == "" || pdf == "" {
				continue
			}
			if strings.HasPrefix(pdf, "/") {
				pdf = openReviewSite + pdf
			}
			entries = append(entries, Entry{Title: title, PDFURL: pdf})
			if numCap > 0 && len(entries) >= numCap {
				return entries, nil
			}
		}

		offset += len(page.Notes)
		if len(page.Notes) < openReviewPageSize || (page.Count > 0 && offset >= page.Count) {
			break
		}
	}
	return entries, nil
}

func (o *OpenReview) fetchPage(ctx context.Context, venue string, offset int) (*openReviewNotes, error) {
	apiURL := fmt.Sprintf("%s?content.venueid=%s&offset=%d&limit=%d",
		openReviewAPIBase, url.QueryEscape(venue), offset, openReviewPageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", o.UserAgent)

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenReview API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenReview API returned HTTP %d", resp.StatusCode)
	}

	var page openReviewNotes
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("parsing OpenReview response: %w", err)
	}
	return &page, nil
}

// venueID builds the venue identifier from scraper params: an explicit
// venue_id wins, otherwise conference/year/track are joined.
func venueID(params map[string]string) (string, error) {
	if v := params["venue_id"]; v != "" {
		return v, nil
	}
	conference := params["conference"]
	year := params["year"]
	if conference == "" || year == "" {
		return "", fmt.Errorf("openreview requires venue_id or conference and year params")
	}
	track := params["track"]
	if track == "" {
		track = "Conference"
	}
	return fmt.Sprintf("%s/%s/%s", conference, year, track), nil
}
