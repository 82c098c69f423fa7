// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

// Duration wraps time.Duration so run configuration files can write
// durations as strings ("1s", "500ms").
type Duration time.Duration

// UnmarshalYAML parses a duration string or a bare number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		// Bare numbers are treated as seconds.
		var secs float64
		if _, scanErr := fmt.Sscanf(raw, "%f", &secs); scanErr != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		parsed = time.Duration(secs * float64(time.Second))
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "pubsum/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ScrapingConfig selects the source platform and the politeness policy for
// one conference run.
type ScrapingConfig struct {
	// Platform names the source adapter (e.g. "openreview").
	Platform string `json:"platform" yaml:"platform"`

	// Params carries platform-specific filter parameters such as
	// conference, year, track, submission_type, or venue_id.
	Params map[string]string `json:"scraper_params" yaml:"scraper_params"`

	// EnforceRescrape forces every discovered title back through the
	// full chain even if previously summarized.
	EnforceRescrape bool `json:"enforce_rescrape" yaml:"enforce_rescrape"`

	// Delay is the pause between consecutive papers in sequential mode
	// (default 1s).
	Delay Duration `json:"delay" yaml:"delay"`

	// Workers bounds pipeline concurrency. Zero or one selects the
	// sequential baseline.
	Workers int `json:"workers" yaml:"workers"`
}

// PathsConfig locates the run's on-disk artifacts.
type PathsConfig struct {
	// OutputDir is the directory PDFs are downloaded into.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// DBPath is the SQLite ledger location.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// SummarizationConfig selects the LLM provider and the prompt shape.
type SummarizationConfig struct {
	// Provider selects the summarization backend: openai, anthropic,
	// or local (an OpenAI-compatible server at BaseURL).
	Provider string `json:"provider" yaml:"provider"`

	// BaseURL overrides the provider API base, required for local.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Model is the model identifier passed to the provider.
	Model string `json:"model_name" yaml:"model_name"`

	// APIKey authenticates the provider call. When empty the key is
	// taken from .secrets/.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Prefix and Suffix wrap the capped paper text to form the prompt.
	Prefix string `json:"prefix" yaml:"prefix"`
	Suffix string `json:"suffix" yaml:"suffix"`

	// CapAt truncates extracted text at the first case-insensitive
	// occurrence of this marker (e.g. "REFERENCES") before prompting.
	CapAt string `json:"cap_at,omitempty" yaml:"cap_at,omitempty"`

	// ContentCap truncates the text to at most this many characters
	// before prompting. Zero disables the cap.
	ContentCap int `json:"content_cap,omitempty" yaml:"content_cap,omitempty"`

	// MaxRetries is the number of retry attempts for failed provider
	// calls (default 4).
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`

	// Param carries provider-specific generation parameters such as
	// temperature and max_tokens.
	Param map[string]any `json:"param,omitempty" yaml:"param,omitempty"`
}

// RunConfig groups all settings for one conference run. A configuration
// file may list several runs; they execute sequentially.
type RunConfig struct {
	HTTPConfig    `yaml:",inline"`
	Scraping      ScrapingConfig      `json:"scraping" yaml:"scraping"`
	Paths         PathsConfig         `json:"paths" yaml:"paths"`
	Summarization SummarizationConfig `json:"summarization" yaml:"summarization"`
}

// runIDParams are the scraper parameters that scope a conference run, in
// the order they contribute to the run identifier.
var runIDParams = []string{"conference", "year", "track", "submission_type"}

// RunID derives a deterministic identifier for the conference run from the
// platform and its filter parameters. Records in the ledger are keyed by
// (RunID, title).
func (c RunConfig) RunID() string {
	parts := []string{c.Scraping.Platform}
	for _, k := range runIDParams {
		if v := c.Scraping.Params[k]; v != "" {
			parts = append(parts, v)
		}
	}
	if v := c.Scraping.Params["venue_id"]; v != "" {
		parts = append(parts, v)
	}
	id := slugify(strings.Join(parts, "-"))
	if id == "" {
		sum := sha256.Sum256([]byte(fmt.Sprint(c.Scraping)))
		id = fmt.Sprintf("run-%x", sum[:4])
	}
	return id
}

// slugify lowercases s and replaces every non-alphanumeric run with a
// single hyphen.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}
