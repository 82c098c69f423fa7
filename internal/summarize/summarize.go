// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summarize produces paper summaries through hosted language-model
// APIs. A provider is picked from configuration; every provider satisfies
// the Summarizer interface so the pipeline never knows which one it got.
package summarize

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cast"
	"golang.org/x/time/rate"

	"github.com/pdiddy/pubsum/internal/httputil"
	"github.com/pdiddy/pubsum/internal/secrets"
	"github.com/pdiddy/pubsum/pkg/types"
)

// Summarizer turns a fully assembled prompt into a summary.
type Summarizer interface {
	// Name returns the provider identifier.
	Name() string
	// Summarize sends the prompt and returns the model's reply.
	Summarize(ctx context.Context, prompt string) (string, error)
}

// ProviderError reports a failed provider call. Status is the HTTP status
// when the provider answered, zero when the request itself failed.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
func (e *ProviderError) Retryable() bool {
	return e.Status == 0 || httputil.RetryableStatus(e.Status)
}

// defaultMaxRetries bounds provider retries when the config leaves it unset.
const defaultMaxRetries = 4

// retryBase is the initial backoff between provider retries. Package var so
// tests can shrink it.
var retryBase = time.Second

// New builds the configured provider. The API key is taken from the config
// when set, otherwise from the loaded secrets. hostInterval is the minimum
// spacing between requests to the provider host, enforced cumulatively
// across all workers (zero disables spacing); retries wait on the same
// limiter, so backoff never multiplies across workers.
func New(cfg types.SummarizationConfig, keys map[string]string, hostInterval time.Duration) (Summarizer, error) {
	client := &http.Client{Timeout: 5 * time.Minute}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var limiter *rate.Limiter
	if hostInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(hostInterval), 1)
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai", "local":
		key := cfg.APIKey
		if key == "" {
			key = keys[secrets.KeyOpenAI]
		}
		if key == "" && strings.ToLower(cfg.Provider) != "local" {
			return nil, fmt.Errorf("no API key for provider %q", cfg.Provider)
		}
		base := cfg.BaseURL
		if base == "" {
			if strings.ToLower(cfg.Provider) == "local" {
				return nil, fmt.Errorf("provider local requires base_url")
			}
			base = openAIDefaultBase
		}
		return &openAIClient{
			client:     client,
			limiter:    limiter,
			baseURL:    strings.TrimRight(base, "/"),
			apiKey:     key,
			model:      cfg.Model,
			params:     cfg.Param,
			maxRetries: maxRetries,
		}, nil
	case "anthropic", "claude":
		key := cfg.APIKey
		if key == "" {
			key = keys[secrets.KeyAnthropic]
		}
		if key == "" {
			return nil, fmt.Errorf("no API key for provider %q", cfg.Provider)
		}
		base := cfg.BaseURL
		if base == "" {
			base = anthropicDefaultBase
		}
		return &anthropicClient{
			client:     client,
			limiter:    limiter,
			baseURL:    strings.TrimRight(base, "/"),
			apiKey:     key,
			model:      cfg.Model,
			params:     cfg.Param,
			maxRetries: maxRetries,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// waitTurn blocks until the shared host limiter grants a slot. A nil
// limiter means spacing is disabled.
func waitTurn(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// BuildPrompt joins the configured prefix and suffix around the paper text.
func BuildPrompt(prefix, suffix, text string) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteString("\n\n")
	}
	b.WriteString(text)
	if suffix != "" {
		b.WriteString("\n\n")
		b.WriteString(suffix)
	}
	return b.String()
}

// Cap trims the text before it enters the prompt. capAt cuts everything from
// the first case-insensitive occurrence of the marker (empty marker means no
// marker cut); contentCap bounds the rune length (zero means unbounded). The
// earlier cut wins.
func Cap(text, capAt string, contentCap int) string {
	cut := len(text)
	if capAt != "" {
		if i := indexFold(text, capAt); i >= 0 {
			cut = i
		}
	}
	if contentCap > 0 {
		n := 0
		for i := range text {
			if n == contentCap {
				if i < cut {
					cut = i
				}
				break
			}
			n++
		}
	}
	return strings.TrimSpace(text[:cut])
}

// indexFold returns the byte offset in s of the first case-insensitive
// occurrence of substr, or -1. Offsets are found against s itself, never a
// lowered copy — lowering can change byte lengths (U+212A lowers to "k")
// and would misalign the cut.
func indexFold(s, substr string) int {
	if substr == "" {
		return -1
	}
	for i := range s {
		if hasFoldPrefix(s[i:], substr) {
			return i
		}
	}
	return -1
}

func hasFoldPrefix(s, prefix string) bool {
	for _, pr := range prefix {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 {
			return false
		}
		if unicode.ToLower(r) != unicode.ToLower(pr) {
			return false
		}
		s = s[size:]
	}
	return true
}

// callWithRetry runs call, retrying retryable provider errors with doubling
// backoff.
func callWithRetry(ctx context.Context, maxRetries int, call func() (string, error)) (string, error) {
	delay := retryBase
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		out, err := call()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if pe, ok := err.(*ProviderError); ok && !pe.Retryable() {
			return "", err
		}
	}
	return "", lastErr
}

// paramInt reads an integer tuning parameter, falling back when absent.
func paramInt(params map[string]any, key string, fallback int) int {
	if v, ok := params[key]; ok {
		return cast.ToInt(v)
	}
	return fallback
}

// paramFloat reads a float tuning parameter, falling back when absent.
func paramFloat(params map[string]any, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		return cast.ToFloat64(v)
	}
	return fallback
}
