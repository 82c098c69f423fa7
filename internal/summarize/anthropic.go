// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

const (
	anthropicDefaultBase = "https://api.anthropic.com"
	anthropicVersion     = "2023-06-01"

	// The messages API requires max_tokens; used when the config does not
	// set one.
	anthropicDefaultMaxTokens = 1024
)

type anthropicClient struct {
	client     *http.Client
	limiter    *rate.Limiter // shared per-host spacing, nil to disable
	baseURL    string
	apiKey     string
	model      string
	params     map[string]any
	maxRetries int
}

func (c *anthropicClient) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *anthropicClient) Summarize(ctx context.Context, prompt string) (string, error) {
	return callWithRetry(ctx, c.maxRetries, func() (string, error) {
		return c.complete(ctx, prompt)
	})
}

func (c *anthropicClient) complete(ctx context.Context, prompt string) (string, error) {
	if err := waitTurn(ctx, c.limiter); err != nil {
		return "", err
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   paramInt(c.params, "max_tokens", anthropicDefaultMaxTokens),
		Temperature: paramFloat(c.params, "temperature", 0.2),
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Status: resp.StatusCode, Err: err}
	}

	var parsed anthropicResponse
	if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil && parsed.Error != nil {
		err = fmt.Errorf("%s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		if err == nil {
			err = fmt.Errorf("unexpected status")
		}
		return "", &ProviderError{Provider: c.Name(), Status: resp.StatusCode, Err: err}
	}
	if len(parsed.Content) == 0 {
		return "", &ProviderError{Provider: c.Name(), Status: resp.StatusCode,
			Err: fmt.Errorf("response carried no content blocks")}
	}
	return parsed.Content[0].Text, nil
}
