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

const openAIDefaultBase = "https://api.openai.com/v1"

// openAIClient talks to any chat-completions compatible endpoint. The
// "local" provider reuses it against a self-hosted base URL.
type openAIClient struct {
	client     *http.Client
	limiter    *rate.Limiter // shared per-host spacing, nil to disable
	baseURL    string
	apiKey     string
	model      string
	params     map[string]any
	maxRetries int
}

func (c *openAIClient) Name() string { return "openai" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *openAIClient) Summarize(ctx context.Context, prompt string) (string, error) {
	return callWithRetry(ctx, c.maxRetries, func() (string, error) {
		return c.complete(ctx, prompt)
	})
}

func (c *openAIClient) complete(ctx context.Context, prompt string) (string, error) {
	if err := waitTurn(ctx, c.limiter); err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   paramInt(c.params, "max_tokens", 0),
		Temperature: paramFloat(c.params, "temperature", 0.2),
	})
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Provider: c.Name(), Status: resp.StatusCode, Err: err}
	}

	var parsed chatResponse
	if jsonErr := json.Unmarshal(raw, &parsed); jsonErr == nil && parsed.Error != nil {
		err = fmt.Errorf("%s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		if err == nil {
			err = fmt.Errorf("unexpected status")
		}
		return "", &ProviderError{Provider: c.Name(), Status: resp.StatusCode, Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Provider: c.Name(), Status: resp.StatusCode,
			Err: fmt.Errorf("response carried no choices")}
	}
	return parsed.Choices[0].Message.Content, nil
}
