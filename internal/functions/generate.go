package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxPromptRunes = 4000

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

type GenerateResult struct {
	Text string `json:"text"`
}

// Completer proxies prompts to an upstream completion endpoint that accepts
// {"prompt"} and answers {"text"}.
type Completer struct {
	URL    string
	Key    string
	Client *http.Client
}

func NewCompleter(url, key string) *Completer {
	return &Completer{URL: url, Key: key, Client: &http.Client{Timeout: 60 * time.Second}}
}

func (c *Completer) Configured() bool {
	return c != nil && strings.TrimSpace(c.URL) != ""
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(GenerateRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Key != "" {
		req.Header.Set("Authorization", "Bearer "+c.Key)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("completion upstream status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", failf(NameGenerate, "completion rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out GenerateResult
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	return out.Text, nil
}

// Generate returns the generate function bound to a completer.
func Generate(c *Completer) Func {
	return func(ctx context.Context, _ Caller, body json.RawMessage) (any, error) {
		if !c.Configured() {
			return nil, failf(NameGenerate, "story generation is not configured")
		}
		var req GenerateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, failf(NameGenerate, "invalid body: %v", err)
		}
		prompt := strings.TrimSpace(req.Prompt)
		if prompt == "" {
			return nil, failf(NameGenerate, "prompt is required")
		}
		if len([]rune(prompt)) > maxPromptRunes {
			return nil, failf(NameGenerate, "prompt exceeds %d characters", maxPromptRunes)
		}
		text, err := c.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return GenerateResult{Text: text}, nil
	}
}
