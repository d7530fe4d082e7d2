// Package llm calls the model gateway the transforms run through. The
// gateway speaks the common chat-completion shape.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"podcast-scribe-go/internal/logger"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Options are the per-call model parameters.
type Options struct {
	Temperature     float64
	MaxOutputTokens int
}

// Invoker is what the transformation engine needs from the gateway.
type Invoker interface {
	Invoke(ctx context.Context, messages []Message, opts Options) (string, error)
}

type Client struct {
	gatewayURL string
	apiKey     string
	model      string
	http       *http.Client
	log        *logger.Logger
}

func NewClient(gatewayURL, apiKey, model string) (*Client, error) {
	if gatewayURL == "" || apiKey == "" {
		return nil, errors.New("llm gateway not configured")
	}
	return &Client{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		model:      model,
		http:       &http.Client{Timeout: 90 * time.Second},
		log:        logger.New(),
	}, nil
}

// Invoke sends the messages and returns the generated text with markdown
// fences stripped. Server errors are retried with exponential backoff;
// client errors are permanent.
func (c *Client) Invoke(ctx context.Context, messages []Message, opts Options) (string, error) {
	log := c.log.WithField("module", "llm")

	reqBody := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": opts.Temperature,
	}
	if opts.MaxOutputTokens > 0 {
		reqBody["max_tokens"] = opts.MaxOutputTokens
	}
	data, _ := json.Marshal(reqBody)

	var out string
	var lastErr error

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL, bytes.NewReader(data))
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			log.WithError(err).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			lastErr = fmt.Errorf("llm rejected request: %s", string(body))
			return backoff.Permanent(lastErr)
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("llm server error: %s", string(body))
			return lastErr
		}

		content, err := contentFromChoices(body)
		if err != nil {
			lastErr = err
			return lastErr
		}
		out = StripFences(content)
		return nil
	}

	// kept short: callers layer their own retry budget on top
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return "", fmt.Errorf("llm invoke failed: %w", lastErr)
		}
		return "", err
	}
	return out, nil
}

// contentFromChoices reads the openai-style choices[0].message.content.
func contentFromChoices(body []byte) (string, error) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unexpected llm response: %s", string(body))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("llm returned no content: %s", string(body))
	}
	return parsed.Choices[0].Message.Content, nil
}

// StripFences removes the markdown code fences models like to wrap plain
// output in.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
