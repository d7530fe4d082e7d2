// Package resolver calls the source resolver collaborator, which turns an
// arbitrary episode page URL into an audio URL plus metadata. The scraping
// heuristics live on the other side of this contract.
package resolver

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

	"podcast-scribe-go/internal/logger"
	"podcast-scribe-go/internal/retry"
	"podcast-scribe-go/internal/types"
)

// Resolver is what the processor needs from the metadata collaborator.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (types.Metadata, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("RESOLVER_URL not set")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 25 * time.Second},
		log:     logger.New(),
	}, nil
}

type resolveResponse struct {
	Code int            `json:"code"`
	Data types.Metadata `json:"data"`
	Msg  string         `json:"msg,omitempty"`
}

// Resolve returns the audio URL and metadata for an episode page.
func (c *Client) Resolve(ctx context.Context, pageURL string) (types.Metadata, error) {
	log := c.log.WithField("module", "resolver").WithField("page_url", pageURL)

	payload, _ := json.Marshal(map[string]string{"page_url": pageURL})
	cfg := retry.Config{
		MaxAttempts: 3,
		Backoff:     retry.Exponential(time.Second),
		OnRetry: func(attempt int, err error, wait time.Duration) {
			log.WithField("attempt", attempt).WithField("error", err.Error()).Warn("resolve retry")
		},
	}

	return retry.Do(ctx, cfg, func() (types.Metadata, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/resolve", bytes.NewReader(payload))
		if err != nil {
			return types.Metadata{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return types.Metadata{}, err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 500 {
			return types.Metadata{}, fmt.Errorf("resolver server error: %s", string(body))
		}
		if resp.StatusCode >= 400 {
			return types.Metadata{}, retry.Permanent(fmt.Errorf("resolver rejected page: %s", string(body)))
		}

		var parsed resolveResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return types.Metadata{}, fmt.Errorf("resolver decode error: %v body=%s", err, string(body))
		}
		if parsed.Data.AudioURL == "" {
			return types.Metadata{}, retry.Permanent(fmt.Errorf("no audio found on page: %s", parsed.Msg))
		}
		return parsed.Data, nil
	})
}
