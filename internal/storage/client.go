// Package storage is the thin client for the object storage collaborator.
// Only the call contract matters here; the storage service itself is
// external.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"podcast-scribe-go/internal/logger"
	"podcast-scribe-go/internal/retry"
)

// Uploader is what the segmenter needs from object storage.
type Uploader interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("STORAGE_URL not set")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     logger.New(),
	}, nil
}

type uploadResponse struct {
	Code int    `json:"code"`
	URL  string `json:"url"`
	Msg  string `json:"msg,omitempty"`
}

// Put uploads data under path and returns the public URL.
func (c *Client) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	log := c.log.WithField("module", "storage").WithField("path", path)

	cfg := retry.Config{
		MaxAttempts: 3,
		Backoff:     retry.Exponential(time.Second),
		OnRetry: func(attempt int, err error, wait time.Duration) {
			log.WithField("attempt", attempt).WithField("error", err.Error()).Warn("upload retry")
		},
	}
	return retry.Do(ctx, cfg, func() (string, error) {
		return c.upload(ctx, path, data, contentType)
	})
}

func (c *Client) upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	_ = w.WriteField("path", path)
	fw, err := w.CreateFormFile("file", path)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	_ = w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &b)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("X-Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("storage server error: %s", string(body))
	}
	if resp.StatusCode >= 400 {
		return "", retry.Permanent(fmt.Errorf("storage rejected upload: %s", string(body)))
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("storage decode error: %v body=%s", err, string(body))
	}
	if parsed.URL == "" {
		return "", fmt.Errorf("storage returned no url: %s", string(body))
	}
	return parsed.URL, nil
}
