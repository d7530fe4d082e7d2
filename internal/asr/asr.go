// Package asr drives the asynchronous speech-to-text collaborator: submit a
// segment URL, poll for completion, download the text.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"podcast-scribe-go/internal/logger"
)

// ReasonCode is the structured failure reason reported by the ASR service.
type ReasonCode string

const (
	ReasonNoSpeech ReasonCode = "no_speech"
	ReasonTimeout  ReasonCode = "timeout"
	ReasonInternal ReasonCode = "internal"
)

// Error is a classified ASR failure.
type Error struct {
	Reason  ReasonCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("asr %s: %s", e.Reason, e.Message)
}

// IsNoSpeech reports whether err means the audio carried no usable speech.
// The structured reason code is authoritative; matching on the message text
// is kept only as a fallback for providers that omit the code.
func IsNoSpeech(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Reason == ReasonNoSpeech {
			return true
		}
		msg := strings.ToLower(ae.Message)
		return strings.Contains(msg, "no speech") || strings.Contains(msg, "no usable text")
	}
	return false
}

// Transcriber is what the transcription stage needs from this client.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL, language string) (string, error)
}

type Client struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
	maxPolls     int
	log          *logger.Logger
}

func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("ASR_URL not set")
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 12 * time.Second},
		pollInterval: 2 * time.Second,
		maxPolls:     30,
		log:          logger.New(),
	}, nil
}

type submitResponse struct {
	Code int `json:"code"`
	Data struct {
		JobID   string `json:"job_id"`
		Status  string `json:"status"`
		TextURL string `json:"text_url"`
	} `json:"data"`
	Reason string `json:"reason,omitempty"`
}

type statusResponse struct {
	Code int `json:"code"`
	Data struct {
		Status     string `json:"status"` // queued, processing, success, failed
		TextURL    string `json:"text_url"`
		ReasonCode string `json:"reason_code,omitempty"`
	} `json:"data"`
	Reason string `json:"reason,omitempty"`
}

// Transcribe runs the full submit/poll/download round for one segment.
func (c *Client) Transcribe(ctx context.Context, audioURL, language string) (string, error) {
	log := c.log.WithField("module", "asr").WithField("audio_url", audioURL)

	jobID, existingURL, err := c.submit(ctx, audioURL, language)
	if err != nil {
		return "", err
	}
	if existingURL != "" {
		log.WithField("text_url", existingURL).Info("transcription already exists")
		return c.download(ctx, existingURL)
	}

	textURL, err := c.poll(ctx, jobID)
	if err != nil {
		return "", err
	}
	log.WithField("text_url", textURL).Debug("transcription completed")
	return c.download(ctx, textURL)
}

func (c *Client) submit(ctx context.Context, audioURL, language string) (string, string, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	_ = w.WriteField("audioUrl", audioURL)
	if language != "" {
		_ = w.WriteField("language", language)
	}
	_ = w.Close()

	form := b.Bytes()
	var resp submitResponse
	err := c.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", bytes.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}, &resp)
	if err != nil {
		return "", "", err
	}
	if resp.Code != 200 {
		return "", "", fmt.Errorf("asr submit error: code=%d reason=%s", resp.Code, resp.Reason)
	}
	if resp.Data.TextURL != "" && strings.EqualFold(resp.Data.Status, "success") {
		return "", resp.Data.TextURL, nil
	}
	return resp.Data.JobID, "", nil
}

func (c *Client) poll(ctx context.Context, jobID string) (string, error) {
	base := c.baseURL + "/getstatus"
	for i := 0; i < c.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}

		u, _ := url.Parse(base)
		q := u.Query()
		q.Set("jobId", jobID)
		u.RawQuery = q.Encode()

		var s statusResponse
		err := c.doJSON(ctx, func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		}, &s)
		if err != nil {
			continue
		}
		switch s.Data.Status {
		case "success":
			return s.Data.TextURL, nil
		case "queued", "processing":
			continue
		case "failed":
			return "", &Error{Reason: classify(s.Data.ReasonCode, s.Reason), Message: s.Reason}
		}
	}
	return "", &Error{Reason: ReasonTimeout, Message: fmt.Sprintf("job %s did not complete within %d polls", jobID, c.maxPolls)}
}

func (c *Client) download(ctx context.Context, textURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, textURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcript download failed: %s", string(b))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func classify(code, message string) ReasonCode {
	switch ReasonCode(code) {
	case ReasonNoSpeech, ReasonTimeout, ReasonInternal:
		return ReasonCode(code)
	}
	msg := strings.ToLower(message)
	if strings.Contains(msg, "no speech") || strings.Contains(msg, "no usable text") {
		return ReasonNoSpeech
	}
	return ReasonInternal
}

func (c *Client) doJSON(ctx context.Context, newReq func() (*http.Request, error), target interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 12 * time.Second
	var lastErr error
	op := func() error {
		req, err := newReq()
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("asr server error: %s", string(body))
			return lastErr
		}
		if len(body) == 0 {
			lastErr = fmt.Errorf("empty body")
			return lastErr
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
