// Package transcribe turns ordered audio segments into one merged transcript
// by fanning the ASR calls out through a bounded pool with per-segment
// retries.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"podcast-scribe-go/internal/asr"
	"podcast-scribe-go/internal/logger"
	"podcast-scribe-go/internal/pool"
	"podcast-scribe-go/internal/retry"
	"podcast-scribe-go/internal/types"
)

// ErrEmptyTranscript is returned when every segment resolved to empty text.
var ErrEmptyTranscript = errors.New("every segment produced empty text")

type Stage struct {
	asr      asr.Transcriber
	poolSize int
	attempts int
	backoff  time.Duration
	log      *logger.Logger
}

// NewStage wires the ASR collaborator into the transcription stage. The
// pool is deliberately small to respect provider rate limits.
func NewStage(client asr.Transcriber, poolSize, attempts int, backoff time.Duration) *Stage {
	if poolSize < 1 {
		poolSize = 3
	}
	if attempts < 1 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 1500 * time.Millisecond
	}
	return &Stage{asr: client, poolSize: poolSize, attempts: attempts, backoff: backoff, log: logger.New()}
}

// Transcribe runs every segment through the ASR collaborator and merges the
// per-segment texts in index order. A segment whose retries end in a
// no-speech classification becomes successfully empty instead of failing the
// stage; any other exhausted failure is fatal. An entirely empty transcript
// is not a usable result and fails outright.
func (s *Stage) Transcribe(ctx context.Context, segments []types.Segment, language string) (string, []string, error) {
	log := s.log.WithField("module", "transcribe")

	texts, err := pool.Run(ctx, segments, s.poolSize, func(ctx context.Context, i int, seg types.Segment) (string, error) {
		segLog := log.WithField("segment", seg.Index)

		cfg := retry.Config{
			MaxAttempts: s.attempts,
			Backoff:     retry.Scaled(s.backoff),
			OnRetry: func(attempt int, err error, wait time.Duration) {
				segLog.WithField("attempt", attempt).WithField("error", err.Error()).Warn("segment transcription retry")
			},
		}
		text, err := retry.Do(ctx, cfg, func() (string, error) {
			t, err := s.asr.Transcribe(ctx, seg.URL, language)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(t) == "" {
				return "", fmt.Errorf("asr returned empty text for segment %d", seg.Index)
			}
			return t, nil
		})
		if err != nil {
			if asr.IsNoSpeech(err) {
				segLog.Info("segment classified as silent, keeping empty text")
				return "", nil
			}
			return "", err
		}
		return text, nil
	})
	if err != nil {
		return "", nil, err
	}

	merged := Merge(texts)
	if merged == "" {
		return "", nil, ErrEmptyTranscript
	}
	log.WithField("segments", len(segments)).WithField("chars", len(merged)).Info("transcript merged")
	return merged, texts, nil
}

// Merge concatenates non-empty texts in index order, separated by a
// paragraph boundary.
func Merge(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
