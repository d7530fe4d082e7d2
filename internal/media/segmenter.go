// Package media splits a source audio into bounded-length segments and
// uploads each one for the transcription stage. ffprobe/ffmpeg do the
// duration probing and extraction.
package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"podcast-scribe-go/internal/logger"
	"podcast-scribe-go/internal/pool"
	"podcast-scribe-go/internal/storage"
	"podcast-scribe-go/internal/types"
)

// ProviderMaxSegmentSeconds is the ASR provider's hard ceiling on segment
// duration. The working segment length never exceeds it.
const ProviderMaxSegmentSeconds = 180

// Span is a [Start, End) range in seconds of the source duration.
type Span struct {
	Start float64
	End   float64
}

// PlanSegments computes contiguous spans covering exactly [0, duration).
// The segment length is clamped to the provider ceiling; the last span may
// be shorter than the nominal length.
func PlanSegments(duration, segmentSeconds float64) []Span {
	if duration <= 0 {
		return nil
	}
	if segmentSeconds <= 0 || segmentSeconds > ProviderMaxSegmentSeconds {
		segmentSeconds = ProviderMaxSegmentSeconds
	}
	count := int(math.Ceil(duration / segmentSeconds))
	spans := make([]Span, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * segmentSeconds
		end := math.Min(start+segmentSeconds, duration)
		spans = append(spans, Span{Start: start, End: end})
	}
	return spans
}

type Segmenter struct {
	store    storage.Uploader
	workDir  string
	poolSize int
	log      *logger.Logger
}

func NewSegmenter(store storage.Uploader, workDir string, poolSize int) *Segmenter {
	if workDir == "" {
		workDir = os.TempDir()
	}
	if poolSize < 1 {
		poolSize = 2
	}
	return &Segmenter{store: store, workDir: workDir, poolSize: poolSize, log: logger.New()}
}

// Segment probes the source, plans the spans, then extracts and uploads
// every span through the bounded pool. Output order matches span index.
func (s *Segmenter) Segment(ctx context.Context, audioURL string, segmentSeconds float64) ([]types.Segment, error) {
	log := s.log.WithField("module", "segmenter").WithField("audio_url", audioURL)

	duration, err := Probe(ctx, audioURL)
	if err != nil {
		return nil, fmt.Errorf("probe duration: %w", err)
	}
	spans := PlanSegments(duration, segmentSeconds)
	if len(spans) == 0 {
		return nil, fmt.Errorf("source has no duration: %s", audioURL)
	}
	log.WithField("duration_sec", duration).WithField("segments", len(spans)).Info("segment plan ready")

	batch := uuid.New().String()
	return pool.Run(ctx, spans, s.poolSize, func(ctx context.Context, i int, span Span) (types.Segment, error) {
		localPath := filepath.Join(s.workDir, fmt.Sprintf("%s_%03d.mp3", batch, i))
		defer os.Remove(localPath)

		if err := extract(ctx, audioURL, span, localPath); err != nil {
			return types.Segment{}, fmt.Errorf("extract segment %d: %w", i, err)
		}
		data, err := os.ReadFile(localPath)
		if err != nil {
			return types.Segment{}, fmt.Errorf("read segment %d: %w", i, err)
		}
		if len(data) == 0 {
			return types.Segment{}, fmt.Errorf("segment %d extracted empty payload [%.0f,%.0f)", i, span.Start, span.End)
		}

		remotePath := fmt.Sprintf("segments/%s/%03d.mp3", batch, i)
		url, err := s.store.Put(ctx, remotePath, data, "audio/mpeg")
		if err != nil {
			return types.Segment{}, fmt.Errorf("upload segment %d: %w", i, err)
		}
		return types.Segment{Index: i, Start: span.Start, End: span.End, URL: url}, nil
	})
}

// Probe returns the total duration of the source in seconds via ffprobe.
func Probe(ctx context.Context, src string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		src,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe output %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

// extract cuts one span out of the source into a local mp3.
// ffmpeg -y -ss start -t len -i src -acodec libmp3lame -ar 16000 -ac 1 out
func extract(ctx context.Context, src string, span Span, out string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-ss", fmt.Sprintf("%.3f", span.Start),
		"-t", fmt.Sprintf("%.3f", span.End-span.Start),
		"-i", src,
		"-acodec", "libmp3lame",
		"-ar", "16000",
		"-ac", "1",
		out,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}
