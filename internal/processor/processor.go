// Package processor runs one task's pipeline end to end: resolve the page,
// segment the audio, transcribe, clean the transcript into a script, and
// condense it into a report. Each stage's artifact lands in the cache as soon
// as it exists, so a retried or re-submitted task resumes instead of
// repeating finished work.
package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"podcast-scribe-go/internal/cache"
	"podcast-scribe-go/internal/logger"
	"podcast-scribe-go/internal/media"
	"podcast-scribe-go/internal/resolver"
	"podcast-scribe-go/internal/transform"
	"podcast-scribe-go/internal/types"
)

// Segmenter is the audio-splitting stage contract.
type Segmenter interface {
	Segment(ctx context.Context, audioURL string, segmentSeconds float64) ([]types.Segment, error)
}

// Transcriber is the transcription stage contract.
type Transcriber interface {
	Transcribe(ctx context.Context, segments []types.Segment, language string) (string, []string, error)
}

// Transformer is the text-transformation stage contract.
type Transformer interface {
	Transform(ctx context.Context, input string, p transform.Profile) (*transform.Result, error)
}

type Processor struct {
	resolver  resolver.Resolver
	segmenter Segmenter
	stt       Transcriber
	engine    Transformer
	store     *cache.Store

	segmentSeconds float64
	log            *logger.Logger
}

func New(res resolver.Resolver, seg Segmenter, stt Transcriber, engine Transformer, store *cache.Store, segmentSeconds float64) *Processor {
	if segmentSeconds <= 0 || segmentSeconds > media.ProviderMaxSegmentSeconds {
		segmentSeconds = 170
	}
	return &Processor{
		resolver:       res,
		segmenter:      seg,
		stt:            stt,
		engine:         engine,
		store:          store,
		segmentSeconds: segmentSeconds,
		log:            logger.New(),
	}
}

// Process executes the pipeline for one task. Artifacts produced before a
// failure stay cached; nothing is rolled back.
func (p *Processor) Process(ctx context.Context, task types.Task) (*types.TaskResult, map[string]types.StageMetric, error) {
	log := p.log.WithTask(task.ID).WithField("module", "processor").WithField("page_url", task.Payload.PageURL)
	key := cache.Key(task.Payload.PageURL)
	metrics := make(map[string]types.StageMetric)
	result := &types.TaskResult{}

	cached := p.store.Get(key)
	if cached.Complete() {
		log.Info("all artifacts cached, skipping pipeline")
		return &types.TaskResult{
			Title:      cached.Metadata.Title,
			AudioURL:   cached.Metadata.AudioURL,
			Transcript: *cached.Transcript,
			Script:     *cached.Script,
			Report:     *cached.Report,
		}, metrics, nil
	}
	if cached == nil {
		cached = &cache.Entry{}
	}

	// resolve
	meta, err := p.resolveStage(ctx, key, cached, task.Payload.PageURL, metrics)
	if err != nil {
		return nil, metrics, err
	}
	result.Title = meta.Title
	result.AudioURL = meta.AudioURL

	// segment + transcribe
	transcript, err := p.transcriptStage(ctx, key, cached, meta.AudioURL, task.Payload.Options, metrics)
	if err != nil {
		return nil, metrics, err
	}
	result.Transcript = transcript

	// clean
	script, issues, err := p.transformStage(ctx, "clean", transcript, transform.CleanProfile(), metrics)
	if err != nil {
		return nil, metrics, err
	}
	p.store.Upsert(key, cache.Entry{Script: cache.String(script)})
	result.Script = script
	result.Issues = append(result.Issues, issues...)

	// report
	report, issues, err := p.transformStage(ctx, "report", script, transform.ReportProfile(), metrics)
	if err != nil {
		return nil, metrics, err
	}
	p.store.Upsert(key, cache.Entry{Report: cache.String(report)})
	result.Report = report
	result.Issues = append(result.Issues, issues...)

	log.WithField("issues", len(result.Issues)).Info("pipeline finished")
	return result, metrics, nil
}

func (p *Processor) resolveStage(ctx context.Context, key string, cached *cache.Entry, pageURL string, metrics map[string]types.StageMetric) (types.Metadata, error) {
	if cached.Metadata != nil && cached.Metadata.AudioURL != "" {
		p.log.WithField("page_url", pageURL).Info("metadata served from cache")
		return *cached.Metadata, nil
	}

	start := time.Now()
	meta, err := p.resolver.Resolve(ctx, pageURL)
	metrics["resolve"] = types.StageMetric{DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		return types.Metadata{}, fmt.Errorf("resolve stage: %w", err)
	}
	m := meta
	p.store.Upsert(key, cache.Entry{Metadata: &m})
	cached.Metadata = &m
	return meta, nil
}

func (p *Processor) transcriptStage(ctx context.Context, key string, cached *cache.Entry, audioURL string, opts types.TaskOptions, metrics map[string]types.StageMetric) (string, error) {
	if cached.Transcript != nil && strings.TrimSpace(*cached.Transcript) != "" {
		p.log.Info("transcript served from cache")
		return *cached.Transcript, nil
	}

	segSeconds := p.segmentSeconds
	if opts.SegmentSeconds > 0 && opts.SegmentSeconds <= media.ProviderMaxSegmentSeconds {
		segSeconds = opts.SegmentSeconds
	}

	start := time.Now()
	segments, err := p.segmenter.Segment(ctx, audioURL, segSeconds)
	metrics["segment"] = types.StageMetric{
		DurationMs: time.Since(start).Milliseconds(),
		Items:      len(segments),
	}
	if err != nil {
		return "", fmt.Errorf("segment stage: %w", err)
	}

	start = time.Now()
	transcript, texts, err := p.stt.Transcribe(ctx, segments, opts.Language)
	metrics["transcribe"] = types.StageMetric{
		DurationMs:  time.Since(start).Milliseconds(),
		Items:       len(texts),
		OutputChars: len(transcript),
	}
	if err != nil {
		return "", fmt.Errorf("transcribe stage: %w", err)
	}

	p.store.Upsert(key, cache.Entry{Transcript: cache.String(transcript)})
	cached.Transcript = cache.String(transcript)
	return transcript, nil
}

func (p *Processor) transformStage(ctx context.Context, name, input string, profile transform.Profile, metrics map[string]types.StageMetric) (string, []string, error) {
	start := time.Now()
	res, err := p.engine.Transform(ctx, input, profile)
	if err != nil {
		metrics[name] = types.StageMetric{DurationMs: time.Since(start).Milliseconds()}
		return "", nil, fmt.Errorf("%s stage: %w", name, err)
	}
	metrics[name] = types.StageMetric{
		DurationMs:  time.Since(start).Milliseconds(),
		Items:       res.Chunks,
		InputChars:  len(input),
		OutputChars: len(res.Output),
		Ratio:       res.Validation.Ratio,
	}

	// validation issues already carry the profile name, which matches the
	// stage name; only gap notes need the prefix added here
	issues := make([]string, 0, len(res.Validation.Issues)+len(res.Gaps))
	issues = append(issues, res.Validation.Issues...)
	for _, gap := range res.Gaps {
		issues = append(issues, fmt.Sprintf("%s: chunk %d omitted after repeated failures", name, gap))
	}
	return res.Output, issues, nil
}
