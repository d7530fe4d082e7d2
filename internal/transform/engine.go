// Package transform pushes arbitrarily long text through a bounded-context,
// bounded-output model service. The same engine backs the transcript
// cleaning transform and the report transform; a Profile is all that
// differs.
package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"podcast-scribe-go/internal/llm"
	"podcast-scribe-go/internal/logger"
	"podcast-scribe-go/internal/pool"
	"podcast-scribe-go/internal/retry"
)

// Config tunes the engine independently of any profile.
type Config struct {
	Limits     Limits
	PoolSize   int
	Attempts   int
	Backoff    time.Duration
	OverlapPct int
}

func (c *Config) applyDefaults() {
	if c.Limits.MaxInputChars <= 0 {
		c.Limits.MaxInputChars = 24000
	}
	if c.Limits.MaxOutputChars <= 0 {
		c.Limits.MaxOutputChars = 8000
	}
	if c.PoolSize < 1 {
		c.PoolSize = 3
	}
	if c.Attempts < 1 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.OverlapPct <= 0 {
		c.OverlapPct = 12
	}
}

// Result is one finished transform pass.
type Result struct {
	Output     string
	Strategy   Strategy
	Chunks     int
	Gaps       []int
	Validation Validation
}

type Engine struct {
	invoker llm.Invoker
	cfg     Config
	log     *logger.Logger
}

func NewEngine(invoker llm.Invoker, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{invoker: invoker, cfg: cfg, log: logger.New()}
}

// Transform runs input through the profile's transform under the configured
// service limits. Ratio violations are recorded on the result, never raised
// as errors.
func (e *Engine) Transform(ctx context.Context, input string, p Profile) (*Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("transform: empty input")
	}

	strategy := SelectStrategy(len(input), p, e.cfg.Limits)
	log := e.log.WithField("module", "transform").
		WithField("profile", p.Name).
		WithField("strategy", strategy.String()).
		WithField("input_chars", len(input))
	log.Info("transform started")

	var (
		out        string
		gaps       []int
		chunkCount = 1
		extra      []string
	)

	switch strategy {
	case StrategyWhole:
		o, err := e.callChunk(ctx, p, "", input)
		if err != nil {
			return nil, fmt.Errorf("%s transform failed: %w", p.Name, err)
		}
		out = strings.TrimSpace(o)

	default:
		o, g, n, err := e.chunked(ctx, input, p)
		if err != nil {
			return nil, err
		}
		out, gaps, chunkCount = o, g, n

		if strategy == StrategyHybrid {
			consolidated, err := e.consolidate(ctx, p, out)
			if err != nil {
				log.WithField("error", err.Error()).Warn("consolidation pass failed, delivering merged section outputs")
				extra = append(extra, fmt.Sprintf("%s: consolidation pass failed: %v", p.Name, err))
			} else {
				out = consolidated
			}
		}
	}

	v := Validate(len(input), len(out), p)
	v.Issues = append(v.Issues, extra...)
	for _, issue := range v.Issues {
		log.Warn(issue)
	}
	log.WithField("output_chars", len(out)).
		WithField("chunks", chunkCount).
		WithField("gaps", len(gaps)).
		WithField("ratio", fmt.Sprintf("%.2f", v.Ratio)).
		Info("transform finished")

	return &Result{Output: out, Strategy: strategy, Chunks: chunkCount, Gaps: gaps, Validation: v}, nil
}

// chunked splits the input, transforms every chunk under the pool and retry
// budgets, and merges the outputs back in chunk order.
func (e *Engine) chunked(ctx context.Context, input string, p Profile) (string, []int, int, error) {
	size := ChunkSize(p, e.cfg.Limits, e.cfg.OverlapPct)
	overlap := size * e.cfg.OverlapPct / 100
	chunks := SplitChunks(input, size, overlap)

	outputs := make([]string, len(chunks))
	gapped := make([]bool, len(chunks))

	registry := ""
	rest := chunks
	if p.RolePrompt != "" && len(chunks) > 1 {
		// The first chunk is used twice: once for its own output, once to
		// derive the speaker registry every later chunk sees.
		text, gap, err := e.transformChunk(ctx, p, "", chunks[0], input)
		if err != nil {
			return "", nil, 0, err
		}
		outputs[0], gapped[0] = text, gap
		registry = e.deriveRegistry(ctx, p, chunks[0].Text)
		rest = chunks[1:]
	}

	_, err := pool.Run(ctx, rest, e.cfg.PoolSize, func(ctx context.Context, _ int, c Chunk) (struct{}, error) {
		text, gap, err := e.transformChunk(ctx, p, registry, c, input)
		if err != nil {
			return struct{}{}, err
		}
		outputs[c.Index], gapped[c.Index] = text, gap
		return struct{}{}, nil
	})
	if err != nil {
		return "", nil, 0, err
	}

	var gaps []int
	ordered := make([]string, 0, len(chunks))
	for i := range outputs {
		if gapped[i] {
			gaps = append(gaps, i)
			continue
		}
		ordered = append(ordered, outputs[i])
	}

	// A single chunk saw no boundary, so there is no overlap to elide and no
	// repetition to dedupe; touching the output would diverge from the whole
	// strategy on the same input.
	var merged string
	switch {
	case len(ordered) == 0:
		merged = ""
	case len(chunks) == 1:
		merged = ordered[0]
	default:
		merged = DedupeParagraphs(MergeOutputs(ordered))
	}
	return merged, gaps, len(chunks), nil
}

// transformChunk runs one chunk through the model and applies the profile's
// fallback once the retry budget is exhausted. Only context errors
// propagate.
func (e *Engine) transformChunk(ctx context.Context, p Profile, registry string, c Chunk, input string) (string, bool, error) {
	out, err := e.callChunk(ctx, p, registry, c.Text)
	if err == nil {
		return strings.TrimSpace(out), false, nil
	}
	if ctx.Err() != nil {
		return "", false, err
	}

	log := e.log.WithField("module", "transform").WithField("profile", p.Name).WithField("chunk", c.Index)
	if p.Fallback == FallbackPreserve {
		log.WithField("error", err.Error()).Warn("chunk transform exhausted retries, substituting original text")
		return strings.TrimSpace(c.Body(input)), false, nil
	}
	log.WithField("error", err.Error()).Warn("chunk transform exhausted retries, recording gap")
	return "", true, nil
}

func (e *Engine) callChunk(ctx context.Context, p Profile, registry, text string) (string, error) {
	sys := p.SystemPrompt
	if registry != "" {
		sys += "\n\nSpeaker registry:\n" + registry
	}
	return e.invoke(ctx, p.Name, []llm.Message{
		{Role: "system", Content: sys},
		{Role: "user", Content: text},
	}, llm.Options{Temperature: p.Temperature, MaxOutputTokens: p.MaxOutputTokens})
}

// deriveRegistry asks the model for the speaker roles visible in the first
// chunk. Failures only cost label consistency, so they are logged and
// swallowed.
func (e *Engine) deriveRegistry(ctx context.Context, p Profile, firstChunk string) string {
	reg, err := e.invoke(ctx, p.Name+"-roles", []llm.Message{
		{Role: "system", Content: p.RolePrompt},
		{Role: "user", Content: firstChunk},
	}, llm.Options{Temperature: 0, MaxOutputTokens: 512})
	if err != nil {
		e.log.WithField("module", "transform").WithField("error", err.Error()).Warn("role registry derivation failed")
		return ""
	}
	return strings.TrimSpace(reg)
}

func (e *Engine) consolidate(ctx context.Context, p Profile, merged string) (string, error) {
	out, err := e.invoke(ctx, p.Name+"-consolidate", []llm.Message{
		{Role: "system", Content: p.ConsolidatePrompt},
		{Role: "user", Content: merged},
	}, llm.Options{Temperature: p.Temperature, MaxOutputTokens: p.MaxOutputTokens})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (e *Engine) invoke(ctx context.Context, label string, messages []llm.Message, opts llm.Options) (string, error) {
	cfg := retry.Config{
		MaxAttempts: e.cfg.Attempts,
		Backoff:     retry.Exponential(e.cfg.Backoff),
		OnRetry: func(attempt int, err error, wait time.Duration) {
			e.log.WithField("module", "transform").
				WithField("call", label).
				WithField("attempt", attempt).
				WithField("error", err.Error()).Warn("model call retry")
		},
	}
	return retry.Do(ctx, cfg, func() (string, error) {
		return e.invoker.Invoke(ctx, messages, opts)
	})
}
