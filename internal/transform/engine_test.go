package transform

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"podcast-scribe-go/internal/llm"
)

// fakeInvoker scripts model behavior per (system, user) pair.
type fakeInvoker struct {
	mu      sync.Mutex
	systems []string
	fn      func(system, user string) (string, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	system, user := messages[0].Content, messages[1].Content
	f.mu.Lock()
	f.systems = append(f.systems, system)
	f.mu.Unlock()
	return f.fn(system, user)
}

func echoUpper(system, user string) (string, error) {
	return strings.ToUpper(user), nil
}

func testEngine(f *fakeInvoker, limits Limits) *Engine {
	return NewEngine(f, Config{Limits: limits, PoolSize: 2, Attempts: 3, Backoff: time.Millisecond, OverlapPct: 12})
}

func TestTransformWholeStrategy(t *testing.T) {
	f := &fakeInvoker{fn: echoUpper}
	e := testEngine(f, Limits{MaxInputChars: 10000, MaxOutputChars: 9800})

	input := "a short transcript. nothing fancy."
	res, err := e.Transform(context.Background(), input, CleanProfile())
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if res.Strategy != StrategyWhole {
		t.Fatalf("strategy = %s, want whole", res.Strategy)
	}
	if res.Output != strings.ToUpper(input) {
		t.Fatalf("output = %q", res.Output)
	}
	if res.Chunks != 1 || len(res.Gaps) != 0 {
		t.Errorf("chunks=%d gaps=%v", res.Chunks, res.Gaps)
	}
}

func TestTransformWholeMatchesSingleChunk(t *testing.T) {
	// An input short enough for the whole strategy must produce the same
	// output the chunked path produces when it degenerates to one chunk.
	f := &fakeInvoker{fn: echoUpper}
	e := testEngine(f, Limits{MaxInputChars: 10000, MaxOutputChars: 9800})

	input := "first paragraph of speech.\n\nsecond paragraph of speech."
	whole, err := e.Transform(context.Background(), input, CleanProfile())
	if err != nil {
		t.Fatalf("whole transform: %v", err)
	}

	chunkedOut, gaps, n, err := e.chunked(context.Background(), input, CleanProfile())
	if err != nil {
		t.Fatalf("chunked transform: %v", err)
	}
	if n != 1 || len(gaps) != 0 {
		t.Fatalf("chunks=%d gaps=%v, want exactly one chunk", n, gaps)
	}
	if chunkedOut != whole.Output {
		t.Fatalf("single-chunk output %q differs from whole output %q", chunkedOut, whole.Output)
	}
}

func TestTransformSingleChunkKeepsRepeatedParagraphs(t *testing.T) {
	// a speaker genuinely repeating a line must survive the single-chunk
	// path exactly as it survives the whole path
	f := &fakeInvoker{fn: func(system, user string) (string, error) {
		return "He said it twice.\n\nHe said it twice.\n\nThen he moved on.", nil
	}}
	e := testEngine(f, Limits{MaxInputChars: 10000, MaxOutputChars: 9800})

	input := "a short transcript where something is said twice."
	whole, err := e.Transform(context.Background(), input, CleanProfile())
	if err != nil {
		t.Fatalf("whole transform: %v", err)
	}
	if strings.Count(whole.Output, "He said it twice.") != 2 {
		t.Fatalf("whole path lost the repeat:\n%s", whole.Output)
	}

	chunkedOut, gaps, n, err := e.chunked(context.Background(), input, CleanProfile())
	if err != nil {
		t.Fatalf("chunked transform: %v", err)
	}
	if n != 1 || len(gaps) != 0 {
		t.Fatalf("chunks=%d gaps=%v, want exactly one chunk", n, gaps)
	}
	if chunkedOut != whole.Output {
		t.Fatalf("single-chunk output %q differs from whole output %q", chunkedOut, whole.Output)
	}
}

func TestTransformChunkedPreservesOrder(t *testing.T) {
	f := &fakeInvoker{fn: echoUpper}
	e := testEngine(f, Limits{MaxInputChars: 400, MaxOutputChars: 380})

	input := buildText(20)
	res, err := e.Transform(context.Background(), input, CleanProfile())
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if res.Strategy != StrategyChunked {
		t.Fatalf("strategy = %s, want chunked", res.Strategy)
	}
	if res.Chunks < 2 {
		t.Fatalf("chunks = %d, want several", res.Chunks)
	}
	if got := strings.ToLower(res.Output); !strings.Contains(got, "one sentence here.") {
		t.Fatalf("output lost content:\n%s", res.Output)
	}
}

func TestTransformPassesRoleRegistry(t *testing.T) {
	f := &fakeInvoker{}
	f.fn = func(system, user string) (string, error) {
		if strings.Contains(system, "list the speakers") {
			return "Host: asks questions\nGuest: answers", nil
		}
		return strings.ToUpper(user), nil
	}
	e := testEngine(f, Limits{MaxInputChars: 400, MaxOutputChars: 380})

	if _, err := e.Transform(context.Background(), buildText(20), CleanProfile()); err != nil {
		t.Fatalf("transform: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	withRegistry := 0
	for _, sys := range f.systems {
		if strings.Contains(sys, "Speaker registry:") && strings.Contains(sys, "Host: asks questions") {
			withRegistry++
		}
	}
	if withRegistry == 0 {
		t.Fatal("no chunk call carried the speaker registry")
	}
}

func TestTransformPreservingFallbackKeepsContent(t *testing.T) {
	// One chunk permanently fails; the cleaning transform substitutes the
	// original text instead of losing it.
	var failed string
	var mu sync.Mutex
	f := &fakeInvoker{}
	f.fn = func(system, user string) (string, error) {
		if strings.Contains(system, "list the speakers") {
			return "", errors.New("registry unavailable")
		}
		mu.Lock()
		defer mu.Unlock()
		if failed == "" || failed == user {
			failed = user
			return "", errors.New("model overloaded")
		}
		return strings.ToUpper(user), nil
	}
	e := testEngine(f, Limits{MaxInputChars: 400, MaxOutputChars: 380})

	input := buildText(20)
	res, err := e.Transform(context.Background(), input, CleanProfile())
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(res.Gaps) != 0 {
		t.Fatalf("preserving transform recorded gaps: %v", res.Gaps)
	}
	// the failed chunk's body must appear verbatim (lowercase) in the output
	if !strings.Contains(res.Output, "one sentence here.") {
		t.Fatalf("original text of failed chunk missing:\n%s", res.Output)
	}
}

func TestTransformCondensingFallbackRecordsGap(t *testing.T) {
	// the first chunk to reach the model keeps failing until its retry
	// budget is gone; every other chunk succeeds
	var failed string
	var mu sync.Mutex
	f := &fakeInvoker{}
	f.fn = func(system, user string) (string, error) {
		if strings.Contains(system, "Integrate them") {
			return "integrated report", nil
		}
		mu.Lock()
		defer mu.Unlock()
		if failed == "" || failed == user {
			failed = user
			return "", errors.New("model overloaded")
		}
		return "section summary " + user[:8], nil
	}
	e := testEngine(f, Limits{MaxInputChars: 400, MaxOutputChars: 380})

	res, err := e.Transform(context.Background(), buildText(20), ReportProfile())
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if res.Strategy != StrategyHybrid {
		t.Fatalf("strategy = %s, want hybrid", res.Strategy)
	}
	if len(res.Gaps) != 1 {
		t.Fatalf("gaps = %v, want one recorded gap", res.Gaps)
	}
	if res.Output != "integrated report" {
		t.Fatalf("output = %q, want consolidation result", res.Output)
	}
}

func TestTransformHybridFallsBackWhenConsolidationFails(t *testing.T) {
	f := &fakeInvoker{}
	f.fn = func(system, user string) (string, error) {
		if strings.Contains(system, "Integrate them") {
			return "", errors.New("gateway down")
		}
		return "section output", nil
	}
	e := testEngine(f, Limits{MaxInputChars: 400, MaxOutputChars: 380})

	res, err := e.Transform(context.Background(), buildText(20), ReportProfile())
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if !strings.Contains(res.Output, "section output") {
		t.Fatalf("merged sections lost: %q", res.Output)
	}
	found := false
	for _, issue := range res.Validation.Issues {
		if strings.Contains(issue, "consolidation pass failed") {
			found = true
		}
	}
	if !found {
		t.Fatalf("consolidation failure not recorded: %v", res.Validation.Issues)
	}
}

func TestTransformRecordsRatioIssue(t *testing.T) {
	f := &fakeInvoker{fn: func(system, user string) (string, error) {
		return user[:len(user)/2], nil // heavy-handed "cleaning"
	}}
	e := testEngine(f, Limits{MaxInputChars: 10000, MaxOutputChars: 9800})

	res, err := e.Transform(context.Background(), buildText(4), CleanProfile())
	if err != nil {
		t.Fatalf("transform must not fail on ratio violations: %v", err)
	}
	if res.Validation.OK() {
		t.Fatal("0.5 ratio not flagged")
	}
}

func TestTransformEmptyInput(t *testing.T) {
	e := testEngine(&fakeInvoker{fn: echoUpper}, Limits{})
	if _, err := e.Transform(context.Background(), "   ", CleanProfile()); err == nil {
		t.Fatal("expected error for empty input")
	}
}
