package transform

// Strategy is how an input is pushed through the bounded service.
type Strategy int

const (
	// StrategyWhole sends the input in a single call.
	StrategyWhole Strategy = iota
	// StrategyChunked splits the input into overlapping chunks and merges
	// the per-chunk outputs.
	StrategyChunked
	// StrategyHybrid runs a chunked first pass, then one consolidation pass
	// over the concatenated outputs.
	StrategyHybrid
)

func (s Strategy) String() string {
	switch s {
	case StrategyWhole:
		return "whole"
	case StrategyChunked:
		return "chunked"
	case StrategyHybrid:
		return "hybrid"
	}
	return "unknown"
}

// Limits are the bounded service's context and output ceilings, measured in
// characters.
type Limits struct {
	MaxInputChars  int
	MaxOutputChars int
}

// SelectStrategy is a pure function of the input size, the profile and the
// service limits. Whole requires both the input and the expected output to
// fit; otherwise a profile with a consolidation pass goes hybrid and
// everything else goes chunked.
func SelectStrategy(inputLen int, p Profile, l Limits) Strategy {
	fitsInput := inputLen <= l.MaxInputChars
	fitsOutput := int(float64(inputLen)*p.ExpectedRatio) <= l.MaxOutputChars
	if fitsInput && fitsOutput {
		return StrategyWhole
	}
	if p.ConsolidatePrompt != "" {
		return StrategyHybrid
	}
	return StrategyChunked
}

// ChunkSize picks a chunk body length whose own expected output still fits
// the output bound. The leading overlap rides along in every chunk call, so
// the context cap is shared between body and overlap.
func ChunkSize(p Profile, l Limits, overlapPct int) int {
	size := l.MaxInputChars
	if overlapPct > 0 {
		size = size * 100 / (100 + overlapPct)
	}
	if p.ExpectedRatio > 0 {
		if byOutput := int(float64(l.MaxOutputChars) / p.ExpectedRatio); byOutput < size {
			size = byOutput
		}
	}
	if size < 1 {
		size = 1
	}
	return size
}
