package transform

// FallbackMode decides what happens to a chunk whose transform call exhausts
// its retry budget.
type FallbackMode int

const (
	// FallbackPreserve substitutes the chunk's original text so no content
	// is silently lost. Used by content-preserving transforms.
	FallbackPreserve FallbackMode = iota
	// FallbackSkip drops the chunk from the merge and records a gap rather
	// than fabricating placeholder text. Used by condensing transforms.
	FallbackSkip
)

// Profile is everything that distinguishes one transform from another:
// prompt intent, expected output/input ratio, model parameters and the
// chunk-failure policy. The same engine runs every profile.
type Profile struct {
	Name string

	// SystemPrompt states the transform's intent for every call.
	SystemPrompt string
	// RolePrompt, when set, derives a speaker role registry from the first
	// chunk; the registry is passed as context into every later chunk so
	// speaker labels stay consistent without a second global pass.
	RolePrompt string
	// ConsolidatePrompt, when set, enables the hybrid strategy: chunked
	// outputs are fed through one holistic consolidation pass.
	ConsolidatePrompt string

	// ExpectedRatio is the anticipated len(output)/len(input).
	ExpectedRatio float64
	// MinRatio/MaxRatio bound the acceptable actual ratio. Violations are
	// logged as issues, not failures.
	MinRatio float64
	MaxRatio float64

	Temperature     float64
	MaxOutputTokens int
	Fallback        FallbackMode
}

// CleanProfile is the content-preserving transform that turns a raw ASR
// transcript into a readable script.
func CleanProfile() Profile {
	return Profile{
		Name: "clean",
		SystemPrompt: `You are a transcript editor for long-form podcasts.
Rewrite the raw speech-to-text transcript into a readable script:
- fix recognition mistakes, punctuation and paragraph breaks
- label speakers consistently using the provided speaker registry when given
- keep every statement; do not summarize, do not drop content
Return only the cleaned script text.`,
		RolePrompt: `Read this transcript excerpt and list the speakers you can
identify, one per line, as "label: short description" (for example
"Host: leads the interview"). Return only the list.`,
		ExpectedRatio:   0.95,
		MinRatio:        0.90,
		MaxRatio:        1.00,
		Temperature:     0.2,
		MaxOutputTokens: 4096,
		Fallback:        FallbackPreserve,
	}
}

// ReportProfile is the condensing transform that turns a cleaned script into
// a structured episode report.
func ReportProfile() Profile {
	return Profile{
		Name: "report",
		SystemPrompt: `You are an analyst condensing a podcast transcript.
Write a report section for the given part of the transcript:
- the topics discussed, in order
- the key claims and takeaways, attributed to speakers
- notable quotes worth keeping verbatim
Be faithful to the text; never invent facts. Return only the report text.`,
		ConsolidatePrompt: `You are given report sections covering consecutive
parts of one podcast episode. Integrate them into a single coherent report
with a short summary first, then topics, takeaways and quotes. Remove
repetition between sections. Return only the final report.`,
		ExpectedRatio:   0.20,
		MinRatio:        0.05,
		MaxRatio:        0.35,
		Temperature:     0.4,
		MaxOutputTokens: 2048,
		Fallback:        FallbackSkip,
	}
}
