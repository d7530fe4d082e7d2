package transform

import (
	"strings"
	"unicode/utf8"
)

// Chunk is a contiguous slice of the input with a stable ordinal identity.
// Text carries the chunk body plus the overlap region shared with the
// previous chunk's tail, so cross-chunk context (speaker identity,
// terminology) is visible to the chunk's transform call. Start/End address
// the body only: concatenating input[Start:End] over all chunks reproduces
// the input exactly.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Body returns the chunk's slice of the original input without the overlap.
func (c Chunk) Body(input string) string {
	return input[c.Start:c.End]
}

// SplitChunks cuts text into chunks of at most chunkSize body bytes, each
// prefixed with up to overlap bytes carried from the previous chunk's tail.
// Cut points prefer paragraph breaks, then sentence ends, over hard cuts.
func SplitChunks(text string, chunkSize, overlap int) []Chunk {
	if text == "" {
		return nil
	}
	if chunkSize < 1 {
		chunkSize = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}

	var chunks []Chunk
	pos := 0
	for pos < len(text) {
		end := pos + chunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, pos, end)
		}

		withOverlap := pos
		if len(chunks) > 0 {
			withOverlap = pos - overlap
			if withOverlap < 0 {
				withOverlap = 0
			}
			// the overlap head must not start mid-rune
			for withOverlap < pos && !utf8.RuneStart(text[withOverlap]) {
				withOverlap++
			}
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Start: pos,
			End:   end,
			Text:  text[withOverlap:end],
		})
		pos = end
	}
	return chunks
}

// cutPoint moves a tentative cut at end backwards onto a paragraph break if
// one exists in the second half of the chunk, then onto a sentence end, and
// keeps the hard cut otherwise.
func cutPoint(text string, start, end int) int {
	floor := start + (end-start)/2

	if i := strings.LastIndex(text[floor:end], "\n\n"); i >= 0 {
		return floor + i + len("\n\n")
	}
	for _, sep := range []string{". ", "。", "! ", "? ", "\n"} {
		if i := strings.LastIndex(text[floor:end], sep); i >= 0 {
			return floor + i + len(sep)
		}
	}
	// hard cut: back off to a rune boundary so no call ever carries a torn
	// multi-byte character
	adj := end
	for adj > start && !utf8.RuneStart(text[adj]) {
		adj--
	}
	if adj > start {
		return adj
	}
	return end
}
