package transform

import "strings"

const (
	// minOverlapElide is the shortest duplicated boundary region worth
	// eliding. Anything shorter is as likely a legitimate repeat as an
	// overlap artifact.
	minOverlapElide = 24
	// maxOverlapScan bounds how far the boundary containment search looks.
	maxOverlapScan = 4000
)

// MergeOutputs concatenates chunk outputs in chunk order, eliding content
// duplicated across a boundary by the chunk overlap.
func MergeOutputs(outputs []string) string {
	var acc string
	for _, out := range outputs {
		out = strings.TrimSpace(out)
		if out == "" {
			continue
		}
		if acc == "" {
			acc = out
			continue
		}
		acc = joinEliding(acc, out)
	}
	return acc
}

// joinEliding drops the longest prefix of next that exactly duplicates a
// suffix of acc, provided it is at least minOverlapElide bytes.
func joinEliding(acc, next string) string {
	max := len(acc)
	if len(next) < max {
		max = len(next)
	}
	if max > maxOverlapScan {
		max = maxOverlapScan
	}
	for k := max; k >= minOverlapElide; k-- {
		if strings.HasSuffix(acc, next[:k]) {
			rest := strings.TrimLeft(next[k:], " \t\n")
			if rest == "" {
				return acc
			}
			return acc + "\n\n" + rest
		}
	}
	return acc + "\n\n" + next
}

// DedupeParagraphs removes exact paragraph repeats (after whitespace
// normalization) that overlap or retried calls can introduce, keeping the
// first occurrence.
func DedupeParagraphs(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	seen := make(map[string]bool, len(paragraphs))
	kept := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		norm := strings.Join(strings.Fields(p), " ")
		if norm == "" {
			continue
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true
		kept = append(kept, strings.TrimSpace(p))
	}
	return strings.Join(kept, "\n\n")
}
