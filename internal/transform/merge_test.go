package transform

import (
	"strings"
	"testing"
)

func TestMergeOutputsElidesBoundaryOverlap(t *testing.T) {
	shared := "this sentence sits in the overlap region between chunks."
	a := "first chunk output ends with context. " + shared
	b := shared + " second chunk output continues here."

	got := MergeOutputs([]string{a, b})
	if n := strings.Count(got, shared); n != 1 {
		t.Fatalf("shared overlap appears %d times:\n%s", n, got)
	}
	if !strings.Contains(got, "first chunk output") || !strings.Contains(got, "second chunk output continues") {
		t.Fatalf("merge lost content:\n%s", got)
	}
}

func TestMergeOutputsKeepsShortRepeats(t *testing.T) {
	// A short repeat is below the elision threshold and must survive.
	a := "the show ends. Thanks."
	b := "Thanks. And goodbye everyone, see you next week."
	got := MergeOutputs([]string{a, b})
	if strings.Count(got, "Thanks.") != 2 {
		t.Fatalf("short repeat was elided:\n%s", got)
	}
}

func TestMergeOutputsPreservesOrder(t *testing.T) {
	got := MergeOutputs([]string{"alpha section", "beta section", "gamma section"})
	ia := strings.Index(got, "alpha")
	ib := strings.Index(got, "beta")
	ic := strings.Index(got, "gamma")
	if !(ia < ib && ib < ic) {
		t.Fatalf("order perturbed: %s", got)
	}
}

func TestMergeOutputsSkipsEmpty(t *testing.T) {
	got := MergeOutputs([]string{"", "only part", "  "})
	if got != "only part" {
		t.Fatalf("got %q", got)
	}
}

func TestDedupeParagraphs(t *testing.T) {
	text := "intro paragraph\n\nrepeated   paragraph here\n\nrepeated paragraph here\n\nclosing paragraph"
	got := DedupeParagraphs(text)
	if strings.Count(got, "repeated") != 1 {
		t.Fatalf("paragraph repeat survived:\n%s", got)
	}
	if !strings.HasPrefix(got, "intro paragraph") || !strings.HasSuffix(got, "closing paragraph") {
		t.Fatalf("dedupe perturbed order:\n%s", got)
	}
}

func TestDedupeParagraphsDropsBlank(t *testing.T) {
	got := DedupeParagraphs("a\n\n\n\nb")
	if got != "a\n\nb" {
		t.Fatalf("got %q", got)
	}
}
