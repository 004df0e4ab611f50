package postprocess

import (
	"testing"

	"github.com/standardbeagle/lspaid/internal/prompt"
)

var bothOn = Options{RemoveDuplicateStart: true, RemoveDuplicateEnd: true}

// TestStartDedup is scenario S3.
func TestStartDedup(t *testing.T) {
	p := prompt.Prompt{Shape: prompt.ShapeContextAndCode, Code: "tt "}
	got := Process("tt abc", p, bothOn)
	if got != "abc" {
		t.Fatalf("got %q", got)
	}
}

// TestCursorAwareDedup is scenario S4.
func TestCursorAwareDedup(t *testing.T) {
	p := prompt.Prompt{Shape: prompt.ShapeContextAndCode, Code: "tt " + prompt.Sentinel + " tt"}
	got := Process("tt abc tt", p, bothOn)
	if got != "abc" {
		t.Fatalf("got %q", got)
	}
}

// TestFIMDedup is scenario S5.
func TestFIMDedup(t *testing.T) {
	p := prompt.Prompt{Shape: prompt.ShapeFIM, Prefix: "test 1234 ", Suffix: "ttabc"}
	got := Process("4 zz tta", p, bothOn)
	if got != "zz " {
		t.Fatalf("got %q", got)
	}
}

// TestIdempotence confirms reprocessing already-processed text is a no-op.
func TestIdempotence(t *testing.T) {
	cases := []struct {
		name     string
		p        prompt.Prompt
		response string
	}{
		{"start-dedup", prompt.Prompt{Shape: prompt.ShapeContextAndCode, Code: "tt "}, "tt abc"},
		{"cursor-aware", prompt.Prompt{Shape: prompt.ShapeContextAndCode, Code: "tt " + prompt.Sentinel + " tt"}, "tt abc tt"},
		{"fim", prompt.Prompt{Shape: prompt.ShapeFIM, Prefix: "test 1234 ", Suffix: "ttabc"}, "4 zz tta"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			once := Process(c.response, c.p, bothOn)
			twice := Process(once, c.p, bothOn)
			if once != twice {
				t.Fatalf("not idempotent: %q -> %q -> %q", c.response, once, twice)
			}
		})
	}
}

// TestPreservation confirms no overlap with front or back (when eligible)
// leaves the response unchanged.
func TestPreservation(t *testing.T) {
	p := prompt.Prompt{Shape: prompt.ShapeFIM, Prefix: "abd", Suffix: "xyz"}
	got := Process("completely unrelated text", p, bothOn)
	if got != "completely unrelated text" {
		t.Fatalf("got %q", got)
	}
}

func TestEndTrimSkippedWithoutCursor(t *testing.T) {
	p := prompt.Prompt{Shape: prompt.ShapeContextAndCode, Code: "no cursor here"}
	got := Process("no cursor herebonus", p, bothOn)
	if got != "bonus" {
		t.Fatalf("got %q", got)
	}
}

func TestFlagsDisableTrims(t *testing.T) {
	p := prompt.Prompt{Shape: prompt.ShapeContextAndCode, Code: "tt "}
	got := Process("tt abc", p, Options{})
	if got != "tt abc" {
		t.Fatalf("expected no trim with both flags off, got %q", got)
	}
}
