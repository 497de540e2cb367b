package service

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/example/paperwatch/internal/model"
)

func TestFormatDigest(t *testing.T) {
	papers := []model.PaperSummary{
		{
			PaperID:   "2301.00001",
			Title:     "Attention & Memory <in> Transformers",
			Authors:   []string{"A. One", "B. Two", "C. Three", "D. Four"},
			Summary:   "A   study of attention.",
			Link:      "https://arxiv.org/abs/2301.00001",
			Published: time.Now(),
		},
	}
	msg := FormatDigest("machine learning", papers)

	if !strings.Contains(msg, "<b>machine learning</b>") {
		t.Fatalf("missing topic header: %q", msg)
	}
	if !strings.Contains(msg, "Attention &amp; Memory &lt;in&gt; Transformers") {
		t.Fatalf("title not escaped: %q", msg)
	}
	if !strings.Contains(msg, "et al.") || strings.Contains(msg, "D. Four") {
		t.Fatalf("author list not truncated: %q", msg)
	}
	if !strings.Contains(msg, `href="https://arxiv.org/abs/2301.00001"`) {
		t.Fatalf("missing link: %q", msg)
	}
	if !strings.Contains(msg, "A study of attention.") {
		t.Fatalf("summary whitespace not collapsed: %q", msg)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("short strings must pass through: %q", got)
	}
	long := strings.Repeat("word ", 100)
	got := truncate(long, 50)
	if len(got) > 52 {
		t.Fatalf("truncation too long: %d", len(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis: %q", got)
	}

	// A spaceless multi-byte summary must not be cut mid-rune.
	cjk := truncate(strings.Repeat("量", 200), 50)
	if !utf8.ValidString(cjk) {
		t.Fatalf("truncation produced invalid UTF-8: %q", cjk)
	}
	if !strings.HasSuffix(cjk, "…") {
		t.Fatalf("expected ellipsis: %q", cjk)
	}
}
