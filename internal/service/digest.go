package service

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/example/paperwatch/internal/model"
)

const summaryMaxLen = 280

// FormatDigest renders a delivery message for one topic as Telegram HTML.
func FormatDigest(topic string, papers []model.PaperSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\U0001F4DA New papers on <b>%s</b>\n", html.EscapeString(topic))
	for i, p := range papers {
		fmt.Fprintf(&b, "\n%d. <a href=%q>%s</a>\n", i+1, p.Link, html.EscapeString(p.Title))
		if len(p.Authors) > 0 {
			authors := p.Authors
			if len(authors) > 3 {
				authors = append(append([]string{}, authors[:3]...), "et al.")
			}
			fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(strings.Join(authors, ", ")))
		}
		if s := truncate(p.Summary, summaryMaxLen); s != "" {
			b.WriteString(html.EscapeString(s))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary so the fallback cut cannot split a
	// multi-byte character.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	cut := strings.LastIndex(s[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return s[:cut] + "…"
}
