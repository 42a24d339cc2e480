package email

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	boldRe    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe  = regexp.MustCompile(`\*(.+?)\*`)
	linkRe    = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	codeRe    = regexp.MustCompile("`([^`]+)`")
	bulletRe  = regexp.MustCompile(`^[-*]\s+(.*)$`)
)

// RenderHTML converts report markdown into simple HTML suitable for an
// email body. It covers the constructs the writer actually emits
// (headings, emphasis, links, inline code, bullet lists, paragraphs);
// anything else passes through as text.
func RenderHTML(markdown string) string {
	var b strings.Builder
	inList := false

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)

		if m := bulletRe.FindStringSubmatch(trimmed); m != nil {
			if !inList {
				b.WriteString("<ul>\n")
				inList = true
			}
			fmt.Fprintf(&b, "<li>%s</li>\n", renderInline(m[1]))
			continue
		}
		if inList {
			b.WriteString("</ul>\n")
			inList = false
		}

		if m := headingRe.FindStringSubmatch(trimmed); m != nil {
			level := len(m[1])
			fmt.Fprintf(&b, "<h%d>%s</h%d>\n", level, renderInline(m[2]), level)
			continue
		}
		if trimmed == "" {
			continue
		}
		fmt.Fprintf(&b, "<p>%s</p>\n", renderInline(trimmed))
	}
	if inList {
		b.WriteString("</ul>\n")
	}
	return b.String()
}

func renderInline(s string) string {
	s = linkRe.ReplaceAllString(s, `<a href="$2">$1</a>`)
	s = boldRe.ReplaceAllString(s, "<strong>$1</strong>")
	s = italicRe.ReplaceAllString(s, "<em>$1</em>")
	s = codeRe.ReplaceAllString(s, "<code>$1</code>")
	return s
}
