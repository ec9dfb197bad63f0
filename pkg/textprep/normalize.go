// Package textprep is the deterministic, non-LLM text preparation layer:
// PDF-text cleanup, column de-interleaving, core-content extraction, and
// length caps. It never calls out and never errors.
package textprep

import (
	"regexp"
	"strings"
)

var (
	softHyphenRe = regexp.MustCompile(`([A-Za-z])-\n([a-z])`)
	pageNumberRe = regexp.MustCompile(`^\s*\d{1,4}\s*$`)
	blankRunsRe  = regexp.MustCompile(`\n{3,}`)
	hSpaceRe     = regexp.MustCompile(`[ \t]{2,}`)
)

// Normalize cleans raw extracted PDF text: control characters dropped,
// soft-hyphen line wraps rejoined, lone page numbers and recurring
// header/footer lines stripped, blank-line runs collapsed.
func Normalize(raw string) string {
	cleaned := stripControl(raw)
	cleaned = softHyphenRe.ReplaceAllString(cleaned, "$1$2")

	lines := strings.Split(cleaned, "\n")
	recurring := recurringLines(lines)

	var out []string
	for _, line := range lines {
		if pageNumberRe.MatchString(line) {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && recurring[trimmed] {
			continue
		}
		out = append(out, line)
	}

	return blankRunsRe.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
}

// DedupeColumns merges naively interleaved two-column page text: when a page
// looks like stacked half-width columns (many short lines), the top-half and
// bottom-half line streams are zipped back together. Best effort only.
func DedupeColumns(pageText string) string {
	lines := strings.Split(pageText, "\n")
	if len(lines) <= 15 {
		return pageText
	}

	total := 0
	for _, l := range lines {
		total += len(l)
	}
	if total/len(lines) >= 40 {
		return pageText
	}

	half := len(lines) / 2
	top, bottom := lines[:half], lines[half:]
	var merged []string
	for i := 0; i < len(bottom); i++ {
		if i < len(top) {
			merged = append(merged, strings.TrimRight(top[i], " ")+" "+strings.TrimLeft(bottom[i], " "))
		} else {
			merged = append(merged, bottom[i])
		}
	}
	return strings.Join(merged, "\n")
}

// recurringLines flags short lines that appear three or more times; page
// headers and footers repeat once per page.
func recurringLines(lines []string) map[string]bool {
	counts := make(map[string]int)
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" || len(t) > 60 {
			continue
		}
		counts[t]++
	}
	recurring := make(map[string]bool)
	for t, n := range counts {
		if n >= 3 {
			recurring[t] = true
		}
	}
	return recurring
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
