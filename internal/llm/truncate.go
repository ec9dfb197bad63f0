package llm

import (
	"strings"
)

// elisionMarker replaces the removed middle of a truncated prompt so the
// model knows content was dropped.
const elisionMarker = "\n\n[... middle content omitted ...]\n\n"

// instructionLines is how many leading lines are treated as the instruction
// prefix and protected from truncation.
const instructionLines = 10

// truncateKeepEnds shrinks a prompt to at most charLimit characters while
// preserving the instruction prefix, the start of the content, and its tail.
func truncateKeepEnds(prompt string, charLimit int) string {
	runes := []rune(prompt)
	if len(runes) <= charLimit {
		return prompt
	}

	prefix, body := splitInstructionPrefix(prompt)
	prefixRunes := []rune(prefix)
	if len(prefixRunes) > charLimit/2 {
		// Degenerate prompt with a huge header; fall back to a plain head cut.
		return string(runes[:charLimit])
	}

	budget := charLimit - len(prefixRunes) - len([]rune(elisionMarker))
	bodyRunes := []rune(body)
	if budget <= 0 || len(bodyRunes) <= budget {
		return string(runes[:charLimit])
	}

	head := budget * 65 / 100
	tail := budget - head
	return prefix + string(bodyRunes[:head]) + elisionMarker + string(bodyRunes[len(bodyRunes)-tail:])
}

// keepEnds keeps the first head and last tail characters of s, joined by the
// elision marker.
func keepEnds(s string, head, tail int) string {
	runes := []rune(s)
	if len(runes) <= head+tail {
		return s
	}
	return string(runes[:head]) + elisionMarker + string(runes[len(runes)-tail:])
}

// splitInstructionPrefix separates the first few lines (the instructions)
// from the content suffix so truncation only eats into the suffix.
func splitInstructionPrefix(prompt string) (prefix, body string) {
	idx := 0
	for i := 0; i < instructionLines; i++ {
		next := strings.IndexByte(prompt[idx:], '\n')
		if next < 0 {
			return "", prompt
		}
		idx += next + 1
	}
	return prompt[:idx], prompt[idx:]
}
