package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateKeepEndsShort(t *testing.T) {
	assert.Equal(t, "short prompt", truncateKeepEnds("short prompt", 100))
}

func TestTruncateKeepEndsPreservesInstructions(t *testing.T) {
	instructions := strings.Repeat("Follow this rule carefully.\n", 10)
	body := strings.Repeat("a", 5000) + "MIDDLE" + strings.Repeat("z", 5000)
	prompt := instructions + body

	out := truncateKeepEnds(prompt, 4000)

	require.LessOrEqual(t, len([]rune(out)), 4000)
	assert.True(t, strings.HasPrefix(out, instructions), "instruction prefix must survive")
	assert.Contains(t, out, elisionMarker)
	assert.NotContains(t, out, "MIDDLE")
	// Both ends of the body survive.
	assert.Contains(t, out, "aaaa")
	assert.True(t, strings.HasSuffix(out, "zzzz"))
}

func TestTruncateKeepEndsDegenerateHeader(t *testing.T) {
	// A header bigger than half the limit falls back to a head cut.
	prompt := strings.Repeat("x\n", 3000)
	out := truncateKeepEnds(prompt, 1000)
	assert.Equal(t, 1000, len([]rune(out)))
}

func TestKeepEnds(t *testing.T) {
	s := strings.Repeat("h", 100) + strings.Repeat("t", 100)
	out := keepEnds(s, 10, 10)
	assert.Equal(t, strings.Repeat("h", 10)+elisionMarker+strings.Repeat("t", 10), out)

	assert.Equal(t, "tiny", keepEnds("tiny", 10, 10))
}
