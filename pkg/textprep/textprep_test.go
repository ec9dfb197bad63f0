package textprep

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSoftHyphens(t *testing.T) {
	out := Normalize("recom-\nmendation systems")
	assert.Equal(t, "recommendation systems", out)
}

func TestNormalizeDropsPageNumbersAndHeaders(t *testing.T) {
	raw := strings.Join([]string{
		"Some paragraph text that is long enough to not look like a header at all.",
		"  12  ",
		"Proc. of RecSys 2024",
		"More body text follows here in the second page of the document body.",
		"Proc. of RecSys 2024",
		"Final text of the third page with enough words to stay.",
		"Proc. of RecSys 2024",
	}, "\n")

	out := Normalize(raw)
	assert.NotContains(t, out, "Proc. of RecSys 2024", "recurring header lines must be removed")
	assert.NotContains(t, out, "12")
	assert.Contains(t, out, "Some paragraph text")
	assert.Contains(t, out, "Final text of the third page")
}

func TestNormalizeCollapsesBlankRuns(t *testing.T) {
	out := Normalize("a\n\n\n\n\nb")
	assert.Equal(t, "a\n\nb", out)
}

func TestNormalizeStripsControlCharacters(t *testing.T) {
	out := Normalize("hello\x00world\x07 again\ttab stays")
	assert.Equal(t, "helloworld again\ttab stays", out)
}

func TestSmartFilterPassThrough(t *testing.T) {
	content := strings.Repeat("short paper text ", 100)
	assert.Equal(t, content, SmartFilter(content))
}

func TestSmartFilterCapsHugeInput(t *testing.T) {
	line := strings.Repeat("w", 120) + "\n"
	content := strings.Repeat(line, 2000) // ~242k chars

	out := SmartFilter(content)
	require.Less(t, len(out), 50000)
	assert.Contains(t, out, ElisionMarker)
}

func TestExtractCoreKeepsHeadedRegions(t *testing.T) {
	content := strings.Join([]string{
		"A Great Paper on Sequential Recommendation",
		"Jane Doe, John Smith",
		"",
		"Abstract",
		strings.Repeat("This paper studies sequential recommendation. ", 40),
		"1. Introduction",
		strings.Repeat("Recommender systems are everywhere. ", 40),
		"2. Related Work",
		strings.Repeat("Prior work abounds. ", 30),
		"3. Methodology",
		strings.Repeat("We propose a transformer variant. ", 40),
		"4. Experiments",
		strings.Repeat("We evaluate on three datasets. ", 200),
		"5. Conclusion",
		"We conclude.",
	}, "\n")

	out := ExtractCore(content, 30000)

	assert.Contains(t, out, "A Great Paper on Sequential Recommendation")
	assert.Contains(t, out, "This paper studies sequential recommendation.")
	assert.Contains(t, out, "We propose a transformer variant.")
	assert.NotContains(t, out, "We evaluate on three datasets.", "experiments region is not core content")
}

func TestExtractCoreFallsBackWithoutHeadings(t *testing.T) {
	content := strings.Repeat("plain text with no section structure whatsoever ", 200)
	out := ExtractCore(content, 500)
	assert.Equal(t, 500, len([]rune(out)))
	assert.True(t, strings.HasPrefix(content, out))
}

func TestDedupeColumns(t *testing.T) {
	// Wide lines pass through untouched.
	wide := strings.Repeat(strings.Repeat("x", 80)+"\n", 20)
	assert.Equal(t, wide, DedupeColumns(wide))

	// Short interleaved halves get zipped.
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("left\n")
	}
	for i := 0; i < 10; i++ {
		sb.WriteString("right\n")
	}
	out := DedupeColumns(sb.String())
	assert.Contains(t, out, "left right")
}
