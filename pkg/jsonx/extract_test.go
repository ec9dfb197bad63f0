package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractFencedBlock(t *testing.T) {
	text := "Here is the analysis:\n```json\n{\"summary\": \"fine\", \"count\": 2}\n```\nHope that helps!"

	obj, ok := ExtractObject(text)
	require.True(t, ok)
	assert.Equal(t, "fine", obj["summary"])
	assert.Equal(t, float64(2), obj["count"])
}

func TestExtractWholeText(t *testing.T) {
	obj, ok := ExtractObject(`{"a": 1}`)
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["a"])
}

func TestExtractBalancedBraces(t *testing.T) {
	text := `Sure! The result is {"items": ["x", "y"]} as requested.`

	obj, ok := ExtractObject(text)
	require.True(t, ok)
	assert.Len(t, obj["items"], 2)
}

func TestExtractHonorsBracesInStrings(t *testing.T) {
	text := `prefix {"note": "braces } inside { strings", "n": 3} suffix`

	obj, ok := ExtractObject(text)
	require.True(t, ok)
	assert.Equal(t, "braces } inside { strings", obj["note"])
}

func TestExtractRepairsTrailingComma(t *testing.T) {
	obj, ok := ExtractObject(`{"a": 1, "b": [1, 2,],}`)
	require.True(t, ok)
	assert.Len(t, obj["b"], 2)
}

func TestExtractRepairsSingleQuotes(t *testing.T) {
	obj, ok := ExtractObject(`{'title': 'simple'}`)
	require.True(t, ok)
	assert.Equal(t, "simple", obj["title"])
}

func TestExtractNothing(t *testing.T) {
	_, ok := Extract("no json here at all")
	assert.False(t, ok)

	_, ok = Extract("")
	assert.False(t, ok)

	_, ok = Extract(`{"unclosed": `)
	assert.False(t, ok)
}

func TestExtractScalarRejected(t *testing.T) {
	// Bare scalars decode as JSON but are not useful structured output.
	_, ok := Extract(`42`)
	assert.False(t, ok)
}

func TestExtractArray(t *testing.T) {
	arr, ok := ExtractArray(`The list: [1, 2, 3]`)
	require.True(t, ok)
	assert.Len(t, arr, 3)
}

func TestExtractArrayRejectsObject(t *testing.T) {
	_, ok := ExtractArray(`{"a": 1}`)
	assert.False(t, ok)
}
