package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("a"), "non-empty text is at least one token")
	assert.Equal(t, 25, Estimate(strings.Repeat("a", 100)))
	assert.Equal(t, 50, Estimate(strings.Repeat("推", 100)))
	assert.Equal(t, 75, Estimate(strings.Repeat("a", 100)+strings.Repeat("荐", 100)))
}
