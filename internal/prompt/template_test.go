package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	out, err := Render("Analyze {{content}} for {{domain}}.", map[string]string{
		"content": "the paper",
		"domain":  "recsys",
	})
	require.NoError(t, err)
	assert.Equal(t, "Analyze the paper for recsys.", out)
}

func TestRenderMissingVariable(t *testing.T) {
	_, err := Render("Analyze {{content}}.", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content")
}

func TestRenderIgnoresExtraVars(t *testing.T) {
	out, err := Render("plain text", map[string]string{"unused": "x"})
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestMustRenderPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustRender("{{missing}}", nil)
	})
}

func TestExtractVariables(t *testing.T) {
	vars := ExtractVariables("{{a}} {{b}} {{a}}")
	assert.Equal(t, []string{"a", "b"}, vars)

	assert.Nil(t, ExtractVariables("no vars"))
}
