package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetaPairs(t *testing.T) {
	t.Run("valid pairs", func(t *testing.T) {
		updates, err := parseMetaPairs([]string{"public_url=https://example.com/a.pdf", "llm_summary=engine bulletin"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"public_url":  "https://example.com/a.pdf",
			"llm_summary": "engine bulletin",
		}, updates)
	})

	t.Run("value may contain equals sign", func(t *testing.T) {
		updates, err := parseMetaPairs([]string{"query=a=b"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"query": "a=b"}, updates)
	})

	t.Run("missing separator", func(t *testing.T) {
		_, err := parseMetaPairs([]string{"no-separator"})
		assert.Error(t, err)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := parseMetaPairs([]string{"=value"})
		assert.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := parseMetaPairs(nil)
		assert.Error(t, err)
	})
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "exactly-te", truncateString("exactly-te", 10))
	assert.Equal(t, "a-very-...", truncateString("a-very-long-filename.pdf", 10))
}
