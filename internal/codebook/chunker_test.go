package codebook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPassages_BlankLineBlocks(t *testing.T) {
	text := "trstprl: trust in parliament\nScale 0-10\n\ncntry: country code"
	passages := SplitPassages(text)

	require.Len(t, passages, 1)
	assert.Contains(t, passages[0], "trstprl")
	assert.Contains(t, passages[0], "cntry")
}

func TestSplitPassages_MergesUpToLimit(t *testing.T) {
	blockA := strings.Repeat("a ", 400) // ~800 chars
	blockB := strings.Repeat("b ", 400)
	passages := SplitPassages(blockA + "\n\n" + blockB)

	// Each block is near the cap, so they stay separate.
	require.Len(t, passages, 2)
}

func TestSplitPassages_SplitsOversizedBlock(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, strings.Repeat("x", 50))
	}
	passages := SplitPassages(strings.Join(lines, "\n"))

	require.Greater(t, len(passages), 1)
	for _, p := range passages {
		assert.LessOrEqual(t, len(p), maxPassageLen+51)
	}
}

func TestSplitPassages_Empty(t *testing.T) {
	assert.Empty(t, SplitPassages(""))
	assert.Empty(t, SplitPassages("\n\n\n"))
}
