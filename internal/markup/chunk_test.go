// ABOUTME: Tests for reply chunking
// ABOUTME: Covers break preference order, the size bound, restartability, and the concatenation property

package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(text string) []string {
	var out []string
	for c := range Chunks(text) {
		out = append(out, c)
	}
	return out
}

func TestChunks_ShortTextSingleChunk(t *testing.T) {
	chunks := collect("hello")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello", chunks[0])
}

func TestChunks_EmptyTextYieldsNothing(t *testing.T) {
	assert.Empty(t, collect(""))
}

func TestChunks_SplitsAfterNewline(t *testing.T) {
	// 5000 chars with the only newline at offset 3000: the first chunk must
	// end right after that newline.
	text := strings.Repeat("a", 3000) + "\n" + strings.Repeat("b", 1999)
	require.Len(t, text, 5000)

	chunks := collect(text)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 3001)
	assert.True(t, strings.HasSuffix(chunks[0], "\n"))
	assert.Equal(t, strings.Repeat("b", 1999), chunks[1])
}

func TestChunks_SplitsAfterWhitespacePastMidpoint(t *testing.T) {
	text := strings.Repeat("a", 3000) + " " + strings.Repeat("b", 1999)

	chunks := collect(text)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 3001)
	assert.True(t, strings.HasSuffix(chunks[0], " "))
}

func TestChunks_IgnoresWhitespaceBeforeMidpoint(t *testing.T) {
	// The only space sits before the midpoint, so the cut is a hard cut at
	// the limit instead.
	text := strings.Repeat("a", 100) + " " + strings.Repeat("b", ChunkLimit)

	chunks := collect(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Len(t, chunks[0], ChunkLimit)
}

func TestChunks_HardCutKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("é", 3000) // 2 bytes each, no whitespace

	for c := range chunkify(text, 3801) {
		assert.LessOrEqual(t, len(c), 3801)
		for _, r := range c {
			assert.NotEqual(t, '�', r)
		}
	}
}

func TestChunks_InvalidUTF8NeverYieldsEmptyChunk(t *testing.T) {
	// A run of continuation bytes has no rune start to back off to; the hard
	// cut must still make progress and every chunk must be non-empty.
	text := strings.Repeat("\x80", 4000)

	var b strings.Builder
	count := 0
	for c := range Chunks(text) {
		count++
		require.NotEmpty(t, c)
		require.LessOrEqual(t, len(c), ChunkLimit)
		require.LessOrEqual(t, count, 10, "chunking must terminate")
		b.WriteString(c)
	}
	assert.Equal(t, 2, count)
	assert.Equal(t, text, b.String())
}

func TestChunks_ConcatenationReproducesInput(t *testing.T) {
	texts := []string{
		strings.Repeat("line one\nline two\n", 800),
		strings.Repeat("word ", 2000),
		strings.Repeat("x", 12345),
	}
	for _, text := range texts {
		var b strings.Builder
		for c := range Chunks(text) {
			require.NotEmpty(t, c)
			require.LessOrEqual(t, len(c), ChunkLimit)
			b.WriteString(c)
		}
		assert.Equal(t, text, b.String())
	}
}

func TestChunks_Restartable(t *testing.T) {
	text := strings.Repeat("z", 10000)
	seq := Chunks(text)

	first := func() []string {
		var out []string
		for c := range seq {
			out = append(out, c)
		}
		return out
	}

	assert.Equal(t, first(), first())
}
