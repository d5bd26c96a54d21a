// ABOUTME: Splits long replies into Telegram-sized chunks
// ABOUTME: Prefers newline breaks, then whitespace past the window midpoint, then a hard cut

package markup

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// ChunkLimit is the maximum chunk length in bytes, kept under Telegram's
// 4096-character message limit to leave room for entity overhead.
const ChunkLimit = 3800

// Chunks yields text split into sendable pieces of at most ChunkLimit bytes.
// Chunks are produced lazily and the sequence can be ranged over more than
// once. Concatenating all chunks reproduces the input exactly.
func Chunks(text string) iter.Seq[string] {
	return chunkify(text, ChunkLimit)
}

func chunkify(text string, limit int) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for len(rest) > limit {
			cut := breakAt(rest, limit)
			if !yield(rest[:cut]) {
				return
			}
			rest = rest[cut:]
		}
		if len(rest) > 0 {
			yield(rest)
		}
	}
}

// breakAt picks the cut position for the next chunk: after the last newline
// in the window, failing that after the last space or tab in the window's
// second half, failing that a hard cut backed off to a rune boundary.
func breakAt(text string, limit int) int {
	window := text[:limit]

	if i := strings.LastIndexByte(window, '\n'); i >= 0 {
		return i + 1
	}
	if i := strings.LastIndexAny(window, " \t"); i > limit/2 {
		return i + 1
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		// The whole window is continuation bytes (already-invalid UTF-8);
		// cut at the limit rather than emit an empty chunk.
		cut = limit
	}
	return cut
}
