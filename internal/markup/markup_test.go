// ABOUTME: Tests for the MarkdownV2 formatting pipeline
// ABOUTME: Covers escaping, emphasis rewriting, code span protection, and idempotency

package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"period and bang", "Done. Really!", `Done\. Really\!`},
		{"full reserved set", "_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
		{"lone backslash", `a\b`, `a\\b`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeMarkdownV2(tt.in))
		})
	}
}

func TestEscapeMarkdownV2_Idempotent(t *testing.T) {
	in := "Done. Really! (yes) a\\b _x_"
	once := EscapeMarkdownV2(in)
	twice := EscapeMarkdownV2(once)
	assert.Equal(t, once, twice)
}

func TestEscapeCode(t *testing.T) {
	assert.Equal(t, "a\\`b", EscapeCode("a`b"))
	assert.Equal(t, `a\\b`, EscapeCode(`a\b`))
	assert.Equal(t, "x.y!z", EscapeCode("x.y!z"))
}

func TestFormat_Blank(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t\n"} {
		out, mode := Format(in)
		assert.Empty(t, out)
		assert.Equal(t, ParseModeNone, mode)
	}
}

func TestFormat_Emphasis(t *testing.T) {
	out, mode := Format("**bold** and *italic* and _also italic_")
	assert.Equal(t, ParseModeMarkdownV2, mode)
	assert.Equal(t, "*bold* and _italic_ and _also italic_", out)
}

func TestFormat_UnpairedDelimitersStayEscaped(t *testing.T) {
	out, mode := Format("a * b")
	assert.Equal(t, ParseModeMarkdownV2, mode)
	assert.Equal(t, `a \* b`, out)
}

func TestFormat_BoldWithCodeSpan(t *testing.T) {
	out, mode := Format("**bold** and `code *x*`")
	assert.Equal(t, ParseModeMarkdownV2, mode)
	assert.Equal(t, "*bold* and `code *x*`", out)
}

func TestFormat_FencedBlockContentsUntouched(t *testing.T) {
	in := "Before.\n```go\nif x > 1 { fmt.Println(\"*hi*\") }\n```\nAfter!"
	out, mode := Format(in)
	assert.Equal(t, ParseModeMarkdownV2, mode)
	assert.Contains(t, out, "```go\nif x > 1 { fmt.Println(\"*hi*\") }\n```")
	assert.Contains(t, out, `Before\.`)
	assert.Contains(t, out, `After\!`)
	assert.NotContains(t, out, "_hi_")
}

func TestFormat_BackslashInsideCodeEscaped(t *testing.T) {
	out, _ := Format(`run ` + "`C:\\temp`" + ` now`)
	assert.Contains(t, out, "`C:\\\\temp`")
}

func TestFormat_UnderscoresInsideCodeNotItalicized(t *testing.T) {
	out, _ := Format("see `_private_` here")
	assert.Contains(t, out, "`_private_`")
	assert.NotContains(t, out, "_private_`_")
}

func TestFormat_PunctuationEscaped(t *testing.T) {
	out, mode := Format("Version 2.0 is out! (finally)")
	assert.Equal(t, ParseModeMarkdownV2, mode)
	assert.Equal(t, `Version 2\.0 is out\! \(finally\)`, out)
}

func TestFormat_PlaceholdersNeverLeak(t *testing.T) {
	inputs := []string{
		"`one` and `two` and ```\nthree\n```",
		strings.Repeat("`x` ", 50),
		"no code at all",
	}
	for _, in := range inputs {
		out, _ := Format(in)
		require.NotContains(t, out, "\x00")
	}
}

func TestFormat_EscapedInputNotDoubleEscaped(t *testing.T) {
	out, _ := Format(`already \. escaped`)
	assert.Equal(t, `already \. escaped`, out)
}
