// ABOUTME: Telegram MarkdownV2 formatting pipeline for generated replies
// ABOUTME: Extracts code spans, escapes reserved characters, rewrites emphasis, then restores code

package markup

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ParseMode is the Telegram parse_mode value a formatted text should be sent
// with.
type ParseMode string

const (
	// ParseModeNone sends the text as plain text.
	ParseModeNone ParseMode = ""
	// ParseModeMarkdownV2 sends the text with MarkdownV2 entity parsing.
	ParseModeMarkdownV2 ParseMode = "MarkdownV2"
)

// reserved are the characters MarkdownV2 requires escaping outside code
// spans. Backslash is included so stray backslashes survive parsing.
const reserved = "_*[]()~`>#+-=|{}.!\\"

var (
	fencedRe = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\n?(.*?)```")
	inlineRe = regexp.MustCompile("`([^`\n]+)`")

	// Emphasis is rewritten after escaping, so the patterns match the
	// escaped forms. Placeholder bytes are excluded from the span content.
	boldRe        = regexp.MustCompile(`\\\*\\\*([^\x00*]+?)\\\*\\\*`)
	italicStarRe  = regexp.MustCompile(`\\\*([^\x00*]+?)\\\*`)
	italicUnderRe = regexp.MustCompile(`\\_([^\x00_]+?)\\_`)
)

// EscapeMarkdownV2 escapes every reserved MarkdownV2 character in text.
// Already-escaped sequences are left untouched, so the function is
// idempotent: escaping escaped text returns it unchanged.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 2)

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\\' && i+1 < len(text) && strings.IndexByte(reserved, text[i+1]) >= 0 {
			b.WriteByte(c)
			b.WriteByte(text[i+1])
			i++
			continue
		}
		if strings.IndexByte(reserved, c) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}

// EscapeCode escapes text for use inside a MarkdownV2 code span or code
// block, where only backslash and backtick are special.
func EscapeCode(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	return strings.ReplaceAll(text, "`", "\\`")
}

// Format converts model output into MarkdownV2-safe text and reports the
// parse mode it should be sent with. Blank input formats to empty text with
// no parse mode.
//
// Code spans are lifted out before escaping so their contents are never
// escaped with the full reserved set, then restored with code-span escaping
// applied. Emphasis markers written in common Markdown (**bold**, *italic*,
// _italic_) are rewritten into the MarkdownV2 forms.
func Format(text string) (string, ParseMode) {
	if strings.TrimSpace(text) == "" {
		return "", ParseModeNone
	}

	ph := newPlaceholders(text)

	// Fenced blocks first so inline backticks inside them are not matched.
	text = fencedRe.ReplaceAllStringFunc(text, func(m string) string {
		parts := fencedRe.FindStringSubmatch(m)
		lang, body := parts[1], parts[2]
		return ph.stash("```" + lang + "\n" + EscapeCode(body) + "```")
	})
	text = inlineRe.ReplaceAllStringFunc(text, func(m string) string {
		body := inlineRe.FindStringSubmatch(m)[1]
		return ph.stash("`" + EscapeCode(body) + "`")
	})

	text = EscapeMarkdownV2(text)

	text = boldRe.ReplaceAllString(text, "*$1*")
	text = italicStarRe.ReplaceAllString(text, "_${1}_")
	text = italicUnderRe.ReplaceAllString(text, "_${1}_")

	return ph.restore(text), ParseModeMarkdownV2
}

// placeholders stashes code spans behind tokens that cannot be produced by
// escaping and cannot collide with the input text.
type placeholders struct {
	nonce  string
	stored []string
}

func newPlaceholders(text string) *placeholders {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")
	for strings.Contains(text, nonce) {
		nonce = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return &placeholders{nonce: nonce}
}

func (p *placeholders) stash(rendered string) string {
	token := "\x00" + p.nonce + ":" + strconv.Itoa(len(p.stored)) + "\x00"
	p.stored = append(p.stored, rendered)
	return token
}

func (p *placeholders) restore(text string) string {
	for i, rendered := range p.stored {
		token := "\x00" + p.nonce + ":" + strconv.Itoa(i) + "\x00"
		text = strings.Replace(text, token, rendered, 1)
	}
	return text
}
