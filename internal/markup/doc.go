// Package markup makes model output safe to deliver over Telegram.
//
// Format runs a fixed pipeline: fenced code blocks and inline code spans are
// lifted out behind placeholder tokens, the remaining text gets every
// MarkdownV2-reserved character escaped, common Markdown emphasis is
// rewritten into MarkdownV2 forms, and the code spans are restored with
// code-span escaping. Escaping is idempotent so re-formatting already-safe
// text does not double-escape it.
//
// Chunks splits formatted text into pieces that fit a single Telegram
// message, preferring to break on newlines and whitespace.
package markup
