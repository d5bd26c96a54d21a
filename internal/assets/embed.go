// Package assets holds files embedded into the parley binary, currently the
// default system prompt used when no prompt file is configured.
package assets

import (
	_ "embed"
	"strings"
)

//go:embed prompts/system_prompt.txt
var defaultSystemPrompt string

// DefaultSystemPrompt returns the built-in system prompt.
func DefaultSystemPrompt() string {
	return strings.TrimSpace(defaultSystemPrompt)
}
