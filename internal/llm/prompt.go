// ABOUTME: System prompt loading with a built-in default
// ABOUTME: A missing or empty prompt file falls back to the embedded prompt, never a startup failure

package llm

import (
	"log/slog"
	"os"
	"strings"

	"github.com/parley-chat/parley/internal/assets"
)

// LoadSystemPrompt reads the prompt file at path. An empty path, a missing
// file, or a blank file all fall back to the embedded default prompt so the
// bot never fails to start over a prompt file.
func LoadSystemPrompt(path string, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return assets.DefaultSystemPrompt()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("prompt file not readable, using built-in default", "path", path, "error", err)
		return assets.DefaultSystemPrompt()
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		logger.Warn("prompt file is empty, using built-in default", "path", path)
		return assets.DefaultSystemPrompt()
	}
	return prompt
}
