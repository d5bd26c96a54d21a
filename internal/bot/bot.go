// ABOUTME: Composition root that wires store, generator, tools, and the Telegram loop
// ABOUTME: Owns component lifecycle: construction, Run, and shutdown

package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/conversation"
	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/telegram"
	"github.com/parley-chat/parley/internal/tools"
)

// Bot owns the assembled components of a running parley instance.
type Bot struct {
	config  *config.Config
	store   *store.SQLiteStore
	service *conversation.Service
	loop    *telegram.Bot
	logger  *slog.Logger
}

// New assembles a bot from configuration. Without an OpenAI API key the mock
// generator is wired in so the bot still runs end to end.
func New(cfg *config.Config, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	registry := tools.NewRegistry(logger)
	if err := tools.RegisterBuiltins(registry); err != nil {
		st.Close()
		return nil, fmt.Errorf("registering builtin tools: %w", err)
	}

	var generator llm.Generator
	if cfg.OpenAI.APIKey != "" {
		prompt := llm.LoadSystemPrompt(cfg.Prompt.Path, logger)
		generator = llm.NewOpenAI(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, prompt, logger)
	} else {
		logger.Warn("no OpenAI API key configured, using mock generator")
		generator = llm.NewMock()
	}

	service := conversation.NewService(st, generator, registry.Definitions(), cfg.OpenAI.RequestTimeout, logger)

	httpClient := telegram.NewPollingHTTPClient(cfg.Telegram.PollTimeout)
	client := telegram.NewClient(httpClient, cfg.Telegram.BaseURL, cfg.Telegram.Token)
	loop := telegram.NewBot(client, service, cfg.Telegram.PollTimeout, logger)

	return &Bot{
		config:  cfg,
		store:   st,
		service: service,
		loop:    loop,
		logger:  logger.With("component", "bot"),
	}, nil
}

// Run polls Telegram until ctx is cancelled, then releases resources.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot starting", "database", b.config.Database.Path)

	err := b.loop.Run(ctx)
	if closeErr := b.store.Close(); closeErr != nil {
		b.logger.Error("closing store", "error", closeErr)
	}

	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
