// ABOUTME: Long-polling update loop: commands, chat turns, and reply delivery
// ABOUTME: Replies are formatted and chunked; markup rejections fall back to plain text

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/parley-chat/parley/internal/dedupe"
	"github.com/parley-chat/parley/internal/markup"
)

const (
	// dedupeTTL is how long processed update ids are remembered.
	dedupeTTL = 10 * time.Minute
	// dedupeMaxSize caps the dedupe cache.
	dedupeMaxSize = 4096
)

// Replier is the turn-processing collaborator the bot dispatches chats to.
type Replier interface {
	ProcessTurn(ctx context.Context, externalID, displayName, userText string) (string, error)
	EnsureUserAndConversation(ctx context.Context, externalID, displayName string) error
}

// Bot polls Telegram for updates and answers them.
type Bot struct {
	api         *Client
	replier     Replier
	seen        *dedupe.Cache
	pollTimeout time.Duration
	logger      *slog.Logger
}

// NewBot creates the update loop around an API client and a replier.
func NewBot(api *Client, replier Replier, pollTimeout time.Duration, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &Bot{
		api:         api,
		replier:     replier,
		seen:        dedupe.New(dedupeTTL, dedupeMaxSize),
		pollTimeout: pollTimeout,
		logger:      logger.With("component", "telegram"),
	}
}

// Run polls for updates until ctx is cancelled. Each update is handled in
// its own goroutine; turns for different chats proceed concurrently.
func (b *Bot) Run(ctx context.Context) error {
	defer b.seen.Close()

	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("connecting to telegram: %w", err)
	}
	b.logger.Info("bot connected", "username", me.Username, "id", me.ID)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, next, err := b.api.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("poll failed, backing off", "error", err)
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		offset = next

		for _, update := range updates {
			if b.seen.CheckAndMark(update.UpdateID) {
				b.logger.Debug("skipping duplicate update", "update_id", update.UpdateID)
				continue
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate dispatches one update. Only plain text messages from humans
// are handled; everything else is ignored.
func (b *Bot) handleUpdate(ctx context.Context, update Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}
	if msg.From != nil && msg.From.IsBot {
		return
	}

	externalID := externalIDFor(msg)
	displayName := msg.From.DisplayName()

	switch msg.Text {
	case "/start", "/menu":
		b.handleCommand(ctx, msg.Chat.ID, externalID, displayName)
	default:
		b.handleChat(ctx, msg.Chat.ID, externalID, displayName, msg.Text)
	}
}

// externalIDFor derives the stable external identity for a message sender.
func externalIDFor(msg *Message) string {
	if msg.From != nil {
		return "tg:" + strconv.FormatInt(msg.From.ID, 10)
	}
	return "tg-chat:" + strconv.FormatInt(msg.Chat.ID, 10)
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, externalID, displayName string) {
	if err := b.replier.EnsureUserAndConversation(ctx, externalID, displayName); err != nil {
		b.logger.Error("command handling failed", "external_id", externalID, "error", err)
		return
	}

	greeting := "Hi! Send me a message and I'll reply. I remember the recent context of our conversation."
	if err := b.api.SendMessage(ctx, chatID, greeting, markup.ParseModeNone); err != nil {
		b.logger.Error("sending greeting failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleChat(ctx context.Context, chatID int64, externalID, displayName, text string) {
	if err := b.api.SendChatAction(ctx, chatID, "typing"); err != nil {
		b.logger.Debug("chat action failed", "chat_id", chatID, "error", err)
	}

	reply, err := b.replier.ProcessTurn(ctx, externalID, displayName, text)
	if err != nil {
		b.logger.Error("turn failed", "external_id", externalID, "error", err)
		return
	}

	if err := b.deliver(ctx, chatID, reply); err != nil {
		b.logger.Error("delivery failed", "chat_id", chatID, "error", err)
	}
}

// deliver formats a reply, chunks it, and sends the chunks in order. If
// Telegram rejects the markup of any chunk, the raw unformatted text is
// resent as plain text instead.
func (b *Bot) deliver(ctx context.Context, chatID int64, reply string) error {
	formatted, mode := markup.Format(reply)
	if formatted == "" {
		return nil
	}

	for chunk := range markup.Chunks(formatted) {
		if err := b.api.SendMessage(ctx, chatID, chunk, mode); err != nil {
			if errors.Is(err, ErrMarkupRejected) {
				b.logger.Warn("markup rejected, resending as plain text", "chat_id", chatID)
				return b.sendPlain(ctx, chatID, reply)
			}
			return err
		}
	}
	return nil
}

func (b *Bot) sendPlain(ctx context.Context, chatID int64, text string) error {
	for chunk := range markup.Chunks(text) {
		if err := b.api.SendMessage(ctx, chatID, chunk, markup.ParseModeNone); err != nil {
			return err
		}
	}
	return nil
}
