// Package telegram contains the Bot API client and the update loop.
//
// The client is a thin net/http wrapper over the handful of Bot API methods
// the bot needs: getMe, getUpdates long polling, sendMessage, and
// sendChatAction. The bot loop deduplicates redelivered updates, routes
// commands and chat messages, and delivers replies through the formatting
// and chunking pipeline with a plain-text fallback when Telegram rejects the
// markup.
package telegram
