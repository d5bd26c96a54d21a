// Package conversation implements the per-turn orchestration at the heart of
// the bot.
//
// A turn is: resolve the user (creating them on first contact), resolve their
// active conversation under the rotation policy, replay the recent context
// window to the reply generator, and persist both sides of the exchange. All
// of it happens inside one store session, so a turn commits atomically or
// leaves no trace.
//
// Conversations rotate at a fixed message cap. Rotation closes the full
// conversation and starts an empty one, repointing the user's
// active-conversation pointer. The cap is checked before the turn's own
// writes, so a fresh conversation is never immediately re-rotated.
package conversation
