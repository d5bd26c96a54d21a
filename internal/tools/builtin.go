// ABOUTME: Built-in tools shipped with the bot
// ABOUTME: Registered explicitly from the composition root, never via init()

package tools

import (
	"context"
	"encoding/json"
	"time"
)

// RegisterBuiltins registers the tools that ship with the bot. Calling it on a
// registry that already holds a builtin is a no-op for that tool, so it is
// safe to call more than once.
func RegisterBuiltins(r *Registry) error {
	builtins := []*Tool{
		{
			Name:        "current_time",
			Description: "Returns the current date and time.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{},"required":[]}`),
			Handler: func(_ context.Context, _ json.RawMessage) (string, error) {
				return time.Now().Format("2006-01-02 15:04:05"), nil
			},
		},
	}

	for _, t := range builtins {
		if r.Get(t.Name) != nil {
			continue
		}
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
