// ABOUTME: Tests for the mock generator
// ABOUTME: Covers the echo shape and rune-safe truncation of long input

package llm

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock_EchoesLastMessage(t *testing.T) {
	reply, err := NewMock().Generate(context.Background(), []Message{
		{Role: "user", Content: "first"},
		{Role: "user", Content: "second"},
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "You said: second")
}

func TestMock_TruncatesLongInputOnRuneBoundary(t *testing.T) {
	// 3-byte runes that never align with the 200-byte cutoff.
	long := strings.Repeat("€", 100)
	require.Greater(t, len(long), 200)

	reply, err := NewMock().Generate(context.Background(), []Message{
		{Role: "user", Content: long},
	}, nil)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(reply))
	assert.NotContains(t, reply, "�")
}

func TestMock_EmptyHistory(t *testing.T) {
	reply, err := NewMock().Generate(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Contains(t, reply, "You said: ")
}
