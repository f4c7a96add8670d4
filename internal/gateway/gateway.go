package gateway

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rahul/codemate/internal/agent"
	"github.com/rahul/codemate/internal/observability"
	"go.uber.org/zap"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	Name() string
	// Start listens for messages until ctx ends or the connection fails.
	Start(ctx context.Context) error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

const thinkFailedReply = "Something went wrong while working on that. Please try again."

// Respond runs one chat message through the brain. Brain errors become a
// short apology so the chat always gets an answer.
func Respond(ctx context.Context, brain agent.Brain, logger *observability.Logger, chatID, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	reply, err := brain.Think(ctx, chatID, text)
	if err != nil {
		logger.Warn("brain failed", zap.String("chat_id", chatID), zap.Error(err))
		return thinkFailedReply
	}
	if strings.TrimSpace(reply) == "" {
		return "(no output)"
	}
	return reply
}

// SplitMessage cuts text into chunks of at most limit runes, preferring line
// breaks so code blocks stay readable.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
