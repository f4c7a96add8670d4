package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Brain defines the core intelligence interface for the agent.
type Brain interface {
	Think(ctx context.Context, chatID string, input string) (string, error)
}

// ConversationLog records the exchanges of chat gateways.
type ConversationLog interface {
	AddMessage(ctx context.Context, chatID, role, content string) error
}

// TaskBrain answers chat messages by running each one as a task.
type TaskBrain struct {
	Orchestrator *Orchestrator
	History      ConversationLog
}

func NewTaskBrain(o *Orchestrator, history ConversationLog) *TaskBrain {
	return &TaskBrain{Orchestrator: o, History: history}
}

func (b *TaskBrain) Think(ctx context.Context, chatID string, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("request cancelled: %w", err)
	}
	rec := b.Orchestrator.Run(ctx, chatID, input)

	if b.History != nil {
		for _, m := range []struct{ role, content string }{{"human", input}, {"ai", rec.FinalResult}} {
			if err := b.History.AddMessage(ctx, chatID, m.role, m.content); err != nil {
				b.Orchestrator.Logger.Warn("failed to record message", zap.String("chat_id", chatID), zap.Error(err))
			}
		}
	}
	return rec.FinalResult, nil
}
