package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *HistoryStore {
	t.Helper()
	h, err := NewHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestTasks_SaveRecentTrim(t *testing.T) {
	ctx := context.Background()
	h := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.SaveTask(ctx, Task{
			ID:          fmt.Sprintf("t%d", i),
			Task:        fmt.Sprintf("task %d", i),
			PlanJSON:    `[]`,
			ResultsJSON: `[]`,
			FinalResult: "ok",
		}))
	}

	recent, err := h.RecentTasks(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"t2", "t3", "t4"}, []string{recent[0].ID, recent[1].ID, recent[2].ID})
	assert.False(t, recent[0].CreatedAt.IsZero())

	removed, err := h.Trim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	recent, err = h.RecentTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t3", recent[0].ID)
	assert.Equal(t, "t4", recent[1].ID)
}

func TestTasks_DuplicateID(t *testing.T) {
	ctx := context.Background()
	h := newTestStore(t)

	task := Task{ID: "same", Task: "x", PlanJSON: "[]", ResultsJSON: "[]"}
	require.NoError(t, h.SaveTask(ctx, task))
	assert.Error(t, h.SaveTask(ctx, task))
}

func TestMessages_History(t *testing.T) {
	ctx := context.Background()
	h := newTestStore(t)

	require.NoError(t, h.AddMessage(ctx, "chat-1", "human", "hello"))
	require.NoError(t, h.AddMessage(ctx, "chat-2", "human", "other chat"))
	require.NoError(t, h.AddMessage(ctx, "chat-1", "ai", "hi there"))
	require.NoError(t, h.AddMessage(ctx, "chat-1", "human", "run it"))

	history, err := h.GetHistory(ctx, "chat-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi there", history[0].Content)
	assert.Equal(t, "ai", history[0].Role)
	assert.Equal(t, "run it", history[1].Content)

	empty, err := h.GetHistory(ctx, "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	h, err := NewHistoryStore(path)
	require.NoError(t, err)
	require.NoError(t, h.SaveTask(ctx, Task{ID: "a", Task: "x", PlanJSON: "[]", ResultsJSON: "[]"}))
	require.NoError(t, h.Close())

	h, err = NewHistoryStore(path)
	require.NoError(t, err)
	defer h.Close()
	tasks, err := h.RecentTasks(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}
