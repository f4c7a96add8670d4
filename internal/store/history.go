package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Task is one archived request with its plan and step records serialized as JSON.
type Task struct {
	ID          string
	ChatID      string
	Task        string
	PlanJSON    string
	ResultsJSON string
	FinalResult string
	CreatedAt   time.Time
}

// Message is one side of a gateway conversation.
type Message struct {
	ChatID    string
	Role      string
	Content   string
	CreatedAt time.Time
}

type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	// sqlite: single connection, gateways write concurrently
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			chat_id TEXT NOT NULL DEFAULT '',
			task TEXT NOT NULL,
			plan TEXT NOT NULL,
			results TEXT NOT NULL,
			final_result TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (chat_id, seq);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate history db: %w", err)
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}

func (h *HistoryStore) SaveTask(ctx context.Context, t Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	query := `INSERT INTO tasks (id, chat_id, task, plan, results, final_result, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := h.DB.ExecContext(ctx, query, t.ID, t.ChatID, t.Task, t.PlanJSON, t.ResultsJSON, t.FinalResult, t.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", t.ID, err)
	}
	return nil
}

// RecentTasks returns up to limit tasks, oldest first.
func (h *HistoryStore) RecentTasks(ctx context.Context, limit int) ([]Task, error) {
	query := `SELECT id, chat_id, task, plan, results, final_result, created_at FROM tasks ORDER BY seq DESC LIMIT ?`
	rows, err := h.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var created int64
		if err := rows.Scan(&t.ID, &t.ChatID, &t.Task, &t.PlanJSON, &t.ResultsJSON, &t.FinalResult, &created); err != nil {
			return nil, err
		}
		t.CreatedAt = time.Unix(0, created)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(tasks)
	return tasks, nil
}

// Trim keeps the newest keep tasks and reports how many were removed.
func (h *HistoryStore) Trim(ctx context.Context, keep int) (int64, error) {
	query := `DELETE FROM tasks WHERE seq NOT IN (SELECT seq FROM tasks ORDER BY seq DESC LIMIT ?)`
	res, err := h.DB.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim tasks: %w", err)
	}
	return res.RowsAffected()
}

func (h *HistoryStore) AddMessage(ctx context.Context, chatID, role, content string) error {
	query := `INSERT INTO messages (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	_, err := h.DB.ExecContext(ctx, query, chatID, role, content, time.Now().UnixNano())
	return err
}

// GetHistory returns the last limit messages of a chat in chronological order.
func (h *HistoryStore) GetHistory(ctx context.Context, chatID string, limit int) ([]Message, error) {
	query := `SELECT chat_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY seq DESC LIMIT ?`
	rows, err := h.DB.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var m Message
		var created int64
		if err := rows.Scan(&m.ChatID, &m.Role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(0, created)
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(history)
	return history, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
