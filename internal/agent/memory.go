package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rahul/codemate/internal/store"
)

// TaskRecord is one finished request.
type TaskRecord struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chat_id,omitempty"`
	Task        string       `json:"task"`
	Plan        Plan         `json:"plan"`
	Results     []StepRecord `json:"results"`
	FinalResult string       `json:"final_result"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Archive persists task records beyond the in-memory window.
type Archive interface {
	Archive(ctx context.Context, rec TaskRecord) error
}

// Memory keeps the most recent task records. Eviction is by insertion order.
type Memory struct {
	mu      sync.Mutex
	limit   int
	records []TaskRecord
	archive Archive
}

func NewMemory(limit int, archive Archive) *Memory {
	if limit <= 0 {
		limit = 1
	}
	return &Memory{limit: limit, archive: archive}
}

// Add appends rec, evicts the oldest records beyond the limit and forwards
// rec to the archive. The archive error is returned after the record is kept.
func (m *Memory) Add(ctx context.Context, rec TaskRecord) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	if over := len(m.records) - m.limit; over > 0 {
		m.records = append([]TaskRecord(nil), m.records[over:]...)
	}
	m.mu.Unlock()

	if m.archive == nil {
		return nil
	}
	return m.archive.Archive(ctx, rec)
}

// Records returns a copy, oldest first.
func (m *Memory) Records() []TaskRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TaskRecord(nil), m.records...)
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// StoreArchive writes task records to the sqlite history store.
type StoreArchive struct {
	Store *store.HistoryStore
	// Keep trims the table to the newest Keep rows after each insert. Zero keeps everything.
	Keep int
}

func (a StoreArchive) Archive(ctx context.Context, rec TaskRecord) error {
	plan, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	err = a.Store.SaveTask(ctx, store.Task{
		ID:          rec.ID,
		ChatID:      rec.ChatID,
		Task:        rec.Task,
		PlanJSON:    string(plan),
		ResultsJSON: string(results),
		FinalResult: rec.FinalResult,
		CreatedAt:   rec.Timestamp,
	})
	if err != nil {
		return err
	}
	if a.Keep > 0 {
		if _, err := a.Store.Trim(ctx, a.Keep); err != nil {
			return err
		}
	}
	return nil
}

// FromStoreTask decodes an archived row back into a TaskRecord.
func FromStoreTask(t store.Task) (TaskRecord, error) {
	rec := TaskRecord{ID: t.ID, ChatID: t.ChatID, Task: t.Task, FinalResult: t.FinalResult, Timestamp: t.CreatedAt}
	if err := json.Unmarshal([]byte(t.PlanJSON), &rec.Plan); err != nil {
		return rec, fmt.Errorf("failed to decode plan of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(t.ResultsJSON), &rec.Results); err != nil {
		return rec, fmt.Errorf("failed to decode results of %s: %w", t.ID, err)
	}
	return rec, nil
}
