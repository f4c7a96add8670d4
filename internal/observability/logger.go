package observability

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypeToolCall    EventType = "tool_call"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeCorrection  EventType = "correction"
	EventTypeMemory      EventType = "memory"
	EventTypeHeartbeat   EventType = "heartbeat"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures NewLogger.
type Options struct {
	Level      string
	Format     string // "json" or "console"
	Output     io.Writer
	LLMLogPath string // empty disables the llm transcript file
	MaxSize    int64
}

// Logger handles structured logging. Operational messages and events go to
// the main core; LLM transcripts are additionally appended to a rotating file.
type Logger struct {
	zap *zap.Logger
	llm *zap.Logger
}

func NewLogger(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, err
		}
	}
	out := opts.Output
	if out == nil {
		out = NewTermWriter()
	}

	core := zapcore.NewCore(newEncoder(opts.Format), zapcore.AddSync(out), level)
	l := &Logger{zap: zap.New(core)}

	if opts.LLMLogPath != "" {
		maxSize := opts.MaxSize
		if maxSize <= 0 {
			maxSize = 10 * 1024 * 1024 // 10MB
		}
		w := &rotatingFile{path: opts.LLMLogPath, maxSize: maxSize}
		l.llm = zap.New(zapcore.NewCore(newEncoder("json"), zapcore.AddSync(w), zapcore.DebugLevel))
	}
	return l, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// FromZap wraps an existing zap logger, mostly for tests with zaptest/observer.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }

// Named returns a child logger scoped to a component.
func (l *Logger) Named(name string) *Logger {
	c := &Logger{zap: l.zap.Named(name)}
	if l.llm != nil {
		c.llm = l.llm.Named(name)
	}
	return c
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	_ = l.zap.Sync()
	if l.llm != nil {
		_ = l.llm.Sync()
	}
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	fields := []zap.Field{
		zap.String("type", string(evt.Type)),
		zap.Time("event_ts", evt.Timestamp),
		zap.Any("data", evt.Data),
	}
	if evt.ChatID != "" {
		fields = append(fields, zap.String("chat_id", evt.ChatID))
	}
	if evt.TaskID != "" {
		fields = append(fields, zap.String("task_id", evt.TaskID))
	}

	if evt.Type == EventTypeLLM {
		// transcripts are large; keep them out of the console unless debugging
		l.zap.Debug("event", fields...)
		if l.llm != nil {
			l.llm.Info("event", fields...)
		}
		return
	}
	l.zap.Info("event", fields...)
}

// Helper methods for common events

func (l *Logger) LogPlan(taskID, source string, steps any) {
	l.Log(Event{
		Type:   EventTypePlan,
		TaskID: taskID,
		Data: map[string]any{
			"source": source,
			"steps":  steps,
		},
	})
}

func (l *Logger) LogStep(taskID string, index int, kind string, success bool, synthetic bool) {
	l.Log(Event{
		Type:   EventTypeStep,
		TaskID: taskID,
		Data: map[string]any{
			"index":     index,
			"kind":      kind,
			"success":   success,
			"synthetic": synthetic,
		},
	})
}

func (l *Logger) LogToolCall(taskID, tool string, args any) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		TaskID: taskID,
		Data: map[string]any{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogPolicyCheck(effect, reason string) {
	l.Log(Event{
		Type: EventTypePolicyCheck,
		Data: map[string]string{
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogCorrection(taskID, path, result string) {
	l.Log(Event{
		Type:   EventTypeCorrection,
		TaskID: taskID,
		Data: map[string]string{
			"path":   path,
			"result": result,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(taskType, model string, prompt any, response string) {
	l.Log(Event{
		Type: EventTypeLLM,
		Data: map[string]any{
			"task_type": taskType,
			"model":     model,
			"prompt":    prompt,
			"response":  response,
		},
	})
}

// rotatingFile appends to path and keeps a single .old generation once
// maxSize is exceeded.
type rotatingFile struct {
	mu      sync.Mutex
	path    string
	maxSize int64
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return 0, err
	}
	if info, err := os.Stat(r.path); err == nil && info.Size() > r.maxSize {
		oldPath := r.path + ".old"
		_ = os.Remove(oldPath)
		_ = os.Rename(r.path, oldPath)
	}

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Write(p)
}
