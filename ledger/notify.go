package ledger

import (
	"context"
	"log"
	"sync"
	"time"
)

// =============================================================================
// NOTIFIER - User-visible operation outcomes
// =============================================================================

// Every reconciliation operation reports its outcome through a Notifier
// rather than surfacing raw errors to the UI: success paths notify so the
// caller never polls for completion, failure paths notify with a
// human-readable message. Notifications are best-effort; a notifier must
// never fail the operation it is reporting on.

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	Level   Level
	Message string
	At      time.Time
}

type Notifier interface {
	Success(ctx context.Context, message string)
	Failure(ctx context.Context, message string)
}

// =============================================================================
// IMPLEMENTATIONS
// =============================================================================

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) Success(context.Context, string) {}
func (NopNotifier) Failure(context.Context, string) {}

// LogNotifier writes notifications to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Success(_ context.Context, message string) { log.Printf("ok: %s", message) }
func (LogNotifier) Failure(_ context.Context, message string) { log.Printf("failed: %s", message) }

// MemoryNotifier records notifications in memory. Test use.
type MemoryNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func NewMemoryNotifier() *MemoryNotifier { return &MemoryNotifier{} }

func (m *MemoryNotifier) Success(_ context.Context, message string) {
	m.record(LevelSuccess, message)
}

func (m *MemoryNotifier) Failure(_ context.Context, message string) {
	m.record(LevelError, message)
}

func (m *MemoryNotifier) record(level Level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, Notification{Level: level, Message: message, At: time.Now()})
}

// Notifications returns a copy of everything recorded so far.
func (m *MemoryNotifier) Notifications() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// Last returns the most recent notification, or nil.
func (m *MemoryNotifier) Last() *Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.notifications) == 0 {
		return nil
	}
	n := m.notifications[len(m.notifications)-1]
	return &n
}
