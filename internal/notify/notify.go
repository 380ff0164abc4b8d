// Package notify fans hook-created notifications out to in-process
// subscribers. Subscribers register per notification type, with "*"
// matching all types.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/watzon/actra/internal/collab"
)

// Handler consumes one published notification.
type Handler func(ctx context.Context, n *Notification) error

// Notification is a delivered notification event.
type Notification struct {
	ID        string
	User      string
	Type      string
	ActionID  string
	Priority  string
	CreatedAt time.Time
}

// Bus is the in-process notification sink. Publishing never blocks on
// subscribers; handler errors are logged, not propagated to the hook.
type Bus struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	history  []*Notification
	capacity int
}

// NewBus creates a bus keeping at most capacity recent notifications;
// zero means the default of 1000.
func NewBus(capacity int, logger zerolog.Logger) *Bus {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]Handler),
		capacity: capacity,
	}
}

// Subscribe registers a handler for one notification type, or all types
// with "*".
func (b *Bus) Subscribe(notifType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[notifType] = append(b.handlers[notifType], handler)

	b.logger.Debug().Str("type", notifType).Msg("notification handler subscribed")
}

// CreateNotification implements collab.Notifier.
func (b *Bus) CreateNotification(ctx context.Context, req collab.Notification) error {
	if req.User == "" {
		return fmt.Errorf("notification requires a user")
	}

	n := &Notification{
		ID:        uuid.NewString(),
		User:      req.User,
		Type:      req.Type,
		ActionID:  req.ActionID,
		Priority:  req.Priority,
		CreatedAt: time.Now(),
	}

	b.mu.Lock()
	b.history = append(b.history, n)
	if len(b.history) > b.capacity {
		b.history = b.history[len(b.history)-b.capacity:]
	}
	handlers := append([]Handler{}, b.handlers[n.Type]...)
	handlers = append(handlers, b.handlers["*"]...)
	b.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(ctx, n); err != nil {
			b.logger.Warn().Err(err).
				Str("type", n.Type).
				Str("user", n.User).
				Msg("notification handler failed")
		}
	}

	b.logger.Debug().
		Str("type", n.Type).
		Str("user", n.User).
		Str("action_id", n.ActionID).
		Msg("notification created")
	return nil
}

// Recent returns up to limit notifications for a user, newest first.
func (b *Bus) Recent(user string, limit int) []*Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Notification
	for i := len(b.history) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if b.history[i].User == user {
			out = append(out, b.history[i])
		}
	}
	return out
}
