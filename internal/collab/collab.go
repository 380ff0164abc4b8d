// Package collab defines the collaborator interfaces the hook executor
// calls into: profile and action storage, federation transport, and
// notification delivery. Implementations live elsewhere; in-memory
// versions back the engine tests.
package collab

import (
	"context"
	"errors"
	"time"

	"github.com/watzon/actra/internal/value"
)

// ErrNotFound is returned by stores when a profile or action does not
// exist.
var ErrNotFound = errors.New("not found")

// Action is a stored social action record.
type Action struct {
	ActionID    string
	Key         string
	Type        string
	Subtype     string
	Issuer      string
	Audience    string
	Parent      string
	Subject     string
	Content     value.Value
	Attachments []string
	Status      string
	Flags       string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	Stats       map[string]float64
}

// Value renders the action as a map value for binding into hook scopes.
func (a *Action) Value() value.Value {
	attachments := make([]value.Value, 0, len(a.Attachments))
	for _, id := range a.Attachments {
		attachments = append(attachments, value.String(id))
	}

	fields := map[string]value.Value{
		"action_id":  value.String(a.ActionID),
		"key":        value.String(a.Key),
		"type":       value.String(a.Type),
		"issuer":     value.String(a.Issuer),
		"status":     value.String(a.Status),
		"created_at": value.Number(float64(a.CreatedAt.Unix())),
	}
	setOpt := func(name, v string) {
		if v != "" {
			fields[name] = value.String(v)
		} else {
			fields[name] = value.Null()
		}
	}
	setOpt("subtype", a.Subtype)
	setOpt("audience", a.Audience)
	setOpt("parent", a.Parent)
	setOpt("subject", a.Subject)
	fields["content"] = a.Content
	fields["attachments"] = value.List(attachments...)
	if a.ExpiresAt != nil {
		fields["expires_at"] = value.Number(float64(a.ExpiresAt.Unix()))
	} else {
		fields["expires_at"] = value.Null()
	}

	if len(a.Stats) > 0 {
		stats := make(map[string]value.Value, len(a.Stats))
		for k, n := range a.Stats {
			stats[k] = value.Number(n)
		}
		fields["stats"] = value.Map(stats)
	}

	return value.Map(fields)
}

// ProfileStore reads and patches identity profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, idTag string) (value.Value, error)
	UpdateProfile(ctx context.Context, idTag string, patch map[string]value.Value) error
}

// ActionStore persists actions and answers key and id lookups.
type ActionStore interface {
	CreateAction(ctx context.Context, a *Action) error
	GetActionByID(ctx context.Context, actionID string) (*Action, error)
	GetActionByKey(ctx context.Context, key string) (*Action, error)
	UpdateAction(ctx context.Context, actionID string, set map[string]value.Value) error
	DeleteAction(ctx context.Context, actionID string) error
}

// Federation delivers action tokens and replicates attachments across
// instances.
type Federation interface {
	SendToAudience(ctx context.Context, audience, actionID, token string) error
	BroadcastToFollowers(ctx context.Context, actionID, token string) error
	SyncAttachment(ctx context.Context, fileID, from string) error
}

// Notification is one user-facing notification request.
type Notification struct {
	User     string
	Type     string
	ActionID string
	Priority string
}

// Notifier queues notifications for delivery.
type Notifier interface {
	CreateNotification(ctx context.Context, n Notification) error
}
