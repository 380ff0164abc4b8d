package engine

import (
	"time"

	"github.com/watzon/actra/internal/value"
)

// Tenant identifies the instance tenant a hook runs under.
type Tenant struct {
	ID   string
	Tag  string
	Type string
}

// HookContext is the per-invocation variable scope a hook executes
// against. Each invocation owns a freshly constructed context; contexts
// are never shared between invocations.
type HookContext struct {
	ActionID    string
	Type        string
	Subtype     string
	Issuer      string
	Audience    string
	Parent      string
	Subject     string
	Content     value.Value
	Attachments []string
	CreatedAt   time.Time
	ExpiresAt   *time.Time

	Tenant        Tenant
	IsInbound     bool
	ClientAddress string

	// Vars holds hook-scoped variables written by set/get/merge and
	// collaborator result bindings. Successful hook runs commit their
	// final variables back here; timed-out runs do not.
	Vars map[string]value.Value
}

// Lookup resolves a root variable name: built-in action and transport
// fields first, then hook variables.
func (hc *HookContext) Lookup(name string) (value.Value, bool) {
	switch name {
	case "action_id":
		return value.String(hc.ActionID), true
	case "type":
		return value.String(hc.Type), true
	case "subtype":
		return optString(hc.Subtype), true
	case "issuer":
		return value.String(hc.Issuer), true
	case "audience":
		return optString(hc.Audience), true
	case "parent":
		return optString(hc.Parent), true
	case "subject":
		return optString(hc.Subject), true
	case "content":
		return hc.Content, true
	case "attachments":
		items := make([]value.Value, 0, len(hc.Attachments))
		for _, id := range hc.Attachments {
			items = append(items, value.String(id))
		}
		return value.List(items...), true
	case "created_at":
		return value.Number(float64(hc.CreatedAt.Unix())), true
	case "expires_at":
		if hc.ExpiresAt == nil {
			return value.Null(), true
		}
		return value.Number(float64(hc.ExpiresAt.Unix())), true
	case "tenant":
		return value.Map(map[string]value.Value{
			"id":   value.String(hc.Tenant.ID),
			"tag":  value.String(hc.Tenant.Tag),
			"type": value.String(hc.Tenant.Type),
		}), true
	case "is_inbound":
		return value.Bool(hc.IsInbound), true
	case "is_outbound":
		return value.Bool(!hc.IsInbound), true
	case "client_address":
		return optString(hc.ClientAddress), true
	}

	v, ok := hc.Vars[name]
	return v, ok
}

func optString(s string) value.Value {
	if s == "" {
		return value.Null()
	}
	return value.String(s)
}
