// Package definition holds the declarative action-type model: the
// definition document loaded from JSON or YAML, the operation statements
// that make up lifecycle hooks, and the load-time validator.
package definition

import (
	"github.com/watzon/actra/internal/expr"
)

// Hook kinds form a fixed enumerated set; each action type may define zero
// or more of them.
type HookKind string

const (
	HookOnCreate  HookKind = "on_create"
	HookOnReceive HookKind = "on_receive"
	HookOnAccept  HookKind = "on_accept"
	HookOnReject  HookKind = "on_reject"
)

// HookKinds lists every recognized lifecycle hook.
var HookKinds = []HookKind{HookOnCreate, HookOnReceive, HookOnAccept, HookOnReject}

// Definition describes one action type. Definitions are immutable once
// loaded; reloading a type identifier replaces the previous definition
// wholesale.
type Definition struct {
	// Type is the stable action type identifier (e.g. "CONN", "POST"),
	// optionally qualified with a subtype as "TYPE:SUBTYPE".
	Type string `json:"type"`
	// Version is a semantic version string.
	Version string `json:"version"`
	// Description is the human-readable summary.
	Description string `json:"description"`

	Metadata *Metadata `json:"metadata,omitempty"`

	// Subtypes maps subtype codes to descriptions.
	Subtypes map[string]string `json:"subtypes,omitempty"`

	// Fields constrains the fixed action fields (content, audience,
	// parent, subject, attachments).
	Fields map[string]FieldConstraint `json:"fields"`

	// Schema optionally constrains the content field's shape.
	Schema *SchemaWrapper `json:"schema,omitempty"`

	Behavior Behavior `json:"behavior"`

	// KeyPattern is a template rendered against the hook context to
	// produce the unique action key (e.g. "{type}:{issuer}:{audience}").
	KeyPattern string `json:"key_pattern,omitempty"`

	Hooks Hooks `json:"hooks"`

	Permissions *Permissions `json:"permissions,omitempty"`
}

// Metadata carries descriptive attributes of an action type.
type Metadata struct {
	Category     string   `json:"category,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Deprecated   bool     `json:"deprecated,omitempty"`
	Experimental bool     `json:"experimental,omitempty"`
}

// FieldConstraint is the constraint mode of one action field. An absent
// entry means the field is unconstrained-optional.
type FieldConstraint string

const (
	FieldRequired  FieldConstraint = "required"
	FieldForbidden FieldConstraint = "forbidden"
)

// FieldNames lists the fixed recognized action fields and their declared
// value types, keying into the field-type checker registry.
var FieldNames = map[string]string{
	"content":     "json",
	"audience":    "idTag",
	"parent":      "actionId",
	"subject":     "subjectRef",
	"attachments": "fileIdList",
}

// Behavior holds the flags controlling action processing. Reserved flags
// are loaded and exposed but not all are acted on yet.
type Behavior struct {
	// Broadcast sends to all followers when posting without an audience.
	Broadcast bool `json:"broadcast,omitempty"`
	// AllowUnknown accepts actions from non-connected users.
	AllowUnknown bool `json:"allow_unknown,omitempty"`
	// Ephemeral skips persistence entirely.
	Ephemeral bool `json:"ephemeral,omitempty"`
	// Approvable enables the approval flow for audience members.
	Approvable bool `json:"approvable,omitempty"`
	// RequiresSubscription gates child actions on a subscription.
	RequiresSubscription bool `json:"requires_subscription,omitempty"`
	// DeliverSubject delivers the subject action along with this one.
	DeliverSubject bool `json:"deliver_subject,omitempty"`
	// Subscribable allows subscriptions pointing at this action type.
	Subscribable bool `json:"subscribable,omitempty"`
	// DeliverToSubjectOwner also delivers to the subject's owner.
	DeliverToSubjectOwner bool `json:"deliver_to_subject_owner,omitempty"`
	// DefaultFlags are applied during action creation.
	DefaultFlags string `json:"default_flags,omitempty"`

	// RequiresAcceptance sets the initial status to confirmation.
	RequiresAcceptance bool `json:"requires_acceptance,omitempty"`
	// LocalOnly skips federation for this action type.
	LocalOnly bool `json:"local_only,omitempty"`
	// TTL is the action lifetime in seconds; expired actions are swept.
	TTL int64 `json:"ttl,omitempty"`
	// Sync requests synchronous processing.
	Sync bool `json:"sync,omitempty"`
	// Federated allows cross-instance delivery (default true when unset).
	Federated *bool `json:"federated,omitempty"`
}

// Hooks maps each lifecycle point to its ordered operation list. A nil
// list means the hook is not defined; executing it is a no-op success.
type Hooks struct {
	OnCreate  OperationList `json:"on_create,omitempty"`
	OnReceive OperationList `json:"on_receive,omitempty"`
	OnAccept  OperationList `json:"on_accept,omitempty"`
	OnReject  OperationList `json:"on_reject,omitempty"`
}

// Get returns the operation list for a hook kind.
func (h Hooks) Get(kind HookKind) (OperationList, bool) {
	switch kind {
	case HookOnCreate:
		return h.OnCreate, h.OnCreate != nil
	case HookOnReceive:
		return h.OnReceive, h.OnReceive != nil
	case HookOnAccept:
		return h.OnAccept, h.OnAccept != nil
	case HookOnReject:
		return h.OnReject, h.OnReject != nil
	default:
		return nil, false
	}
}

// Permissions holds the access rules for an action type. CanCreate and
// CanReceive are CEL expressions compiled at load time.
type Permissions struct {
	CanCreate         string `json:"can_create,omitempty"`
	CanReceive        string `json:"can_receive,omitempty"`
	RequiresFollowing bool   `json:"requires_following,omitempty"`
	RequiresConnected bool   `json:"requires_connected,omitempty"`
}

// SchemaWrapper nests the content schema; only the content field has a
// configurable schema.
type SchemaWrapper struct {
	Content *ContentSchema `json:"content,omitempty"`
}

// ContentSchema constrains the shape of the content field.
type ContentSchema struct {
	Type ContentType `json:"type"`

	MinLength *int   `json:"min_length,omitempty"`
	MaxLength *int   `json:"max_length,omitempty"`
	Pattern   string `json:"pattern,omitempty"`

	// Sanitize strips HTML from string content before validation.
	Sanitize bool `json:"sanitize,omitempty"`

	Enum []any `json:"enum,omitempty"`

	Properties map[string]*SchemaField `json:"properties,omitempty"`
	Required   []string                `json:"required,omitempty"`

	Description string `json:"description,omitempty"`
}

// ContentType enumerates the recognized content schema types.
type ContentType string

const (
	ContentString  ContentType = "string"
	ContentNumber  ContentType = "number"
	ContentBoolean ContentType = "boolean"
	ContentObject  ContentType = "object"
	ContentJSON    ContentType = "json"
)

// IsValid reports whether the content type is recognized.
func (t ContentType) IsValid() bool {
	switch t {
	case ContentString, ContentNumber, ContentBoolean, ContentObject, ContentJSON:
		return true
	}
	return false
}

// SchemaField constrains one property of an object content schema.
type SchemaField struct {
	Type      string       `json:"type"`
	MinLength *int         `json:"min_length,omitempty"`
	MaxLength *int         `json:"max_length,omitempty"`
	Enum      []any        `json:"enum,omitempty"`
	Items     *SchemaField `json:"items,omitempty"`
}

// UpdateValue is one set-value of an update_action operation: either a
// direct expression or an increment/decrement/set wrapper.
type UpdateValue struct {
	Direct    *expr.Expression `json:"-"`
	Increment *expr.Expression `json:"increment,omitempty"`
	Decrement *expr.Expression `json:"decrement,omitempty"`
	Set       *expr.Expression `json:"set,omitempty"`
}

// UnmarshalJSON accepts either a bare expression or one of the wrapper
// object forms.
func (u *UpdateValue) UnmarshalJSON(data []byte) error {
	type wrapper struct {
		Increment *expr.Expression `json:"increment"`
		Decrement *expr.Expression `json:"decrement"`
		Set       *expr.Expression `json:"set"`
	}
	var w wrapper
	if err := strictUnmarshal(data, &w); err == nil &&
		(w.Increment != nil || w.Decrement != nil || w.Set != nil) {
		u.Increment, u.Decrement, u.Set = w.Increment, w.Decrement, w.Set
		return nil
	}

	var e expr.Expression
	if err := e.UnmarshalJSON(data); err != nil {
		return err
	}
	u.Direct = &e
	return nil
}

// MarshalJSON re-encodes the update value.
func (u UpdateValue) MarshalJSON() ([]byte, error) {
	switch {
	case u.Increment != nil:
		return marshalWrapped("increment", u.Increment)
	case u.Decrement != nil:
		return marshalWrapped("decrement", u.Decrement)
	case u.Set != nil:
		return marshalWrapped("set", u.Set)
	case u.Direct != nil:
		return u.Direct.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}
