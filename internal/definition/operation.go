package definition

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/watzon/actra/internal/expr"
)

// Operation is one executable statement of a lifecycle hook. The set of
// operations is closed: every concrete type lives in this file so the
// validator can enumerate all legal tags statically.
type Operation interface {
	// OpName returns the operation's wire tag.
	OpName() string
}

// OperationList is an ordered list of operations, decoded from the tagged
// JSON array form.
type OperationList []Operation

// Operation tags.
const (
	OpUpdateProfile        = "update_profile"
	OpGetProfile           = "get_profile"
	OpCreateAction         = "create_action"
	OpGetAction            = "get_action"
	OpUpdateAction         = "update_action"
	OpDeleteAction         = "delete_action"
	OpIf                   = "if"
	OpSwitch               = "switch"
	OpForeach              = "foreach"
	OpReturn               = "return"
	OpSet                  = "set"
	OpGet                  = "get"
	OpMerge                = "merge"
	OpSyncAttachment       = "sync_attachment"
	OpBroadcastToFollowers = "broadcast_to_followers"
	OpSendToAudience       = "send_to_audience"
	OpCreateNotification   = "create_notification"
	OpLog                  = "log"
	OpAbort                = "abort"
)

// UpdateProfileOp patches profile attributes of a target identity.
type UpdateProfileOp struct {
	Target *expr.Expression            `json:"target"`
	Set    map[string]*expr.Expression `json:"set"`
}

// GetProfileOp fetches a profile and binds it into the variable scope.
type GetProfileOp struct {
	Target *expr.Expression `json:"target"`
	As     string           `json:"as,omitempty"`
}

// CreateActionOp creates a new action through the action store.
type CreateActionOp struct {
	Type        string           `json:"type"`
	Subtype     *expr.Expression `json:"subtype,omitempty"`
	Audience    *expr.Expression `json:"audience,omitempty"`
	Parent      *expr.Expression `json:"parent,omitempty"`
	Subject     *expr.Expression `json:"subject,omitempty"`
	Content     *expr.Expression `json:"content,omitempty"`
	Attachments *expr.Expression `json:"attachments,omitempty"`
	As          string           `json:"as,omitempty"`
}

// GetActionOp fetches an action by key or id and binds it into the scope.
type GetActionOp struct {
	Key      *expr.Expression `json:"key,omitempty"`
	ActionID *expr.Expression `json:"action_id,omitempty"`
	As       string           `json:"as,omitempty"`
}

// UpdateActionOp patches fields of a stored action.
type UpdateActionOp struct {
	Target *expr.Expression       `json:"target"`
	Set    map[string]UpdateValue `json:"set"`
}

// DeleteActionOp removes a stored action.
type DeleteActionOp struct {
	Target *expr.Expression `json:"target"`
}

// IfOp branches on a condition. An absent else list is a no-op branch.
type IfOp struct {
	Condition *expr.Expression `json:"condition"`
	Then      OperationList    `json:"then"`
	Else      OperationList    `json:"else,omitempty"`
}

// SwitchOp runs the first case whose value equals the selector, or the
// default list when no case matches.
type SwitchOp struct {
	Value   *expr.Expression         `json:"value"`
	Cases   map[string]OperationList `json:"cases"`
	Default OperationList            `json:"default,omitempty"`
}

// ForeachOp iterates a list expression, binding each item to a scope
// variable for the duration of the body.
type ForeachOp struct {
	Array *expr.Expression `json:"array"`
	As    string           `json:"as,omitempty"`
	Do    OperationList    `json:"do"`
}

// ReturnOp terminates the hook successfully, optionally carrying a value.
type ReturnOp struct {
	Value *expr.Expression `json:"value,omitempty"`
}

// SetOp writes a variable into the scope.
type SetOp struct {
	Var   string           `json:"var"`
	Value *expr.Expression `json:"value"`
}

// GetOp copies an evaluated value into a named variable.
type GetOp struct {
	Var  string           `json:"var"`
	From *expr.Expression `json:"from"`
}

// MergeOp shallow-merges map values; right-hand keys win.
type MergeOp struct {
	Objects []*expr.Expression `json:"objects"`
	As      string             `json:"as"`
}

// SyncAttachmentOp asks the federation transport to replicate a file.
type SyncAttachmentOp struct {
	FileID *expr.Expression `json:"file_id"`
	From   *expr.Expression `json:"from,omitempty"`
}

// BroadcastToFollowersOp fans an action token out to all followers.
type BroadcastToFollowersOp struct {
	ActionID *expr.Expression `json:"action_id"`
	Token    *expr.Expression `json:"token"`
}

// SendToAudienceOp delivers an action token to one audience identity.
type SendToAudienceOp struct {
	ActionID *expr.Expression `json:"action_id"`
	Token    *expr.Expression `json:"token"`
	Audience *expr.Expression `json:"audience"`
}

// CreateNotificationOp emits a notification for a user.
type CreateNotificationOp struct {
	User     *expr.Expression `json:"user"`
	Type     *expr.Expression `json:"type"`
	ActionID *expr.Expression `json:"action_id"`
	Priority *expr.Expression `json:"priority,omitempty"`
}

// LogOp writes a diagnostic line tagged with the action type and hook.
type LogOp struct {
	Level   string           `json:"level,omitempty"`
	Message *expr.Expression `json:"message"`
}

// AbortOp terminates the hook with an operator-supplied failure reason.
type AbortOp struct {
	Error *expr.Expression `json:"error"`
	Code  string           `json:"code,omitempty"`
}

func (UpdateProfileOp) OpName() string        { return OpUpdateProfile }
func (GetProfileOp) OpName() string           { return OpGetProfile }
func (CreateActionOp) OpName() string         { return OpCreateAction }
func (GetActionOp) OpName() string            { return OpGetAction }
func (UpdateActionOp) OpName() string         { return OpUpdateAction }
func (DeleteActionOp) OpName() string         { return OpDeleteAction }
func (IfOp) OpName() string                   { return OpIf }
func (SwitchOp) OpName() string               { return OpSwitch }
func (ForeachOp) OpName() string              { return OpForeach }
func (ReturnOp) OpName() string               { return OpReturn }
func (SetOp) OpName() string                  { return OpSet }
func (GetOp) OpName() string                  { return OpGet }
func (MergeOp) OpName() string                { return OpMerge }
func (SyncAttachmentOp) OpName() string       { return OpSyncAttachment }
func (BroadcastToFollowersOp) OpName() string { return OpBroadcastToFollowers }
func (SendToAudienceOp) OpName() string       { return OpSendToAudience }
func (CreateNotificationOp) OpName() string   { return OpCreateNotification }
func (LogOp) OpName() string                  { return OpLog }
func (AbortOp) OpName() string                { return OpAbort }

// UnmarshalJSON decodes a tagged operation array.
func (l *OperationList) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("operations must be an array: %w", err)
	}

	ops := make(OperationList, 0, len(raws))
	for i, raw := range raws {
		op, err := UnmarshalOperation(raw)
		if err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		ops = append(ops, op)
	}
	*l = ops
	return nil
}

// MarshalJSON re-encodes the tagged operation array.
func (l OperationList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, op := range l {
		raw, err := marshalOperation(op)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalOperation decodes one tagged operation object.
func UnmarshalOperation(data []byte) (Operation, error) {
	var env struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid operation: %w", err)
	}
	if env.Op == "" {
		return nil, fmt.Errorf("operation missing 'op' tag")
	}

	decode := func(into Operation) (Operation, error) {
		if err := json.Unmarshal(data, into); err != nil {
			return nil, fmt.Errorf("%s: %w", env.Op, err)
		}
		return into, nil
	}

	switch env.Op {
	case OpUpdateProfile:
		op := &UpdateProfileOp{}
		return decode(op)
	case OpGetProfile:
		op := &GetProfileOp{}
		return decode(op)
	case OpCreateAction:
		op := &CreateActionOp{}
		return decode(op)
	case OpGetAction:
		op := &GetActionOp{}
		return decode(op)
	case OpUpdateAction:
		op := &UpdateActionOp{}
		return decode(op)
	case OpDeleteAction:
		op := &DeleteActionOp{}
		return decode(op)
	case OpIf:
		op := &IfOp{}
		return decode(op)
	case OpSwitch:
		op := &SwitchOp{}
		return decode(op)
	case OpForeach:
		op := &ForeachOp{}
		return decode(op)
	case OpReturn:
		op := &ReturnOp{}
		return decode(op)
	case OpSet:
		op := &SetOp{}
		return decode(op)
	case OpGet:
		op := &GetOp{}
		return decode(op)
	case OpMerge:
		op := &MergeOp{}
		return decode(op)
	case OpSyncAttachment:
		op := &SyncAttachmentOp{}
		return decode(op)
	case OpBroadcastToFollowers:
		op := &BroadcastToFollowersOp{}
		return decode(op)
	case OpSendToAudience:
		op := &SendToAudienceOp{}
		return decode(op)
	case OpCreateNotification:
		op := &CreateNotificationOp{}
		return decode(op)
	case OpLog:
		op := &LogOp{}
		return decode(op)
	case OpAbort:
		op := &AbortOp{}
		return decode(op)
	default:
		return nil, fmt.Errorf("unknown operation %q", env.Op)
	}
}

func marshalOperation(op Operation) (json.RawMessage, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(map[string]string{"op": op.OpName()})
	if err != nil {
		return nil, err
	}
	if bytes.Equal(body, []byte("{}")) {
		return tag, nil
	}
	// Splice the op tag into the body object.
	merged := append(tag[:len(tag)-1], ',')
	merged = append(merged, body[1:]...)
	return merged, nil
}

// strictUnmarshal decodes JSON rejecting unknown fields.
func strictUnmarshal(data []byte, into any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}

func marshalWrapped(key string, e *expr.Expression) ([]byte, error) {
	return json.Marshal(map[string]*expr.Expression{key: e})
}
