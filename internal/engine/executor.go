package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/watzon/actra/internal/collab"
	"github.com/watzon/actra/internal/definition"
	"github.com/watzon/actra/internal/expr"
	"github.com/watzon/actra/internal/metrics"
	"github.com/watzon/actra/internal/value"
)

const (
	// MaxOperations caps effectful operations per hook invocation.
	// Control-flow containers are bounded separately by the nesting and
	// iteration limits and do not consume this budget.
	MaxOperations = 100
	// MaxIterations caps foreach trip counts.
	MaxIterations = 100
)

// Collaborators bundles the external capability interfaces a hook may
// call.
type Collaborators struct {
	Profiles   collab.ProfileStore
	Actions    collab.ActionStore
	Federation collab.Federation
	Notifier   collab.Notifier
}

// ExecResult is the successful outcome of a hook invocation. Returned is
// true when a return operation terminated the hook early.
type ExecResult struct {
	Returned bool
	Value    value.Value
}

type executor struct {
	ctx     context.Context
	hc      *HookContext
	vars    map[string]value.Value
	collab  Collaborators
	resolve resolver
	logger  zerolog.Logger
	ops     int
}

// resolver looks up the definition for a created action's type so its
// behavior flags apply at creation time.
type resolver func(typeID, subtype string) (*definition.Definition, bool)

// control is the propagating signal of a return operation.
type control struct {
	value value.Value
}

// execute runs an operation list against a copy of the context's
// variables. The final variable set is returned separately so the caller
// decides whether to commit it.
func execute(ctx context.Context, ops definition.OperationList, hc *HookContext, c Collaborators, resolve resolver, logger zerolog.Logger) (*ExecResult, map[string]value.Value, error) {
	vars := make(map[string]value.Value, len(hc.Vars))
	for k, v := range hc.Vars {
		vars[k] = v
	}

	x := &executor{ctx: ctx, hc: hc, vars: vars, collab: c, resolve: resolve, logger: logger}
	ret, err := x.run(ops, 0)
	if err != nil {
		return nil, nil, err
	}
	if ret != nil {
		return &ExecResult{Returned: true, Value: ret.value}, x.vars, nil
	}
	return &ExecResult{}, x.vars, nil
}

// Lookup implements expr.Scope: hook variables shadow built-in fields.
func (x *executor) Lookup(name string) (value.Value, bool) {
	if v, ok := x.vars[name]; ok {
		return v, true
	}
	return x.hc.Lookup(name)
}

func (x *executor) run(ops definition.OperationList, depth int) (*control, error) {
	if depth > definition.MaxNestingDepth {
		return nil, &expr.ResourceLimitError{Limit: "control-flow nesting", Max: definition.MaxNestingDepth}
	}

	for _, op := range ops {
		ret, err := x.exec(op, depth)
		if err != nil {
			return nil, err
		}
		if ret != nil {
			return ret, nil
		}
	}
	return nil, nil
}

func (x *executor) countOp() error {
	x.ops++
	if x.ops > MaxOperations {
		return &expr.ResourceLimitError{Limit: "hook operations", Max: MaxOperations}
	}
	return nil
}

func (x *executor) exec(op definition.Operation, depth int) (*control, error) {
	switch o := op.(type) {
	case *definition.IfOp:
		cond, err := x.eval(o.Condition)
		if err != nil {
			return nil, err
		}
		if cond.Truthy() {
			return x.run(o.Then, depth+1)
		}
		if o.Else != nil {
			return x.run(o.Else, depth+1)
		}
		return nil, nil

	case *definition.SwitchOp:
		sel, err := x.eval(o.Value)
		if err != nil {
			return nil, err
		}
		label := sel.Stringify()
		if list, ok := o.Cases[label]; ok {
			return x.run(list, depth+1)
		}
		if o.Default != nil {
			return x.run(o.Default, depth+1)
		}
		return nil, nil

	case *definition.ForeachOp:
		return x.execForeach(o, depth)

	case *definition.ReturnOp:
		v, err := x.evalOpt(o.Value)
		if err != nil {
			return nil, err
		}
		return &control{value: v}, nil
	}

	if err := x.countOp(); err != nil {
		return nil, err
	}

	switch o := op.(type) {
	case *definition.SetOp:
		v, err := x.eval(o.Value)
		if err != nil {
			return nil, err
		}
		x.vars[o.Var] = v

	case *definition.GetOp:
		v, err := x.eval(o.From)
		if err != nil {
			return nil, err
		}
		x.vars[o.Var] = v

	case *definition.MergeOp:
		merged := value.Map(nil)
		for i, obj := range o.Objects {
			v, err := x.eval(obj)
			if err != nil {
				return nil, err
			}
			if v.IsNull() {
				continue
			}
			if v.Kind() != value.KindMap {
				return nil, &expr.EvalError{Message: fmt.Sprintf("merge operand %d is %s, want map", i, v.Kind())}
			}
			merged = value.Merge(merged, v)
		}
		x.vars[o.As] = merged

	case *definition.UpdateProfileOp:
		if err := x.execUpdateProfile(o); err != nil {
			return nil, err
		}

	case *definition.GetProfileOp:
		if err := x.execGetProfile(o); err != nil {
			return nil, err
		}

	case *definition.CreateActionOp:
		if err := x.execCreateAction(o); err != nil {
			return nil, err
		}

	case *definition.GetActionOp:
		if err := x.execGetAction(o); err != nil {
			return nil, err
		}

	case *definition.UpdateActionOp:
		if err := x.execUpdateAction(o); err != nil {
			return nil, err
		}

	case *definition.DeleteActionOp:
		target, err := x.evalString(o.Target)
		if err != nil {
			return nil, err
		}
		if err := x.collab.Actions.DeleteAction(x.ctx, target); err != nil {
			return nil, fmt.Errorf("delete_action: %w", err)
		}

	case *definition.SyncAttachmentOp:
		fileID, err := x.evalString(o.FileID)
		if err != nil {
			return nil, err
		}
		from, err := x.evalOptString(o.From)
		if err != nil {
			return nil, err
		}
		if err := x.collab.Federation.SyncAttachment(x.ctx, fileID, from); err != nil {
			return nil, fmt.Errorf("sync_attachment: %w", err)
		}

	case *definition.BroadcastToFollowersOp:
		actionID, err := x.evalString(o.ActionID)
		if err != nil {
			return nil, err
		}
		token, err := x.evalString(o.Token)
		if err != nil {
			return nil, err
		}
		if err := x.collab.Federation.BroadcastToFollowers(x.ctx, actionID, token); err != nil {
			return nil, fmt.Errorf("broadcast_to_followers: %w", err)
		}

	case *definition.SendToAudienceOp:
		actionID, err := x.evalString(o.ActionID)
		if err != nil {
			return nil, err
		}
		token, err := x.evalString(o.Token)
		if err != nil {
			return nil, err
		}
		audience, err := x.evalString(o.Audience)
		if err != nil {
			return nil, err
		}
		if err := x.collab.Federation.SendToAudience(x.ctx, audience, actionID, token); err != nil {
			return nil, fmt.Errorf("send_to_audience: %w", err)
		}

	case *definition.CreateNotificationOp:
		if err := x.execCreateNotification(o); err != nil {
			return nil, err
		}

	case *definition.LogOp:
		x.execLog(o)

	case *definition.AbortOp:
		reason, err := x.eval(o.Error)
		if err != nil {
			return nil, err
		}
		return nil, &AbortError{Reason: reason.Stringify(), Code: o.Code}

	default:
		return nil, fmt.Errorf("unsupported operation %q", op.OpName())
	}

	return nil, nil
}

func (x *executor) execForeach(o *definition.ForeachOp, depth int) (*control, error) {
	items, err := x.eval(o.Array)
	if err != nil {
		return nil, err
	}
	if items.Kind() != value.KindList {
		return nil, &expr.EvalError{Message: fmt.Sprintf("foreach requires a list, got %s", items.Kind())}
	}

	name := o.As
	if name == "" {
		name = "item"
	}
	prev, hadPrev := x.vars[name]
	defer func() {
		if hadPrev {
			x.vars[name] = prev
		} else {
			delete(x.vars, name)
		}
	}()

	for i, item := range items.ListValue() {
		if i >= MaxIterations {
			return nil, &expr.ResourceLimitError{Limit: "foreach iterations", Max: MaxIterations}
		}
		x.vars[name] = item
		ret, err := x.run(o.Do, depth+1)
		if err != nil {
			return nil, err
		}
		if ret != nil {
			return ret, nil
		}
	}
	return nil, nil
}

func (x *executor) execUpdateProfile(o *definition.UpdateProfileOp) error {
	target, err := x.evalString(o.Target)
	if err != nil {
		return err
	}
	patch := make(map[string]value.Value, len(o.Set))
	for field, e := range o.Set {
		v, err := x.eval(e)
		if err != nil {
			return err
		}
		patch[field] = v
	}
	if err := x.collab.Profiles.UpdateProfile(x.ctx, target, patch); err != nil {
		return fmt.Errorf("update_profile: %w", err)
	}
	return nil
}

func (x *executor) execGetProfile(o *definition.GetProfileOp) error {
	target, err := x.evalString(o.Target)
	if err != nil {
		return err
	}
	profile, err := x.collab.Profiles.GetProfile(x.ctx, target)
	if errors.Is(err, collab.ErrNotFound) {
		profile = value.Null()
	} else if err != nil {
		return fmt.Errorf("get_profile: %w", err)
	}
	if o.As != "" {
		x.vars[o.As] = profile
	}
	return nil
}

func (x *executor) execCreateAction(o *definition.CreateActionOp) error {
	subtype, err := x.evalOptString(o.Subtype)
	if err != nil {
		return err
	}
	audience, err := x.evalOptString(o.Audience)
	if err != nil {
		return err
	}
	parent, err := x.evalOptString(o.Parent)
	if err != nil {
		return err
	}
	subject, err := x.evalOptString(o.Subject)
	if err != nil {
		return err
	}
	content, err := x.evalOpt(o.Content)
	if err != nil {
		return err
	}

	var attachments []string
	if o.Attachments != nil {
		v, err := x.eval(o.Attachments)
		if err != nil {
			return err
		}
		if v.Kind() != value.KindList {
			return &expr.EvalError{Message: fmt.Sprintf("attachments must be a list, got %s", v.Kind())}
		}
		for _, item := range v.ListValue() {
			attachments = append(attachments, item.Stringify())
		}
	}

	createdAt := time.Now()
	var expiresAt *time.Time
	if x.resolve != nil {
		if def, ok := x.resolve(o.Type, subtype); ok && def.Behavior.TTL > 0 {
			t := createdAt.Add(time.Duration(def.Behavior.TTL) * time.Second)
			expiresAt = &t
		}
	}

	action := &collab.Action{
		ActionID:    uuid.NewString(),
		Type:        o.Type,
		Subtype:     subtype,
		Issuer:      x.hc.Tenant.Tag,
		Audience:    audience,
		Parent:      parent,
		Subject:     subject,
		Content:     content,
		Attachments: attachments,
		Status:      "active",
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
	}
	if err := x.collab.Actions.CreateAction(x.ctx, action); err != nil {
		return fmt.Errorf("create_action: %w", err)
	}
	if o.As != "" {
		x.vars[o.As] = action.Value()
	}
	return nil
}

func (x *executor) execGetAction(o *definition.GetActionOp) error {
	var (
		action *collab.Action
		err    error
	)
	switch {
	case o.ActionID != nil:
		var id string
		if id, err = x.evalString(o.ActionID); err != nil {
			return err
		}
		action, err = x.collab.Actions.GetActionByID(x.ctx, id)
	default:
		var key string
		if key, err = x.evalString(o.Key); err != nil {
			return err
		}
		action, err = x.collab.Actions.GetActionByKey(x.ctx, key)
	}

	bound := value.Null()
	if errors.Is(err, collab.ErrNotFound) {
		// Absent actions bind null so hooks can branch on existence.
	} else if err != nil {
		return fmt.Errorf("get_action: %w", err)
	} else {
		bound = action.Value()
	}
	if o.As != "" {
		x.vars[o.As] = bound
	}
	return nil
}

func (x *executor) execUpdateAction(o *definition.UpdateActionOp) error {
	target, err := x.evalString(o.Target)
	if err != nil {
		return err
	}

	// Increments and decrements need the current stored value.
	var current *collab.Action
	loadCurrent := func() (*collab.Action, error) {
		if current != nil {
			return current, nil
		}
		a, err := x.collab.Actions.GetActionByID(x.ctx, target)
		if err != nil {
			return nil, fmt.Errorf("update_action: %w", err)
		}
		current = a
		return a, nil
	}

	set := make(map[string]value.Value, len(o.Set))
	for field, uv := range o.Set {
		switch {
		case uv.Direct != nil:
			v, err := x.eval(uv.Direct)
			if err != nil {
				return err
			}
			set[field] = v
		case uv.Set != nil:
			v, err := x.eval(uv.Set)
			if err != nil {
				return err
			}
			set[field] = v
		case uv.Increment != nil, uv.Decrement != nil:
			e := uv.Increment
			sign := 1.0
			if uv.Decrement != nil {
				e = uv.Decrement
				sign = -1.0
			}
			v, err := x.eval(e)
			if err != nil {
				return err
			}
			delta, err := v.AsNumber()
			if err != nil {
				return &expr.EvalError{Message: err.Error()}
			}
			a, err := loadCurrent()
			if err != nil {
				return err
			}
			set[field] = value.Number(a.Stats[field] + sign*delta)
		}
	}

	if err := x.collab.Actions.UpdateAction(x.ctx, target, set); err != nil {
		return fmt.Errorf("update_action: %w", err)
	}
	return nil
}

func (x *executor) execCreateNotification(o *definition.CreateNotificationOp) error {
	user, err := x.evalString(o.User)
	if err != nil {
		return err
	}
	kind, err := x.evalString(o.Type)
	if err != nil {
		return err
	}
	actionID, err := x.evalString(o.ActionID)
	if err != nil {
		return err
	}
	priority, err := x.evalOptString(o.Priority)
	if err != nil {
		return err
	}

	n := collab.Notification{User: user, Type: kind, ActionID: actionID, Priority: priority}
	if err := x.collab.Notifier.CreateNotification(x.ctx, n); err != nil {
		return fmt.Errorf("create_notification: %w", err)
	}
	metrics.RecordNotificationCreated()
	return nil
}

// execLog never fails: an unevaluable message is logged as its own
// warning instead of aborting the hook.
func (x *executor) execLog(o *definition.LogOp) {
	msg, err := x.eval(o.Message)
	if err != nil {
		x.logger.Warn().Err(err).Msg("hook log message failed to evaluate")
		return
	}

	var ev *zerolog.Event
	switch o.Level {
	case "debug":
		ev = x.logger.Debug()
	case "warn":
		ev = x.logger.Warn()
	case "error":
		ev = x.logger.Error()
	default:
		ev = x.logger.Info()
	}
	ev.Msg(msg.Stringify())
}

func (x *executor) eval(e *expr.Expression) (value.Value, error) {
	if e == nil {
		return value.Null(), nil
	}
	return expr.Evaluate(*e, x)
}

func (x *executor) evalOpt(e *expr.Expression) (value.Value, error) {
	if e == nil {
		return value.Null(), nil
	}
	return x.eval(e)
}

func (x *executor) evalString(e *expr.Expression) (string, error) {
	v, err := x.eval(e)
	if err != nil {
		return "", err
	}
	return v.Stringify(), nil
}

func (x *executor) evalOptString(e *expr.Expression) (string, error) {
	if e == nil {
		return "", nil
	}
	return x.evalString(e)
}
