// Package permissions provides CEL-based access rules for action types.
// Rules are compiled once when a definition loads and evaluated per
// create/receive attempt.
package permissions

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/watzon/actra/internal/definition"
)

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrRuleEvaluation  = errors.New("rule evaluation failed")
	ErrInvalidRuleExpr = errors.New("invalid rule expression")
)

type Operation string

const (
	OpCreate  Operation = "create"
	OpReceive Operation = "receive"
)

// Engine compiles and evaluates permission rules. Rule programs are keyed
// by action type and operation.
type Engine struct {
	env      *cel.Env
	programs map[string]compiled
	mu       sync.RWMutex
}

type compiled struct {
	program           cel.Program
	requiresFollowing bool
	requiresConnected bool
}

// EvalContext carries the variables visible to rule expressions.
type EvalContext struct {
	// Auth describes the caller: id_tag, tenant, connected, following.
	Auth map[string]any
	// Action describes the action being created or received.
	Action map[string]any
	// Request carries transport facts: client_address, inbound.
	Request map[string]any
}

func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("auth", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("action", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		programs: make(map[string]compiled),
	}, nil
}

// LoadRules compiles the permission rules of one definition, replacing any
// previously loaded rules for the same action type. A nil permissions block
// clears the type's rules.
func (e *Engine) LoadRules(actionType string, perms *definition.Permissions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.programs, ruleKey(actionType, OpCreate))
	delete(e.programs, ruleKey(actionType, OpReceive))
	if perms == nil {
		return nil
	}

	if perms.CanCreate != "" {
		if err := e.compileRule(actionType, OpCreate, perms.CanCreate, perms); err != nil {
			return fmt.Errorf("compiling can_create rule for %s: %w", actionType, err)
		}
	}
	if perms.CanReceive != "" {
		if err := e.compileRule(actionType, OpReceive, perms.CanReceive, perms); err != nil {
			return fmt.Errorf("compiling can_receive rule for %s: %w", actionType, err)
		}
	}
	return nil
}

func (e *Engine) compileRule(actionType string, op Operation, rule string, perms *definition.Permissions) error {
	ast, issues := e.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRuleExpr, issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return fmt.Errorf("creating program: %w", err)
	}

	e.programs[ruleKey(actionType, op)] = compiled{
		program:           program,
		requiresFollowing: perms.RequiresFollowing,
		requiresConnected: perms.RequiresConnected,
	}
	return nil
}

// Evaluate runs the rule for an action type and operation. Types without a
// rule allow everything.
func (e *Engine) Evaluate(actionType string, op Operation, ctx *EvalContext) (bool, error) {
	e.mu.RLock()
	c, ok := e.programs[ruleKey(actionType, op)]
	e.mu.RUnlock()

	if !ok {
		return true, nil
	}

	vars := map[string]any{
		"auth":    ctx.Auth,
		"action":  ctx.Action,
		"request": ctx.Request,
	}
	for k, v := range vars {
		if v == nil {
			vars[k] = map[string]any{}
		}
	}

	result, _, err := c.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRuleEvaluation, err)
	}

	allowed, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: rule did not return boolean", ErrRuleEvaluation)
	}
	return allowed, nil
}

// CheckAccess enforces both the declarative relationship flags and the CEL
// rule for an operation.
func (e *Engine) CheckAccess(actionType string, op Operation, perms *definition.Permissions, ctx *EvalContext) error {
	if perms != nil {
		if perms.RequiresConnected && !boolVar(ctx.Auth, "connected") {
			return fmt.Errorf("%w: requires an established connection", ErrAccessDenied)
		}
		if perms.RequiresFollowing && !boolVar(ctx.Auth, "following") {
			return fmt.Errorf("%w: requires a follow relationship", ErrAccessDenied)
		}
	}

	allowed, err := e.Evaluate(actionType, op, ctx)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrAccessDenied
	}
	return nil
}

// HasRule reports whether a compiled rule exists for the type/operation.
func (e *Engine) HasRule(actionType string, op Operation) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.programs[ruleKey(actionType, op)]
	return ok
}

func boolVar(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

func ruleKey(actionType string, op Operation) string {
	return actionType + ":" + string(op)
}
