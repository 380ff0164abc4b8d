package expr

import (
	"math"
	"strings"

	"github.com/watzon/actra/internal/value"
)

const (
	// MaxDepth is the maximum expression tree depth per evaluation.
	MaxDepth = 50
	// MaxNodes is the maximum number of node visits per evaluation.
	MaxNodes = 100
)

// Scope resolves root variable names during evaluation. Missing names
// resolve to null; the evaluator never treats an absent variable as an
// error.
type Scope interface {
	Lookup(name string) (value.Value, bool)
}

// MapScope is a Scope backed by a plain map, used in tests and for
// rendering key-pattern templates.
type MapScope map[string]value.Value

func (m MapScope) Lookup(name string) (value.Value, bool) {
	v, ok := m[name]
	return v, ok
}

// Evaluate evaluates an expression against a scope. It is a pure function
// of its inputs: no I/O and no mutation of the scope. Exceeding MaxDepth or
// MaxNodes yields a ResourceLimitError.
func Evaluate(e Expression, scope Scope) (value.Value, error) {
	ev := &evaluator{scope: scope}
	return ev.eval(e)
}

type evaluator struct {
	scope Scope
	depth int
	nodes int
}

func (ev *evaluator) eval(e Expression) (value.Value, error) {
	ev.depth++
	ev.nodes++
	if ev.depth > MaxDepth {
		return value.Null(), &ResourceLimitError{Limit: "expression depth", Max: MaxDepth}
	}
	if ev.nodes > MaxNodes {
		return value.Null(), &ResourceLimitError{Limit: "expression nodes", Max: MaxNodes}
	}
	defer func() { ev.depth-- }()

	switch e.kind {
	case kindLiteral:
		return e.lit, nil
	case kindString:
		return ev.evalTemplate(e.str)
	case kindCompare:
		return ev.evalCompare(e)
	case kindLogical:
		return ev.evalLogical(e)
	case kindArith:
		return ev.evalArith(e)
	case kindStringOp:
		return ev.evalStringOp(e)
	case kindTernary:
		cond, err := ev.eval(*e.cond)
		if err != nil {
			return value.Null(), err
		}
		if cond.Truthy() {
			return ev.eval(*e.then)
		}
		return ev.eval(*e.els)
	case kindCoalesce:
		for _, arg := range e.args {
			v, err := ev.eval(arg)
			if err != nil {
				return value.Null(), err
			}
			if !v.IsNull() {
				return v, nil
			}
		}
		return value.Null(), nil
	default:
		return value.Null(), evalErrorf("unknown expression kind %d", e.kind)
	}
}

// evalTemplate handles string literals. A string that is exactly one
// `{path}` placeholder resolves to the variable's typed value; a string
// with embedded placeholders interpolates each (null renders empty) and
// returns the concatenation; a string without braces passes through.
func (ev *evaluator) evalTemplate(tpl string) (value.Value, error) {
	if !strings.ContainsRune(tpl, '{') {
		return value.String(tpl), nil
	}

	if strings.HasPrefix(tpl, "{") && strings.HasSuffix(tpl, "}") &&
		strings.Count(tpl, "{") == 1 {
		return ev.resolvePath(tpl[1 : len(tpl)-1])
	}

	var sb strings.Builder
	rest := tpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:open])
		rest = rest[open+1:]

		close := strings.IndexByte(rest, '}')
		if close < 0 {
			return value.Null(), evalErrorf("unterminated placeholder in template %q", tpl)
		}
		v, err := ev.resolvePath(rest[:close])
		if err != nil {
			return value.Null(), err
		}
		sb.WriteString(v.Stringify())
		rest = rest[close+1:]
	}
	return value.String(sb.String()), nil
}

// resolvePath traverses a dot path through the scope's value tree. Missing
// segments resolve to null; only malformed path syntax errors.
func (ev *evaluator) resolvePath(path string) (value.Value, error) {
	if path == "" {
		return value.Null(), evalErrorf("empty variable path")
	}
	parts := strings.Split(path, ".")
	for _, part := range parts {
		if part == "" {
			return value.Null(), evalErrorf("malformed variable path %q", path)
		}
	}

	current, ok := ev.scope.Lookup(parts[0])
	if !ok {
		return value.Null(), nil
	}
	for _, part := range parts[1:] {
		if current.Kind() != value.KindMap {
			return value.Null(), nil
		}
		current = current.Get(part)
	}
	return current, nil
}

func (ev *evaluator) evalCompare(e Expression) (value.Value, error) {
	left, err := ev.eval(e.args[0])
	if err != nil {
		return value.Null(), err
	}
	right, err := ev.eval(e.args[1])
	if err != nil {
		return value.Null(), err
	}

	switch e.op {
	case opEq:
		return value.Bool(left.Equal(right)), nil
	case opNe:
		return value.Bool(!left.Equal(right)), nil
	}

	// Ordered comparisons require numbers; mismatches are eval errors.
	l, err := left.AsNumber()
	if err != nil {
		return value.Null(), &EvalError{Message: err.Error()}
	}
	r, err := right.AsNumber()
	if err != nil {
		return value.Null(), &EvalError{Message: err.Error()}
	}

	switch e.op {
	case opGt:
		return value.Bool(l > r), nil
	case opGte:
		return value.Bool(l >= r), nil
	case opLt:
		return value.Bool(l < r), nil
	case opLte:
		return value.Bool(l <= r), nil
	default:
		return value.Null(), evalErrorf("unknown comparison %q", e.op)
	}
}

func (ev *evaluator) evalLogical(e Expression) (value.Value, error) {
	switch e.op {
	case opAnd:
		for _, arg := range e.args {
			v, err := ev.eval(arg)
			if err != nil {
				return value.Null(), err
			}
			if !v.Truthy() {
				return value.Bool(false), nil
			}
		}
		return value.Bool(true), nil
	case opOr:
		for _, arg := range e.args {
			v, err := ev.eval(arg)
			if err != nil {
				return value.Null(), err
			}
			if v.Truthy() {
				return value.Bool(true), nil
			}
		}
		return value.Bool(false), nil
	case opNot:
		v, err := ev.eval(e.args[0])
		if err != nil {
			return value.Null(), err
		}
		return value.Bool(!v.Truthy()), nil
	default:
		return value.Null(), evalErrorf("unknown logical operator %q", e.op)
	}
}

func (ev *evaluator) evalArith(e Expression) (value.Value, error) {
	operand := func(arg Expression) (float64, error) {
		v, err := ev.eval(arg)
		if err != nil {
			return 0, err
		}
		n, err := v.AsNumber()
		if err != nil {
			return 0, &EvalError{Message: err.Error()}
		}
		return n, nil
	}

	var result float64
	switch e.op {
	case opAdd:
		for _, arg := range e.args {
			n, err := operand(arg)
			if err != nil {
				return value.Null(), err
			}
			result += n
		}
	case opMultiply:
		result = 1
		for _, arg := range e.args {
			n, err := operand(arg)
			if err != nil {
				return value.Null(), err
			}
			result *= n
		}
	case opSubtract, opDivide:
		l, err := operand(e.args[0])
		if err != nil {
			return value.Null(), err
		}
		r, err := operand(e.args[1])
		if err != nil {
			return value.Null(), err
		}
		if e.op == opSubtract {
			result = l - r
		} else {
			result = l / r
		}
	default:
		return value.Null(), evalErrorf("unknown arithmetic operator %q", e.op)
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return value.Null(), evalErrorf("arithmetic result is not a finite number")
	}
	return value.Number(result), nil
}

func (ev *evaluator) evalStringOp(e Expression) (value.Value, error) {
	operand := func(arg Expression) (string, error) {
		v, err := ev.eval(arg)
		if err != nil {
			return "", err
		}
		return v.Stringify(), nil
	}

	switch e.op {
	case opConcat:
		var sb strings.Builder
		for _, arg := range e.args {
			s, err := operand(arg)
			if err != nil {
				return value.Null(), err
			}
			sb.WriteString(s)
		}
		return value.String(sb.String()), nil
	case opContains, opStartsWith, opEndsWith:
		l, err := operand(e.args[0])
		if err != nil {
			return value.Null(), err
		}
		r, err := operand(e.args[1])
		if err != nil {
			return value.Null(), err
		}
		switch e.op {
		case opContains:
			return value.Bool(strings.Contains(l, r)), nil
		case opStartsWith:
			return value.Bool(strings.HasPrefix(l, r)), nil
		default:
			return value.Bool(strings.HasSuffix(l, r)), nil
		}
	default:
		return value.Null(), evalErrorf("unknown string operator %q", e.op)
	}
}
