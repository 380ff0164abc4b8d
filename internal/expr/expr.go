// Package expr implements the pure expression language used by action
// definitions: literals, variable references with dot-path traversal,
// template strings, comparisons, logical and arithmetic operators, string
// operations, ternaries, and null-coalescing. Evaluation is deterministic,
// side-effect free, and bounded by depth and node-visit limits.
package expr

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/watzon/actra/internal/value"
)

// Operator tags accepted in expression objects. An expression object must
// carry exactly one of these shapes.
const (
	opEq         = "eq"
	opNe         = "ne"
	opGt         = "gt"
	opGte        = "gte"
	opLt         = "lt"
	opLte        = "lte"
	opAnd        = "and"
	opOr         = "or"
	opNot        = "not"
	opAdd        = "add"
	opSubtract   = "subtract"
	opMultiply   = "multiply"
	opDivide     = "divide"
	opConcat     = "concat"
	opContains   = "contains"
	opStartsWith = "starts_with"
	opEndsWith   = "ends_with"
	opCoalesce   = "coalesce"
)

type nodeKind int

const (
	kindLiteral nodeKind = iota
	kindString
	kindCompare
	kindLogical
	kindArith
	kindStringOp
	kindTernary
	kindCoalesce
)

// Expression is one node of an expression tree. Expressions decode from the
// untagged JSON forms used in definition files: scalars are literals,
// strings are templates, objects select an operator by key.
type Expression struct {
	kind nodeKind

	lit  value.Value // kindLiteral
	str  string      // kindString (raw template text)
	op   string      // operator tag for compare/logical/arith/stringop
	args []Expression

	cond, then, els *Expression // kindTernary
}

// Literal builds a literal expression.
func Literal(v value.Value) Expression {
	if v.Kind() == value.KindString {
		return Str(v.StringValue())
	}
	return Expression{kind: kindLiteral, lit: v}
}

// Str builds a string-literal expression; `{path}` placeholders interpolate
// at evaluation time.
func Str(s string) Expression { return Expression{kind: kindString, str: s} }

// Compare builds a comparison expression (eq, ne, gt, gte, lt, lte).
func Compare(op string, left, right Expression) Expression {
	return Expression{kind: kindCompare, op: op, args: []Expression{left, right}}
}

// Logical builds an and/or/not expression.
func Logical(op string, args ...Expression) Expression {
	return Expression{kind: kindLogical, op: op, args: args}
}

// Arith builds an add/subtract/multiply/divide expression.
func Arith(op string, args ...Expression) Expression {
	return Expression{kind: kindArith, op: op, args: args}
}

// StringOp builds a concat/contains/starts_with/ends_with expression.
func StringOp(op string, args ...Expression) Expression {
	return Expression{kind: kindStringOp, op: op, args: args}
}

// Ternary builds an if/then/else expression. Only the selected branch is
// evaluated.
func Ternary(cond, then, els Expression) Expression {
	return Expression{kind: kindTernary, cond: &cond, then: &then, els: &els}
}

// Coalesce builds an expression returning the first non-null candidate.
func Coalesce(args ...Expression) Expression {
	return Expression{kind: kindCoalesce, args: args}
}

// UnmarshalJSON decodes the untagged definition-file form.
func (e *Expression) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := fromRaw(raw)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// MarshalJSON re-encodes the expression in its definition-file form.
func (e Expression) MarshalJSON() ([]byte, error) {
	switch e.kind {
	case kindLiteral:
		return json.Marshal(e.lit)
	case kindString:
		return json.Marshal(e.str)
	case kindCompare, kindLogical, kindArith, kindStringOp:
		if e.op == opNot {
			return json.Marshal(map[string]Expression{opNot: e.args[0]})
		}
		return json.Marshal(map[string][]Expression{e.op: e.args})
	case kindTernary:
		return json.Marshal(map[string]Expression{
			"if": *e.cond, "then": *e.then, "else": *e.els,
		})
	case kindCoalesce:
		return json.Marshal(map[string][]Expression{opCoalesce: e.args})
	default:
		return nil, fmt.Errorf("unknown expression kind %d", e.kind)
	}
}

// FromRaw converts an already-decoded JSON value (for YAML definition
// support) into an expression.
func FromRaw(raw any) (Expression, error) {
	return fromRaw(raw)
}

func fromRaw(raw any) (Expression, error) {
	switch x := raw.(type) {
	case nil:
		return Literal(value.Null()), nil
	case bool:
		return Literal(value.Bool(x)), nil
	case float64:
		return Literal(value.Number(x)), nil
	case int:
		return Literal(value.Number(float64(x))), nil
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return Expression{}, fmt.Errorf("invalid number %q", x.String())
		}
		return Literal(value.Number(n)), nil
	case string:
		return Str(x), nil
	case map[string]any:
		return fromRawObject(x)
	default:
		return Expression{}, fmt.Errorf("invalid expression of type %T", raw)
	}
}

func fromRawObject(obj map[string]any) (Expression, error) {
	if _, ok := obj["if"]; ok {
		return ternaryFromRaw(obj)
	}

	if len(obj) != 1 {
		return Expression{}, fmt.Errorf("expression object must have exactly one operator key, got %d", len(obj))
	}

	var op string
	var operand any
	for k, v := range obj {
		op, operand = k, v
	}

	switch op {
	case opEq, opNe, opGt, opGte, opLt, opLte:
		args, err := pairFromRaw(op, operand)
		if err != nil {
			return Expression{}, err
		}
		return Expression{kind: kindCompare, op: op, args: args}, nil

	case opAnd, opOr:
		args, err := listFromRaw(op, operand, 1)
		if err != nil {
			return Expression{}, err
		}
		return Expression{kind: kindLogical, op: op, args: args}, nil

	case opNot:
		arg, err := fromRaw(operand)
		if err != nil {
			return Expression{}, fmt.Errorf("%s: %w", op, err)
		}
		return Expression{kind: kindLogical, op: op, args: []Expression{arg}}, nil

	case opAdd, opMultiply:
		args, err := listFromRaw(op, operand, 1)
		if err != nil {
			return Expression{}, err
		}
		return Expression{kind: kindArith, op: op, args: args}, nil

	case opSubtract, opDivide:
		args, err := pairFromRaw(op, operand)
		if err != nil {
			return Expression{}, err
		}
		return Expression{kind: kindArith, op: op, args: args}, nil

	case opConcat:
		args, err := listFromRaw(op, operand, 1)
		if err != nil {
			return Expression{}, err
		}
		return Expression{kind: kindStringOp, op: op, args: args}, nil

	case opContains, opStartsWith, opEndsWith:
		args, err := pairFromRaw(op, operand)
		if err != nil {
			return Expression{}, err
		}
		return Expression{kind: kindStringOp, op: op, args: args}, nil

	case opCoalesce:
		args, err := listFromRaw(op, operand, 1)
		if err != nil {
			return Expression{}, err
		}
		return Expression{kind: kindCoalesce, args: args}, nil

	default:
		return Expression{}, fmt.Errorf("unknown expression operator %q", op)
	}
}

func ternaryFromRaw(obj map[string]any) (Expression, error) {
	for k := range obj {
		if k != "if" && k != "then" && k != "else" {
			return Expression{}, fmt.Errorf("unexpected key %q in ternary expression", k)
		}
	}
	thenRaw, ok := obj["then"]
	if !ok {
		return Expression{}, fmt.Errorf("ternary expression missing 'then'")
	}
	elseRaw, ok := obj["else"]
	if !ok {
		return Expression{}, fmt.Errorf("ternary expression missing 'else'")
	}

	cond, err := fromRaw(obj["if"])
	if err != nil {
		return Expression{}, fmt.Errorf("if: %w", err)
	}
	then, err := fromRaw(thenRaw)
	if err != nil {
		return Expression{}, fmt.Errorf("then: %w", err)
	}
	els, err := fromRaw(elseRaw)
	if err != nil {
		return Expression{}, fmt.Errorf("else: %w", err)
	}
	return Ternary(cond, then, els), nil
}

func listFromRaw(op string, operand any, min int) ([]Expression, error) {
	items, ok := operand.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: operand must be an array", op)
	}
	if len(items) < min {
		return nil, fmt.Errorf("%s: requires at least %d operand(s)", op, min)
	}
	args := make([]Expression, 0, len(items))
	for i, item := range items {
		arg, err := fromRaw(item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", op, i, err)
		}
		args = append(args, arg)
	}
	return args, nil
}

func pairFromRaw(op string, operand any) ([]Expression, error) {
	args, err := listFromRaw(op, operand, 2)
	if err != nil {
		return nil, err
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("%s: requires exactly 2 operands, got %d", op, len(args))
	}
	return args, nil
}

// Depth returns the static depth of the expression tree.
func (e Expression) Depth() int {
	depth := 0
	for _, child := range e.children() {
		if d := child.Depth(); d > depth {
			depth = d
		}
	}
	return depth + 1
}

func (e Expression) children() []Expression {
	switch e.kind {
	case kindTernary:
		return []Expression{*e.cond, *e.then, *e.els}
	default:
		return e.args
	}
}
