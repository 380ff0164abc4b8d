package expr

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watzon/actra/internal/value"
)

func testScope() MapScope {
	return MapScope{
		"issuer":   value.String("alice"),
		"audience": value.String("bob"),
		"type":     value.String("CONN"),
		"subtype":  value.Null(),
		"count":    value.Number(3),
		"context": value.Map(map[string]value.Value{
			"tenant": value.Map(map[string]value.Value{
				"type": value.String("person"),
			}),
		}),
	}
}

// failing is an expression that always errors when evaluated: arithmetic on
// a boolean. Used to prove branches are not evaluated.
func failing() Expression {
	return Arith("add", Literal(value.Bool(true)), Literal(value.Number(1)))
}

func mustEval(t *testing.T, e Expression) value.Value {
	t.Helper()
	v, err := Evaluate(e, testScope())
	require.NoError(t, err)
	return v
}

func TestSimpleVariable(t *testing.T) {
	require.Equal(t, value.String("alice"), mustEval(t, Str("{issuer}")))
}

func TestNestedPath(t *testing.T) {
	require.Equal(t, value.String("person"), mustEval(t, Str("{context.tenant.type}")))
}

func TestMissingPathResolvesToNull(t *testing.T) {
	require.True(t, mustEval(t, Str("{nope}")).IsNull())
	require.True(t, mustEval(t, Str("{context.tenant.missing.deeper}")).IsNull())
	require.True(t, mustEval(t, Str("{issuer.not_a_map}")).IsNull())
}

func TestMalformedPath(t *testing.T) {
	var evalErr *EvalError

	_, err := Evaluate(Str("{a..b}"), testScope())
	require.ErrorAs(t, err, &evalErr)

	_, err = Evaluate(Str("hello {unterminated"), testScope())
	require.ErrorAs(t, err, &evalErr)
}

func TestTemplateString(t *testing.T) {
	require.Equal(t, value.String("CONN:alice:bob"), mustEval(t, Str("{type}:{issuer}:{audience}")))
	// Null interpolates as empty string.
	require.Equal(t, value.String("sub=!"), mustEval(t, Str("sub={subtype}!")))
	// Plain strings pass through.
	require.Equal(t, value.String("no braces"), mustEval(t, Str("no braces")))
}

func TestComparisons(t *testing.T) {
	require.Equal(t, value.Bool(true), mustEval(t, Compare("eq", Str("{subtype}"), Literal(value.Null()))))
	require.Equal(t, value.Bool(false), mustEval(t, Compare("eq", Str("{issuer}"), Str("{audience}"))))
	// Cross-type equality compares as not-equal rather than erroring.
	require.Equal(t, value.Bool(false), mustEval(t, Compare("eq", Literal(value.Number(2)), Str("x"))))
	require.Equal(t, value.Bool(true), mustEval(t, Compare("ne", Literal(value.Number(2)), Literal(value.Bool(true)))))

	require.Equal(t, value.Bool(true), mustEval(t, Compare("gt", Str("{count}"), Literal(value.Number(2)))))
	require.Equal(t, value.Bool(true), mustEval(t, Compare("lte", Literal(value.Number(3)), Str("{count}"))))

	var evalErr *EvalError
	_, err := Evaluate(Compare("gt", Literal(value.Bool(true)), Literal(value.Number(1))), testScope())
	require.ErrorAs(t, err, &evalErr)
}

func TestLogical(t *testing.T) {
	require.Equal(t, value.Bool(true), mustEval(t, Logical("and", Literal(value.Bool(true)), Str("{issuer}"))))
	require.Equal(t, value.Bool(false), mustEval(t, Logical("and", Str("{subtype}"), Literal(value.Bool(true)))))
	require.Equal(t, value.Bool(true), mustEval(t, Logical("or", Literal(value.Bool(false)), Str("{count}"))))
	require.Equal(t, value.Bool(true), mustEval(t, Logical("not", Str("{subtype}"))))

	// Short-circuit: the second operand would error.
	require.Equal(t, value.Bool(false), mustEval(t, Logical("and", Literal(value.Bool(false)), failing())))
	require.Equal(t, value.Bool(true), mustEval(t, Logical("or", Literal(value.Bool(true)), failing())))
}

func TestArithmetic(t *testing.T) {
	require.Equal(t, value.Number(7), mustEval(t, Arith("add", Str("{count}"), Literal(value.Number(4)))))
	require.Equal(t, value.Number(6), mustEval(t, Arith("multiply", Literal(value.Number(2)), Str("{count}"))))
	require.Equal(t, value.Number(1), mustEval(t, Arith("subtract", Literal(value.Number(4)), Str("{count}"))))
	// Numeric strings coerce.
	require.Equal(t, value.Number(5), mustEval(t, Arith("add", Str("2"), Str("3"))))

	var evalErr *EvalError
	_, err := Evaluate(Arith("divide", Literal(value.Number(1)), Literal(value.Number(0))), testScope())
	require.ErrorAs(t, err, &evalErr)
}

func TestStringOps(t *testing.T) {
	require.Equal(t, value.String("alice@CONN"), mustEval(t, StringOp("concat", Str("{issuer}"), Str("@"), Str("{type}"))))
	require.Equal(t, value.Bool(true), mustEval(t, StringOp("contains", Str("{issuer}"), Str("lic"))))
	require.Equal(t, value.Bool(true), mustEval(t, StringOp("starts_with", Str("{issuer}"), Str("al"))))
	require.Equal(t, value.Bool(false), mustEval(t, StringOp("ends_with", Str("{issuer}"), Str("ob"))))
}

func TestTernaryShortCircuit(t *testing.T) {
	// The unselected branch would error if evaluated.
	v := mustEval(t, Ternary(Literal(value.Bool(true)), Str("yes"), failing()))
	require.Equal(t, value.String("yes"), v)

	v = mustEval(t, Ternary(Literal(value.Bool(false)), failing(), Str("no")))
	require.Equal(t, value.String("no"), v)
}

func TestCoalesceShortCircuit(t *testing.T) {
	v := mustEval(t, Coalesce(Str("{subtype}"), Str("{issuer}"), failing()))
	require.Equal(t, value.String("alice"), v)

	v = mustEval(t, Coalesce(Str("{missing}"), Literal(value.Null())))
	require.True(t, v.IsNull())
}

func TestDepthLimit(t *testing.T) {
	e := Str("leaf")
	for i := 0; i < MaxDepth+1; i++ {
		e = Logical("not", e)
	}

	var limitErr *ResourceLimitError
	_, err := Evaluate(e, testScope())
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, "expression depth", limitErr.Limit)
}

func TestNodeLimit(t *testing.T) {
	// A wide, shallow tree: 120 operands visited one by one.
	args := make([]Expression, 120)
	for i := range args {
		args[i] = Literal(value.Number(1))
	}

	var limitErr *ResourceLimitError
	_, err := Evaluate(Arith("add", args...), testScope())
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, "expression nodes", limitErr.Limit)

	// The error kind is distinguishable from EvalError.
	var evalErr *EvalError
	require.False(t, errors.As(err, &evalErr))
}

func TestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		json string
		want value.Value
	}{
		{"literal number", `42`, value.Number(42)},
		{"literal bool", `true`, value.Bool(true)},
		{"literal null", `null`, value.Null()},
		{"template", `"{issuer}"`, value.String("alice")},
		{"eq", `{"eq": ["{subtype}", null]}`, value.Bool(true)},
		{"and", `{"and": [true, "{issuer}"]}`, value.Bool(true)},
		{"add", `{"add": [1, 2, 3]}`, value.Number(6)},
		{"concat", `{"concat": ["{type}", "-", "{issuer}"]}`, value.String("CONN-alice")},
		{"ternary", `{"if": {"eq": ["{subtype}", "DEL"]}, "then": "del", "else": "keep"}`, value.String("keep")},
		{"coalesce", `{"coalesce": ["{subtype}", "fallback"]}`, value.String("fallback")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Expression
			require.NoError(t, json.Unmarshal([]byte(tt.json), &e))
			require.Equal(t, tt.want, mustEval(t, e))
		})
	}
}

func TestUnmarshalRejectsUnknownOperator(t *testing.T) {
	var e Expression
	err := json.Unmarshal([]byte(`{"xor": [true, false]}`), &e)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown expression operator")
}

func TestUnmarshalRejectsMultiKeyObject(t *testing.T) {
	var e Expression
	err := json.Unmarshal([]byte(`{"eq": [1, 1], "ne": [1, 2]}`), &e)
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	raw := `{"if":{"eq":["{subtype}","DEL"]},"then":"del","else":{"coalesce":["{subtype}","keep"]}}`

	var e Expression
	require.NoError(t, json.Unmarshal([]byte(raw), &e))

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var again Expression
	require.NoError(t, json.Unmarshal(data, &again))
	require.Equal(t, mustEval(t, e), mustEval(t, again))
}
