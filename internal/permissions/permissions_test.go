package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/watzon/actra/internal/definition"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	require.NoError(t, err)
	return e
}

func TestEvaluateRule(t *testing.T) {
	e := testEngine(t)

	perms := &definition.Permissions{
		CanCreate: `auth.id_tag == action.issuer`,
	}
	require.NoError(t, e.LoadRules("POST", perms))

	allowed, err := e.Evaluate("POST", OpCreate, &EvalContext{
		Auth:   map[string]any{"id_tag": "alice.example.com"},
		Action: map[string]any{"issuer": "alice.example.com"},
	})
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = e.Evaluate("POST", OpCreate, &EvalContext{
		Auth:   map[string]any{"id_tag": "mallory.example.com"},
		Action: map[string]any{"issuer": "alice.example.com"},
	})
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestMissingRuleAllows(t *testing.T) {
	e := testEngine(t)

	allowed, err := e.Evaluate("UNRULED", OpReceive, &EvalContext{})
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestInvalidRuleRejectedAtLoad(t *testing.T) {
	e := testEngine(t)

	err := e.LoadRules("BAD", &definition.Permissions{CanCreate: `auth.id_tag ==`})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidRuleExpr)
}

func TestReloadReplacesRules(t *testing.T) {
	e := testEngine(t)

	require.NoError(t, e.LoadRules("POST", &definition.Permissions{CanCreate: `false`}))
	require.True(t, e.HasRule("POST", OpCreate))

	require.NoError(t, e.LoadRules("POST", nil))
	require.False(t, e.HasRule("POST", OpCreate))
}

func TestCheckAccessRelationshipFlags(t *testing.T) {
	e := testEngine(t)
	perms := &definition.Permissions{RequiresConnected: true}

	err := e.CheckAccess("MSG", OpReceive, perms, &EvalContext{
		Auth: map[string]any{"connected": false},
	})
	require.ErrorIs(t, err, ErrAccessDenied)

	err = e.CheckAccess("MSG", OpReceive, perms, &EvalContext{
		Auth: map[string]any{"connected": true},
	})
	require.NoError(t, err)
}
