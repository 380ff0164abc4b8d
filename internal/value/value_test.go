package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"null", Null(), false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero", Number(0), false},
		{"nonzero", Number(3.5), true},
		{"empty string", String(""), false},
		{"string", String("x"), true},
		{"empty list", List(), false},
		{"list", List(Number(1)), true},
		{"empty map", Map(nil), false},
		{"map", Map(map[string]Value{"k": Null()}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.v.Truthy())
		})
	}
}

func TestEqual(t *testing.T) {
	require.True(t, Null().Equal(Null()))
	require.True(t, Number(2).Equal(Number(2)))
	require.False(t, Number(2).Equal(String("2")))
	require.False(t, Bool(false).Equal(Null()))
	require.True(t, List(Number(1), String("a")).Equal(List(Number(1), String("a"))))
	require.False(t, List(Number(1)).Equal(List(Number(1), Number(2))))
	require.True(t,
		Map(map[string]Value{"a": Number(1)}).Equal(Map(map[string]Value{"a": Number(1)})))
	require.False(t,
		Map(map[string]Value{"a": Number(1)}).Equal(Map(map[string]Value{"a": Number(2)})))
}

func TestAsNumber(t *testing.T) {
	n, err := Number(4.5).AsNumber()
	require.NoError(t, err)
	require.Equal(t, 4.5, n)

	n, err = String("42").AsNumber()
	require.NoError(t, err)
	require.Equal(t, 42.0, n)

	_, err = String("nope").AsNumber()
	require.Error(t, err)

	_, err = Bool(true).AsNumber()
	require.Error(t, err)
}

func TestStringify(t *testing.T) {
	require.Equal(t, "", Null().Stringify())
	require.Equal(t, "true", Bool(true).Stringify())
	require.Equal(t, "3", Number(3).Stringify())
	require.Equal(t, "3.25", Number(3.25).Stringify())
	require.Equal(t, "hi", String("hi").Stringify())
	require.Equal(t, `[1,"a"]`, List(Number(1), String("a")).Stringify())
}

func TestMerge(t *testing.T) {
	left := Map(map[string]Value{"a": Number(1), "b": Number(2)})
	right := Map(map[string]Value{"b": Number(3), "c": Number(4)})

	merged := Merge(left, right)
	require.Equal(t, Number(1), merged.Get("a"))
	require.Equal(t, Number(3), merged.Get("b"))
	require.Equal(t, Number(4), merged.Get("c"))
}

func TestJSONRoundTrip(t *testing.T) {
	raw := `{"name":"alice","tags":["a","b"],"count":3,"active":true,"extra":null}`

	var v Value
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	require.Equal(t, KindMap, v.Kind())
	require.Equal(t, String("alice"), v.Get("name"))
	require.Equal(t, Number(3), v.Get("count"))
	require.True(t, v.Get("extra").IsNull())

	data, err := json.Marshal(v)
	require.NoError(t, err)

	var again Value
	require.NoError(t, json.Unmarshal(data, &again))
	require.True(t, v.Equal(again))
}

func TestGetOnNonMap(t *testing.T) {
	require.True(t, String("x").Get("k").IsNull())
	require.True(t, Null().Get("k").IsNull())
}
