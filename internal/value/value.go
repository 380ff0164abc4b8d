// Package value implements the dynamic value model shared by expressions,
// hook contexts, and collaborator payloads. Values are an explicit tagged
// union over the JSON types so that type mismatches stay visible and
// testable instead of hiding behind interface{} assertions.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the concrete type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// String returns the kind name as used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is an immutable dynamically-typed value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns a list value holding the given items.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Map returns a map value holding the given entries.
func Map(entries map[string]Value) Value {
	if entries == nil {
		entries = make(map[string]Value)
	}
	return Value{kind: KindMap, m: entries}
}

// Kind returns the concrete type of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// BoolValue returns the boolean payload. Only meaningful for KindBool.
func (v Value) BoolValue() bool { return v.b }

// NumberValue returns the numeric payload. Only meaningful for KindNumber.
func (v Value) NumberValue() float64 { return v.n }

// StringValue returns the string payload. Only meaningful for KindString.
func (v Value) StringValue() string { return v.s }

// ListValue returns the list payload. Only meaningful for KindList.
func (v Value) ListValue() []Value { return v.list }

// MapValue returns the map payload. Only meaningful for KindMap.
func (v Value) MapValue() map[string]Value { return v.m }

// Get returns the entry for key on a map value, or null when the key is
// absent or the value is not a map.
func (v Value) Get(key string) Value {
	if v.kind != KindMap {
		return Null()
	}
	return v.m[key]
}

// Truthy converts the value to a boolean: null and empty containers are
// false, zero numbers and empty strings are false, everything else true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString:
		return v.s != ""
	case KindList:
		return len(v.list) > 0
	case KindMap:
		return len(v.m) > 0
	default:
		return false
	}
}

// Stringify converts the value to a string. Null becomes the empty string,
// containers render as JSON.
func (v Value) Stringify() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.n)
	case KindString:
		return v.s
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// AsNumber converts the value to a float64. Numeric strings coerce;
// everything else is a type mismatch.
func (v Value) AsNumber() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.n, nil
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, fmt.Errorf("type mismatch: expected number, got string %q", v.s)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("type mismatch: expected number, got %s", v.kind)
	}
}

// Equal reports deep equality. Values of different kinds are never equal;
// callers wanting cross-type comparison treat that as "not equal" rather
// than an error.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, val := range v.m {
			ov, ok := other.m[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Merge returns the shallow key-wise union of two map values; right-hand
// keys overwrite left-hand keys on conflict. Non-map inputs contribute
// nothing.
func Merge(left, right Value) Value {
	merged := make(map[string]Value)
	if left.kind == KindMap {
		for k, v := range left.m {
			merged[k] = v
		}
	}
	if right.kind == KindMap {
		for k, v := range right.m {
			merged[k] = v
		}
	}
	return Map(merged)
}

// FromAny converts a decoded JSON value (as produced by encoding/json or
// yaml.v3 into any) to a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return Number(n), nil
	case string:
		return String(x), nil
	case []any:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Null(), err
			}
			items = append(items, v)
		}
		return List(items...), nil
	case map[string]any:
		entries := make(map[string]Value, len(x))
		for k, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Null(), err
			}
			entries[k] = v
		}
		return Map(entries), nil
	default:
		return Null(), fmt.Errorf("unsupported value type %T", raw)
	}
}

// ToAny converts a Value back to the plain representation used by
// encoding/json.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.ToAny()
		}
		return items
	case KindMap:
		entries := make(map[string]any, len(v.m))
		for k, item := range v.m {
			entries[k] = item.ToAny()
		}
		return entries
	default:
		return nil
	}
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		// Sort keys for stable output.
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(v.m[k])
			if err != nil {
				return nil, err
			}
			sb.Write(kb)
			sb.WriteByte(':')
			sb.Write(vb)
		}
		sb.WriteByte('}')
		return []byte(sb.String()), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes any JSON value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// formatNumber renders whole numbers without a trailing ".0" so that
// template interpolation of counters reads naturally.
func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
