package flag

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
)

// Kind identifies which member of the Value union is set.
type Kind string

const (
	KindNull    Kind = "null"
	KindBool    Kind = "bool"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindList    Kind = "list"
	KindJSON    Kind = "json"
	KindVariant Kind = "variant"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindNull, KindBool, KindString, KindNumber, KindInteger, KindList, KindJSON, KindVariant:
		return true
	}
	return false
}

// Value is a closed tagged union of every type a flag can resolve to and a
// condition can compare against. The zero value is null.
type Value struct {
	kind Kind
	b    bool
	s    string
	f    float64
	i    int64
	list []string
	obj  map[string]any
}

func NullValue() Value               { return Value{kind: KindNull} }
func BoolValue(v bool) Value         { return Value{kind: KindBool, b: v} }
func StringValue(v string) Value     { return Value{kind: KindString, s: v} }
func NumberValue(v float64) Value    { return Value{kind: KindNumber, f: v} }
func IntegerValue(v int64) Value     { return Value{kind: KindInteger, i: v} }
func ListValue(v ...string) Value    { return Value{kind: KindList, list: slices.Clone(v)} }
func JSONValue(v map[string]any) Value { return Value{kind: KindJSON, obj: v} }

// VariantValue references an experiment variant by name.
func VariantValue(name string) Value { return Value{kind: KindVariant, s: name} }

// Kind returns the union tag. The zero Value reports KindNull.
func (v Value) Kind() Kind {
	if v.kind == "" {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether the value is the null member.
func (v Value) IsNull() bool { return v.Kind() == KindNull }

// IsTruthy applies the per-variant truthiness rule: empty string, zero
// number, empty list/object and null are falsy, everything else is truthy.
func (v Value) IsTruthy() bool {
	switch v.Kind() {
	case KindBool:
		return v.b
	case KindString, KindVariant:
		return v.s != ""
	case KindNumber:
		return v.f != 0
	case KindInteger:
		return v.i != 0
	case KindList:
		return len(v.list) > 0
	case KindJSON:
		return len(v.obj) > 0
	}
	return false
}

// Bool returns the boolean member. The second result is false when the value
// holds a different kind.
func (v Value) Bool() (bool, bool) {
	if v.Kind() != KindBool {
		return false, false
	}
	return v.b, true
}

// Str returns the string member for string and variant values.
func (v Value) Str() (string, bool) {
	switch v.Kind() {
	case KindString, KindVariant:
		return v.s, true
	}
	return "", false
}

// Float returns a numeric view of number and integer values.
func (v Value) Float() (float64, bool) {
	switch v.Kind() {
	case KindNumber:
		return v.f, true
	case KindInteger:
		return float64(v.i), true
	}
	return 0, false
}

// Int returns the integer member.
func (v Value) Int() (int64, bool) {
	if v.Kind() != KindInteger {
		return 0, false
	}
	return v.i, true
}

// List returns the string-list member.
func (v Value) List() ([]string, bool) {
	if v.Kind() != KindList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

// JSON returns the object member.
func (v Value) JSON() (map[string]any, bool) {
	if v.Kind() != KindJSON {
		return nil, false
	}
	return v.obj, true
}

// Equal reports deep equality of kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString, KindVariant:
		return v.s == o.s
	case KindNumber:
		return v.f == o.f
	case KindInteger:
		return v.i == o.i
	case KindList:
		return slices.Equal(v.list, o.list)
	case KindJSON:
		return reflect.DeepEqual(v.obj, o.obj)
	}
	return false
}

// Any returns the raw Go representation, suitable for JSON encoding or
// handing to SDK transports.
func (v Value) Any() any {
	switch v.Kind() {
	case KindBool:
		return v.b
	case KindString, KindVariant:
		return v.s
	case KindNumber:
		return v.f
	case KindInteger:
		return v.i
	case KindList:
		return slices.Clone(v.list)
	case KindJSON:
		return v.obj
	}
	return nil
}

// String implements fmt.Stringer for logs and error messages.
func (v Value) String() string {
	switch v.Kind() {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	case KindVariant:
		return "variant:" + v.s
	case KindNumber:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindList, KindJSON:
		return fmt.Sprintf("%v", v.Any())
	}
	return "null"
}

// ValueOf coerces a raw Go value (as produced by JSON decoding or context
// attribute bags) into a Value. Unsupported types map to null with ok=false.
func ValueOf(raw any) (Value, bool) {
	switch t := raw.(type) {
	case nil:
		return NullValue(), true
	case bool:
		return BoolValue(t), true
	case string:
		return StringValue(t), true
	case float64:
		return NumberValue(t), true
	case float32:
		return NumberValue(float64(t)), true
	case int:
		return IntegerValue(int64(t)), true
	case int32:
		return IntegerValue(int64(t)), true
	case int64:
		return IntegerValue(t), true
	case []string:
		return ListValue(t...), true
	case map[string]any:
		return JSONValue(t), true
	case Value:
		return t, true
	}
	return NullValue(), false
}
