package savecodec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is a decoded save value: nil, bool, json.Number, string, []any or
// *Object. Encode and Equal also accept plain Go values (maps, slices,
// numbers, structs) and treat them as their JSON form.
type Value = any

// Object is a JSON object that remembers key insertion order. The zero value
// is an empty object ready to use.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns an empty object with room for n keys.
func NewObject(n int) *Object {
	return &Object{
		keys:   make([]string, 0, n),
		values: make(map[string]Value, n),
	}
}

// ObjectOf builds an object from alternating key/value arguments. It panics
// on an odd argument count or a non-string key; it is meant for literals.
func ObjectOf(kv ...any) *Object {
	if len(kv)%2 != 0 {
		panic("savecodec.ObjectOf: odd argument count")
	}
	o := NewObject(len(kv) / 2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic("savecodec.ObjectOf: key is not a string")
		}
		o.Set(key, kv[i+1])
	}
	return o
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in insertion order. The slice is a copy.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set stores value under key. A new key is appended; an existing key keeps
// its position.
func (o *Object) Set(key string, value Value) {
	if o.values == nil {
		o.values = make(map[string]Value)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Delete removes key and reports whether it was present.
func (o *Object) Delete(key string) bool {
	if o == nil {
		return false
	}
	if _, ok := o.values[key]; !ok {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Range calls fn for each entry in order until fn returns false.
func (o *Object) Range(fn func(key string, value Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.values[k]) {
			return
		}
	}
}

// MarshalJSON renders the object compactly in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	return Marshal(o)
}

// UnmarshalJSON parses a JSON object, keeping key order.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	src, ok := v.(*Object)
	if !ok {
		return fmt.Errorf("%w: expected object, got %s", ErrJSON, TypeName(v))
	}
	*o = *src
	return nil
}

// Clone returns a deep copy of v. Values that are not part of the decoded
// model are returned as is.
func Clone(v Value) Value {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return (*Object)(nil)
		}
		out := NewObject(t.Len())
		for _, k := range t.keys {
			out.Set(k, Clone(t.values[k]))
		}
		return out
	case []any:
		if t == nil {
			return []any(nil)
		}
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}

// Equal reports structural equality. Numbers compare by value, so 1 and 1.0
// are equal; objects compare by key set regardless of order.
func Equal(a, b Value) bool {
	a, okA := canonical(a)
	b, okB := canonical(b)
	if !okA || !okB {
		return false
	}

	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case json.Number:
		y, ok := b.(json.Number)
		return ok && NumberEqual(x, y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Object:
		y, ok := b.(*Object)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, k := range x.keys {
			yv, present := y.values[k]
			if !present || !Equal(x.values[k], yv) {
				return false
			}
		}
		return true
	}
	return false
}

// NumberEqual compares two JSON numbers by value.
func NumberEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	ai, errA := strconv.ParseInt(string(a), 10, 64)
	bi, errB := strconv.ParseInt(string(b), 10, 64)
	if errA == nil && errB == nil {
		return ai == bi
	}
	af, errA := strconv.ParseFloat(string(a), 64)
	bf, errB := strconv.ParseFloat(string(b), 64)
	return errA == nil && errB == nil && af == bf
}

// canonical maps plain Go values onto the decoded model. The second result is
// false when v has no JSON form.
func canonical(v Value) (Value, bool) {
	switch t := v.(type) {
	case nil, bool, string, json.Number, []any:
		return v, true
	case *Object:
		if t == nil {
			return nil, true
		}
		return t, true
	case int:
		return json.Number(strconv.FormatInt(int64(t), 10)), true
	case int64:
		return json.Number(strconv.FormatInt(t, 10)), true
	case int32:
		return json.Number(strconv.FormatInt(int64(t), 10)), true
	case uint:
		return json.Number(strconv.FormatUint(uint64(t), 10)), true
	case uint64:
		return json.Number(strconv.FormatUint(t, 10)), true
	case uint32:
		return json.Number(strconv.FormatUint(uint64(t), 10)), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, false
		}
		return json.Number(strconv.FormatFloat(t, 'g', -1, 64)), true
	case float32:
		return canonical(float64(t))
	}

	data, err := Marshal(v)
	if err != nil {
		return nil, false
	}
	parsed, err := ParseJSON(data)
	if err != nil {
		return nil, false
	}
	return parsed, true
}
