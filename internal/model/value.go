package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindAbsent ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindSequence
	KindMapping
)

func (k ValueKind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is one node of a listing's attribute tree: a scalar, an ordered
// sequence of values, or a string-keyed mapping. The zero Value is Absent.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	seq  []Value
	m    map[string]Value
}

func Absent() Value { return Value{} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Sequence(vs ...Value) Value {
	return Value{kind: KindSequence, seq: vs}
}

// Mapping wraps m. The map is not copied.
func Mapping(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMapping, m: m}
}

// FromAny converts decoded JSON/YAML data into a Value. Unsupported types
// (and nil) become Absent.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Absent()
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case []string:
		seq := make([]Value, 0, len(t))
		for _, s := range t {
			seq = append(seq, String(s))
		}
		return Sequence(seq...)
	case []any:
		seq := make([]Value, 0, len(t))
		for _, e := range t {
			seq = append(seq, FromAny(e))
		}
		return Sequence(seq...)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = FromAny(e)
		}
		return Mapping(m)
	case map[any]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = FromAny(e)
		}
		return Mapping(m)
	}
	return Absent()
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }
func (v Value) IsScalar() bool { return v.kind == KindString || v.kind == KindNumber || v.kind == KindBool }
func (v Value) Items() []Value { return v.seq }
func (v Value) Fields() map[string]Value { return v.m }

// Get returns the child stored under key, or Absent when v is not a
// mapping or has no such key.
func (v Value) Get(key string) Value {
	if v.kind != KindMapping {
		return Absent()
	}
	return v.m[key]
}

// Has reports whether v is a mapping containing key.
func (v Value) Has(key string) bool {
	if v.kind != KindMapping {
		return false
	}
	_, ok := v.m[key]
	return ok
}

// Keys returns the mapping keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Float reports the numeric value of v. Strings holding a decimal number
// (optionally with a comma decimal separator or spaces as thousands
// separators) count as numeric.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		return ParseNumber(v.str)
	}
	return 0, false
}

// Text returns the canonical string form of a scalar.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	}
	return "", false
}

// Scalar returns the underlying Go scalar (string, float64 or bool).
func (v Value) Scalar() (any, bool) {
	switch v.kind {
	case KindString:
		return v.str, true
	case KindNumber:
		return v.num, true
	case KindBool:
		return v.b, true
	}
	return nil, false
}

// Any converts v back into plain Go data.
func (v Value) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindSequence:
		out := make([]any, 0, len(v.seq))
		for _, e := range v.seq {
			out = append(out, e.Any())
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Any()
		}
		return out
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// UnmarshalYAML lets fixture catalogs declare attributes as plain YAML.
func (v *Value) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// ParseNumber parses s as a decimal number, tolerating surrounding
// whitespace, spaces used as thousands separators and a comma decimal mark.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
