// Package record implements the persisted-entity layer: a closed Value
// type for column data, the Entity contract typed models implement, and
// a Store that runs find/save/delete with field-level change tracking.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind enumerates the closed set of column value types.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindTime
	KindJSON
)

// Value is one column value. The closed set of kinds lets diffing,
// redaction and serialization switch exhaustively instead of probing
// arbitrary interfaces.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	t    time.Time
	j    json.RawMessage
}

func Null() Value               { return Value{kind: KindNull} }
func Int(v int64) Value         { return Value{kind: KindInt, i: v} }
func Uint(v uint64) Value       { return Value{kind: KindInt, i: int64(v)} }
func Float(v float64) Value     { return Value{kind: KindFloat, f: v} }
func Bool(v bool) Value         { return Value{kind: KindBool, b: v} }
func String(v string) Value     { return Value{kind: KindString, s: v} }
func Time(v time.Time) Value    { return Value{kind: KindTime, t: v.UTC()} }
func JSON(raw []byte) Value     { return Value{kind: KindJSON, j: append(json.RawMessage(nil), raw...)} }

// TimeOrNull maps a nil pointer to Null.
func TimeOrNull(v *time.Time) Value {
	if v == nil {
		return Null()
	}
	return Time(*v)
}

// StringOrNull maps the empty string to Null.
func StringOrNull(v string) Value {
	if v == "" {
		return Null()
	}
	return String(v)
}

// UintOrNull maps zero to Null; used for unset auto-increment keys.
func UintOrNull(v uint64) Value {
	if v == 0 {
		return Null()
	}
	return Uint(v)
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the value as an integer, coercing bools and floats.
func (v Value) Int64() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	}
	return 0
}

// Uint64 is Int64 clamped at zero for unsigned keys.
func (v Value) Uint64() uint64 {
	n := v.Int64()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// Float64 returns the value as a float, coercing integers.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindInt:
		return float64(v.i)
	}
	return 0
}

// Bool returns the value as a bool; integer columns coerce nonzero to
// true because MySQL reports TINYINT(1) columns as integers.
func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	}
	return false
}

// Text returns the value as a string.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindJSON:
		return string(v.j)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindTime:
		return v.t.Format(time.RFC3339)
	}
	return ""
}

// Time returns the value as a UTC timestamp. String values are parsed
// leniently because some drivers hand timestamp columns back as text.
func (v Value) Time() time.Time {
	switch v.kind {
	case KindTime:
		return v.t
	case KindString:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v.s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

// TimePtr returns nil for Null, otherwise a pointer to the timestamp.
func (v Value) TimePtr() *time.Time {
	if v.IsNull() {
		return nil
	}
	t := v.Time()
	return &t
}

// Raw returns the JSON payload for KindJSON values.
func (v Value) Raw() json.RawMessage {
	if v.kind == KindJSON {
		return v.j
	}
	return nil
}

// Arg returns the value in the shape the database driver binds.
func (v Value) Arg() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindString:
		return v.s
	case KindTime:
		return v.t
	case KindJSON:
		return string(v.j)
	}
	return nil
}

// Equal compares two values with cross-kind numeric and bool coercion:
// drivers report booleans as integers and integers occasionally as
// floats, and those must not register as field changes.
func (v Value) Equal(o Value) bool {
	if v.kind == o.kind {
		switch v.kind {
		case KindNull:
			return true
		case KindInt:
			return v.i == o.i
		case KindFloat:
			return v.f == o.f
		case KindBool:
			return v.b == o.b
		case KindString:
			return v.s == o.s
		case KindTime:
			return v.t.Equal(o.t)
		case KindJSON:
			return string(v.j) == string(o.j)
		}
		return false
	}
	if v.kind == KindNull || o.kind == KindNull {
		return false
	}
	switch {
	case isNumeric(v.kind) && isNumeric(o.kind):
		return v.Float64() == o.Float64()
	case v.kind == KindBool || o.kind == KindBool:
		if isNumeric(v.kind) || isNumeric(o.kind) {
			return v.Bool() == o.Bool()
		}
	case v.kind == KindTime && o.kind == KindString,
		v.kind == KindString && o.kind == KindTime:
		return v.Time().Equal(o.Time()) && !v.Time().IsZero()
	case v.kind == KindJSON && o.kind == KindString,
		v.kind == KindString && o.kind == KindJSON:
		return v.Text() == o.Text()
	}
	return false
}

func isNumeric(k Kind) bool { return k == KindInt || k == KindFloat }

// FromDriver converts a scanned database value into a Value. Byte
// slices become strings; unknown types fall back to their fmt
// rendering so scanning never fails.
func FromDriver(src any) Value {
	switch t := src.(type) {
	case nil:
		return Null()
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case bool:
		return Bool(t)
	case []byte:
		return String(string(t))
	case string:
		return String(t)
	case time.Time:
		return Time(t)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}
