package core

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value is a single cell. Exactly one of the payload fields is meaningful,
// selected by Kind. Blob carries an out-of-line reference for oversized
// text/json payloads; resolution happens in the storage layer.
type Value struct {
	Kind ColumnType `json:"k"`
	Str  string     `json:"s,omitempty"`
	Num  int64      `json:"n,omitempty"`
	Real float64    `json:"r,omitempty"`
	Flag bool       `json:"f,omitempty"`
	Null bool       `json:"z,omitempty"`
	Blob string     `json:"h,omitempty"`
}

func String(s string) Value  { return Value{Kind: StringType, Str: s} }
func Text(s string) Value    { return Value{Kind: TextType, Str: s} }
func Json(s string) Value    { return Value{Kind: JsonType, Str: s} }
func Int(i int64) Value      { return Value{Kind: IntType, Num: i} }
func Float(f float64) Value  { return Value{Kind: FloatType, Real: f} }
func Bool(b bool) Value      { return Value{Kind: BoolType, Flag: b} }
func Null(t ColumnType) Value { return Value{Kind: t, Null: true} }

func Timestamp(t time.Time) Value {
	return Value{Kind: TimestampType, Num: t.UTC().UnixNano()}
}

func Date(t time.Time) Value {
	y, m, d := t.UTC().Date()
	return Value{Kind: DateType, Num: time.Date(y, m, d, 0, 0, 0, 0, time.UTC).UnixNano()}
}

// Time returns the time payload of a DateType or TimestampType value.
func (v Value) Time() time.Time {
	return time.Unix(0, v.Num).UTC()
}

// ParseValue converts raw text (e.g. a CSV field) to a typed Value.
func ParseValue(t ColumnType, raw string) (Value, error) {
	if raw == "" {
		return Null(t), nil
	}
	switch t {
	case StringType, TextType, JsonType:
		return Value{Kind: t, Str: raw}, nil
	case IntType:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid integer %q: %w", raw, err)
		}
		return Int(n), nil
	case FloatType:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid float %q: %w", raw, err)
		}
		return Float(f), nil
	case BoolType:
		b, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return Value{}, fmt.Errorf("invalid bool %q: %w", raw, err)
		}
		return Bool(b), nil
	case DateType, TimestampType:
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			ts, err = time.Parse("2006-01-02", raw)
		}
		if err != nil {
			return Value{}, fmt.Errorf("invalid time %q: %w", raw, err)
		}
		if t == DateType {
			return Date(ts), nil
		}
		return Timestamp(ts), nil
	default:
		return Value{}, fmt.Errorf("unknown column type %d", t)
	}
}

// Format renders the value as display/export text.
func (v Value) Format() string {
	if v.Null {
		return ""
	}
	switch v.Kind {
	case StringType, TextType, JsonType:
		return v.Str
	case IntType:
		return strconv.FormatInt(v.Num, 10)
	case FloatType:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case BoolType:
		return strconv.FormatBool(v.Flag)
	case DateType:
		return v.Time().Format("2006-01-02")
	case TimestampType:
		return v.Time().Format(time.RFC3339)
	default:
		return ""
	}
}

// Compare orders two values of the same kind. Nulls sort first.
func Compare(a, b Value) int {
	if a.Null || b.Null {
		switch {
		case a.Null && b.Null:
			return 0
		case a.Null:
			return -1
		default:
			return 1
		}
	}
	switch a.Kind {
	case StringType, TextType, JsonType:
		return strings.Compare(a.Str, b.Str)
	case IntType, DateType, TimestampType:
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		}
		return 0
	case FloatType:
		switch {
		case a.Real < b.Real:
			return -1
		case a.Real > b.Real:
			return 1
		}
		return 0
	case BoolType:
		switch {
		case !a.Flag && b.Flag:
			return -1
		case a.Flag && !b.Flag:
			return 1
		}
		return 0
	}
	return 0
}

// appendKeyBytes appends an order-preserving encoding of v. A leading tag
// byte keeps nulls ordered before every non-null value.
func appendKeyBytes(dst []byte, v Value) []byte {
	if v.Null {
		return append(dst, 0x00)
	}
	dst = append(dst, 0x01)
	switch v.Kind {
	case StringType, TextType, JsonType:
		// Terminator cannot collide: 0x00 inside the string is escaped.
		for i := 0; i < len(v.Str); i++ {
			c := v.Str[i]
			if c == 0x00 {
				dst = append(dst, 0x00, 0xff)
				continue
			}
			dst = append(dst, c)
		}
		return append(dst, 0x00, 0x00)
	case IntType, DateType, TimestampType:
		// Flip the sign bit so signed order matches byte order.
		u := uint64(v.Num) ^ (1 << 63)
		return binary.BigEndian.AppendUint64(dst, u)
	case FloatType:
		bits := math.Float64bits(v.Real)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		return binary.BigEndian.AppendUint64(dst, bits)
	case BoolType:
		if v.Flag {
			return append(dst, 1)
		}
		return append(dst, 0)
	}
	return dst
}
