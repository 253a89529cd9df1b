package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/libsqlhttp/libsql/types"
)

// Hint is the type a consuming column expects, used to coerce decoded cells.
type Hint int

const (
	HintNone Hint = iota
	HintInteger
	HintFloat
	HintText
	HintBlob
	HintTime
	HintBool
	HintGUID
)

// Decode converts a wire cell to a native value: nil, int64, float64, string or []byte.
//
// Values that are merely ambiguous (an integer payload that does not parse, say)
// decode to nil. An error is returned only when the cell is broken: an unknown
// type tag, a text payload that is not a string, or malformed Base64.
func Decode(c types.Cell) (any, error) {
	switch c.Type {
	case types.TypeNull, "":
		return nil, nil
	case types.TypeInteger:
		s, ok := c.RawString()
		if !ok {
			return nil, nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, nil
		}
		return i, nil
	case types.TypeFloat:
		s, ok := c.RawString()
		if !ok {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, nil
		}
		return f, nil
	case types.TypeText:
		if len(c.Value) == 0 || string(c.Value) == "null" {
			return nil, nil
		}
		if c.Value[0] != '"' {
			return nil, fmt.Errorf("text value is not a string: %s", string(c.Value))
		}
		s, _ := c.RawString()
		return s, nil
	case types.TypeBlob:
		if c.Base64 == nil && len(c.Value) == 0 {
			return nil, nil
		}
		return c.BlobBytes()
	}
	return nil, fmt.Errorf("unknown value type %q", c.Type)
}

// DecodeValue converts a parsed wire value to its native form.
func DecodeValue(v types.Value) any {
	switch v.Type {
	case types.TypeInteger:
		return v.Integer
	case types.TypeFloat:
		return v.Float
	case types.TypeText:
		return v.Text
	case types.TypeBlob:
		return v.Blob
	}
	return nil
}

// DecodeHint decodes c and coerces the result towards hint. Coercion failures
// yield nil; only broken cells produce an error.
func DecodeHint(c types.Cell, hint Hint) (any, error) {
	v, err := Decode(c)
	if err != nil || v == nil {
		return v, err
	}
	return Coerce(v, hint), nil
}

// Coerce converts a decoded value towards hint, permissively.
func Coerce(v any, hint Hint) any {
	if v == nil {
		return nil
	}
	switch hint {
	case HintInteger:
		switch val := v.(type) {
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
			if err != nil {
				return nil
			}
			return i
		case float64:
			if val == float64(int64(val)) {
				return int64(val)
			}
		}
	case HintFloat:
		switch val := v.(type) {
		case int64:
			return float64(val)
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return nil
			}
			return f
		}
	case HintBool:
		b, err := ToBool(v)
		if err != nil {
			return nil
		}
		return b
	case HintTime:
		if s, ok := v.(string); ok {
			t, err := ParseTime(s)
			if err != nil {
				return nil
			}
			return t
		}
	case HintGUID:
		g, err := ToGUID(v)
		if err != nil {
			return nil
		}
		return g
	}
	return v
}

var timeLayouts = []string{
	DateTimeLayout,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses the text forms SQLite uses for dates. The result is always
// in UTC; any zone information in s is applied and then dropped.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date/time %q", s)
}

// ParseGUID accepts the textual forms uuid.Parse understands.
func ParseGUID(s string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(s))
}
