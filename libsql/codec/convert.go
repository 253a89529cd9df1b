package codec

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/types"
)

// The To* converters are the strict path: a nil value or an unconvertible
// type yields an InvalidCast error naming both types.

func ToInt64(v any) (int64, error) {
	switch val := indirect(v).(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint:
		return uintToInt64(uint64(val), v)
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return uintToInt64(val, v)
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case float32:
		return floatToInt64(float64(val), v)
	case float64:
		return floatToInt64(val, v)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, dberr.NewInvalidCastError(v, "int64")
		}
		return i, nil
	}
	return 0, dberr.NewInvalidCastError(v, "int64")
}

func uintToInt64(u uint64, orig any) (int64, error) {
	if u > math.MaxInt64 {
		return 0, dberr.NewInvalidCastError(orig, "int64")
	}
	return int64(u), nil
}

func floatToInt64(f float64, orig any) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, dberr.NewInvalidCastError(orig, "int64")
	}
	return int64(f), nil
}

// ToInt32 narrows ToInt64, failing on overflow.
func ToInt32(v any) (int32, error) {
	i, err := ToInt64(v)
	if err != nil {
		return 0, dberr.NewInvalidCastError(v, "int32")
	}
	if i > math.MaxInt32 || i < math.MinInt32 {
		return 0, dberr.NewInvalidCastError(v, "int32")
	}
	return int32(i), nil
}

// ToInt16 narrows ToInt64, failing on overflow.
func ToInt16(v any) (int16, error) {
	i, err := ToInt64(v)
	if err != nil {
		return 0, dberr.NewInvalidCastError(v, "int16")
	}
	if i > math.MaxInt16 || i < math.MinInt16 {
		return 0, dberr.NewInvalidCastError(v, "int16")
	}
	return int16(i), nil
}

func ToFloat64(v any) (float64, error) {
	switch val := indirect(v).(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, dberr.NewInvalidCastError(v, "float64")
		}
		return f, nil
	case nil, []byte, bool, time.Time:
		return 0, dberr.NewInvalidCastError(v, "float64")
	}
	i, err := ToInt64(v)
	if err != nil {
		return 0, dberr.NewInvalidCastError(v, "float64")
	}
	return float64(i), nil
}

// ToBool treats any non-zero integer as true and the text "1" or "true"
// (case-insensitive) as true; other text is false.
func ToBool(v any) (bool, error) {
	switch val := indirect(v).(type) {
	case bool:
		return val, nil
	case string:
		s := strings.TrimSpace(val)
		return s == "1" || strings.EqualFold(s, "true"), nil
	case float64:
		return val != 0, nil
	case float32:
		return val != 0, nil
	case nil, []byte, time.Time:
		return false, dberr.NewInvalidCastError(v, "bool")
	}
	i, err := ToInt64(v)
	if err != nil {
		return false, dberr.NewInvalidCastError(v, "bool")
	}
	return i != 0, nil
}

func ToString(v any) (string, error) {
	switch val := indirect(v).(type) {
	case nil:
		return "", dberr.NewInvalidCastError(nil, "string")
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case time.Time:
		return FormatTime(val), nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	}
	enc, err := EncodeValue(v)
	if err != nil {
		return "", err
	}
	switch enc.Type {
	case types.TypeInteger:
		return strconv.FormatInt(enc.Integer, 10), nil
	case types.TypeFloat:
		return strconv.FormatFloat(enc.Float, 'g', -1, 64), nil
	case types.TypeBlob:
		return string(enc.Blob), nil
	}
	return enc.Text, nil
}

// ToTime accepts time.Time or any text ParseTime understands. The result is in UTC.
func ToTime(v any) (time.Time, error) {
	switch val := indirect(v).(type) {
	case time.Time:
		return val.UTC(), nil
	case string:
		t, err := ParseTime(val)
		if err != nil {
			return time.Time{}, dberr.NewInvalidCastError(v, "time.Time")
		}
		return t, nil
	}
	return time.Time{}, dberr.NewInvalidCastError(v, "time.Time")
}

// ToGUID accepts uuid.UUID, its text forms and the 16-byte binary form.
func ToGUID(v any) (uuid.UUID, error) {
	switch val := indirect(v).(type) {
	case uuid.UUID:
		return val, nil
	case string:
		g, err := ParseGUID(val)
		if err != nil {
			return uuid.Nil, dberr.NewInvalidCastError(v, "uuid.UUID")
		}
		return g, nil
	case []byte:
		if len(val) == 16 {
			g, err := uuid.FromBytes(val)
			if err == nil {
				return g, nil
			}
		}
		g, err := uuid.ParseBytes(val)
		if err != nil {
			return uuid.Nil, dberr.NewInvalidCastError(v, "uuid.UUID")
		}
		return g, nil
	}
	return uuid.Nil, dberr.NewInvalidCastError(v, "uuid.UUID")
}

func ToBytes(v any) ([]byte, error) {
	switch val := indirect(v).(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	case uuid.UUID:
		b := val
		return b[:], nil
	}
	return nil, dberr.NewInvalidCastError(v, "[]byte")
}
