package codec

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/types"
)

// DateTimeLayout is the fixed-precision text form used for every temporal value.
const DateTimeLayout = "2006-01-02 15:04:05.000"

// FormatTime converts t to UTC and formats it without any zone information.
func FormatTime(t time.Time) string {
	return t.UTC().Format(DateTimeLayout)
}

// Encode converts a parameter to its wire value according to its DbType.
func Encode(p *Parameter) (types.Value, error) {
	v := indirect(p.Value)
	if v == nil || p.DbType == DbTypeNull {
		return types.Null(), nil
	}

	switch p.DbType {
	case DbTypeAuto:
		return EncodeValue(v)
	case DbTypeBoolean:
		b, err := ToBool(v)
		if err != nil {
			return types.Value{}, err
		}
		return encodeBool(b), nil
	case DbTypeInt16, DbTypeInt32, DbTypeInt64:
		i, err := ToInt64(v)
		if err != nil {
			return types.Value{}, err
		}
		return types.Integer(i), nil
	case DbTypeDouble, DbTypeDecimal:
		f, err := ToFloat64(v)
		if err != nil {
			return types.Value{}, err
		}
		return types.Float(f), nil
	case DbTypeString:
		s, err := ToString(v)
		if err != nil {
			return types.Value{}, err
		}
		return types.Text(s), nil
	case DbTypeDateTime, DbTypeDateTimeOffset:
		t, err := ToTime(v)
		if err != nil {
			return types.Value{}, err
		}
		return types.Text(FormatTime(t)), nil
	case DbTypeGuid:
		// The caller's spelling of a textual GUID is kept as-is.
		if s, ok := v.(string); ok {
			return types.Text(s), nil
		}
		g, err := ToGUID(v)
		if err != nil {
			return types.Value{}, err
		}
		return types.Text(g.String()), nil
	case DbTypeBinary:
		b, err := ToBytes(v)
		if err != nil {
			return types.Value{}, err
		}
		return types.Blob(b), nil
	}
	return types.Value{}, dberr.Newf(dberr.KindInvalidParameter, "parameter %q has unknown type %s", p.Name, p.DbType)
}

// EncodeValue infers the wire value from the Go type of v.
func EncodeValue(v any) (types.Value, error) {
	v = indirect(v)
	switch val := v.(type) {
	case nil:
		return types.Null(), nil
	case bool:
		return encodeBool(val), nil
	case int:
		return types.Integer(int64(val)), nil
	case int8:
		return types.Integer(int64(val)), nil
	case int16:
		return types.Integer(int64(val)), nil
	case int32:
		return types.Integer(int64(val)), nil
	case int64:
		return types.Integer(val), nil
	case uint, uint8, uint16, uint32, uint64:
		i, err := ToInt64(val)
		if err != nil {
			return types.Value{}, err
		}
		return types.Integer(i), nil
	case float32:
		return types.Float(float64(val)), nil
	case float64:
		return types.Float(val), nil
	case string:
		return types.Text(val), nil
	case []byte:
		return types.Blob(val), nil
	case time.Time:
		return types.Text(FormatTime(val)), nil
	case uuid.UUID:
		return types.Text(val.String()), nil
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return types.Value{}, dberr.Wrap(dberr.KindInvalidParameter, fmt.Sprintf("failed to read value of %T", v), err)
		}
		return EncodeValue(dv)
	case fmt.Stringer:
		return types.Text(val.String()), nil
	default:
		return types.Text(fmt.Sprint(val)), nil
	}
}

func encodeBool(b bool) types.Value {
	if b {
		return types.Integer(1)
	}
	return types.Integer(0)
}

// indirect dereferences pointers; a nil pointer or nil interface becomes nil.
func indirect(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	}
	return rv.Interface()
}
