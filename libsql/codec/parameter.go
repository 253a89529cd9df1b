package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DbType is the declared type of a parameter. DbTypeAuto infers the wire type
// from the Go value.
type DbType int

const (
	DbTypeAuto DbType = iota
	DbTypeNull
	DbTypeBoolean
	DbTypeInt16
	DbTypeInt32
	DbTypeInt64
	DbTypeDouble
	DbTypeDecimal
	DbTypeString
	DbTypeDateTime
	DbTypeDateTimeOffset
	DbTypeGuid
	DbTypeBinary
)

var dbTypeNames = [...]string{
	DbTypeAuto:           "Auto",
	DbTypeNull:           "Null",
	DbTypeBoolean:        "Boolean",
	DbTypeInt16:          "Int16",
	DbTypeInt32:          "Int32",
	DbTypeInt64:          "Int64",
	DbTypeDouble:         "Double",
	DbTypeDecimal:        "Decimal",
	DbTypeString:         "String",
	DbTypeDateTime:       "DateTime",
	DbTypeDateTimeOffset: "DateTimeOffset",
	DbTypeGuid:           "Guid",
	DbTypeBinary:         "Binary",
}

func (t DbType) String() string {
	if int(t) >= 0 && int(t) < len(dbTypeNames) {
		return dbTypeNames[t]
	}
	return fmt.Sprintf("DbType(%d)", int(t))
}

// Parameter is a named value bound to a command.
type Parameter struct {
	Name   string
	DbType DbType
	Value  any

	size    int
	sizeSet bool
}

// NewParameter creates a parameter whose type is inferred from value.
func NewParameter(name string, value any) *Parameter {
	return &Parameter{Name: name, Value: value}
}

// NewTypedParameter creates a parameter with an explicit DbType.
func NewTypedParameter(name string, dbType DbType, value any) *Parameter {
	return &Parameter{Name: name, DbType: dbType, Value: value}
}

// Size is the explicit size if one was set, otherwise the rune length of a
// string value or the byte length of a binary value.
func (p *Parameter) Size() int {
	if p.sizeSet {
		return p.size
	}
	switch v := p.Value.(type) {
	case string:
		return utf8.RuneCountInString(v)
	case []byte:
		return len(v)
	}
	return 0
}

// SetSize fixes the size; a negative size restores derivation.
func (p *Parameter) SetSize(size int) {
	if size < 0 {
		p.size, p.sizeSet = 0, false
		return
	}
	p.size, p.sizeSet = size, true
}

// NormalizeName strips the @, : or $ prefix of a placeholder name.
func NormalizeName(name string) string {
	return strings.TrimLeft(strings.TrimSpace(name), "@:$")
}
