package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// --- JSON structures for the pipeline endpoint ---

// RequestType names a request in a pipeline batch.
type RequestType string

const (
	RequestExecute RequestType = "execute"
	RequestClose   RequestType = "close"
)

// PipelineRequest is the body POSTed to the pipeline endpoint.
type PipelineRequest struct {
	Baton    *string         `json:"baton,omitempty"`
	Requests []StreamRequest `json:"requests"`
}

// StreamRequest is one entry of a pipeline batch. Stmt is only set for execute requests.
type StreamRequest struct {
	Type RequestType `json:"type"`
	Stmt *Stmt       `json:"stmt,omitempty"`
}

// Stmt is a single SQL statement with positional arguments (?1, ?2, ...).
type Stmt struct {
	SQL  string  `json:"sql"`
	Args []Value `json:"args"`
}

// ExecuteRequest builds an execute entry.
func ExecuteRequest(sql string, args []Value) StreamRequest {
	if args == nil {
		args = []Value{}
	}
	return StreamRequest{Type: RequestExecute, Stmt: &Stmt{SQL: sql, Args: args}}
}

// CloseRequest builds the close entry that releases the remote stream.
func CloseRequest() StreamRequest {
	return StreamRequest{Type: RequestClose}
}

// PipelineResponse is the body returned by the pipeline endpoint. A batch level
// failure is reported with Type "error" and Error set instead of Results.
type PipelineResponse struct {
	Baton   *string        `json:"baton,omitempty"`
	BaseURL *string        `json:"base_url,omitempty"`
	Type    string         `json:"type,omitempty"`
	Error   *StreamError   `json:"error,omitempty"`
	Results []StreamResult `json:"results"`
}

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// StreamResult is the outcome of one StreamRequest, in request order.
type StreamResult struct {
	Type     string          `json:"type"`
	Response *StreamResponse `json:"response,omitempty"`
	Error    *StreamError    `json:"error,omitempty"`
}

// StreamResponse carries the result of an execute request; close responses have no Result.
type StreamResponse struct {
	Type   RequestType    `json:"type"`
	Result *ExecuteResult `json:"result,omitempty"`
}

// StreamError is the error payload of a failed request or batch.
type StreamError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ExecuteResult is a tabular result plus row counters.
type ExecuteResult struct {
	Cols             []Col    `json:"cols"`
	Rows             [][]Cell `json:"rows"`
	AffectedRowCount int64    `json:"affected_row_count"`
	LastInsertRowID  *string  `json:"last_insert_rowid"`
}

// Col describes a result column. Decltype is the declared column type, empty for expressions.
type Col struct {
	Name     string `json:"name"`
	Decltype string `json:"decltype,omitempty"`
}

// --- Wire values ---

// ValueType is the tag of a wire value.
type ValueType string

const (
	TypeNull    ValueType = "null"
	TypeInteger ValueType = "integer"
	TypeFloat   ValueType = "float"
	TypeText    ValueType = "text"
	TypeBlob    ValueType = "blob"
)

// Value is a tagged union of the wire value kinds. Only the payload field that
// matches Type is meaningful. Name is set on statement arguments only.
type Value struct {
	Name    string
	Type    ValueType
	Integer int64
	Float   float64
	Text    string
	Blob    []byte
}

func Null() Value           { return Value{Type: TypeNull} }
func Integer(i int64) Value { return Value{Type: TypeInteger, Integer: i} }
func Float(f float64) Value { return Value{Type: TypeFloat, Float: f} }
func Text(s string) Value   { return Value{Type: TypeText, Text: s} }
func Blob(b []byte) Value   { return Value{Type: TypeBlob, Blob: b} }

func (v Value) IsNull() bool { return v.Type == TypeNull || v.Type == "" }

// Named returns a copy of v carrying the argument name.
func (v Value) Named(name string) Value {
	v.Name = name
	return v
}

type wireValue struct {
	Name   string          `json:"name,omitempty"`
	Type   ValueType       `json:"type"`
	Value  json.RawMessage `json:"value,omitempty"`
	Base64 *string         `json:"base64,omitempty"`
}

// MarshalJSON writes integers as decimal strings, floats as numbers and blobs
// as standard Base64 in the "base64" field.
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Name: v.Name, Type: v.Type}
	var err error
	switch v.Type {
	case TypeNull, "":
		w.Type = TypeNull
	case TypeInteger:
		w.Value, err = json.Marshal(strconv.FormatInt(v.Integer, 10))
	case TypeFloat:
		w.Value, err = json.Marshal(v.Float)
	case TypeText:
		w.Value, err = json.Marshal(v.Text)
	case TypeBlob:
		s := base64.StdEncoding.EncodeToString(v.Blob)
		w.Base64 = &s
	default:
		return nil, fmt.Errorf("unknown value type %q", v.Type)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON is strict: a payload that does not match its tag is an error.
// Responses are decoded into Cell instead, which defers payload parsing.
func (v *Value) UnmarshalJSON(data []byte) error {
	var c struct {
		Name string `json:"name"`
		Cell
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	parsed, err := c.Cell.Parse()
	if err != nil {
		return err
	}
	parsed.Name = c.Name
	*v = parsed
	return nil
}

// Cell is a response value whose payload is kept raw so that a malformed cell
// can be handled per column instead of failing the whole response.
type Cell struct {
	Type   ValueType       `json:"type"`
	Value  json.RawMessage `json:"value,omitempty"`
	Base64 *string         `json:"base64,omitempty"`
}

// CellOf converts a value to its response form.
func CellOf(v Value) Cell {
	raw, _ := v.MarshalJSON()
	var w wireValue
	_ = json.Unmarshal(raw, &w)
	return Cell{Type: w.Type, Value: w.Value, Base64: w.Base64}
}

// RawString returns the payload as text. JSON strings are unquoted, numbers are
// returned verbatim. ok is false when there is no payload or it is neither.
func (c Cell) RawString() (string, bool) {
	if len(c.Value) == 0 || string(c.Value) == "null" {
		return "", false
	}
	if c.Value[0] == '"' {
		var s string
		if err := json.Unmarshal(c.Value, &s); err != nil {
			return "", false
		}
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(c.Value, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

// Parse converts the cell to a Value, failing on any payload mismatch.
func (c Cell) Parse() (Value, error) {
	switch c.Type {
	case TypeNull, "":
		return Null(), nil
	case TypeInteger:
		s, ok := c.RawString()
		if !ok {
			return Value{}, fmt.Errorf("integer value has no payload")
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid integer value %q: %w", s, err)
		}
		return Integer(i), nil
	case TypeFloat:
		s, ok := c.RawString()
		if !ok {
			return Value{}, fmt.Errorf("float value has no payload")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("invalid float value %q: %w", s, err)
		}
		return Float(f), nil
	case TypeText:
		if len(c.Value) == 0 || c.Value[0] != '"' {
			return Value{}, fmt.Errorf("text value is not a string")
		}
		s, _ := c.RawString()
		return Text(s), nil
	case TypeBlob:
		b, err := c.BlobBytes()
		if err != nil {
			return Value{}, err
		}
		return Blob(b), nil
	default:
		return Value{}, fmt.Errorf("unknown value type %q", c.Type)
	}
}

// BlobBytes decodes the Base64 payload, read from "base64" or, failing that, "value".
func (c Cell) BlobBytes() ([]byte, error) {
	var enc string
	switch {
	case c.Base64 != nil:
		enc = *c.Base64
	default:
		s, ok := c.RawString()
		if !ok {
			return nil, fmt.Errorf("blob value has no payload")
		}
		enc = s
	}
	b, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 blob: %w", err)
	}
	return b, nil
}
