package schema

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ColumnType is the strict type a model column was trained on.
type ColumnType int

const (
	TypeFloat ColumnType = iota + 1
	TypeInteger
	TypeCategorical
	TypeBoolean
)

func (t ColumnType) String() string {
	switch t {
	case TypeFloat:
		return "float64"
	case TypeInteger:
		return "int64"
	case TypeCategorical:
		return "category"
	case TypeBoolean:
		return "bool"
	default:
		return "unknown"
	}
}

// Numeric reports whether values of this type carry a number.
func (t ColumnType) Numeric() bool {
	return t == TypeFloat || t == TypeInteger
}

// ParseColumnType accepts the dtype names pandas writes out for a training frame.
func ParseColumnType(dtype string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(dtype)) {
	case "float", "float32", "float64", "double", "number", "numeric":
		return TypeFloat, nil
	case "int", "int8", "int16", "int32", "int64", "integer":
		return TypeInteger, nil
	case "object", "str", "string", "category", "categorical":
		return TypeCategorical, nil
	case "bool", "boolean":
		return TypeBoolean, nil
	default:
		return 0, errors.Newf("unsupported dtype %q", dtype)
	}
}

func (t *ColumnType) UnmarshalText(text []byte) error {
	parsed, err := ParseColumnType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Value is one strictly typed cell of an Observation.
type Value struct {
	Type  ColumnType
	Valid bool
	Num   float64
	Str   string
	Bool  bool
}

func (v Value) IsNull() bool { return !v.Valid }

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	switch v.Type {
	case TypeFloat:
		return json.Marshal(v.Num)
	case TypeInteger:
		return json.Marshal(int64(v.Num))
	case TypeBoolean:
		return json.Marshal(v.Bool)
	default:
		return json.Marshal(v.Str)
	}
}

// Observation is a single row conforming to a model schema, columns in
// training order.
type Observation struct {
	columns []string
	values  []Value
	index   map[string]int
}

func newObservation(n int) Observation {
	return Observation{
		columns: make([]string, 0, n),
		values:  make([]Value, 0, n),
		index:   make(map[string]int, n),
	}
}

func (o *Observation) set(column string, v Value) {
	o.index[column] = len(o.columns)
	o.columns = append(o.columns, column)
	o.values = append(o.values, v)
}

func (o Observation) Len() int { return len(o.columns) }

// Columns returns the column names in order.
func (o Observation) Columns() []string {
	out := make([]string, len(o.columns))
	copy(out, o.columns)
	return out
}

// Get returns the value for column and whether the column is part of the row.
func (o Observation) Get(column string) (Value, bool) {
	i, ok := o.index[column]
	if !ok {
		return Value{}, false
	}
	return o.values[i], true
}

func (o Observation) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, col := range o.columns {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := o.values[i].MarshalJSON()
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
