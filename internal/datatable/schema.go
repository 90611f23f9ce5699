package datatable

import (
	"fmt"
	"strings"
)

// DataType is the wire tag of a column. Values are part of the frame format:
// append only, never renumber.
type DataType uint8

const (
	Int32 DataType = iota + 1
	Int64
	Float // legacy: occupies 8 bytes in the fixed region, see ComputeLayout
	Double
	String
	Bytes
	Int32Array
	Int64Array
	FloatArray
	DoubleArray
	StringArray
	Object
)

var typeNames = map[DataType]string{
	Int32:       "INT32",
	Int64:       "INT64",
	Float:       "FLOAT",
	Double:      "DOUBLE",
	String:      "STRING",
	Bytes:       "BYTES",
	Int32Array:  "INT32_ARRAY",
	Int64Array:  "INT64_ARRAY",
	FloatArray:  "FLOAT_ARRAY",
	DoubleArray: "DOUBLE_ARRAY",
	StringArray: "STRING_ARRAY",
	Object:      "OBJECT",
}

func (t DataType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", uint8(t))
}

// Valid reports whether t is one of the known tags.
func (t DataType) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// IsVariable reports whether values of t live in the variable heap and the
// fixed region only holds a (position, length) cell.
func (t DataType) IsVariable() bool {
	switch t {
	case Int32, Int64, Float, Double:
		return false
	default:
		return true
	}
}

// ParseDataType accepts the names printed by DataType.String, case-insensitive.
func ParseDataType(s string) (DataType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("datatable: unknown data type %q", s)
}

type Column struct {
	Name string
	Type DataType
}

// Schema is the ordered column list shared by every table of one query.
type Schema struct {
	Cols []Column
}

func NewSchema(cols ...Column) Schema {
	return Schema{Cols: append([]Column(nil), cols...)}
}

func (s Schema) NumCols() int { return len(s.Cols) }

// ColumnIndex returns the position of the named column or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Equal compares column count, order, names and types.
func (s Schema) Equal(o Schema) bool {
	if len(s.Cols) != len(o.Cols) {
		return false
	}
	for i := range s.Cols {
		if s.Cols[i] != o.Cols[i] {
			return false
		}
	}
	return true
}

func (s Schema) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, c := range s.Cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Name)
		sb.WriteByte(' ')
		sb.WriteString(c.Type.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
