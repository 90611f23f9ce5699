package datatable

import (
	"fmt"
	"strings"

	"github.com/tuannm99/novagather/internal/alias/bx"
)

// Table is a sealed query result: schema, fixed-size rows, variable heap and
// metadata. It has no mutating methods, so one Table may be read from many
// goroutines at once.
type Table struct {
	schema   Schema
	layout   RowLayout
	numRows  int
	fixed    []byte
	heap     []byte
	meta     Metadata
	registry *ObjectRegistry
}

// Empty returns a zero-row table with the given schema and metadata.
func Empty(s Schema, meta Metadata) *Table {
	return &Table{
		schema:   s,
		layout:   ComputeLayout(s),
		meta:     meta.Clone(),
		registry: NewObjectRegistry(),
	}
}

func (t *Table) Schema() Schema     { return t.schema }
func (t *Table) Layout() RowLayout  { return t.layout }
func (t *Table) NumRows() int       { return t.numRows }
func (t *Table) NumColumns() int    { return t.schema.NumCols() }
func (t *Table) FixedSize() int     { return len(t.fixed) }
func (t *Table) HeapSize() int      { return len(t.heap) }
func (t *Table) Metadata() Metadata { return t.meta.Clone() }
func (t *Table) MetaValue(k string) (string, bool) {
	v, ok := t.meta[k]
	return v, ok
}

// Exception returns the node-level exception recorded in metadata, if any.
func (t *Table) Exception() (string, bool) { return t.meta.Exception() }

// cell returns the byte offset of (row, col) in the fixed region after
// checking bounds and the column type.
func (t *Table) cell(row, col int, want DataType) (int, error) {
	if row < 0 || row >= t.numRows || col < 0 || col >= t.schema.NumCols() {
		return 0, indexErr(row, col, t.numRows, t.schema.NumCols())
	}
	if got := t.schema.Cols[col].Type; got != want {
		return 0, typeErr(col, want, got)
	}
	return row*t.layout.RowSize + t.layout.Offsets[col], nil
}

// payload follows a variable cell into the heap. Decode has already checked
// every cell against the heap bounds.
func (t *Table) payload(row, col int, want DataType) ([]byte, error) {
	off, err := t.cell(row, col, want)
	if err != nil {
		return nil, err
	}
	c := readCell(t.fixed, off)
	return t.heap[c.Pos:c.End()], nil
}

func (t *Table) Int32(row, col int) (int32, error) {
	off, err := t.cell(row, col, Int32)
	if err != nil {
		return 0, err
	}
	return bx.I32At(t.fixed, off), nil
}

func (t *Table) Int64(row, col int) (int64, error) {
	off, err := t.cell(row, col, Int64)
	if err != nil {
		return 0, err
	}
	return bx.I64At(t.fixed, off), nil
}

// Float reads the legacy float column: 4 bytes of float32 at the start of
// an 8-byte slot.
func (t *Table) Float(row, col int) (float32, error) {
	off, err := t.cell(row, col, Float)
	if err != nil {
		return 0, err
	}
	return bx.F32At(t.fixed, off), nil
}

func (t *Table) Double(row, col int) (float64, error) {
	off, err := t.cell(row, col, Double)
	if err != nil {
		return 0, err
	}
	return bx.F64At(t.fixed, off), nil
}

func (t *Table) String(row, col int) (string, error) {
	p, err := t.payload(row, col, String)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// Bytes returns a copy so callers cannot write into the shared heap.
func (t *Table) Bytes(row, col int) ([]byte, error) {
	p, err := t.payload(row, col, Bytes)
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	return cp, nil
}

func (t *Table) Int32Array(row, col int) ([]int32, error) {
	p, err := t.payload(row, col, Int32Array)
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(p)/4)
	for i := range out {
		out[i] = bx.I32At(p, i*4)
	}
	return out, nil
}

func (t *Table) Int64Array(row, col int) ([]int64, error) {
	p, err := t.payload(row, col, Int64Array)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(p)/8)
	for i := range out {
		out[i] = bx.I64At(p, i*8)
	}
	return out, nil
}

func (t *Table) FloatArray(row, col int) ([]float32, error) {
	p, err := t.payload(row, col, FloatArray)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(p)/4)
	for i := range out {
		out[i] = bx.F32At(p, i*4)
	}
	return out, nil
}

func (t *Table) DoubleArray(row, col int) ([]float64, error) {
	p, err := t.payload(row, col, DoubleArray)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(p)/8)
	for i := range out {
		out[i] = bx.F64At(p, i*8)
	}
	return out, nil
}

func (t *Table) StringArray(row, col int) ([]string, error) {
	p, err := t.payload(row, col, StringArray)
	if err != nil {
		return nil, err
	}
	return decodeStringArray(p)
}

// Object decodes a tagged object payload with the table's registry. An
// unset cell returns nil.
func (t *Table) Object(row, col int) (any, error) {
	p, err := t.payload(row, col, Object)
	if err != nil {
		return nil, err
	}
	return t.registry.Decode(p)
}

// Value reads (row, col) with the getter matching the column type.
func (t *Table) Value(row, col int) (any, error) {
	if col < 0 || col >= t.schema.NumCols() {
		return nil, indexErr(row, col, t.numRows, t.schema.NumCols())
	}
	switch t.schema.Cols[col].Type {
	case Int32:
		return t.Int32(row, col)
	case Int64:
		return t.Int64(row, col)
	case Float:
		return t.Float(row, col)
	case Double:
		return t.Double(row, col)
	case String:
		return t.String(row, col)
	case Bytes:
		return t.Bytes(row, col)
	case Int32Array:
		return t.Int32Array(row, col)
	case Int64Array:
		return t.Int64Array(row, col)
	case FloatArray:
		return t.FloatArray(row, col)
	case DoubleArray:
		return t.DoubleArray(row, col)
	case StringArray:
		return t.StringArray(row, col)
	case Object:
		return t.Object(row, col)
	}
	return nil, fmt.Errorf("%w: column %d has unknown type %d", ErrTypeMismatch, col, t.schema.Cols[col].Type)
}

// Row materializes one row.
func (t *Table) Row(row int) ([]any, error) {
	out := make([]any, t.schema.NumCols())
	for col := range out {
		v, err := t.Value(row, col)
		if err != nil {
			return nil, err
		}
		out[col] = v
	}
	return out, nil
}

// Rows materializes the whole table, e.g. for client-facing formatting.
func (t *Table) Rows() ([][]any, error) {
	out := make([][]any, 0, t.numRows)
	for r := 0; r < t.numRows; r++ {
		row, err := t.Row(r)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Dump renders the table for debugging and the dtcat tool.
func (t *Table) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "schema=%s rows=%d fixed=%d heap=%d\n", t.schema, t.numRows, len(t.fixed), len(t.heap))
	for r := 0; r < t.numRows; r++ {
		row, err := t.Row(r)
		if err != nil {
			fmt.Fprintf(&sb, "  row %d: %v\n", r, err)
			continue
		}
		fmt.Fprintf(&sb, "  %v\n", row)
	}
	for _, k := range t.meta.Keys() {
		fmt.Fprintf(&sb, "  # %s = %s\n", k, t.meta[k])
	}
	return sb.String()
}

// ---- string array payload: [count i32] then count × [len i32][bytes] ----

func encodeStringArray(vals []string) []byte {
	n := 4
	for _, s := range vals {
		n += 4 + len(s)
	}
	out := make([]byte, 0, n)
	out = bx.AppendI32(out, int32(len(vals)))
	for _, s := range vals {
		out = bx.AppendString(out, s)
	}
	return out
}

func decodeStringArray(p []byte) ([]string, error) {
	if len(p) == 0 {
		return nil, nil
	}
	if len(p) < 4 {
		return nil, corruptf(p, 0, "string array count truncated")
	}
	count := int(bx.I32(p))
	if count < 0 || count > (len(p)-4)/4 {
		return nil, corruptf(p, 0, "string array count %d", count)
	}
	out := make([]string, 0, count)
	off := 4
	for i := 0; i < count; i++ {
		if len(p)-off < 4 {
			return nil, corruptf(p, off, "string array element %d length truncated", i)
		}
		n := int(bx.I32At(p, off))
		off += 4
		if n < 0 || n > len(p)-off {
			return nil, corruptf(p, off, "string array element %d length %d", i, n)
		}
		out = append(out, string(p[off:off+n]))
		off += n
	}
	if off != len(p) {
		return nil, corruptf(p, off, "string array has %d trailing bytes", len(p)-off)
	}
	return out, nil
}
