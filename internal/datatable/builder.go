package datatable

import (
	"fmt"
	"math"
	"slices"

	"github.com/tuannm99/novagather/internal/alias/bx"
)

// Builder accumulates rows for one Table. It is owned by a single goroutine
// until Seal returns.
//
// Columns that are never set keep their zero value; variable columns keep an
// empty (0,0) cell. That is how "unset" is represented, there is no null
// bitmap.
type Builder struct {
	schema   Schema
	layout   RowLayout
	varCols  []int
	fixed    []byte
	heap     []byte
	numRows  int
	rowBase  int // -1 when no row is open
	meta     Metadata
	registry *ObjectRegistry
	sealed   bool
}

func NewBuilder(s Schema, opts ...Option) *Builder {
	o := buildOptions(opts)
	layout := ComputeLayout(s)
	var varCols []int
	for i, c := range s.Cols {
		if c.Type.IsVariable() {
			varCols = append(varCols, i)
		}
	}
	return &Builder{
		schema:   s,
		layout:   layout,
		varCols:  varCols,
		rowBase:  -1,
		meta:     Metadata{},
		registry: o.registry,
	}
}

func (b *Builder) NumRows() int { return b.numRows }

// SetMetadata records a diagnostic entry carried with the table.
func (b *Builder) SetMetadata(key, value string) {
	b.meta[key] = value
}

// StartRow reserves the next zeroed row slot.
func (b *Builder) StartRow() error {
	if b.sealed {
		return ErrSealed
	}
	if b.rowBase >= 0 {
		return ErrRowOpen
	}
	if b.schema.NumCols() == 0 {
		return ErrNoColumns
	}
	var off int
	off, b.fixed = grow(b.fixed, b.layout.RowSize)
	clear(b.fixed[off:])
	b.rowBase = off
	return nil
}

// FinishRow commits the open row.
func (b *Builder) FinishRow() error {
	if b.rowBase < 0 {
		return ErrNoOpenRow
	}
	b.rowBase = -1
	b.numRows++
	return nil
}

// fixedAt validates col against the open row and returns its byte offset.
func (b *Builder) fixedAt(col int, want DataType) (int, error) {
	if b.sealed {
		return 0, ErrSealed
	}
	if b.rowBase < 0 {
		return 0, ErrNoOpenRow
	}
	if col < 0 || col >= b.schema.NumCols() {
		return 0, indexErr(b.numRows, col, b.numRows+1, b.schema.NumCols())
	}
	if got := b.schema.Cols[col].Type; got != want {
		return 0, typeErr(col, want, got)
	}
	return b.rowBase + b.layout.Offsets[col], nil
}

// putVariable appends p to the heap and records (position before append,
// len(p)) in the row. Positions are logical, so later heap growth does not
// invalidate them.
func (b *Builder) putVariable(col int, want DataType, p []byte) error {
	off, err := b.fixedAt(col, want)
	if err != nil {
		return err
	}
	if int64(len(b.heap))+int64(len(p)) > math.MaxInt32 {
		return ErrValueTooLarge
	}
	pos := len(b.heap)
	b.heap = appendRaw(b.heap, p)
	writeCell(b.fixed, off, VarCell{Pos: int32(pos), Len: int32(len(p))})
	return nil
}

func (b *Builder) SetInt32(col int, v int32) error {
	off, err := b.fixedAt(col, Int32)
	if err != nil {
		return err
	}
	bx.PutI32At(b.fixed, off, v)
	return nil
}

func (b *Builder) SetInt64(col int, v int64) error {
	off, err := b.fixedAt(col, Int64)
	if err != nil {
		return err
	}
	bx.PutI64At(b.fixed, off, v)
	return nil
}

// SetFloat writes a legacy float column: float32 bits in the first 4 bytes of
// the 8-byte slot, the rest left zero.
func (b *Builder) SetFloat(col int, v float32) error {
	off, err := b.fixedAt(col, Float)
	if err != nil {
		return err
	}
	bx.PutF32At(b.fixed, off, v)
	return nil
}

func (b *Builder) SetDouble(col int, v float64) error {
	off, err := b.fixedAt(col, Double)
	if err != nil {
		return err
	}
	bx.PutF64At(b.fixed, off, v)
	return nil
}

func (b *Builder) SetString(col int, v string) error {
	return b.putVariable(col, String, []byte(v))
}

func (b *Builder) SetBytes(col int, v []byte) error {
	return b.putVariable(col, Bytes, v)
}

func (b *Builder) SetInt32Array(col int, v []int32) error {
	p := make([]byte, 0, 4*len(v))
	for _, x := range v {
		p = bx.AppendI32(p, x)
	}
	return b.putVariable(col, Int32Array, p)
}

func (b *Builder) SetInt64Array(col int, v []int64) error {
	p := make([]byte, 0, 8*len(v))
	for _, x := range v {
		p = bx.AppendI64(p, x)
	}
	return b.putVariable(col, Int64Array, p)
}

func (b *Builder) SetFloatArray(col int, v []float32) error {
	p := make([]byte, 4*len(v))
	for i, x := range v {
		bx.PutF32At(p, i*4, x)
	}
	return b.putVariable(col, FloatArray, p)
}

func (b *Builder) SetDoubleArray(col int, v []float64) error {
	p := make([]byte, 8*len(v))
	for i, x := range v {
		bx.PutF64At(p, i*8, x)
	}
	return b.putVariable(col, DoubleArray, p)
}

func (b *Builder) SetStringArray(col int, v []string) error {
	return b.putVariable(col, StringArray, encodeStringArray(v))
}

// SetObject encodes v with the builder's registry. The value's Go type must
// belong to a registered object kind.
func (b *Builder) SetObject(col int, v any) error {
	if _, err := b.fixedAt(col, Object); err != nil {
		return err
	}
	p, err := b.registry.Encode(v)
	if err != nil {
		return err
	}
	return b.putVariable(col, Object, p)
}

// Set dispatches on the column type; v must be the Go type the matching
// typed setter takes.
func (b *Builder) Set(col int, v any) error {
	if col < 0 || col >= b.schema.NumCols() {
		return indexErr(b.numRows, col, b.numRows+1, b.schema.NumCols())
	}
	t := b.schema.Cols[col].Type
	switch t {
	case Int32:
		return setAs(col, t, v, b.SetInt32)
	case Int64:
		return setAs(col, t, v, b.SetInt64)
	case Float:
		return setAs(col, t, v, b.SetFloat)
	case Double:
		return setAs(col, t, v, b.SetDouble)
	case String:
		return setAs(col, t, v, b.SetString)
	case Bytes:
		return setAs(col, t, v, b.SetBytes)
	case Int32Array:
		return setAs(col, t, v, b.SetInt32Array)
	case Int64Array:
		return setAs(col, t, v, b.SetInt64Array)
	case FloatArray:
		return setAs(col, t, v, b.SetFloatArray)
	case DoubleArray:
		return setAs(col, t, v, b.SetDoubleArray)
	case StringArray:
		return setAs(col, t, v, b.SetStringArray)
	case Object:
		return b.SetObject(col, v)
	}
	return fmt.Errorf("%w: column %d has unknown type %d", ErrTypeMismatch, col, t)
}

func setAs[T any](col int, t DataType, v any, set func(int, T) error) error {
	x, ok := v.(T)
	if !ok {
		return fmt.Errorf("%w: column %d is %s, got %T", ErrTypeMismatch, col, t, v)
	}
	return set(col, x)
}

// AddRow appends a full row of values in schema order. nil leaves a column unset.
func (b *Builder) AddRow(values ...any) error {
	if len(values) != b.schema.NumCols() {
		return fmt.Errorf("%w: %d values for %d columns", ErrSchemaMismatch, len(values), b.schema.NumCols())
	}
	if err := b.StartRow(); err != nil {
		return err
	}
	for col, v := range values {
		if v == nil {
			continue
		}
		if err := b.Set(col, v); err != nil {
			b.abortRow()
			return err
		}
	}
	return b.FinishRow()
}

// abortRow drops the open row's fixed slot. Heap bytes it appended stay
// unreferenced.
func (b *Builder) abortRow() {
	if b.rowBase >= 0 {
		b.fixed = b.fixed[:b.rowBase]
		b.rowBase = -1
	}
}

// AppendRow copies one row of src, moving its variable payloads into this
// builder's heap.
func (b *Builder) AppendRow(src *Table, row int) error {
	if b.sealed {
		return ErrSealed
	}
	if b.rowBase >= 0 {
		return ErrRowOpen
	}
	if !b.schema.Equal(src.schema) {
		return fmt.Errorf("%w: %s vs %s", ErrSchemaMismatch, b.schema, src.schema)
	}
	if row < 0 || row >= src.numRows {
		return indexErr(row, 0, src.numRows, src.NumColumns())
	}
	rs := b.layout.RowSize
	srcBase := row * rs
	off, fixed := grow(b.fixed, rs)
	copy(fixed[off:], src.fixed[srcBase:srcBase+rs])
	b.fixed = fixed
	for _, col := range b.varCols {
		c := readCell(src.fixed, srcBase+b.layout.Offsets[col])
		if c.Len == 0 {
			writeCell(b.fixed, off+b.layout.Offsets[col], VarCell{})
			continue
		}
		if int64(len(b.heap))+int64(c.Len) > math.MaxInt32 {
			b.fixed = b.fixed[:off]
			return ErrValueTooLarge
		}
		pos := len(b.heap)
		b.heap = appendRaw(b.heap, src.heap[c.Pos:c.End()])
		writeCell(b.fixed, off+b.layout.Offsets[col], VarCell{Pos: int32(pos), Len: c.Len})
	}
	b.numRows++
	return nil
}

// AppendTable appends every row of src in order. Both regions are copied in
// bulk, then each variable cell of the copied rows is re-based onto the
// position where src's heap landed. src is not modified.
func (b *Builder) AppendTable(src *Table) error {
	if b.sealed {
		return ErrSealed
	}
	if b.rowBase >= 0 {
		return ErrRowOpen
	}
	if !b.schema.Equal(src.schema) {
		return fmt.Errorf("%w: %s vs %s", ErrSchemaMismatch, b.schema, src.schema)
	}
	if src.numRows == 0 {
		return nil
	}
	base := len(b.heap)
	if int64(base)+int64(len(src.heap)) > math.MaxInt32 {
		return ErrValueTooLarge
	}
	fixedStart := len(b.fixed)
	b.fixed = appendRaw(b.fixed, src.fixed)
	b.heap = appendRaw(b.heap, src.heap)

	rs := b.layout.RowSize
	for r := 0; r < src.numRows; r++ {
		rowBase := fixedStart + r*rs
		for _, col := range b.varCols {
			off := rowBase + b.layout.Offsets[col]
			c, err := RebaseCell(readCell(b.fixed, off), base)
			if err != nil {
				b.fixed = b.fixed[:fixedStart]
				b.heap = b.heap[:base]
				return err
			}
			writeCell(b.fixed, off, c)
		}
	}
	b.numRows += src.numRows
	return nil
}

// Seal returns the immutable table. A row left open is discarded. The
// builder cannot be used afterwards.
func (b *Builder) Seal() *Table {
	b.abortRow()
	b.sealed = true
	return &Table{
		schema:   b.schema,
		layout:   b.layout,
		numRows:  b.numRows,
		fixed:    slices.Clip(b.fixed[:b.numRows*b.layout.RowSize]),
		heap:     slices.Clip(b.heap),
		meta:     b.meta.Clone(),
		registry: b.registry,
	}
}

// ---- growable buffers (amortized doubling) ----

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 64 {
			c = 64
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

func appendRaw(buf []byte, chunk []byte) []byte {
	off, buf := grow(buf, len(chunk))
	copy(buf[off:], chunk)
	return buf
}
