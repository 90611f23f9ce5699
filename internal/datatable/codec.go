package datatable

import (
	"fmt"
	"math"
	"slices"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/tuannm99/novagather/internal/alias/bx"
)

// Frame format versions.
//
//	v2: [version][numRows][numColumns]
//	    numColumns × [nameLen][name][typeTag u8]
//	    numColumns × [offset] [rowSize]
//	    [fixedLen][fixed] [heapLen][heap]
//	    [entryCount] entryCount × [keyLen][key][valLen][val]
//	v3: v2 followed by xxhash64 of every preceding byte.
//
// All integers are little-endian int32 unless noted.
const (
	VersionV2 int32 = 2
	VersionV3 int32 = 3

	DefaultVersion = VersionV2

	checksumSize = 8
)

// SupportedVersion reports whether Decode understands v.
func SupportedVersion(v int32) bool {
	return v == VersionV2 || v == VersionV3
}

// Encode serializes a sealed table into one contiguous frame.
func Encode(t *Table, opts ...Option) ([]byte, error) {
	o := buildOptions(opts)
	if !SupportedVersion(o.version) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, o.version)
	}
	if len(t.fixed) > math.MaxInt32 || len(t.heap) > math.MaxInt32 {
		return nil, ErrValueTooLarge
	}

	keys := t.meta.Keys()
	size := 12 + 4*(t.schema.NumCols()+1) + 8 + len(t.fixed) + len(t.heap) + 4
	for _, c := range t.schema.Cols {
		size += 5 + len(c.Name)
	}
	for _, k := range keys {
		size += 8 + len(k) + len(t.meta[k])
	}
	if o.version == VersionV3 {
		size += checksumSize
	}

	out := make([]byte, 0, size)
	out = bx.AppendI32(out, o.version)
	out = bx.AppendI32(out, int32(t.numRows))
	out = bx.AppendI32(out, int32(t.schema.NumCols()))
	for _, c := range t.schema.Cols {
		out = bx.AppendString(out, c.Name)
		out = append(out, byte(c.Type))
	}
	for _, off := range t.layout.Offsets {
		out = bx.AppendI32(out, int32(off))
	}
	out = bx.AppendI32(out, int32(t.layout.RowSize))
	out = bx.AppendBytes(out, t.fixed)
	out = bx.AppendBytes(out, t.heap)
	out = bx.AppendI32(out, int32(len(keys)))
	for _, k := range keys {
		out = bx.AppendString(out, k)
		out = bx.AppendString(out, t.meta[k])
	}
	if o.version == VersionV3 {
		out = bx.AppendU64(out, xxhash.Sum64(out))
	}
	return out, nil
}

// frameReader walks a payload and refuses to slice past its end.
type frameReader struct {
	buf []byte
	off int
}

func (r *frameReader) remaining() int { return len(r.buf) - r.off }

func (r *frameReader) i32(what string) (int32, error) {
	if r.remaining() < 4 {
		return 0, corruptf(r.buf, r.off, "%s truncated", what)
	}
	v := bx.I32At(r.buf, r.off)
	r.off += 4
	return v, nil
}

// count reads a non-negative int32 that announces count items of at least
// minItem bytes each.
func (r *frameReader) count(what string, minItem int) (int, error) {
	v, err := r.i32(what)
	if err != nil {
		return 0, err
	}
	if v < 0 || (minItem > 0 && int(v) > r.remaining()/minItem) {
		return 0, corruptf(r.buf, r.off-4, "%s %d exceeds payload", what, v)
	}
	return int(v), nil
}

// bytes reads a length prefix and returns that many bytes, without copying.
func (r *frameReader) bytes(what string) ([]byte, error) {
	n, err := r.count(what+" length", 1)
	if err != nil {
		return nil, err
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p, nil
}

func (r *frameReader) u8(what string) (uint8, error) {
	if r.remaining() < 1 {
		return 0, corruptf(r.buf, r.off, "%s truncated", what)
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// Decode reconstitutes a read-only table. The returned table owns copies of
// its buffers; buf may be reused by the caller afterwards.
func Decode(buf []byte, opts ...Option) (*Table, error) {
	o := buildOptions(opts)
	if len(buf) < 4 {
		return nil, corruptf(buf, 0, "version truncated")
	}
	version := bx.I32(buf)
	if !SupportedVersion(version) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	body := buf
	if version == VersionV3 {
		if len(buf) < 4+checksumSize {
			return nil, corruptf(buf, 4, "checksum truncated")
		}
		body = buf[:len(buf)-checksumSize]
		want := bx.U64(buf[len(body):])
		if got := xxhash.Sum64(body); got != want {
			return nil, corruptf(buf, len(body), "checksum %016x, want %016x", got, want)
		}
	}

	r := &frameReader{buf: body, off: 4}
	numRows, err := r.count("row count", 0)
	if err != nil {
		return nil, err
	}
	numCols, err := r.count("column count", 5)
	if err != nil {
		return nil, err
	}
	if numCols == 0 && numRows > 0 {
		return nil, corruptf(body, r.off-4, "%d rows without columns", numRows)
	}

	cols := make([]Column, numCols)
	for i := range cols {
		name, err := r.bytes("column name")
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(name) {
			return nil, corruptf(body, r.off-len(name), "column %d name is not UTF-8", i)
		}
		tag, err := r.u8("column type")
		if err != nil {
			return nil, err
		}
		if !DataType(tag).Valid() {
			return nil, corruptf(body, r.off-1, "column %d has unknown type tag %d", i, tag)
		}
		cols[i] = Column{Name: string(name), Type: DataType(tag)}
	}
	schema := Schema{Cols: cols}
	layout := ComputeLayout(schema)

	for i := 0; i < numCols; i++ {
		off, err := r.i32("column offset")
		if err != nil {
			return nil, err
		}
		if int(off) != layout.Offsets[i] {
			return nil, corruptf(body, r.off-4, "column %d offset %d, want %d", i, off, layout.Offsets[i])
		}
	}
	rowSize, err := r.i32("row size")
	if err != nil {
		return nil, err
	}
	if int(rowSize) != layout.RowSize {
		return nil, corruptf(body, r.off-4, "row size %d, want %d", rowSize, layout.RowSize)
	}

	fixed, err := r.bytes("fixed region")
	if err != nil {
		return nil, err
	}
	if int64(numRows)*int64(layout.RowSize) != int64(len(fixed)) {
		return nil, corruptf(body, r.off-len(fixed), "fixed region is %d bytes, want %d rows × %d",
			len(fixed), numRows, layout.RowSize)
	}
	heap, err := r.bytes("variable heap")
	if err != nil {
		return nil, err
	}

	entries, err := r.count("metadata entry count", 8)
	if err != nil {
		return nil, err
	}
	meta := make(Metadata, entries)
	for i := 0; i < entries; i++ {
		k, err := r.bytes("metadata key")
		if err != nil {
			return nil, err
		}
		v, err := r.bytes("metadata value")
		if err != nil {
			return nil, err
		}
		meta[string(k)] = string(v)
	}
	if r.remaining() != 0 {
		return nil, corruptf(body, r.off, "%d trailing bytes", r.remaining())
	}

	if err := checkCells(schema, layout, numRows, fixed, len(heap)); err != nil {
		return nil, err
	}

	return &Table{
		schema:   schema,
		layout:   layout,
		numRows:  numRows,
		fixed:    slices.Clone(fixed),
		heap:     slices.Clone(heap),
		meta:     meta,
		registry: o.registry,
	}, nil
}

// checkCells verifies every variable cell addresses bytes inside the heap
// and that numeric arrays hold a whole number of elements.
func checkCells(s Schema, l RowLayout, numRows int, fixed []byte, heapLen int) error {
	for col, c := range s.Cols {
		if !c.Type.IsVariable() {
			continue
		}
		elem := 1
		switch c.Type {
		case Int32Array, FloatArray:
			elem = 4
		case Int64Array, DoubleArray:
			elem = 8
		}
		for row := 0; row < numRows; row++ {
			off := row*l.RowSize + l.Offsets[col]
			cell := readCell(fixed, off)
			if !cell.inHeap(heapLen) {
				return corruptf(fixed, off, "cell (%d,%d) = [%d,+%d) outside heap of %d bytes",
					row, col, cell.Pos, cell.Len, heapLen)
			}
			if int(cell.Len)%elem != 0 {
				return corruptf(fixed, off, "cell (%d,%d) length %d is not a multiple of %d",
					row, col, cell.Len, elem)
			}
		}
	}
	return nil
}
