package datatable

import (
	"math"

	"github.com/tuannm99/novagather/internal/alias/bx"
)

// VarCell is the fixed-region entry of a variable-size value: where the
// payload starts in the table's heap and how many bytes it spans.
type VarCell struct {
	Pos int32
	Len int32
}

func readCell(fixed []byte, off int) VarCell {
	return VarCell{Pos: bx.I32At(fixed, off), Len: bx.I32At(fixed, off+4)}
}

func writeCell(fixed []byte, off int, c VarCell) {
	bx.PutI32At(fixed, off, c.Pos)
	bx.PutI32At(fixed, off+4, c.Len)
}

// End is the heap offset one past the payload.
func (c VarCell) End() int64 { return int64(c.Pos) + int64(c.Len) }

// RebaseCell moves a cell whose source heap was copied into a target heap
// starting at base. Empty cells stay (0,0) so unset values remain unset.
func RebaseCell(c VarCell, base int) (VarCell, error) {
	if c.Len == 0 {
		return VarCell{}, nil
	}
	pos := int64(c.Pos) + int64(base)
	if base < 0 || pos > math.MaxInt32 || pos+int64(c.Len) > math.MaxInt32 {
		return VarCell{}, ErrValueTooLarge
	}
	return VarCell{Pos: int32(pos), Len: c.Len}, nil
}

// inHeap reports whether c addresses bytes within a heap of heapLen bytes.
func (c VarCell) inHeap(heapLen int) bool {
	return c.Pos >= 0 && c.Len >= 0 && c.End() <= int64(heapLen)
}
