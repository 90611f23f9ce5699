package datatable

// RowLayout is the byte offset of every column inside one fixed-size row.
type RowLayout struct {
	Offsets []int
	RowSize int
}

// cellWidth is the number of bytes a column occupies in the fixed region.
//
// Float is 8 bytes wide even though only 4 are written. Payloads of the
// current format versions depend on it; changing it needs a version bump.
func cellWidth(t DataType) int {
	switch t {
	case Int32:
		return 4
	case Int64, Float, Double:
		return 8
	default:
		// variable types: (position int32 | length int32)
		return 8
	}
}

// ComputeColumnOffsets fills offsets with each column's position in the row
// and returns the row size. len(offsets) must equal s.NumCols().
func ComputeColumnOffsets(s Schema, offsets []int) int {
	if len(offsets) != s.NumCols() {
		panic("datatable: offsets length does not match column count")
	}
	rowSize := 0
	for i, c := range s.Cols {
		offsets[i] = rowSize
		rowSize += cellWidth(c.Type)
	}
	return rowSize
}

func ComputeLayout(s Schema) RowLayout {
	offsets := make([]int, s.NumCols())
	return RowLayout{Offsets: offsets, RowSize: ComputeColumnOffsets(s, offsets)}
}

// Equal reports whether both layouts place every column at the same offset.
func (l RowLayout) Equal(o RowLayout) bool {
	if l.RowSize != o.RowSize || len(l.Offsets) != len(o.Offsets) {
		return false
	}
	for i := range l.Offsets {
		if l.Offsets[i] != o.Offsets[i] {
			return false
		}
	}
	return true
}
