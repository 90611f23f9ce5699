package datatable

import (
	"errors"
	"fmt"
)

var (
	ErrCorruptPayload     = errors.New("datatable: corrupt payload")
	ErrUnsupportedVersion = errors.New("datatable: unsupported format version")
	ErrSchemaMismatch     = errors.New("datatable: schema mismatch")
	ErrIndexOutOfRange    = errors.New("datatable: index out of range")
	ErrTypeMismatch       = errors.New("datatable: type mismatch")
	ErrNoOpenRow          = errors.New("datatable: no open row")
	ErrRowOpen            = errors.New("datatable: previous row not finished")
	ErrSealed             = errors.New("datatable: builder already sealed")
	ErrUnknownObjectType  = errors.New("datatable: unknown object type")
	ErrValueTooLarge      = errors.New("datatable: value exceeds int32 length")
	ErrNoColumns          = errors.New("datatable: rows need at least one column")
)

// CorruptError describes where a payload stopped making sense.
// It unwraps to ErrCorruptPayload.
type CorruptError struct {
	Data []byte
	Off  int
	Msg  string
}

func corruptf(data []byte, off int, format string, args ...any) error {
	return &CorruptError{Data: data, Off: off, Msg: fmt.Sprintf(format, args...)}
}

func (e *CorruptError) Unwrap() error {
	return ErrCorruptPayload
}

func (e *CorruptError) Error() string {
	const prefixLen = 32
	n := len(e.Data)
	if n <= prefixLen {
		return fmt.Sprintf("%v at offset %d: %s: (%d) %x", ErrCorruptPayload, e.Off, e.Msg, n, e.Data)
	}
	return fmt.Sprintf("%v at offset %d: %s: (%d) %x...", ErrCorruptPayload, e.Off, e.Msg, n, e.Data[:prefixLen])
}

func indexErr(row, col, numRows, numCols int) error {
	return fmt.Errorf("%w: cell (%d,%d) outside %dx%d", ErrIndexOutOfRange, row, col, numRows, numCols)
}

func typeErr(col int, want, got DataType) error {
	return fmt.Errorf("%w: column %d is %s, not %s", ErrTypeMismatch, col, got, want)
}
