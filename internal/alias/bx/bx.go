// stand for bytes helper
//
// Every binary structure in novagather (fixed row region, frame headers,
// variable cells) is little-endian and goes through these helpers.
package bx

import (
	"encoding/binary"
	"math"
)

var LE = binary.LittleEndian

// --- read ---
func U8(b []byte) uint8   { return b[0] }
func U32(b []byte) uint32 { return LE.Uint32(b) }
func U64(b []byte) uint64 { return LE.Uint64(b) }
func I32(b []byte) int32  { return int32(U32(b)) }
func I64(b []byte) int64  { return int64(U64(b)) }

func F32(b []byte) float32 { return math.Float32frombits(U32(b)) }
func F64(b []byte) float64 { return math.Float64frombits(U64(b)) }

// --- write ---
func PutU32(b []byte, v uint32) { LE.PutUint32(b, v) }
func PutU64(b []byte, v uint64) { LE.PutUint64(b, v) }
func PutI32(b []byte, v int32)  { PutU32(b, uint32(v)) }
func PutI64(b []byte, v int64)  { PutU64(b, uint64(v)) }

func PutF32(b []byte, v float32) { PutU32(b, math.Float32bits(v)) }
func PutF64(b []byte, v float64) { PutU64(b, math.Float64bits(v)) }

// --- At (offset) ---
func I32At(b []byte, off int) int32         { return I32(b[off:]) }
func I64At(b []byte, off int) int64         { return I64(b[off:]) }
func F32At(b []byte, off int) float32       { return F32(b[off:]) }
func F64At(b []byte, off int) float64       { return F64(b[off:]) }
func PutI32At(b []byte, off int, v int32)   { PutI32(b[off:], v) }
func PutI64At(b []byte, off int, v int64)   { PutI64(b[off:], v) }
func PutF32At(b []byte, off int, v float32) { PutF32(b[off:], v) }
func PutF64At(b []byte, off int, v float64) { PutF64(b[off:], v) }

// --- append (stream encoders) ---
func AppendI32(dst []byte, v int32) []byte  { return LE.AppendUint32(dst, uint32(v)) }
func AppendI64(dst []byte, v int64) []byte  { return LE.AppendUint64(dst, uint64(v)) }
func AppendU64(dst []byte, v uint64) []byte { return LE.AppendUint64(dst, v) }

// AppendString writes an i32 length prefix followed by the raw bytes of s.
func AppendString(dst []byte, s string) []byte {
	dst = AppendI32(dst, int32(len(s)))
	return append(dst, s...)
}

// AppendBytes writes an i32 length prefix followed by p.
func AppendBytes(dst []byte, p []byte) []byte {
	dst = AppendI32(dst, int32(len(p)))
	return append(dst, p...)
}
