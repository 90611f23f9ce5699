package bx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLittleEndianReadWrite verifies that the signed and unsigned writers
// lay bytes out least-significant first and read back the same value.
func TestLittleEndianReadWrite(t *testing.T) {
	// ---- I32 ----
	{
		b := make([]byte, 4)
		var v int32 = 0x01020304

		PutI32(b, v)
		assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, b)
		assert.Equal(t, v, I32(b))
	}

	// ---- negative I32 ----
	{
		b := make([]byte, 4)
		var v int32 = -123456

		PutI32(b, v)
		assert.Equal(t, v, I32(b))
	}

	// ---- I64 ----
	{
		b := make([]byte, 8)
		var v int64 = 0x0102030405060708

		PutI64(b, v)
		assert.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, b)
		assert.Equal(t, v, I64(b))
	}
}

func TestFloats(t *testing.T) {
	b := make([]byte, 8)

	PutF64(b, math.Pi)
	assert.Equal(t, math.Pi, F64(b))

	PutF32(b, float32(2.5))
	assert.Equal(t, float32(2.5), F32(b))
}

// TestAt verifies the *At variants that work with an offset into a larger
// buffer (the pattern used for row cells).
func TestAt(t *testing.T) {
	buf := make([]byte, 32)

	PutI32At(buf, 0, -7)
	PutI64At(buf, 4, 1<<40)
	PutF64At(buf, 12, -0.25)
	PutF32At(buf, 20, 1.5)

	assert.Equal(t, int32(-7), I32At(buf, 0))
	assert.Equal(t, int64(1<<40), I64At(buf, 4))
	assert.Equal(t, -0.25, F64At(buf, 12))
	assert.Equal(t, float32(1.5), F32At(buf, 20))
}

func TestAppend(t *testing.T) {
	var out []byte
	out = AppendI32(out, 3)
	out = AppendString(out, "abc")
	out = AppendBytes(out, []byte{9})
	out = AppendI64(out, -1)

	assert.Equal(t, int32(3), I32At(out, 0))
	assert.Equal(t, int32(3), I32At(out, 4))
	assert.Equal(t, "abc", string(out[8:11]))
	assert.Equal(t, int32(1), I32At(out, 11))
	assert.Equal(t, byte(9), out[15])
	assert.Equal(t, int64(-1), I64At(out, 16))
	assert.Len(t, out, 24)
}
