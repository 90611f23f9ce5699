package gatherwire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

const (
	// MaxFrameSize limits memory usage on malformed/hostile input.
	MaxFrameSize = 8 << 20 // 8 MiB

	flagSnappy uint8 = 1 << 0

	// payload header: request id + flags
	payloadHeaderSize = 8 + 1
)

var ErrFrameTooLarge = errors.New("gatherwire: frame too large")

func readRaw(r io.Reader, limit int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, fmt.Errorf("gatherwire: empty frame")
	}
	if int64(n) > int64(limit) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limit)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeRaw(w io.Writer, limit int, parts ...[]byte) error {
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	if total == 0 {
		return fmt.Errorf("gatherwire: empty frame")
	}
	if total > limit {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, total, limit)
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(total))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for _, p := range parts {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads a single length-prefixed JSON frame.
func ReadFrame(r io.Reader, v any) error {
	buf, err := readRaw(r, MaxFrameSize)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("gatherwire: bad json: %w", err)
	}
	return nil
}

// WriteFrame writes v as a length-prefixed JSON frame.
func WriteFrame(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gatherwire: marshal: %w", err)
	}
	return writeRaw(w, MaxFrameSize, b)
}

// WritePayload writes an encoded DataTable answering request id:
//
//	[len u32][id u64][flags u8][payload]
//
// With compress the payload is snappy block-compressed. limit bounds the
// frame as written.
func WritePayload(w io.Writer, id uint64, payload []byte, compress bool, limit int) error {
	var hdr [payloadHeaderSize]byte
	binary.BigEndian.PutUint64(hdr[:8], id)
	if compress {
		hdr[8] = flagSnappy
		payload = snappy.Encode(nil, payload)
	}
	return writeRaw(w, limit, hdr[:], payload)
}

// ReadPayload reads a frame written by WritePayload and returns the request
// id and the uncompressed payload. limit bounds both the frame and the
// uncompressed size.
func ReadPayload(r io.Reader, limit int) (uint64, []byte, error) {
	buf, err := readRaw(r, limit)
	if err != nil {
		return 0, nil, err
	}
	if len(buf) < payloadHeaderSize {
		return 0, nil, fmt.Errorf("gatherwire: short payload frame: %d bytes", len(buf))
	}
	id := binary.BigEndian.Uint64(buf[:8])
	flags := buf[8]
	body := buf[payloadHeaderSize:]

	if flags&^flagSnappy != 0 {
		return id, nil, fmt.Errorf("gatherwire: unknown payload flags %#x", flags)
	}
	if flags&flagSnappy == 0 {
		return id, body, nil
	}
	n, err := snappy.DecodedLen(body)
	if err != nil {
		return id, nil, fmt.Errorf("gatherwire: snappy: %w", err)
	}
	if n > limit {
		return id, nil, fmt.Errorf("%w: %d uncompressed > %d", ErrFrameTooLarge, n, limit)
	}
	out, err := snappy.Decode(nil, body)
	if err != nil {
		return id, nil, fmt.Errorf("gatherwire: snappy: %w", err)
	}
	return id, out, nil
}
