package websocket

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	finBit  = 0x80
	maskBit = 0x80

	// MaxFramePayload is the maximum payload size this server accepts in
	// a single frame, to bound the allocation for a decoded payload.
	MaxFramePayload = 1 << 20 // 1 MiB.

	// maxControlPayload is the maximum payload size of control frames, as
	// defined in https://datatracker.ietf.org/doc/html/rfc6455#section-5.5.
	maxControlPayload = 125
)

var (
	// ErrMissingMask indicates a client frame without the mask bit.
	// "The server MUST close the connection upon receiving a
	// frame that is not masked" (RFC 6455, section 5.1).
	ErrMissingMask = errors.New("client frame is not masked")
	// ErrTruncated indicates that the input ended before
	// the frame's declared length was fully read.
	ErrTruncated = errors.New("truncated frame")
	// ErrInvalidLength indicates an unusable declared payload
	// length (above [MaxFramePayload], or not a valid int64).
	ErrInvalidLength = errors.New("invalid frame payload length")
)

// Frame is a single WebSocket frame, based on the base framing protocol in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.2. The payload is
// always in the clear: [ReadFrame] unmasks inbound payloads, and
// [Frame.Bytes] masks outbound ones if and only if Masked is set.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// ReadFrame reads and decodes a single client frame. It requires the mask
// bit to be set, per the server-side rule in RFC 6455 section 5.1, but it
// does not reject unknown opcodes - that is a session-layer decision.
//
// A connection that ends cleanly before the first header byte is reported
// as [io.EOF]; input that ends mid-frame is reported as [ErrTruncated].
func ReadFrame(r io.Reader) (Frame, error) {
	var f Frame

	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return f, io.EOF
		}
		return f, fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	f.Fin = hdr[0]&finBit != 0
	f.Opcode = Opcode(hdr[0] & 0x0F)
	f.Masked = hdr[1]&maskBit != 0

	length := int64(hdr[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return f, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return f, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		n := binary.BigEndian.Uint64(ext[:])
		if n > math.MaxInt64 {
			return f, ErrInvalidLength
		}
		length = int64(n)
	}
	if length > MaxFramePayload {
		return f, ErrInvalidLength
	}

	if !f.Masked {
		return f, ErrMissingMask
	}
	if _, err := io.ReadFull(r, f.MaskKey[:]); err != nil {
		return f, fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	f.Payload = make([]byte, length)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return f, fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	mask(f.Payload, f.MaskKey)

	return f, nil
}

// Bytes encodes the frame for the wire. The FIN bit is always set, because
// this server never fragments outbound messages, and the payload length is
// encoded with the minimal-width scheme (7, 16, or 64 bits).
func (f Frame) Bytes() []byte {
	buf := make([]byte, 0, 14+len(f.Payload))
	buf = append(buf, finBit|byte(f.Opcode)&0x0F)

	var b1 byte
	if f.Masked {
		b1 = maskBit
	}
	switch n := len(f.Payload); {
	case n <= 125:
		buf = append(buf, b1|byte(n))
	case n <= math.MaxUint16:
		buf = append(buf, b1|126)
		buf = binary.BigEndian.AppendUint16(buf, uint16(n))
	default:
		buf = append(buf, b1|127)
		buf = binary.BigEndian.AppendUint64(buf, uint64(n))
	}

	if !f.Masked {
		return append(buf, f.Payload...)
	}

	buf = append(buf, f.MaskKey[:]...)
	start := len(buf)
	buf = append(buf, f.Payload...)
	mask(buf[start:], f.MaskKey)
	return buf
}

// mask XORs the buffer in-place with the 4-byte masking key,
// per https://datatracker.ietf.org/doc/html/rfc6455#section-5.3.
// Masking and unmasking are the same operation.
func mask(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i%4]
	}
}
