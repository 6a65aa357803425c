// Package wire holds the fixed-width big-endian codec helpers shared by
// every HTTP/2 frame type. It has no notion of frames, streams or state —
// just bytes in, bytes out.
package wire

import (
	"github.com/valyala/fastrand"
)

// StreamIDMask clears the reserved high bit of a 31-bit stream identifier
// field (https://tools.ietf.org/html/rfc7540#section-4.1).
const StreamIDMask = 1<<31 - 1

func Uint24ToBytes(b []byte, n uint32) {
	_ = b[2]
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

func BytesToUint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func Uint32ToBytes(b []byte, n uint32) {
	_ = b[3]
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

func BytesToUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func AppendUint32Bytes(dst []byte, n uint32) []byte {
	return append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func AppendUint16Bytes(dst []byte, n uint16) []byte {
	return append(dst, byte(n>>8), byte(n))
}

func BytesToUint16(b []byte) uint16 {
	_ = b[1]
	return uint16(b[0])<<8 | uint16(b[1])
}

func Resize(b []byte, neededLen int) []byte {
	b = b[:cap(b)]
	if n := neededLen - len(b); n > 0 {
		b = append(b, make([]byte, n)...)
	}
	return b[:neededLen]
}

// CutPadding validates and strips a PADDED-flag payload: one pad-length
// byte, the real payload, then pad_len zero bytes.
//
// https://tools.ietf.org/html/rfc7540#section-6.1 (shared by DATA, HEADERS
// and PUSH_PROMISE).
func CutPadding(payload []byte) ([]byte, int, error) {
	if len(payload) == 0 {
		return nil, 0, ErrPadding
	}

	pad := int(payload[0])
	rest := payload[1:]

	if pad >= len(rest) {
		return nil, 0, ErrPadding
	}

	data, padding := rest[:len(rest)-pad], rest[len(rest)-pad:]
	for _, b := range padding {
		if b != 0 {
			return nil, 0, ErrPadding
		}
	}

	return data, pad, nil
}

// AddPadding prepends a pad-length byte to b and appends that many zero
// padding bytes, with the length picked at random in 1..255 using fastrand
// (as the teacher's http2utils.AddPadding does).
func AddPadding(b []byte) []byte {
	n := int(fastrand.Uint32n(255)) + 1
	nn := len(b)

	b = Resize(b, nn+n+1)
	copy(b[1:], b[:nn])
	b[0] = uint8(n)

	padding := b[nn+1 : nn+1+n]
	for i := range padding {
		padding[i] = 0
	}

	return b
}
