package h2stream

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/cloudpeek/h2stream/internal/wire"
)

const (
	// DefaultFrameSize is the fixed 9-byte size of a frame header.
	// http://httpwg.org/specs/rfc7540.html#FrameHeader
	DefaultFrameSize = 9

	// defaultMaxLen is the frame size assumed before SETTINGS negotiates a
	// different SETTINGS_MAX_FRAME_SIZE.
	// https://httpwg.org/specs/rfc7540.html#SETTINGS_MAX_FRAME_SIZE
	defaultMaxLen = 1 << 14
)

var frameHeaderPool = sync.Pool{
	New: func() interface{} {
		return &FrameHeader{}
	},
}

// FrameHeader is the 9-byte frame header plus its decoded/to-be-encoded
// payload (https://tools.ietf.org/html/rfc7540#section-4.1).
//
// Use AcquireFrameHeader/ReleaseFrameHeader instead of constructing one
// directly. A FrameHeader must not be used concurrently.
type FrameHeader struct {
	length int        // 24 bits
	kind   FrameType  // 8 bits
	flags  FrameFlags // 8 bits
	stream uint32     // 31 bits

	maxLen uint32

	rawHeader [DefaultFrameSize]byte
	payload   []byte

	fr Frame
}

// AcquireFrameHeader gets a FrameHeader from the pool.
func AcquireFrameHeader() *FrameHeader {
	fr := frameHeaderPool.Get().(*FrameHeader)
	fr.Reset()
	return fr
}

// ReleaseFrameHeader releases fr's Body to its pool and returns fr to the pool.
func ReleaseFrameHeader(fr *FrameHeader) {
	ReleaseFrame(fr.Body())
	frameHeaderPool.Put(fr)
}

// Reset resets header values, ready for reuse.
func (frh *FrameHeader) Reset() {
	frh.kind = 0
	frh.flags = 0
	frh.stream = 0
	frh.length = 0
	frh.maxLen = defaultMaxLen
	frh.fr = nil
	frh.payload = frh.payload[:0]
}

// Type returns the frame type (https://httpwg.org/specs/rfc7540.html#Frame_types).
func (frh *FrameHeader) Type() FrameType {
	return frh.kind
}

// Flags returns the frame's flag byte.
func (frh *FrameHeader) Flags() FrameFlags {
	return frh.flags
}

// SetFlags overwrites the frame's flag byte.
func (frh *FrameHeader) SetFlags(flags FrameFlags) {
	frh.flags = flags
}

// Stream returns the stream id of the current frame.
func (frh *FrameHeader) Stream() uint32 {
	return frh.stream
}

// SetStream sets the stream id on the current frame.
//
// This does not mask the reserved high bit, so callers that need RFC 7540's
// "the entire field including the reserved bit" leniency can round-trip it.
func (frh *FrameHeader) SetStream(stream uint32) {
	frh.stream = stream
}

// Len returns the payload length.
func (frh *FrameHeader) Len() int {
	return frh.length
}

// MaxLen returns the negotiated max payload length used to bound reads.
func (frh *FrameHeader) MaxLen() uint32 {
	return frh.maxLen
}

// SetMaxLen sets the negotiated max payload length (mirrors the local
// SETTINGS_MAX_FRAME_SIZE advertised to the peer).
func (frh *FrameHeader) SetMaxLen(max uint32) {
	frh.maxLen = max
}

func (frh *FrameHeader) parseValues(header []byte) {
	frh.length = int(wire.BytesToUint24(header[:3]))
	frh.kind = FrameType(header[3])
	frh.flags = FrameFlags(header[4])
	frh.stream = wire.BytesToUint32(header[5:]) & wire.StreamIDMask
}

func (frh *FrameHeader) parseHeader(header []byte) {
	wire.Uint24ToBytes(header[:3], uint32(frh.length))
	header[3] = byte(frh.kind)
	header[4] = byte(frh.flags)
	wire.Uint32ToBytes(header[5:], frh.stream)
}

// ReadFrameFrom reads one frame off br using the default max frame size.
func ReadFrameFrom(br *bufio.Reader) (*FrameHeader, error) {
	return ReadFrameFromWithSize(br, defaultMaxLen)
}

// ReadFrameFromWithSize reads one frame off br, rejecting payloads larger
// than max with ErrPayloadExceeds.
//
// A *Error returned here came from the frame's own Deserialize: the header
// fields (Type, Stream) were parsed successfully and fr is still usable, so
// the caller can decide whether that's a stream or connection error and
// must release fr itself. Any other error is a transport-level failure;
// fr is released internally and nil is returned.
func ReadFrameFromWithSize(br *bufio.Reader, max uint32) (*FrameHeader, error) {
	fr := AcquireFrameHeader()
	fr.maxLen = max

	_, err := fr.ReadFrom(br)
	if err != nil {
		if _, ok := err.(*Error); ok {
			return fr, err
		}
		if fr.Body() != nil {
			ReleaseFrameHeader(fr)
		} else {
			frameHeaderPool.Put(fr)
		}
		fr = nil
	}

	return fr, err
}

// ReadFrom reads a frame header and payload from br, then dispatches to the
// type-specific Deserialize. It returns bytes read and/or error.
//
// Unlike io.ReaderFrom this does not read until io.EOF.
func (frh *FrameHeader) ReadFrom(br *bufio.Reader) (int64, error) {
	header, err := br.Peek(DefaultFrameSize)
	if err != nil {
		return -1, err
	}

	if _, err := br.Discard(DefaultFrameSize); err != nil {
		return -1, err
	}

	rn := int64(DefaultFrameSize)

	frh.parseValues(header)
	if err := frh.checkLen(); err != nil {
		return rn, err
	}

	if frh.kind > FrameContinuation {
		if _, err := br.Discard(frh.length); err != nil {
			return rn, err
		}
		return rn, ErrUnknownFrameType
	}

	frh.fr = AcquireFrame(frh.kind)

	if frh.length > 0 {
		n := frh.length
		if n < 0 {
			panic(fmt.Sprintf("frame length underflowed: %d", frh.length))
		}

		frh.payload = wire.Resize(frh.payload, n)

		read, err := io.ReadFull(br, frh.payload[:n])
		rn += int64(read)
		if err != nil {
			return rn, err
		}
	}

	return rn, frh.fr.Deserialize(frh)
}

// WriteTo serializes the frame's Body and writes header+payload to w.
func (frh *FrameHeader) WriteTo(w *bufio.Writer) (wb int64, err error) {
	frh.fr.Serialize(frh)

	frh.length = len(frh.payload)
	frh.parseHeader(frh.rawHeader[:])

	n, err := w.Write(frh.rawHeader[:])
	if err == nil {
		wb += int64(n)

		n, err = w.Write(frh.payload)
		wb += int64(n)
	}

	return wb, err
}

// Body returns the type-specific frame payload.
func (frh *FrameHeader) Body() Frame {
	return frh.fr
}

// SetBody attaches fr as this header's payload, adopting its Type.
func (frh *FrameHeader) SetBody(fr Frame) {
	if fr == nil {
		panic("h2stream: FrameHeader.SetBody called with a nil Frame")
	}

	frh.kind = fr.Type()
	frh.fr = fr
}

func (frh *FrameHeader) setPayload(payload []byte) {
	frh.payload = append(frh.payload[:0], payload...)
	frh.length = len(frh.payload)
}

func (frh *FrameHeader) checkLen() error {
	if frh.maxLen != 0 && frh.length > int(frh.maxLen) {
		return ErrPayloadExceeds
	}
	return nil
}

func (frh *FrameHeader) appendCheckingLen(dst, src []byte) (n int, err error) {
	n = len(src)
	if frh.maxLen > 0 && uint32(n+len(dst)) > frh.maxLen {
		err = ErrPayloadExceeds
		return
	}

	frh.payload = append(dst, src...)
	frh.length = len(frh.payload)
	return
}
