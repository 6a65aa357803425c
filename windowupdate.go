package h2stream

import (
	"fmt"
	"sync"

	"github.com/cloudpeek/h2stream/internal/wire"
)

var _ Frame = &WindowUpdate{}

var windowUpdatePool = sync.Pool{
	New: func() interface{} { return &WindowUpdate{} },
}

// AcquireWindowUpdate returns a pooled, reset WindowUpdate frame.
func AcquireWindowUpdate() *WindowUpdate {
	return windowUpdatePool.Get().(*WindowUpdate)
}

// WindowUpdate grants additional flow-control credit, either to a single
// stream (nonzero frame stream id) or to the whole connection (stream id 0).
//
// https://tools.ietf.org/html/rfc7540#section-6.9
type WindowUpdate struct {
	increment uint32 // 1..2^31-1
}

func (wu *WindowUpdate) Type() FrameType {
	return FrameWindowUpdate
}

func (wu *WindowUpdate) Reset() {
	wu.increment = 0
}

func (wu *WindowUpdate) CopyTo(w *WindowUpdate) {
	w.increment = wu.increment
}

func (wu *WindowUpdate) Increment() uint32 {
	return wu.increment
}

// SetIncrement sets the window increment. A value outside 1..2^31-1 can
// only come from a programmer error on the outbound path (an inbound 0
// increment is validated and rejected as a protocol error at the
// connection layer instead, per RFC 7540 section 6.9), so it panics rather
// than silently masking to 31 bits.
func (wu *WindowUpdate) SetIncrement(increment uint32) {
	if increment == 0 || increment > wire.StreamIDMask {
		panic(fmt.Sprintf("h2stream: WINDOW_UPDATE increment %d out of range 1..2^31-1", increment))
	}
	wu.increment = increment
}

func (wu *WindowUpdate) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) != 4 {
		return NewStreamError(FrameSizeError, "WINDOW_UPDATE: payload must be exactly 4 bytes")
	}

	wu.increment = wire.BytesToUint32(fr.payload) & wire.StreamIDMask

	return nil
}

func (wu *WindowUpdate) Serialize(fr *FrameHeader) {
	fr.payload = wire.AppendUint32Bytes(fr.payload[:0], wu.increment)
}
