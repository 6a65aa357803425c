package h2stream

import (
	"sync"

	"github.com/cloudpeek/h2stream/internal/wire"
)

var _ Frame = &Priority{}

var priorityPool = sync.Pool{
	New: func() interface{} { return &Priority{} },
}

// AcquirePriority returns a pooled, reset Priority frame.
func AcquirePriority() *Priority {
	return priorityPool.Get().(*Priority)
}

// Priority advertises (or changes) a stream's position in the dependency
// tree, per the reprioritise algorithm this module runs on receipt.
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type Priority struct {
	stream    uint32 // dependency
	exclusive bool
	weight    byte // wire value; add 1 for the real 1..256 weight
}

func (pry *Priority) Type() FrameType {
	return FramePriority
}

func (pry *Priority) Reset() {
	pry.stream = 0
	pry.exclusive = false
	pry.weight = 0
}

func (pry *Priority) CopyTo(p *Priority) {
	p.stream = pry.stream
	p.exclusive = pry.exclusive
	p.weight = pry.weight
}

// Stream returns the dependency's stream id.
func (pry *Priority) Stream() uint32 {
	return pry.stream
}

// SetStream sets the dependency's stream id.
func (pry *Priority) SetStream(stream uint32) {
	pry.stream = stream & wire.StreamIDMask
}

// Exclusive reports whether the dependency is exclusive.
func (pry *Priority) Exclusive() bool {
	return pry.exclusive
}

func (pry *Priority) SetExclusive(value bool) {
	pry.exclusive = value
}

// Weight returns the real 1..256 weight (wire value + 1).
func (pry *Priority) Weight() int {
	return int(pry.weight) + 1
}

// SetWeight sets the real 1..256 weight; values outside that range are clamped.
func (pry *Priority) SetWeight(w int) {
	if w < 1 {
		w = 1
	} else if w > 256 {
		w = 256
	}
	pry.weight = byte(w - 1)
}

func (pry *Priority) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) != 5 {
		return NewStreamError(FrameSizeError, "PRIORITY: payload must be exactly 5 bytes")
	}

	dep := wire.BytesToUint32(fr.payload)
	pry.exclusive = dep&0x80000000 != 0
	pry.stream = dep & wire.StreamIDMask
	pry.weight = fr.payload[4]

	if pry.stream == fr.Stream() {
		return NewStreamError(ProtocolError, "PRIORITY: stream cannot depend on itself")
	}

	return nil
}

func (pry *Priority) Serialize(fr *FrameHeader) {
	dep := pry.stream & wire.StreamIDMask
	if pry.exclusive {
		dep |= 0x80000000
	}

	fr.payload = wire.AppendUint32Bytes(fr.payload[:0], dep)
	fr.payload = append(fr.payload, pry.weight)
}
