package h2stream

import (
	"sync"

	"github.com/cloudpeek/h2stream/internal/wire"
)

var (
	_ Frame            = &Headers{}
	_ FrameWithHeaders = &Headers{}
)

var headersPool = sync.Pool{
	New: func() interface{} { return &Headers{} },
}

// AcquireHeaders returns a pooled, reset Headers frame.
func AcquireHeaders() *Headers {
	return headersPool.Get().(*Headers)
}

// FrameWithHeaders is implemented by HEADERS, PUSH_PROMISE and CONTINUATION:
// the three frame types whose payload carries (part of) a header block
// fragment that the reassembler concatenates in arrival order.
type FrameWithHeaders interface {
	Headers() []byte
}

// Headers opens or continues a stream's header block.
//
// Flags: END_STREAM, END_HEADERS, PADDED, PRIORITY.
//
// https://tools.ietf.org/html/rfc7540#section-6.2
type Headers struct {
	hasPadding  bool
	hasPriority bool
	stream      uint32 // stream dependency, only meaningful if hasPriority
	weight      byte   // wire value; add 1 for the real 1..256 weight
	exclusive   bool
	endStream   bool
	endHeaders  bool
	rawHeaders  []byte // raw (still HPACK-encoded) header block fragment
}

func (h *Headers) Reset() {
	h.hasPadding = false
	h.hasPriority = false
	h.stream = 0
	h.weight = 0
	h.exclusive = false
	h.endStream = false
	h.endHeaders = false
	h.rawHeaders = h.rawHeaders[:0]
}

// CopyTo copies h's fields to h2.
func (h *Headers) CopyTo(h2 *Headers) {
	h2.hasPadding = h.hasPadding
	h2.hasPriority = h.hasPriority
	h2.stream = h.stream
	h2.weight = h.weight
	h2.exclusive = h.exclusive
	h2.endStream = h.endStream
	h2.endHeaders = h.endHeaders
	h2.rawHeaders = append(h2.rawHeaders[:0], h.rawHeaders...)
}

func (h *Headers) Type() FrameType {
	return FrameHeaders
}

// Headers returns the raw (HPACK-encoded) header block fragment.
func (h *Headers) Headers() []byte {
	return h.rawHeaders
}

// SetHeaders replaces the raw header block fragment with a copy of b.
func (h *Headers) SetHeaders(b []byte) {
	h.rawHeaders = append(h.rawHeaders[:0], b...)
}

// AppendRawHeaders appends b to the raw header block fragment.
func (h *Headers) AppendRawHeaders(b []byte) {
	h.rawHeaders = append(h.rawHeaders, b...)
}

func (h *Headers) EndStream() bool {
	return h.endStream
}

func (h *Headers) SetEndStream(value bool) {
	h.endStream = value
}

func (h *Headers) EndHeaders() bool {
	return h.endHeaders
}

func (h *Headers) SetEndHeaders(value bool) {
	h.endHeaders = value
}

// HasPriority reports whether this HEADERS frame carries the PRIORITY flag's
// stream dependency/weight fields.
func (h *Headers) HasPriority() bool {
	return h.hasPriority
}

func (h *Headers) SetHasPriority(value bool) {
	h.hasPriority = value
}

// StreamDep returns the dependency's stream id (meaningless unless HasPriority).
func (h *Headers) StreamDep() uint32 {
	return h.stream
}

func (h *Headers) SetStreamDep(stream uint32) {
	h.stream = stream & wire.StreamIDMask
}

// Exclusive reports whether the dependency was marked exclusive.
func (h *Headers) Exclusive() bool {
	return h.exclusive
}

func (h *Headers) SetExclusive(value bool) {
	h.exclusive = value
}

// Weight returns the dependency's real 1..256 weight (wire value + 1).
func (h *Headers) Weight() int {
	return int(h.weight) + 1
}

// SetWeight sets the real 1..256 weight; values outside that range are clamped.
func (h *Headers) SetWeight(w int) {
	if w < 1 {
		w = 1
	} else if w > 256 {
		w = 256
	}
	h.weight = byte(w - 1)
}

func (h *Headers) Padding() bool {
	return h.hasPadding
}

func (h *Headers) SetPadding(value bool) {
	h.hasPadding = value
}

func (h *Headers) Deserialize(frh *FrameHeader) error {
	flags := frh.Flags()
	payload := frh.payload

	if flags.Has(FlagPadded) {
		var err error
		payload, _, err = wire.CutPadding(payload)
		if err != nil {
			return NewStreamError(ProtocolError, "HEADERS: "+err.Error())
		}
	}

	h.hasPriority = flags.Has(FlagPriority)
	if h.hasPriority {
		if len(payload) < 5 { // 4 (dependency) + 1 (weight)
			return NewError(FrameSizeError, ErrMissingBytes.Error())
		}

		dep := wire.BytesToUint32(payload)
		h.exclusive = dep&0x80000000 != 0
		h.stream = dep & wire.StreamIDMask
		h.weight = payload[4]
		payload = payload[5:]
	}

	h.endStream = flags.Has(FlagEndStream)
	h.endHeaders = flags.Has(FlagEndHeaders)
	h.rawHeaders = append(h.rawHeaders[:0], payload...)

	return nil
}

func (h *Headers) Serialize(frh *FrameHeader) {
	if h.endStream {
		frh.SetFlags(frh.Flags().Add(FlagEndStream))
	}

	if h.endHeaders {
		frh.SetFlags(frh.Flags().Add(FlagEndHeaders))
	}

	payload := frh.payload[:0]

	if h.hasPriority {
		frh.SetFlags(frh.Flags().Add(FlagPriority))

		dep := h.stream & wire.StreamIDMask
		if h.exclusive {
			dep |= 0x80000000
		}

		payload = wire.AppendUint32Bytes(payload, dep)
		payload = append(payload, h.weight)
	}

	payload = append(payload, h.rawHeaders...)

	if h.hasPadding {
		frh.SetFlags(frh.Flags().Add(FlagPadded))
		payload = wire.AddPadding(payload)
	}

	frh.setPayload(payload)
}
