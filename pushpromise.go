package h2stream

import (
	"sync"

	"github.com/cloudpeek/h2stream/internal/wire"
)

var _ Frame = &PushPromise{}

var pushPromisePool = sync.Pool{
	New: func() interface{} { return &PushPromise{} },
}

// AcquirePushPromise returns a pooled, reset PushPromise frame.
func AcquirePushPromise() *PushPromise {
	return pushPromisePool.Get().(*PushPromise)
}

// PushPromise announces a server-initiated stream the client didn't ask for.
//
// Receiving one is not implemented by this client-only module: the
// dispatcher answers it with RST_STREAM(REFUSED_STREAM) per
// SPEC_FULL.md section 4.2.6, since ENABLE_PUSH is always advertised as 0.
//
// https://tools.ietf.org/html/rfc7540#section-6.6
type PushPromise struct {
	hasPadding bool
	endHeaders bool
	promised   uint32 // promised stream id
	header     []byte // header block fragment
}

func (pp *PushPromise) Type() FrameType {
	return FramePushPromise
}

func (pp *PushPromise) Reset() {
	pp.hasPadding = false
	pp.endHeaders = false
	pp.promised = 0
	pp.header = pp.header[:0]
}

func (pp *PushPromise) Promised() uint32 {
	return pp.promised
}

func (pp *PushPromise) SetPromised(stream uint32) {
	pp.promised = stream & wire.StreamIDMask
}

func (pp *PushPromise) EndHeaders() bool {
	return pp.endHeaders
}

func (pp *PushPromise) SetEndHeaders(value bool) {
	pp.endHeaders = value
}

// Headers returns the raw header block fragment.
func (pp *PushPromise) Headers() []byte {
	return pp.header
}

func (pp *PushPromise) SetHeader(h []byte) {
	pp.header = append(pp.header[:0], h...)
}

func (pp *PushPromise) Write(b []byte) (int, error) {
	pp.header = append(pp.header, b...)
	return len(b), nil
}

func (pp *PushPromise) Deserialize(fr *FrameHeader) error {
	payload := fr.payload

	if fr.Flags().Has(FlagPadded) {
		var err error
		payload, _, err = wire.CutPadding(payload)
		if err != nil {
			return NewStreamError(ProtocolError, "PUSH_PROMISE: "+err.Error())
		}
	}

	if len(payload) < 4 {
		return NewError(FrameSizeError, ErrMissingBytes.Error())
	}

	pp.promised = wire.BytesToUint32(payload) & wire.StreamIDMask
	pp.header = append(pp.header[:0], payload[4:]...)
	pp.endHeaders = fr.Flags().Has(FlagEndHeaders)

	return nil
}

func (pp *PushPromise) Serialize(fr *FrameHeader) {
	if pp.endHeaders {
		fr.SetFlags(fr.Flags().Add(FlagEndHeaders))
	}

	payload := wire.AppendUint32Bytes(fr.payload[:0], pp.promised)
	payload = append(payload, pp.header...)

	if pp.hasPadding {
		fr.SetFlags(fr.Flags().Add(FlagPadded))
		payload = wire.AddPadding(payload)
	}

	fr.setPayload(payload)
}
