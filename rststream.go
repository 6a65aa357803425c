package h2stream

import (
	"sync"

	"github.com/cloudpeek/h2stream/internal/wire"
)

var _ Frame = &RstStream{}

var rstStreamPool = sync.Pool{
	New: func() interface{} { return &RstStream{} },
}

// AcquireRstStream returns a pooled, reset RstStream frame.
func AcquireRstStream() *RstStream {
	return rstStreamPool.Get().(*RstStream)
}

// RstStream immediately terminates a stream, carrying the reason it was
// terminated for.
//
// https://tools.ietf.org/html/rfc7540#section-6.4
type RstStream struct {
	code ErrorCode
}

func (rst *RstStream) Type() FrameType {
	return FrameResetStream
}

func (rst *RstStream) Code() ErrorCode {
	return rst.code
}

func (rst *RstStream) SetCode(code ErrorCode) {
	rst.code = code
}

func (rst *RstStream) Reset() {
	rst.code = 0
}

func (rst *RstStream) CopyTo(r *RstStream) {
	r.code = rst.code
}

// Error turns the received code into an Error the connection layer can
// inspect without re-reading the frame.
func (rst *RstStream) Error() error {
	return NewStreamError(rst.code, "RST_STREAM")
}

func (rst *RstStream) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) != 4 {
		return NewStreamError(FrameSizeError, "RST_STREAM: payload must be exactly 4 bytes")
	}

	rst.code = ErrorCode(wire.BytesToUint32(fr.payload))

	return nil
}

func (rst *RstStream) Serialize(fr *FrameHeader) {
	fr.payload = wire.AppendUint32Bytes(fr.payload[:0], uint32(rst.code))
}
