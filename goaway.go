package h2stream

import (
	"fmt"
	"sync"

	"github.com/cloudpeek/h2stream/internal/wire"
)

var _ Frame = &GoAway{}

var goAwayPool = sync.Pool{
	New: func() interface{} { return &GoAway{} },
}

// AcquireGoAway returns a pooled, reset GoAway frame.
func AcquireGoAway() *GoAway {
	return goAwayPool.Get().(*GoAway)
}

// GoAway tells the peer to stop creating streams above lastStream and gives
// the reason the connection is ending.
//
// https://tools.ietf.org/html/rfc7540#section-6.8
type GoAway struct {
	lastStream uint32
	code       ErrorCode
	data       []byte
}

func (ga *GoAway) Error() string {
	return fmt.Sprintf("GOAWAY last_stream=%d code=%s data=%q", ga.lastStream, ga.code, ga.data)
}

func (ga *GoAway) Type() FrameType {
	return FrameGoAway
}

func (ga *GoAway) Reset() {
	ga.lastStream = 0
	ga.code = 0
	ga.data = ga.data[:0]
}

func (ga *GoAway) CopyTo(other *GoAway) {
	other.lastStream = ga.lastStream
	other.code = ga.code
	other.data = append(other.data[:0], ga.data...)
}

func (ga *GoAway) Code() ErrorCode {
	return ga.code
}

func (ga *GoAway) SetCode(code ErrorCode) {
	ga.code = code
}

// LastStream returns the highest stream id the sender processed.
func (ga *GoAway) LastStream() uint32 {
	return ga.lastStream
}

func (ga *GoAway) SetLastStream(stream uint32) {
	ga.lastStream = stream & wire.StreamIDMask
}

func (ga *GoAway) Data() []byte {
	return ga.data
}

func (ga *GoAway) SetData(b []byte) {
	ga.data = append(ga.data[:0], b...)
}

func (ga *GoAway) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 8 {
		return NewError(FrameSizeError, ErrMissingBytes.Error())
	}

	ga.lastStream = wire.BytesToUint32(fr.payload) & wire.StreamIDMask
	ga.code = ErrorCode(wire.BytesToUint32(fr.payload[4:]))

	if rest := fr.payload[8:]; len(rest) != 0 {
		ga.data = append(ga.data[:0], rest...)
	} else {
		ga.data = ga.data[:0]
	}

	return nil
}

func (ga *GoAway) Serialize(fr *FrameHeader) {
	payload := wire.AppendUint32Bytes(fr.payload[:0], ga.lastStream)
	payload = wire.AppendUint32Bytes(payload, uint32(ga.code))
	payload = append(payload, ga.data...)

	fr.setPayload(payload)
}
