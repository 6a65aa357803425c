package h2stream

import (
	"sync"

	"github.com/cloudpeek/h2stream/internal/wire"
)

var _ Frame = &Data{}

var dataPool = sync.Pool{
	New: func() interface{} { return &Data{} },
}

// AcquireData returns a pooled, reset Data frame.
func AcquireData() *Data {
	return dataPool.Get().(*Data)
}

// Data carries a stream's body bytes.
//
// Flags: END_STREAM, PADDED.
//
// https://tools.ietf.org/html/rfc7540#section-6.1
type Data struct {
	endStream  bool
	hasPadding bool
	b          []byte
}

func (data *Data) Type() FrameType {
	return FrameData
}

func (data *Data) Reset() {
	data.endStream = false
	data.hasPadding = false
	data.b = data.b[:0]
}

// CopyTo copies data's fields to d.
func (data *Data) CopyTo(d *Data) {
	d.hasPadding = data.hasPadding
	d.endStream = data.endStream
	d.b = append(d.b[:0], data.b...)
}

func (data *Data) SetEndStream(value bool) {
	data.endStream = value
}

func (data *Data) EndStream() bool {
	return data.endStream
}

// Data returns the frame's body bytes.
func (data *Data) Data() []byte {
	return data.b
}

// SetData replaces the frame's body bytes with a copy of b.
func (data *Data) SetData(b []byte) {
	data.b = append(data.b[:0], b...)
}

// Padding reports whether this frame will be/was sent with PADDED set.
func (data *Data) Padding() bool {
	return data.hasPadding
}

// SetPadding enables or disables padding on Serialize.
func (data *Data) SetPadding(value bool) {
	data.hasPadding = value
}

// Append appends b to the frame's body bytes.
func (data *Data) Append(b []byte) {
	data.b = append(data.b, b...)
}

func (data *Data) Len() int {
	return len(data.b)
}

// Write implements io.Writer by appending b to the body.
func (data *Data) Write(b []byte) (int, error) {
	data.Append(b)
	return len(b), nil
}

func (data *Data) Deserialize(fr *FrameHeader) error {
	payload := fr.payload

	if fr.Flags().Has(FlagPadded) {
		var err error
		payload, _, err = wire.CutPadding(payload)
		if err != nil {
			return NewStreamError(ProtocolError, "DATA: "+err.Error())
		}
	}

	data.endStream = fr.Flags().Has(FlagEndStream)
	data.b = append(data.b[:0], payload...)

	return nil
}

func (data *Data) Serialize(fr *FrameHeader) {
	if data.endStream {
		fr.SetFlags(fr.Flags().Add(FlagEndStream))
	}

	if data.hasPadding {
		fr.SetFlags(fr.Flags().Add(FlagPadded))
		data.b = wire.AddPadding(data.b)
	}

	fr.setPayload(data.b)
}
