package h2stream

import "sync"

var _ Frame = &Ping{}

var pingPool = sync.Pool{
	New: func() interface{} { return &Ping{} },
}

// AcquirePing returns a pooled, reset Ping frame.
func AcquirePing() *Ping {
	return pingPool.Get().(*Ping)
}

// Ping carries 8 opaque bytes a peer must echo back with FlagAck set.
//
// https://tools.ietf.org/html/rfc7540#section-6.7
type Ping struct {
	ack  bool
	data [8]byte
}

func (ping *Ping) Type() FrameType {
	return FramePing
}

func (ping *Ping) Reset() {
	ping.ack = false
	ping.data = [8]byte{}
}

func (ping *Ping) CopyTo(p *Ping) {
	p.ack = ping.ack
	p.data = ping.data
}

func (ping *Ping) Ack() bool {
	return ping.ack
}

func (ping *Ping) SetAck(value bool) {
	ping.ack = value
}

// Write copies up to 8 bytes of b into the ping payload.
func (ping *Ping) Write(b []byte) (n int, err error) {
	n = copy(ping.data[:], b)
	return n, nil
}

func (ping *Ping) SetData(b []byte) {
	copy(ping.data[:], b)
}

func (ping *Ping) Deserialize(frh *FrameHeader) error {
	if len(frh.payload) != 8 {
		return NewStreamError(FrameSizeError, "PING: payload must be exactly 8 bytes")
	}

	ping.ack = frh.Flags().Has(FlagAck)
	ping.SetData(frh.payload)
	return nil
}

func (ping *Ping) Data() []byte {
	return ping.data[:]
}

func (ping *Ping) Serialize(fr *FrameHeader) {
	if ping.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
	}

	fr.setPayload(ping.data[:])
}
