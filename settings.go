package h2stream

import (
	"sync"

	"github.com/cloudpeek/h2stream/internal/wire"
)

// Setting identifiers, https://tools.ietf.org/html/rfc7540#section-6.5.2
const (
	SettingHeaderTableSize      uint16 = 0x1
	SettingEnablePush           uint16 = 0x2
	SettingMaxConcurrentStreams uint16 = 0x3
	SettingInitialWindowSize    uint16 = 0x4
	SettingMaxFrameSize         uint16 = 0x5
	SettingMaxHeaderListSize    uint16 = 0x6
)

const (
	defaultHeaderTableSize   = 4096
	defaultMaxFrameSize      = 1 << 14
	maxAllowedFrameSize      = 1<<24 - 1
	defaultMaxConcurrent     = 100
	defaultInitialWindowSize = 1<<16 - 1
)

var _ Frame = &Settings{}

var settingsPool = sync.Pool{
	New: func() interface{} {
		st := &Settings{}
		st.Reset()
		return st
	},
}

// AcquireSettings returns a pooled Settings frame with RFC 7540 defaults,
// except that push is disabled (ENABLE_PUSH=0).
func AcquireSettings() *Settings {
	st := settingsPool.Get().(*Settings)
	st.Reset()
	return st
}

// Settings negotiates connection-wide parameters. A SETTINGS frame with
// FlagAck set carries no payload and only acknowledges a previous one.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack bool

	headerTableSize      uint32
	disablePush          bool
	maxConcurrentStreams uint32
	maxWindowSize        uint32
	maxFrameSize         uint32
	maxHeaderListSize    uint32

	hasMaxConcurrentStreams bool
	hasMaxHeaderListSize    bool
}

func (st *Settings) Type() FrameType {
	return FrameSettings
}

func (st *Settings) Reset() {
	st.ack = false
	st.headerTableSize = defaultHeaderTableSize
	st.disablePush = true
	st.maxConcurrentStreams = defaultMaxConcurrent
	st.maxWindowSize = defaultInitialWindowSize
	st.maxFrameSize = defaultMaxFrameSize
	st.maxHeaderListSize = 0
	st.hasMaxConcurrentStreams = false
	st.hasMaxHeaderListSize = false
}

// CopyTo copies st's fields to s2.
func (st *Settings) CopyTo(s2 *Settings) {
	*s2 = *st
}

func (st *Settings) IsAck() bool {
	return st.ack
}

func (st *Settings) SetAck(value bool) {
	st.ack = value
}

func (st *Settings) HeaderTableSize() uint32 {
	return st.headerTableSize
}

func (st *Settings) SetHeaderTableSize(size uint32) {
	st.headerTableSize = size
}

func (st *Settings) Push() bool {
	return !st.disablePush
}

func (st *Settings) SetPush(enabled bool) {
	st.disablePush = !enabled
}

func (st *Settings) MaxConcurrentStreams() uint32 {
	return st.maxConcurrentStreams
}

func (st *Settings) SetMaxConcurrentStreams(n uint32) {
	st.maxConcurrentStreams = n
	st.hasMaxConcurrentStreams = true
}

// MaxWindowSize returns SETTINGS_INITIAL_WINDOW_SIZE.
func (st *Settings) MaxWindowSize() uint32 {
	return st.maxWindowSize
}

func (st *Settings) SetMaxWindowSize(size uint32) {
	st.maxWindowSize = size
}

func (st *Settings) MaxFrameSize() uint32 {
	return st.maxFrameSize
}

func (st *Settings) SetMaxFrameSize(size uint32) {
	st.maxFrameSize = size
}

func (st *Settings) MaxHeaderListSize() uint32 {
	return st.maxHeaderListSize
}

func (st *Settings) SetMaxHeaderListSize(size uint32) {
	st.maxHeaderListSize = size
	st.hasMaxHeaderListSize = true
}

// Deserialize decodes a SETTINGS payload. An ACK carrying any payload at all
// is a FRAME_SIZE_ERROR; a non-ACK payload not a multiple of 6 bytes is too.
// Unknown identifiers are ignored per section 6.5.2. Each recognised
// identifier is range-checked per section 6.5.2's table.
func (st *Settings) Deserialize(fr *FrameHeader) error {
	st.ack = fr.Flags().Has(FlagAck)

	payload := fr.payload

	if st.ack {
		if len(payload) != 0 {
			return NewError(FrameSizeError, "SETTINGS ack must carry an empty payload")
		}
		return nil
	}

	if len(payload)%6 != 0 {
		return NewError(FrameSizeError, "SETTINGS payload must be a multiple of 6 bytes")
	}

	for len(payload) > 0 {
		id := wire.BytesToUint16(payload[:2])
		val := wire.BytesToUint32(payload[2:6])
		payload = payload[6:]

		switch id {
		case SettingHeaderTableSize:
			st.headerTableSize = val
		case SettingEnablePush:
			// A client never advertises push support, so a compliant server
			// never sends ENABLE_PUSH=1 to us; reject it outright rather
			// than silently accepting it (spec.md section 4.2.5).
			if val != 0 {
				return NewError(ProtocolError, "SETTINGS_ENABLE_PUSH must be 0")
			}
			st.disablePush = true
		case SettingMaxConcurrentStreams:
			st.maxConcurrentStreams = val
			st.hasMaxConcurrentStreams = true
		case SettingInitialWindowSize:
			if val > 1<<31-1 {
				return NewError(FlowControlError, "SETTINGS_INITIAL_WINDOW_SIZE exceeds 2^31-1")
			}
			st.maxWindowSize = val
		case SettingMaxFrameSize:
			if val < defaultMaxFrameSize || val > maxAllowedFrameSize {
				return NewError(ProtocolError, "SETTINGS_MAX_FRAME_SIZE out of range")
			}
			st.maxFrameSize = val
		case SettingMaxHeaderListSize:
			st.maxHeaderListSize = val
			st.hasMaxHeaderListSize = true
		}
	}

	return nil
}

func (st *Settings) Serialize(fr *FrameHeader) {
	if st.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		fr.setPayload(nil)
		return
	}

	payload := fr.payload[:0]
	payload = appendSetting(payload, SettingHeaderTableSize, st.headerTableSize)
	payload = appendSetting(payload, SettingEnablePush, boolToUint32(!st.disablePush))

	if st.hasMaxConcurrentStreams {
		payload = appendSetting(payload, SettingMaxConcurrentStreams, st.maxConcurrentStreams)
	}

	payload = appendSetting(payload, SettingInitialWindowSize, st.maxWindowSize)
	payload = appendSetting(payload, SettingMaxFrameSize, st.maxFrameSize)

	if st.hasMaxHeaderListSize {
		payload = appendSetting(payload, SettingMaxHeaderListSize, st.maxHeaderListSize)
	}

	fr.setPayload(payload)
}

func appendSetting(dst []byte, id uint16, val uint32) []byte {
	dst = wire.AppendUint16Bytes(dst, id)
	return wire.AppendUint32Bytes(dst, val)
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
