package h2stream

import (
	"bufio"
	"bytes"
	"testing"
)

func serializeSettings(t *testing.T, st *Settings) *FrameHeader {
	t.Helper()
	fr := AcquireFrameHeader()
	fr.SetBody(st)

	bf := bytes.NewBuffer(nil)
	bw := bufio.NewWriter(bf)
	if _, err := fr.WriteTo(bw); err != nil {
		t.Fatal(err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}
	ReleaseFrameHeader(fr)

	got, err := ReadFrameFrom(bufio.NewReader(bf))
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestSettingsRoundTrip(t *testing.T) {
	st := AcquireSettings()
	st.SetHeaderTableSize(8192)
	st.SetMaxConcurrentStreams(42)
	st.SetMaxWindowSize(1 << 20)
	st.SetMaxFrameSize(1 << 16)

	fr := serializeSettings(t, st)
	defer ReleaseFrameHeader(fr)

	got := fr.Body().(*Settings)
	if got.HeaderTableSize() != 8192 {
		t.Fatalf("header table size: got %d", got.HeaderTableSize())
	}
	if got.MaxConcurrentStreams() != 42 {
		t.Fatalf("max concurrent streams: got %d", got.MaxConcurrentStreams())
	}
	if got.MaxWindowSize() != 1<<20 {
		t.Fatalf("max window size: got %d", got.MaxWindowSize())
	}
	if got.MaxFrameSize() != 1<<16 {
		t.Fatalf("max frame size: got %d", got.MaxFrameSize())
	}
}

func TestSettingsAckMustBeEmpty(t *testing.T) {
	fr := AcquireFrameHeader()
	fr.SetFlags(fr.Flags().Add(FlagAck))
	fr.payload = append(fr.payload[:0], 0, 0, 0, 0, 0, 0)
	fr.length = len(fr.payload)

	st := &Settings{}
	err := st.Deserialize(fr)
	herr, ok := err.(*Error)
	if !ok || herr.Code != FrameSizeError {
		t.Fatalf("expected FrameSizeError, got %v", err)
	}
}

func TestSettingsPayloadNotMultipleOfSix(t *testing.T) {
	fr := AcquireFrameHeader()
	fr.payload = append(fr.payload[:0], 0, 0, 0, 0, 0)
	fr.length = len(fr.payload)

	st := &Settings{}
	err := st.Deserialize(fr)
	herr, ok := err.(*Error)
	if !ok || herr.Code != FrameSizeError {
		t.Fatalf("expected FrameSizeError, got %v", err)
	}
}

func TestSettingsEnablePushMustBeBoolish(t *testing.T) {
	fr := AcquireFrameHeader()
	fr.payload = appendSetting(fr.payload[:0], SettingEnablePush, 2)
	fr.length = len(fr.payload)

	st := &Settings{}
	err := st.Deserialize(fr)
	herr, ok := err.(*Error)
	if !ok || herr.Code != ProtocolError {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

// TestSettingsEnablePushRejectsOne covers the exact boundary spec.md section
// 4.2.5 calls out by name: a client must reject ENABLE_PUSH=1, not just
// out-of-range values like 2.
func TestSettingsEnablePushRejectsOne(t *testing.T) {
	fr := AcquireFrameHeader()
	fr.payload = appendSetting(fr.payload[:0], SettingEnablePush, 1)
	fr.length = len(fr.payload)

	st := &Settings{}
	err := st.Deserialize(fr)
	herr, ok := err.(*Error)
	if !ok || herr.Code != ProtocolError {
		t.Fatalf("expected ProtocolError for ENABLE_PUSH=1, got %v", err)
	}
}

func TestSettingsInitialWindowSizeOverflow(t *testing.T) {
	fr := AcquireFrameHeader()
	fr.payload = appendSetting(fr.payload[:0], SettingInitialWindowSize, 1<<31)
	fr.length = len(fr.payload)

	st := &Settings{}
	err := st.Deserialize(fr)
	herr, ok := err.(*Error)
	if !ok || herr.Code != FlowControlError {
		t.Fatalf("expected FlowControlError, got %v", err)
	}
}

func TestSettingsMaxFrameSizeOutOfRange(t *testing.T) {
	fr := AcquireFrameHeader()
	fr.payload = appendSetting(fr.payload[:0], SettingMaxFrameSize, 100)
	fr.length = len(fr.payload)

	st := &Settings{}
	err := st.Deserialize(fr)
	herr, ok := err.(*Error)
	if !ok || herr.Code != ProtocolError {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}
