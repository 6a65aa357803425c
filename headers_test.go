package h2stream

import (
	"bufio"
	"bytes"
	"testing"
)

func serializeHeaders(t *testing.T, h *Headers) *FrameHeader {
	t.Helper()
	fr := AcquireFrameHeader()
	fr.SetBody(h)

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

func TestHeadersWeightRoundTrip(t *testing.T) {
	h := AcquireHeaders()
	h.SetHasPriority(true)
	h.SetStreamDep(5)
	h.SetExclusive(true)
	h.SetWeight(256) // the boundary value that used to overflow a uint8
	h.SetEndHeaders(true)
	h.SetHeaders([]byte("hpack-bytes"))

	fr := serializeHeaders(t, h)
	defer ReleaseFrameHeader(fr)

	got := fr.Body().(*Headers)
	if got.Weight() != 256 {
		t.Fatalf("expected weight 256 to survive the round trip, got %d", got.Weight())
	}
	if got.StreamDep() != 5 {
		t.Fatalf("unexpected stream dependency: %d", got.StreamDep())
	}
	if !got.Exclusive() {
		t.Fatal("expected exclusive flag to survive the round trip")
	}
	if !got.EndHeaders() {
		t.Fatal("expected END_HEADERS to survive the round trip")
	}
}

func TestHeadersWeightClamping(t *testing.T) {
	h := &Headers{}

	h.SetWeight(0)
	if got := h.Weight(); got != 1 {
		t.Fatalf("expected weight below range to clamp to 1, got %d", got)
	}

	h.SetWeight(1000)
	if got := h.Weight(); got != 256 {
		t.Fatalf("expected weight above range to clamp to 256, got %d", got)
	}
}

func TestHeadersPriorityFieldTooShortIsFrameSizeError(t *testing.T) {
	fr := AcquireFrameHeader()
	fr.SetFlags(fr.Flags().Add(FlagPriority))
	// Only 3 bytes: the 4-byte dependency + 1-byte weight can't fit.
	fr.payload = append(fr.payload[:0], 0, 0, 0)
	fr.length = len(fr.payload)

	h := &Headers{}
	err := h.Deserialize(fr)
	herr, ok := err.(*Error)
	if !ok || herr.Code != FrameSizeError {
		t.Fatalf("expected FrameSizeError, got %v", err)
	}
}
